package ssau

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/hitoshi/schedbot/internal/model"
)

// ログインページはNext.jsのサーバーアクションで実装されており、
// POSTに必要なルーター状態とアクションIDはページとチャンクJSから
// 抽出する。マークアップは予告なく変わるため、抽出戦略は複数持つ。
var (
	initialTreeRE = regexp.MustCompile(`(?s)"initialTree":(\[.*?\])\s*,\s*"initialSeedData"`)

	loginChunkPrefix   = "/_next/static/chunks/app/account/login/page-"
	loginChunkSrcRE    = regexp.MustCompile(`src="(/_next/static/chunks/app/account/login/page-[^"]+\.js)"`)
	loginChunkLooseRE  = regexp.MustCompile(`(/_next/static/chunks/app/account/login/page-[^"'\\]+\.js)`)

	actionHashRE    = regexp.MustCompile(`\b[a-f0-9]{40}\b`)
	actionEntryRE   = regexp.MustCompile(`(?s)__next_internal_action_entry_do_not_use__\s*=\s*\{([^}]+)\}`)
	actionEntryIDRE = regexp.MustCompile(`['"]([a-f0-9]{40})['"]\s*:`)
	actionAssignRE  = regexp.MustCompile(`\$\$ACTION_\d+\.\$\$id\s*=\s*['"]([a-f0-9]{40})['"]`)
	actionPropRE    = regexp.MustCompile(`\$\$id\s*[:=]\s*['"]([a-f0-9]{40})['"]`)

	nextFPushRE = regexp.MustCompile(`(?s)self\.__next_f\.push\(\[\d+,\s*("(?:\\.|[^"\\])*")\s*\]\)`)
)

// LoginScraper はNext.jsログインページからPOSTメタデータを抽出する。
type LoginScraper struct{}

// NewLoginScraper はLoginScraperを生成する。
func NewLoginScraper() *LoginScraper {
	return &LoginScraper{}
}

// ExtractRouterState はログインHTMLからルーター状態ツリーを抽出し、
// next-router-state-treeヘッダー用のパーセントエンコード済みJSONを返す。
// HTML本文に見つからない場合は__next_f.pushのストリーミングペイロードを
// 結合して再探索する。
func (s *LoginScraper) ExtractRouterState(htmlText, routePath string) (string, error) {
	tree := extractTreeFromText(htmlText)
	if tree == nil {
		tree = extractTreeFromNextFPayload(htmlText)
	}
	if tree == nil {
		return "", model.NewScrapeFailedError("initialTreeが見つかりません")
	}

	normalized := replaceUndefined(tree)
	if list, ok := normalized.([]any); ok && routePath != "" {
		normalized = ensurePageSegment(list, routePath)
	}

	encoded, err := marshalCompact(normalized)
	if err != nil {
		return "", model.NewScrapeFailedError("ルーター状態のエンコードに失敗しました")
	}
	return percentEncode(encoded), nil
}

// ExtractLoginChunkURL はログインページのチャンクJSのURLを抽出する。
// HTMLパースでscriptタグのsrc属性を探し、失敗した場合は
// 正規表現で本文全体から探す。
func (s *LoginScraper) ExtractLoginChunkURL(htmlText string) (string, error) {
	if doc, err := html.Parse(strings.NewReader(htmlText)); err == nil {
		if url := findLoginChunkScript(doc); url != "" {
			return url, nil
		}
	}
	if m := loginChunkSrcRE.FindStringSubmatch(htmlText); m != nil {
		return m[1], nil
	}
	if m := loginChunkLooseRE.FindStringSubmatch(htmlText); m != nil {
		return m[1], nil
	}
	return "", model.NewScrapeFailedError("ログインチャンクのURLが見つかりません")
}

// ExtractNextAction はチャンクJSからサーバーアクションIDを抽出する。
// 戦略は確度の高い順に試す:
//  1. アクションエントリーマップに唯一のIDがある
//  2. $$ACTION_n.$$id への代入が唯一
//  3. $$id プロパティが唯一
//  4. エントリーマップと代入/プロパティの積集合が唯一
//  5. 最頻出の40桁16進ハッシュ
func (s *LoginScraper) ExtractNextAction(js string) (string, error) {
	entryIDs := extractActionEntryIDs(js)
	if len(entryIDs) == 1 {
		return entryIDs[0], nil
	}

	assignIDs := findAllGroups(actionAssignRE, js)
	if len(assignIDs) == 1 {
		return assignIDs[0], nil
	}

	propIDs := findAllGroups(actionPropRE, js)
	if len(propIDs) == 1 {
		return propIDs[0], nil
	}

	if len(entryIDs) > 0 {
		for _, pool := range [][]string{assignIDs, propIDs} {
			if id, ok := uniqueIntersection(entryIDs, pool); ok {
				return id, nil
			}
		}
	}

	hashes := actionHashRE.FindAllString(js, -1)
	if len(hashes) == 0 {
		return "", model.NewScrapeFailedError("サーバーアクションのハッシュが見つかりません")
	}
	return mostFrequent(hashes), nil
}

// extractTreeFromText はHTML本文から直接initialTreeを探す。
func extractTreeFromText(text string) any {
	m := initialTreeRE.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	var tree any
	if err := json.Unmarshal([]byte(m[1]), &tree); err != nil {
		return nil
	}
	return tree
}

// extractTreeFromNextFPayload は__next_f.pushの文字列ペイロードを
// 結合してからinitialTreeを探す。
func extractTreeFromNextFPayload(htmlText string) any {
	var combined strings.Builder
	for _, m := range nextFPushRE.FindAllStringSubmatch(htmlText, -1) {
		var payload string
		if err := json.Unmarshal([]byte(m[1]), &payload); err != nil {
			continue
		}
		combined.WriteString(payload)
	}
	if combined.Len() == 0 {
		return nil
	}
	return extractTreeFromText(combined.String())
}

// replaceUndefined は"$undefined"プレースホルダーをnullに置換する。
func replaceUndefined(v any) any {
	switch val := v.(type) {
	case string:
		if val == "$undefined" {
			return nil
		}
		return val
	case []any:
		for i := range val {
			val[i] = replaceUndefined(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = replaceUndefined(val[k])
		}
		return val
	default:
		return v
	}
}

// ensurePageSegment は__PAGE__セグメントにルートパスとrefreshマーカーを
// 補完する。これがないとサーバーアクションのPOSTが404になる。
func ensurePageSegment(node []any, routePath string) []any {
	if len(node) < 2 {
		return node
	}

	if segment, ok := node[0].(string); ok && segment == "__PAGE__" {
		if len(node) == 2 {
			node = append(node, routePath)
		}
		if len(node) == 3 {
			node = append(node, "refresh")
		}
		return node
	}

	if routes, ok := node[1].(map[string]any); ok {
		for key, child := range routes {
			if childList, ok := child.([]any); ok {
				routes[key] = ensurePageSegment(childList, routePath)
			}
		}
	}
	return node
}

// findLoginChunkScript はDOMを走査してログインチャンクのscriptタグを探す。
func findLoginChunkScript(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "script" {
		for _, attr := range n.Attr {
			if attr.Key == "src" &&
				strings.HasPrefix(attr.Val, loginChunkPrefix) &&
				strings.HasSuffix(attr.Val, ".js") {
				return attr.Val
			}
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if url := findLoginChunkScript(child); url != "" {
			return url
		}
	}
	return ""
}

// extractActionEntryIDs はアクションエントリーマップのID一覧を返す。
func extractActionEntryIDs(js string) []string {
	m := actionEntryRE.FindStringSubmatch(js)
	if m == nil {
		return nil
	}
	return findAllGroups(actionEntryIDRE, m[1])
}

// findAllGroups は正規表現の第1キャプチャグループを全件返す。
func findAllGroups(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

// uniqueIntersection は2つのID集合の積が唯一の場合にそれを返す。
func uniqueIntersection(a, b []string) (string, bool) {
	inA := make(map[string]bool, len(a))
	for _, id := range a {
		inA[id] = true
	}
	seen := make(map[string]bool)
	for _, id := range b {
		if inA[id] {
			seen[id] = true
		}
	}
	if len(seen) != 1 {
		return "", false
	}
	for id := range seen {
		return id, true
	}
	return "", false
}

// mostFrequent は最頻出の要素を返す。同数の場合は先に現れたものを優先する。
func mostFrequent(items []string) string {
	counts := make(map[string]int, len(items))
	best := items[0]
	for _, item := range items {
		counts[item]++
		if counts[item] > counts[best] {
			best = item
		}
	}
	return best
}

// marshalCompact はHTMLエスケープなしのコンパクトなJSONを返す。
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// percentEncode は非予約文字と"/"以外をパーセントエンコードする。
// ヘッダー値に収めるためのURLエンコード。
func percentEncode(data []byte) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for _, ch := range data {
		if isUnreservedByte(ch) || ch == '/' {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[ch>>4])
		b.WriteByte(hex[ch&0x0f])
	}
	return b.String()
}

// isUnreservedByte はRFC 3986の非予約文字かを判定する。
func isUnreservedByte(ch byte) bool {
	switch {
	case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		return true
	case ch == '-' || ch == '_' || ch == '.' || ch == '~':
		return true
	}
	return false
}
