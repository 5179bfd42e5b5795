package telegram

// MessageLimit はTelegramが1メッセージに許容する最大文字数。
const MessageLimit = 4096

// splitSeparators は分割位置の探索に使う区切りの優先順位。
var splitSeparators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(" "),
}

// SplitMessage はテキストをlimit文字以下のチャンクに分割する。
// 段落境界、行境界、空白の順に自然な分割位置を探し、
// 見つからない場合のみ文字数で強制的に切る。
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		maxEnd := start + limit
		if maxEnd >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		splitAt := findSplitPoint(runes, start, maxEnd)
		if splitAt <= start {
			splitAt = maxEnd
		}
		chunks = append(chunks, string(runes[start:splitAt]))
		start = splitAt
	}
	return chunks
}

// findSplitPoint は [start, maxEnd) 内で最も後方の区切り直後の位置を返す。
// 区切りが見つからない場合はmaxEndを返す。
func findSplitPoint(runes []rune, start, maxEnd int) int {
	for _, sep := range splitSeparators {
		if idx := lastIndexRunes(runes, sep, start, maxEnd); idx >= 0 {
			candidate := idx + len(sep)
			if candidate > start {
				return candidate
			}
		}
	}
	return maxEnd
}

// lastIndexRunes は [start, end) 内に完全に収まるsepの最後の出現位置を返す。
func lastIndexRunes(runes, sep []rune, start, end int) int {
	for i := end - len(sep); i >= start; i-- {
		match := true
		for j := range sep {
			if runes[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
