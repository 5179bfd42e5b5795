// Command schedbot は大学ポータルの時間割を配信するTelegram Botの
// エントリーポイント。serve / worker / migrate / healthcheck の
// サブコマンドを受け付ける。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/schedbot/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
