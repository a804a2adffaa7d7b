// Command solidfoundation はSolid Foundationの問い合わせ受付・管理APIサーバーとワーカーを起動する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/solidfoundation/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
