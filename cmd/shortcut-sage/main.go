package main

import (
	"os"

	"github.com/Coldaine/ShortcutSage/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
