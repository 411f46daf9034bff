package main

import (
	"os"

	"github.com/tinytorrent/tinytorrentd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
