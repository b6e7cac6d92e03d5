package main

import (
	"os"

	"github.com/rebeliceyang/lazydb/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
