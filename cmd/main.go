package main

import (
	"os"

	cli "github.com/memora-ai/memora/cmd/memora"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
