package main

import (
	"os"

	"github.com/sourpie/gitknow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
