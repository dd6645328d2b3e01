package main

import (
	"os"

	"github.com/bgdnvk/shopfloor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
