package main

import (
	"os"
	"testing"

	"github.com/bgdnvk/shopfloor/cmd"
)

func TestExecuteHelp(t *testing.T) {
	args := os.Args
	defer func() { os.Args = args }()

	os.Args = []string{"shopfloor", "--help"}
	if err := cmd.Execute(); err != nil {
		t.Fatalf("shopfloor --help: %v", err)
	}
}
