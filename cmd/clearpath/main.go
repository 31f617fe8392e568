// Package main provides the entry point for the clearpath CLI.
package main

import (
	"os"

	"github.com/clearpath-ai/clearpath-rag/cmd/clearpath/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
