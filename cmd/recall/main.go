// Package main provides the entry point for the recall CLI.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/openclaw/recall/cmd/recall/cmd"
)

func main() {
	// Optional .env bootstrap. A missing file is fine, and variables
	// already in the environment win over file values.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
