// Package main is the entry point for the spmedge pipeline CLI.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/spm-edge/spmedge/cmd/spmedge/cmd"
)

func main() {
	// a missing .env is fine; real environments set variables directly
	_ = godotenv.Load()
	os.Exit(cmd.Execute())
}
