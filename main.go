// main.go
//
// Entry point for the Memorama server.
// Loads .env (if present) and hands off to the cobra command tree in config.go.

package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const releaseVersion = "0.1.0"

func main() {
	_ = godotenv.Load()
	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
