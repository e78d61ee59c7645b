package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/stallwatch/stallwatch/internal/cli"
)

func main() {
	// A missing .env is fine; config falls back to built-in defaults.
	_ = godotenv.Load()

	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
