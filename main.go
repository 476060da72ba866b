package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/applydi/applydi/cmd"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
