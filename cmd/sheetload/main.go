package main

import (
	"os"

	"github.com/JonMunkholm/sheetload/internal/cli"
	_ "github.com/JonMunkholm/sheetload/internal/core/dialects" // Register all database kinds
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
