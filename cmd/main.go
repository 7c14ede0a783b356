package main

import (
	"os"
)

func main() {
	rootCmd := buildRootCommand()
	rootCmd.AddCommand(buildUndoCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
