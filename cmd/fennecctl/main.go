package main

import (
	"fmt"
	"os"

	"github.com/fennec-ai/fennec/cmd/fennecctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
