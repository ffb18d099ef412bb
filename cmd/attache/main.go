package main

import (
	"os"

	"github.com/envkit/attache/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
