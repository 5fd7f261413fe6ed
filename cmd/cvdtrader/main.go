package main

import (
	"os"

	"github.com/rustyeddy/cvdtrader/cmd/cvdtrader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
