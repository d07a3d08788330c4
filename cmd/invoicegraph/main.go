package main

import (
	"os"

	"github.com/randalmurphal/invoicegraph/cmd/invoicegraph/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
