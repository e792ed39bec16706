// Package main is the entry point for the sqlgate binary.
package main

import (
	"os"

	"sqlgate/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
