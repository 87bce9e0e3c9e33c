package main

import (
	"os"

	"github.com/asccrash/asccrash/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
