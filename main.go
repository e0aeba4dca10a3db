package main

import (
	"os"

	"github.com/roundtablehq/roundtable/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
