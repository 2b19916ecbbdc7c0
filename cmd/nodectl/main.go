package main

import (
	"os"

	"github.com/psantana5/nodehost/cmd/nodectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
