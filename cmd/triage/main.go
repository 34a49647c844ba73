package main

import (
	"os"

	"github.com/danielpatrickdp/affect-triage/cmd/triage/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
