// cmd/docdeckctl/main.go
package main

import (
	"os"

	"github.com/Corphon/DocDeck/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
