// docsched is the command line client for the docschedd scheduler daemon.
package main

import (
	"os"

	"github.com/me/docsched/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
