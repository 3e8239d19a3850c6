package main

import (
	"os"

	"github.com/halfxyz/hop/internal/cli"
	"github.com/halfxyz/hop/internal/version"
	"github.com/halfxyz/hop/internal/wire"
)

func main() {
	os.Exit(run())
}

func run() int {
	defer wire.Close()

	root := cli.RootCmd()
	root.Version = version.String()

	err := root.Execute()
	cli.PrintHint(err)
	return cli.ExitCode(err)
}
