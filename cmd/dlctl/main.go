package main

import (
	"os"

	dlctlcmd "github.com/telekom/dlctl/pkg/dlctl/cmd"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := dlctlcmd.NewRootCommand(dlctlcmd.DefaultConfig())
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
