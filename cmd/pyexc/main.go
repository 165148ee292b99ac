package main

import (
	"os"

	"github.com/go-delve/pyexc/cmd/pyexc/cmds"
	"github.com/go-delve/pyexc/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.PyExcVersion.Build = Build
	}
	if err := cmds.New(false).Execute(); err != nil {
		os.Exit(1)
	}
}
