//go:build ignore

// gen-cli-docs writes the reference of the terminal commands.
package main

import (
	"bufio"
	"log"
	"os"
	"path/filepath"

	"github.com/go-delve/pyexc/pkg/terminal"
)

const defaultOutput = "./Documentation/cli/README.md"

func main() {
	out := defaultOutput
	if len(os.Args) > 1 {
		out = os.Args[1]
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		log.Fatalf("could not create %s: %v", filepath.Dir(out), err)
	}
	fh, err := os.Create(out)
	if err != nil {
		log.Fatalf("could not create %s: %v", out, err)
	}
	defer fh.Close()

	w := bufio.NewWriter(fh)
	defer w.Flush()

	terminal.DebugCommands().WriteMarkdown(w)
}
