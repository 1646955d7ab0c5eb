// Command nedb inspects and edits NeDB-style data directories through the
// adapter: the same criteria language, identifiers and indexes the ORM sees.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	cli := NewCLI(os.Stdout, os.Stderr)
	if err := cli.Run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
