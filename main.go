package main

import (
	"fmt"
	"os"

	"github.com/ftahirops/xdiag/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "xdiag: %v\n", err)
		os.Exit(1)
	}
}
