// Package main is the entry point for tftpwatch.
package main

import (
	"fmt"
	"os"

	"tftpwatch/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
