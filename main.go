// Package main is the entry point for the s2onet capture tool.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/s2onet/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
