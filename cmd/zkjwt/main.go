package main

import (
	"fmt"
	"os"
)

// zkjwt proves and verifies zk-JWT membership and serves the member board.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
