// Package main is the entry point for the gateway's daemon binary.
package main

import (
	"fmt"
	"os"

	"github.com/mcpgw/authgw/cmd/gatewayd/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "there was an error: %v\n", err)
		os.Exit(1)
	}
}
