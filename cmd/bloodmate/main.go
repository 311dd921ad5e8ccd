/**
 * BloodMate donor service - Main Entry Point
 *
 * Subcommands:
 * - serve:   HTTP API for donor registration, lookup, status and QR codes
 * - worker:  asynq worker that removes rasterized PDF pages after retention
 * - migrate: create the donors schema
 * - scan:    run the OCR eligibility pipeline over a local file
 */

package main

import (
	"fmt"
	"os"

	"github.com/bloodmate/donor-service/cmd/bloodmate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
