// Package main is the entry point for the cadence CLI.
package main

import (
	"fmt"
	"os"

	"github.com/danielolaszy/cadence/cmd"
	"github.com/danielolaszy/cadence/internal/logging"
)

const version = "0.1.0"

func main() {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	logging.Debug("starting cadence", "version", version, "log_level", logLevel)

	if err := cmd.Execute(); err != nil {
		logging.Error("command execution failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
