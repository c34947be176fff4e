package main

import (
	"os"

	"titan/internal/logger"
)

// Version info (set by ldflags)
var version = "dev"

func main() {
	err := newRootCmd().Execute()

	if app != nil {
		app.shutdown()
	}
	logger.Close()

	if err != nil {
		// Error already printed by cobra
		os.Exit(1)
	}
}
