package main

import (
	"os"

	"github.com/david/bandi-sentinel/internal/logger"
)

func main() {
	if err := Execute(); err != nil {
		logger.Log.Error(err)
		os.Exit(1)
	}
}
