// Command boardctl is the operator tool for the board: it triggers the
// daily rollover, mints service tokens, repairs data and runs migrations.
//
//	boardctl rollover --url http://localhost:8000
//	boardctl repair counts --dry-run
//	boardctl repair duplicates --keep earliest
//	boardctl migrate
//
// Flags default from BOARD_* environment variables, which may also be
// set in a .env file.
package main

import (
	"log"
	"os"

	"github.com/npezzotti/earth-board/internal/config"
)

func main() {
	logger := log.New(os.Stderr, "[boardctl] ", log.LstdFlags)

	if err := config.LoadEnv(); err != nil {
		logger.Fatal("load .env:", err)
	}

	if err := buildRootCmd(logger).Execute(); err != nil {
		os.Exit(1)
	}
}
