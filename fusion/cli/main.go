package main

import (
	"log/slog"
	"os"

	"github.com/telhawk-systems/fusion-engine/common/logging"
	"github.com/telhawk-systems/fusion-engine/fusion/cli/cmd"
)

func main() {
	logging.SetDefault(logging.New(slog.LevelWarn, "text"))

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
