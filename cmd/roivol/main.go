package main

import (
	"log/slog"
	"os"

	"github.com/roivol/roivol/cmd/roivol/commands"
)

func main() {
	// Logs go to stderr so tables and exports on stdout stay clean.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: commands.LogLevel,
	}))
	slog.SetDefault(logger)

	commands.Execute()
}
