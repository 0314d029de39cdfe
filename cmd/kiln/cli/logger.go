// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// NewCommandLogger builds the logger a command hands to the engine.
// Text on a terminal, JSON when stderr is piped so CI can ingest the
// lines. KILN_LOG selects the level (debug, info, warn, error);
// unset or unrecognized means info.
//
// Commands scope it before passing it on:
//
//	logger := cli.NewCommandLogger().With("command", "pipeline/run")
func NewCommandLogger() *slog.Logger {
	options := &slog.HandlerOptions{Level: logLevel(os.Getenv("KILN_LOG"))}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, options))
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
