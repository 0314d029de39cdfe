// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework behind the kiln binary.
//
// [Command] nodes form the tree assembled in cmd/kiln/main.go:
// groups dispatch on the first positional argument, leaves parse
// their pflag set and run. Help output is synthesized per node
// (usage, subcommand listing, flags, worked examples), and unknown
// commands or flags get a did-you-mean suggestion when a defined name
// is within suggestThreshold edits.
//
// Params structs declare their flags with flag:/desc:/default: tags
// (see [BindFlags]) and compose shared pieces by embedding; embedding
// [JSONOutput] adds --json. Commands that finish with a meaningful
// non-zero status return [ExitError] so main can exit silently with
// the code, and [NewCommandLogger] builds the slog logger commands
// hand to the engine: text on a terminal, JSON when piped, level from
// KILN_LOG.
package cli
