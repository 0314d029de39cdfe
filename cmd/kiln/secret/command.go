// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret implements the "kiln secret" command group: generate
// the engine identity and seal secrets files to it.
package secret

import (
	"github.com/kiln-build/kiln/cmd/kiln/cli"
)

// Command returns the "secret" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "secret",
		Summary: "Manage sealed pipeline secrets",
		Description: `Manage kiln's sealed secrets.

Secrets reach pipelines as a sealed file: KEY=value lines encrypted
with age to the engine's public key and base64-encoded, so the file
can live in an ordinary configuration repository. At run time the
engine unseals it with its private identity; values are available to
${NAME} expansion in step commands but never injected into step
process environments, and they are masked in every result and log
line.

The reserved names TUNNEL_TOKEN, S3_ACCESS_KEY, and S3_SECRET_KEY
authenticate the engine itself (debug tunnel broker, object-store
release backend) and are stripped before pipeline expansion.`,
		Subcommands: []*cli.Command{
			keygenCommand(),
			sealCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Generate the engine identity",
				Command:     "kiln secret keygen --out ~/.config/kiln/identity.key",
			},
			{
				Description: "Seal a secrets file to the engine",
				Command:     "kiln secret seal secrets.env --recipient age1... --out secrets.sealed",
			},
		},
	}
}
