// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/kiln-build/kiln/cmd/kiln/cli"
	"github.com/kiln-build/kiln/lib/sealed"
)

// keygenParams holds the parameters for the keygen command.
type keygenParams struct {
	Out   string `flag:"out,o" desc:"identity file to write (created 0600)"`
	Force bool   `flag:"force" desc:"overwrite an existing identity file"`
}

// keygenCommand returns the "keygen" subcommand: generate the engine's
// age identity.
func keygenCommand() *cli.Command {
	var params keygenParams

	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate the engine's age identity",
		Description: `Generate a new age x25519 keypair for the engine. The private key is
written to the --out file with 0600 permissions; the public key prints
to stdout for use as the --recipient of "kiln secret seal".

Point secrets.identity_path in the engine configuration at the written
file. The private key is never printed.`,
		Usage: "kiln secret keygen --out <file>",
		Examples: []cli.Example{
			{
				Description: "Generate and store the identity",
				Command:     "kiln secret keygen --out ~/.config/kiln/identity.key",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("keygen", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 || params.Out == "" {
				return fmt.Errorf("usage: kiln secret keygen --out <file>")
			}

			// Refuse to clobber an identity: losing it makes every
			// sealed file unreadable.
			if !params.Force {
				if _, err := os.Stat(params.Out); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", params.Out)
				}
			}

			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return err
			}
			defer keypair.Close()

			if err := os.MkdirAll(filepath.Dir(params.Out), 0o700); err != nil {
				return err
			}
			// Written without a trailing newline so no copy of the key
			// escapes the locked buffer.
			if err := os.WriteFile(params.Out, keypair.PrivateKey.Bytes(), 0o600); err != nil {
				return err
			}

			fmt.Println(keypair.PublicKey)
			return nil
		},
	}
}
