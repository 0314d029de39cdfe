// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/kiln-build/kiln/cmd/kiln/cli"
	"github.com/kiln-build/kiln/lib/sealed"
	libsecret "github.com/kiln-build/kiln/lib/secret"
)

// sealParams holds the parameters for the seal command.
type sealParams struct {
	Recipient []string `flag:"recipient,r" desc:"age public key to seal to (repeatable)"`
	Out       string   `flag:"out,o" desc:"sealed output file (stdout when empty)"`
}

// sealCommand returns the "seal" subcommand: encrypt a secrets file to
// the engine's public key.
func sealCommand() *cli.Command {
	var params sealParams

	return &cli.Command{
		Name:    "seal",
		Summary: "Seal a secrets file to the engine",
		Description: `Encrypt a KEY=value secrets file to one or more age public keys and
base64-encode the result. The sealed output is safe to commit; only
holders of a matching private identity can read it.

The input is read from the named file, or from stdin when the file is
"-". Point secrets.secrets_path in the engine configuration at the
sealed output.`,
		Usage: "kiln secret seal <file> --recipient <age1...> [flags]",
		Examples: []cli.Example{
			{
				Description: "Seal to the engine's public key",
				Command:     "kiln secret seal secrets.env --recipient age1xyz... --out secrets.sealed",
			},
			{
				Description: "Seal from stdin",
				Command:     "echo DEPLOY_TOKEN=abc | kiln secret seal - --recipient age1xyz...",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("seal", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: kiln secret seal <file> --recipient <age1...> [flags]")
			}
			if len(params.Recipient) == 0 {
				return fmt.Errorf("at least one --recipient is required")
			}

			plaintext, err := libsecret.ReadFromPath(args[0])
			if err != nil {
				return err
			}
			defer plaintext.Close()

			ciphertext, err := sealed.Seal(plaintext.Bytes(), params.Recipient)
			if err != nil {
				return err
			}

			if params.Out == "" {
				fmt.Println(ciphertext)
				return nil
			}
			return os.WriteFile(params.Out, []byte(ciphertext+"\n"), 0o644)
		},
	}
}
