// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"os"
	"strings"

	"github.com/kiln-build/kiln/lib/config"
	"github.com/kiln-build/kiln/lib/sealed"
	"github.com/kiln-build/kiln/lib/secret"
)

// Engine-reserved secret names. These authenticate kiln itself and are
// never exposed to pipeline variable expansion.
const (
	secretTunnelToken = "TUNNEL_TOKEN"
	secretS3AccessKey = "S3_ACCESS_KEY"
	secretS3SecretKey = "S3_SECRET_KEY"
)

// engineSecrets is the unsealed secrets file, split into pipeline
// secrets (available to ${NAME} expansion, masked in results) and the
// engine's own credentials.
type engineSecrets struct {
	Pipeline    map[string]string
	TunnelToken string
	S3AccessKey string
	S3SecretKey string
}

// loadSecrets unseals the configured secrets file. A config without a
// secrets path yields an empty set; runs work fine without secrets.
func loadSecrets(cfg *config.Config) (*engineSecrets, error) {
	secrets := &engineSecrets{Pipeline: map[string]string{}}
	if cfg.Secrets.SecretsPath == "" {
		return secrets, nil
	}

	identity, err := secret.ReadFromPath(cfg.Secrets.IdentityPath)
	if err != nil {
		return nil, fmt.Errorf("reading secrets identity: %w", err)
	}
	defer identity.Close()

	sealedData, err := os.ReadFile(cfg.Secrets.SecretsPath)
	if err != nil {
		return nil, fmt.Errorf("reading sealed secrets: %w", err)
	}

	plaintext, err := sealed.Unseal(strings.TrimSpace(string(sealedData)), identity)
	if err != nil {
		return nil, fmt.Errorf("unsealing %s: %w", cfg.Secrets.SecretsPath, err)
	}
	defer plaintext.Close()

	for lineNumber, line := range strings.Split(plaintext.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%s line %d: expected KEY=value",
				cfg.Secrets.SecretsPath, lineNumber+1)
		}

		switch name {
		case secretTunnelToken:
			secrets.TunnelToken = value
		case secretS3AccessKey:
			secrets.S3AccessKey = value
		case secretS3SecretKey:
			secrets.S3SecretKey = value
		default:
			secrets.Pipeline[name] = value
		}
	}
	return secrets, nil
}
