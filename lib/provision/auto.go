// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package provision

import "context"

// AutoProvisioner routes each instance to the right backend: variants
// with a container image go to Container, everything else to Host.
// This is what the CLI wires up so a single pipeline can mix host and
// container variants.
type AutoProvisioner struct {
	Host      Provisioner
	Container Provisioner
}

func (p *AutoProvisioner) Provision(ctx context.Context, spec Spec) (Environment, error) {
	if spec.Image == "" {
		return p.Host.Provision(ctx, spec)
	}
	return p.Container.Provision(ctx, spec)
}
