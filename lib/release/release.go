// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package release assembles and publishes releases. A release is the
// union of every successful instance's artifact bundle from one run,
// published under the triggering tag. Assembly happens strictly after
// the run's join barrier — the publisher never sees a partial bundle
// set — and publish failures never unwind job results.
package release

import (
	"context"
	"fmt"

	"github.com/kiln-build/kiln/lib/artifact"
)

// Release is one assembled release, ready to publish.
type Release struct {
	// Tag is the prefix-stripped release tag (e.g., "v1.0").
	Tag string

	// Bundles are the included artifact bundles, in job expansion
	// order. Empty is valid: a tag run whose jobs all failed still
	// produces a (warned-about) empty release.
	Bundles []*artifact.Bundle
}

// Assemble builds the release for a tag from the run's collected
// bundles. Diagnostic bundles and nils are dropped here as a final
// guard; the runner already excludes failed and skipped instances.
func Assemble(tag string, bundles []*artifact.Bundle) *Release {
	release := &Release{Tag: tag}
	for _, bundle := range bundles {
		if bundle == nil || bundle.Diagnostic {
			continue
		}
		release.Bundles = append(release.Bundles, bundle)
	}
	return release
}

// Assets counts the individual files across all bundles.
func (r *Release) Assets() int {
	count := 0
	for _, bundle := range r.Bundles {
		count += len(bundle.Files)
	}
	return count
}

// TotalBytes sums all asset sizes.
func (r *Release) TotalBytes() int64 {
	var total int64
	for _, bundle := range r.Bundles {
		total += bundle.TotalBytes()
	}
	return total
}

// Host publishes assembled releases to a backend.
type Host interface {
	// Publish uploads the release and returns a backend handle (a
	// directory path or object prefix). Publishing the same tag twice
	// must not duplicate assets: the second call either lands the
	// identical content or reports the existing release's handle.
	Publish(ctx context.Context, release *Release) (string, error)
}

// PublishError is a release publication failure. Fatal to the release
// step only: the jobs whose artifacts were being published keep their
// outcomes.
type PublishError struct {
	// Tag is the affected release tag.
	Tag string

	// Err is the underlying failure.
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publishing release %s: %v", e.Tag, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
