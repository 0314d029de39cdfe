// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact collects a job instance's declared output files
// into bundles. A bundle is the unit the release publisher works with:
// one successful instance contributes at most one bundle, identified
// by the instance name, and a failed instance's diagnostics bundle
// stays in run output only.
package artifact

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/kiln-build/kiln/lib/codec"
)

// BundleVersion is the manifest format version.
const BundleVersion = 1

// Hash is a 32-byte BLAKE3 digest of a bundled file's content.
type Hash [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation keeps artifact file hashes distinct from cache hashes
// over the same bytes.
type domainKey [32]byte

// fileDomainKey is the ASCII domain name zero-padded to 32 bytes, so
// the key is inspectable in hex dumps. Changing it invalidates every
// existing artifact ref.
var fileDomainKey = domainKey{
	'k', 'i', 'l', 'n', '.', 'a', 'r', 't', 'i', 'f', 'a', 'c', 't', '.', 'f', 'i',
	'l', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Bundle is the set of output files one job instance produced. Owned
// by the instance until collection; afterwards the publisher only
// reads it.
type Bundle struct {
	// Version is the manifest format version.
	Version int `cbor:"version" json:"version"`

	// Job and Variant identify the producing instance.
	Job     string `cbor:"job" json:"job"`
	Variant string `cbor:"variant" json:"variant"`

	// Diagnostic marks a failure-hook bundle. Diagnostic bundles are
	// never included in a release.
	Diagnostic bool `cbor:"diagnostic,omitempty" json:"diagnostic,omitempty"`

	// Files lists the bundled files in sorted path order.
	Files []File `cbor:"files" json:"files"`
}

// File is one bundled file.
type File struct {
	// Name is the workspace-relative slash path of the file. Unique
	// within the bundle; doubles as the asset name at publish time.
	Name string `cbor:"name" json:"name"`

	// Path is the absolute filesystem path the content lives at until
	// the bundle is published.
	Path string `cbor:"path" json:"path"`

	// Size is the file size in bytes at collection time.
	Size int64 `cbor:"size" json:"size"`

	// Ref is the content-addressed reference ("art-" + 12 hex digits
	// of the file-domain BLAKE3 hash). Lets a retried publish detect
	// assets that already landed.
	Ref string `cbor:"ref" json:"ref"`
}

// InstanceName returns the "<job>/<variant>" identifier of the
// producing instance.
func (b *Bundle) InstanceName() string {
	return b.Job + "/" + b.Variant
}

// TotalBytes sums the sizes of all files in the bundle.
func (b *Bundle) TotalBytes() int64 {
	var total int64
	for _, file := range b.Files {
		total += file.Size
	}
	return total
}

// MarshalManifest encodes the bundle manifest as deterministic CBOR.
// The manifest is published alongside the assets so a release's
// contents are verifiable after the fact.
func (b *Bundle) MarshalManifest() ([]byte, error) {
	data, err := codec.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encoding bundle manifest: %w", err)
	}
	return data, nil
}

// UnmarshalManifest decodes a bundle manifest.
func UnmarshalManifest(data []byte) (*Bundle, error) {
	var bundle Bundle
	if err := codec.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("decoding bundle manifest: %w", err)
	}
	if bundle.Version != BundleVersion {
		return nil, fmt.Errorf("bundle manifest version %d, want %d", bundle.Version, BundleVersion)
	}
	return &bundle, nil
}

// FileHash computes the file-domain BLAKE3 keyed hash of the file at
// path, streaming the content in chunks.
func FileHash(path string) (Hash, error) {
	file, err := os.Open(path)
	if err != nil {
		return Hash{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher, err := blake3.NewKeyed(fileDomainKey[:])
	if err != nil {
		panic("artifact: invalid BLAKE3 key size: " + err.Error())
	}
	if _, err := io.Copy(hasher, file); err != nil {
		return Hash{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash, nil
}

// FormatRef renders a hash as an artifact reference: "art-" plus the
// first 12 hex digits. Short enough for log lines, long enough that
// collisions within one release are not a practical concern.
func FormatRef(hash Hash) string {
	return "art-" + hex.EncodeToString(hash[:])[:12]
}
