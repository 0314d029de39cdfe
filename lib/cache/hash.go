// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. Input file hashes and derived cache
// keys are this size.
type Hash [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures that the same input bytes produce different
// hashes in different contexts, preventing cross-domain collisions.
type domainKey [32]byte

// Domain separation keys. These are fixed constants — changing them
// invalidates every existing cache entry. The byte values are the
// ASCII encoding of the domain name, zero-padded to 32 bytes, so the
// keys are inspectable in hex dumps without sacrificing any
// cryptographic property (BLAKE3 keyed mode treats the key as an
// opaque 32-byte value).
var (
	inputDomainKey = domainKey{
		'k', 'i', 'l', 'n', '.', 'c', 'a', 'c', 'h', 'e', '.', 'i', 'n', 'p', 'u', 't',
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	keyDomainKey = domainKey{
		'k', 'i', 'l', 'n', '.', 'c', 'a', 'c', 'h', 'e', '.', 'k', 'e', 'y', 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// hashInputFile computes the input-domain BLAKE3 keyed hash of the
// file at path. The file is streamed through the hash in chunks (via
// io.Copy) to keep memory usage constant regardless of file size.
func hashInputFile(path string) (Hash, error) {
	file, err := os.Open(path)
	if err != nil {
		return Hash{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := newKeyedHasher(inputDomainKey)
	if _, err := io.Copy(hasher, file); err != nil {
		return Hash{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest Hash
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// FormatHash returns the hex-encoded string representation of a hash.
// This is the canonical format used in entry file names, results, and
// log output.
func FormatHash(hash Hash) string {
	return hex.EncodeToString(hash[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing cache hash: %w", err)
	}
	if len(decoded) != 32 {
		return hash, fmt.Errorf("cache hash is %d bytes, want 32", len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// newKeyedHasher returns a BLAKE3 hasher keyed with the given domain
// key.
func newKeyedHasher(key domainKey) *blake3.Hasher {
	// NewKeyed requires exactly 32 bytes, which domainKey guarantees.
	// The error is only returned for wrong key length, so this cannot
	// fail with our fixed-size type.
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("cache: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	return hasher
}
