// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache implements dependency caching for job instances: key
// derivation from declared input files, and a content-addressed entry
// store on the local filesystem.
//
// Keys are scoped to the job instance (pipeline, job, variant, and an
// optional prefix), so two variants of the same job never share an
// entry. The digest part of the key covers the content of every file
// matching the job's input patterns; any input change produces a new
// key and the stale entry simply stops being referenced until a sweep
// removes it.
//
// Cache failures are advisory. Every error the store returns is an
// *IOError, and callers degrade: a restore error is a miss, a save
// error is a skipped save. A build never fails because of the cache.
package cache

import (
	"encoding/binary"
	"path/filepath"

	"github.com/kiln-build/kiln/lib/glob"
)

// Scope identifies the namespace a cache key lives in. Two job
// instances share cached data only when every scope field matches.
type Scope struct {
	// Pipeline is the pipeline name.
	Pipeline string

	// Job is the job template name.
	Job string

	// Variant is the variant name. Part of the scope so that caches
	// never leak between variants of one job.
	Variant string

	// Prefix is the optional cache.prefix from the job definition,
	// separating caches with different purposes inside one job.
	Prefix string
}

// String returns "<pipeline>/<job>/<variant>" with "/<prefix>"
// appended when a prefix is set.
func (s Scope) String() string {
	base := s.Pipeline + "/" + s.Job + "/" + s.Variant
	if s.Prefix != "" {
		return base + "/" + s.Prefix
	}
	return base
}

// Key is a derived cache key: the scope plus a digest over the scope
// fields and the content of every matched input file. Keys with equal
// digests address the same stored entry.
type Key struct {
	Scope  Scope
	Digest Hash
}

// ID returns the full hex digest. This is the entry's on-disk address.
func (k Key) ID() string {
	return FormatHash(k.Digest)
}

// String returns "<scope>@<short digest>" for logs and results.
func (k Key) String() string {
	return k.Scope.String() + "@" + FormatHash(k.Digest)[:12]
}

// DeriveKey computes the cache key for one job instance.
//
// The digest covers the scope fields and, for every workspace file
// matching the input patterns, its workspace-relative path and content
// hash. Files are visited in sorted path order and every field is
// length-framed, so derivation is injective and deterministic: equal
// scope and equal file content produce equal keys on any host,
// regardless of pattern order or host path layout. An empty match set
// is valid and yields a stable key for the scope alone.
//
// Errors are *IOError with Op "derive"; the caller should run the job
// cold and skip caching.
func DeriveKey(workspace string, scope Scope, inputPatterns []string) (Key, error) {
	files, err := glob.Walk(workspace, inputPatterns)
	if err != nil {
		return Key{}, &IOError{Op: "derive", Key: scope.String(), Err: err}
	}

	hasher := newKeyedHasher(keyDomainKey)

	// Length framing keeps the derivation injective: no concatenation
	// of fields can collide with a different field split.
	var frame [8]byte
	writeFramed := func(value string) {
		binary.BigEndian.PutUint64(frame[:], uint64(len(value)))
		hasher.Write(frame[:])
		hasher.Write([]byte(value))
	}

	writeFramed(scope.Pipeline)
	writeFramed(scope.Job)
	writeFramed(scope.Variant)
	writeFramed(scope.Prefix)

	for _, file := range files {
		contentHash, err := hashInputFile(filepath.Join(workspace, filepath.FromSlash(file)))
		if err != nil {
			return Key{}, &IOError{Op: "derive", Key: scope.String(), Err: err}
		}
		writeFramed(file)
		hasher.Write(contentHash[:])
	}

	var digest Hash
	copy(digest[:], hasher.Sum(nil))
	return Key{Scope: scope, Digest: digest}, nil
}
