// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kiln-build/kiln/lib/codec"
)

// entryVersion is the cache entry format version. Entries with a
// different version are treated as misses.
const entryVersion = 1

// entryHeader precedes the compressed payload in an entry file. The
// header is a single CBOR item (self-delimiting); the payload is the
// raw bytes that follow it.
type entryHeader struct {
	Version     int    `cbor:"version"`
	Key         string `cbor:"key"`
	Compression uint8  `cbor:"compression"`
	PayloadSize int64  `cbor:"payload_size"`
	FileCount   int    `cbor:"file_count"`
	CreatedAt   string `cbor:"created_at"`
}

// SaveResult reports what Save did.
type SaveResult struct {
	// AlreadyPresent means a complete entry for the key existed and
	// nothing was written. First writer wins; this is the normal
	// outcome when concurrent instances race on a shared store.
	AlreadyPresent bool

	// NothingToSave means none of the configured paths existed in the
	// workspace, so no entry was written.
	NothingToSave bool

	// Files is the number of regular files packed into the entry.
	Files int

	// Bytes is the size of the written entry file.
	Bytes int64
}

// Store is a content-addressed cache entry store on the local
// filesystem. Entries are immutable files addressed by key digest,
// sharded two levels deep by digest hex. Writes go through a temp
// file plus atomic rename, so readers only ever observe complete
// entries and concurrent writers race benignly: whichever rename
// lands, the entry under the key is complete and correct, because
// equal keys imply equal inputs.
type Store struct {
	root    string
	entries string
}

// NewStore opens (creating if needed) a store rooted at the given
// directory.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("cache store root is required")
	}
	entries := filepath.Join(root, "entries")
	if err := os.MkdirAll(entries, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache store: %w", err)
	}
	return &Store{root: root, entries: entries}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Save archives the named workspace paths, compresses the archive, and
// writes the entry under the key. When an entry for the key already
// exists it is left untouched and SaveResult.AlreadyPresent is set:
// equal keys imply equal inputs, so rewriting would only churn bytes.
//
// Errors are *IOError with Op "save"; the caller logs and moves on.
func (s *Store) Save(key Key, workspace string, paths []string) (SaveResult, error) {
	if s.Contains(key) {
		return SaveResult{AlreadyPresent: true}, nil
	}

	archive, fileCount, err := packTree(workspace, paths)
	if err != nil {
		return SaveResult{}, &IOError{Op: "save", Key: key.String(), Err: err}
	}
	if fileCount == 0 {
		return SaveResult{NothingToSave: true}, nil
	}

	payload, tag, err := CompressAuto(archive)
	if err != nil {
		return SaveResult{}, &IOError{Op: "save", Key: key.String(), Err: err}
	}

	header := entryHeader{
		Version:     entryVersion,
		Key:         key.String(),
		Compression: uint8(tag),
		PayloadSize: int64(len(archive)),
		FileCount:   fileCount,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	written, err := s.writeEntry(key, header, payload)
	if err != nil {
		return SaveResult{}, &IOError{Op: "save", Key: key.String(), Err: err}
	}
	return SaveResult{Files: fileCount, Bytes: written}, nil
}

// Restore extracts the entry for the key into the workspace. Returns
// (true, nil) on a hit, (false, nil) on a clean miss, and (false,
// *IOError) when the entry exists but cannot be read. Callers treat
// the error case exactly like a miss after logging it.
//
// A hit refreshes the entry's modification time so Sweep sees it as
// recently used.
func (s *Store) Restore(key Key, workspace string) (bool, error) {
	path := s.entryPath(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, &IOError{Op: "restore", Key: key.String(), Err: err}
	}

	header, payload, err := decodeEntry(data)
	if err != nil {
		return false, &IOError{Op: "restore", Key: key.String(), Err: err}
	}
	if header.Version != entryVersion {
		return false, &IOError{Op: "restore", Key: key.String(),
			Err: fmt.Errorf("entry version %d, want %d", header.Version, entryVersion)}
	}

	archive, err := Decompress(payload, CompressionTag(header.Compression), int(header.PayloadSize))
	if err != nil {
		return false, &IOError{Op: "restore", Key: key.String(), Err: err}
	}
	if err := unpackTree(workspace, archive); err != nil {
		return false, &IOError{Op: "restore", Key: key.String(), Err: err}
	}

	// Best effort: sweep recency tracking only.
	now := time.Now()
	_ = os.Chtimes(path, now, now)

	return true, nil
}

// Contains checks whether a complete entry exists for the key.
func (s *Store) Contains(key Key) bool {
	_, err := os.Stat(s.entryPath(key))
	return err == nil
}

// Remove deletes the entry for the key. Removing an absent entry is
// not an error.
func (s *Store) Remove(key Key) error {
	err := os.Remove(s.entryPath(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &IOError{Op: "remove", Key: key.String(), Err: err}
	}
	return nil
}

// writeEntry writes header and payload atomically: temp file in the
// store root, then rename into the sharded final path.
func (s *Store) writeEntry(key Key, header entryHeader, payload []byte) (int64, error) {
	finalPath := s.entryPath(key)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return 0, fmt.Errorf("creating entry shard directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.entries, "entry-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temp entry file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := codec.NewEncoder(tmpFile).Encode(header); err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("writing entry header: %w", err)
	}
	if _, err := tmpFile.Write(payload); err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("writing entry payload: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("closing temp entry file: %w", err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return 0, fmt.Errorf("renaming entry file: %w", err)
	}

	success = true
	return info.Size(), nil
}

// decodeEntry splits an entry file into its header and payload. The
// header is the first (self-delimiting) CBOR item; everything after it
// is the payload.
func decodeEntry(data []byte) (entryHeader, []byte, error) {
	var header entryHeader
	payload, err := codec.UnmarshalFirst(data, &header)
	if err != nil {
		return entryHeader{}, nil, fmt.Errorf("parsing entry header: %w", err)
	}
	return header, payload, nil
}

// entryPath returns the sharded filesystem path for a key:
// <root>/entries/<hex[:2]>/<hex[2:4]>/<hex>
func (s *Store) entryPath(key Key) string {
	hex := key.ID()
	return filepath.Join(s.entries, hex[:2], hex[2:4], hex)
}
