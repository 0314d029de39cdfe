// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import "fmt"

// IOError is a cache I/O failure: key derivation, entry read, or
// entry write. Cache trouble never fails a build. On restore the
// caller treats the error as a miss and builds cold; on save it skips
// the save and logs. The build outcome is identical either way, just
// slower.
type IOError struct {
	// Op is the failed operation: "derive", "restore", "save", or
	// "sweep".
	Op string

	// Key is the display form of the affected key. Empty when the
	// failure happened before a key existed.
	Key string

	// Err is the underlying failure.
	Err error
}

func (e *IOError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
