// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// MaxSize bounds the secret material this package will read: an age
// identity is one line and a secrets file is a screenful of KEY=value
// lines. The buffer is mlocked, and RLIMIT_MEMLOCK defaults are small
// on many systems, so an oversized input is refused rather than
// locked.
const MaxSize = 1 << 20

// ReadFromPath reads secret material from a file, or from stdin when
// path is "-". The whole input is kept, minus surrounding whitespace,
// so multi-line secrets files work the same as single-line keys. The
// returned buffer is mmap-backed and must be closed by the caller.
func ReadFromPath(path string) (*Buffer, error) {
	var data []byte
	var err error

	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(os.Stdin, MaxSize+1))
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}
	if len(data) > MaxSize {
		Zero(data)
		return nil, fmt.Errorf("secret input exceeds %d bytes", MaxSize)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		Zero(data)
		return nil, fmt.Errorf("secret is empty")
	}

	// NewFromBytes copies into mmap-backed memory and zeros trimmed;
	// Zero(data) catches the whitespace bytes outside the trim.
	buffer, err := NewFromBytes(trimmed)
	Zero(data)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}
