// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides kiln's canonical CBOR encoding.
//
// All on-disk binary records (cache entry headers, artifact bundle
// manifests) go through this package so that encoding options are set
// in exactly one place. Encoding uses Core Deterministic Encoding:
// encoding the same value twice always yields identical bytes.
package codec
