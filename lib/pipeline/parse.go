// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline provides parsing, validation, and variable expansion
// for kiln pipeline definitions. A definition is authored as a JSONC
// file (JSON extended with comments and trailing commas) at the
// repository root, conventionally kiln.jsonc.
//
// The typical flow:
//
//  1. ReadFile or Parse: JSONC bytes → schema.Pipeline
//  2. Validate: structural checks, returning the full issue list
//  3. ResolveVariables: merge declarations + run values + environment
//  4. ExpandStep / ExpandPatterns: substitute ${NAME} references
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/kiln-build/kiln/lib/schema"
)

// DefaultFileName is the conventional definition file name at the
// repository root.
const DefaultFileName = "kiln.jsonc"

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Pipeline. The accepted input is plain
// JSON extended with // line comments, /* block comments */, and
// trailing commas.
func Parse(data []byte) (*schema.Pipeline, error) {
	stripped := jsonc.ToJSON(data)

	var definition schema.Pipeline
	if err := json.Unmarshal(stripped, &definition); err != nil {
		return nil, fmt.Errorf("parsing pipeline definition: %w", err)
	}

	return &definition, nil
}

// ReadFile reads a JSONC definition file from disk and parses it. When
// the definition omits a name, the file's base name (extension
// stripped) is used, so one-pipeline repositories need no explicit
// name field.
func ReadFile(path string) (*schema.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	definition, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if definition.Name == "" {
		definition.Name = nameFromPath(path)
	}

	return definition, nil
}

// nameFromPath extracts a pipeline name from a file path by stripping
// the directory prefix and extension: "ci/kiln.jsonc" becomes "kiln".
func nameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
