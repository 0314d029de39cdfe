// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"os"
	"reflect"
)

// JSONOutput gives a params struct the --json flag. Commands embed it
// and call EmitJSON with their result before falling through to text
// rendering:
//
//	if done, err := params.EmitJSON(summaries); done {
//	    return err
//	}
//	// text rendering
type JSONOutput struct {
	OutputJSON bool `json:"-" flag:"json" desc:"output as JSON"`
}

// EmitJSON writes result to stdout when --json was given. The first
// return value says whether output was handled; false means the
// caller renders text. A nil slice result is emitted as [], never
// null, so scripted consumers can always range over it.
func (j *JSONOutput) EmitJSON(result any) (bool, error) {
	if !j.OutputJSON {
		return false, nil
	}
	return true, WriteJSON(emptyIfNilSlice(result))
}

// WriteJSON writes value to stdout as indented JSON. Commands without
// a text form use it directly; everything else goes through
// [JSONOutput.EmitJSON].
func WriteJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func emptyIfNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}
