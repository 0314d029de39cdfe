// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError carries an exit code for outcomes that are not program
// errors: a pipeline run that concluded failed, a definition that did
// not validate. The command has already printed what happened, so
// main exits with the code and prints nothing more.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode is the interface hook main checks for: errors that
// implement it set the process exit code silently, everything else is
// printed with an "error:" prefix and exits 1.
func (e *ExitError) ExitCode() int {
	return e.Code
}
