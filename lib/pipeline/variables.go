// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kiln-build/kiln/lib/schema"
)

// variablePattern matches ${NAME} references in strings. Only the
// braced form is recognized — bare $NAME is left for shell
// interpretation. Variable names must start with a letter or
// underscore and contain only letters, digits, and underscores.
var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// variableNamePattern is the full-string form used to validate
// declared variable names.
var variableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Names of the variables kiln injects from the triggering event.
// Always present in the resolved map; KILN_TAG is empty except on
// tag events.
const (
	VarPipeline = "KILN_PIPELINE"
	VarEvent    = "KILN_EVENT"
	VarRef      = "KILN_REF"
	VarShortRef = "KILN_SHORT_REF"
	VarCommit   = "KILN_COMMIT"
	VarTag      = "KILN_TAG"
)

// Names of the variables the runner injects per job instance.
const (
	VarJob       = "KILN_JOB"
	VarVariant   = "KILN_VARIANT"
	VarInstance  = "KILN_INSTANCE"
	VarWorkspace = "KILN_WORKSPACE"
)

// Names of the variables injected for on_failure steps.
const (
	VarFailedStep  = "FAILED_STEP"
	VarFailedError = "FAILED_ERROR"
)

// EventVariables builds the run-fact variables injected from the
// triggering event. These are facts of the run and therefore sit at
// the top of the resolution order: nothing can override them.
func EventVariables(pipelineName string, event schema.Event) map[string]string {
	return map[string]string{
		VarPipeline: pipelineName,
		VarEvent:    string(event.Kind),
		VarRef:      event.Ref,
		VarShortRef: event.ShortRef(),
		VarCommit:   event.Commit,
		VarTag:      event.TagName(),
	}
}

// ResolveVariables merges variable sources in resolution order, lowest
// to highest priority:
//
//  1. Declared defaults from the pipeline's variable declarations
//  2. Environment lookup via the environ function (declared names only)
//  3. Provided values (unsealed secrets, then event facts, merged by
//     the caller in that order)
//
// Returns the merged map, or an error naming every required variable
// (per its declaration) that has no value from any source.
//
// The environ function is os.Getenv in production and a stub in tests.
// Only declared variables are looked up; the process environment is
// never bulk-imported.
func ResolveVariables(declarations map[string]schema.Variable, provided map[string]string, environ func(string) string) (map[string]string, error) {
	resolved := make(map[string]string, len(declarations)+len(provided))

	for name, declaration := range declarations {
		if declaration.Default != "" {
			resolved[name] = declaration.Default
		}
	}

	if environ != nil {
		for name := range declarations {
			if value := environ(name); value != "" {
				resolved[name] = value
			}
		}
	}

	for name, value := range provided {
		resolved[name] = value
	}

	var missing []string
	for name, declaration := range declarations {
		if declaration.Required {
			if _, exists := resolved[name]; !exists {
				missing = append(missing, name)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("required pipeline variables not set: %s", strings.Join(missing, ", "))
	}

	return resolved, nil
}

// Expand replaces ${NAME} references in input with values from the
// variables map. Only the ${NAME} form is recognized (braces
// required); bare $NAME is left for shell interpretation.
//
// Returns an error listing all referenced variables that have no value
// in the map, so definitions fail fast on unresolvable references
// rather than producing broken commands.
func Expand(input string, variables map[string]string) (string, error) {
	var unresolved []string

	result := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[2 : len(match)-1]
		if value, exists := variables[name]; exists {
			return value
		}
		unresolved = append(unresolved, name)
		return match
	})

	if len(unresolved) > 0 {
		return "", fmt.Errorf("unresolved pipeline variables: %s", strings.Join(unresolved, ", "))
	}

	return result, nil
}

// ExpandStep returns a copy of step with its string fields expanded
// using Expand. Step-level Env values are expanded first (against the
// incoming variables only, no cross-referencing between env entries),
// then merged into the variable map for expanding the run command.
// A run command can therefore reference step env values with ${NAME}
// and see them fully resolved.
//
// The original step and variables map are not modified.
func ExpandStep(step schema.Step, variables map[string]string) (schema.Step, error) {
	var expandedEnv map[string]string
	if len(step.Env) > 0 {
		expandedEnv = make(map[string]string, len(step.Env))
		for name, value := range step.Env {
			expandedValue, err := Expand(value, variables)
			if err != nil {
				return schema.Step{}, fmt.Errorf("step %q env[%s]: %w", step.Name, name, err)
			}
			expandedEnv[name] = expandedValue
		}
	}

	merged := make(map[string]string, len(variables)+len(expandedEnv))
	for name, value := range variables {
		merged[name] = value
	}
	for name, value := range expandedEnv {
		merged[name] = value
	}

	var err error
	if step.Run, err = Expand(step.Run, merged); err != nil {
		return schema.Step{}, fmt.Errorf("step %q run: %w", step.Name, err)
	}

	step.Env = expandedEnv
	return step, nil
}

// ExpandPatterns expands ${NAME} references in a pattern list (cache
// inputs, cache paths, artifact globs). Returns a new slice; the input
// is not modified.
func ExpandPatterns(patterns []string, variables map[string]string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	expanded := make([]string, len(patterns))
	for index, pattern := range patterns {
		value, err := Expand(pattern, variables)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		expanded[index] = value
	}
	return expanded, nil
}

// FailureVariables builds the extra variables injected for on_failure
// steps: the name of the failed step and its error message.
func FailureVariables(failedStep string, failedError error) map[string]string {
	message := ""
	if failedError != nil {
		message = failedError.Error()
	}
	return map[string]string{
		VarFailedStep:  failedStep,
		VarFailedError: message,
	}
}
