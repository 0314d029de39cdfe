// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"time"

	"github.com/kiln-build/kiln/lib/artifact"
	"github.com/kiln-build/kiln/lib/pipeline"
	"github.com/kiln-build/kiln/lib/schema"
	"github.com/kiln-build/kiln/lib/tunnel"
)

// runHook executes the job's failure hook: diagnostic collection and
// debug tunnel initiation. The hook runs only after the instance has
// settled as failed, never changes that outcome, and never propagates
// its own errors beyond a warning.
func (r *instanceRun) runHook(ctx context.Context, result *schema.JobResult, failedStep string, failedErr error) {
	hook := r.job.Hook
	if hook == nil {
		return
	}

	if len(hook.Diagnostics) > 0 {
		r.collectDiagnostics(result, failedStep, failedErr)
	}
	if hook.DebugTunnel {
		r.openDebugSession(ctx, result, failedStep)
	}
}

// collectDiagnostics gathers the hook's diagnostic bundle. The bundle
// is surfaced in run output only; release assembly filters it out by
// its Diagnostic flag even if a future caller hands it over.
func (r *instanceRun) collectDiagnostics(result *schema.JobResult, failedStep string, failedErr error) {
	variables := mergeMaps(r.variables, pipeline.FailureVariables(failedStep, failedErr))
	patterns, err := pipeline.ExpandPatterns(r.job.Hook.Diagnostics, variables)
	if err != nil {
		r.warn("diagnostic patterns for %s: %v", r.name, err)
		return
	}

	bundle, err := artifact.CollectDiagnostics(r.workspace, r.job.Name, r.variant.Name, patterns)
	if err != nil {
		r.warn("diagnostic collection for %s: %v", r.name, err)
		return
	}
	result.DiagnosticFiles = len(bundle.Files)
}

// openDebugSession asks the tunnel broker for an interactive session.
// Fire-and-forget: a broker failure is a warning, and the session's
// lifetime after the URL lands in the result is the broker's problem.
func (r *instanceRun) openDebugSession(ctx context.Context, result *schema.JobResult, failedStep string) {
	client := r.runner.config.Tunnel
	if client == nil {
		r.warn("debug tunnel requested for %s but no broker is configured", r.name)
		return
	}

	ttl := tunnel.DefaultTTL
	if r.job.Hook.TunnelTTL != "" {
		parsed, err := time.ParseDuration(r.job.Hook.TunnelTTL)
		if err != nil {
			r.warn("tunnel_ttl for %s: %v", r.name, err)
		} else {
			ttl = parsed
		}
	}

	// The instance is already failed; don't let a slow broker hold
	// the join barrier hostage.
	sessionCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	session, err := client.OpenSession(sessionCtx, tunnel.SessionRequest{
		Pipeline:   r.definition.Name,
		Instance:   r.name,
		FailedStep: failedStep,
		TTLSeconds: int(ttl.Seconds()),
	})
	if err != nil {
		r.warn("debug session for %s: %v", r.name, err)
		return
	}
	result.TunnelURL = session.URL
	r.runner.logger.Info("debug session opened",
		"instance", r.name,
		"url", session.URL,
		"expires_at", session.ExpiresAt,
	)
}
