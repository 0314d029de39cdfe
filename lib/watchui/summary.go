// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package watchui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/kiln-build/kiln/lib/schema"
)

// Summary renders the post-run table: one row per job instance plus
// the release line and warnings. Styling degrades with the terminal's
// color profile — a dumb terminal or a pipe gets plain text.
func Summary(result *schema.RunResult) string {
	styled := termenv.ColorProfile() != termenv.Ascii
	return renderSummary(result, styled)
}

func renderSummary(result *schema.RunResult, styled bool) string {
	theme := DefaultTheme
	paint := func(color lipgloss.Color, text string) string {
		if !styled {
			return text
		}
		return lipgloss.NewStyle().Foreground(color).Render(text)
	}

	var summary strings.Builder

	if result.Conclusion == schema.ConclusionSkipped {
		fmt.Fprintf(&summary, "pipeline %s: %s\n", result.Pipeline,
			paint(theme.Skipped, "skipped"))
		if result.Reason != "" {
			fmt.Fprintf(&summary, "  %s\n", result.Reason)
		}
		return summary.String()
	}

	fmt.Fprintf(&summary, "%-20s %-14s %-9s %9s %6s %10s\n",
		"JOB", "VARIANT", "OUTCOME", "DURATION", "CACHE", "ARTIFACTS")
	for _, job := range result.Jobs {
		cacheNote := "-"
		if job.CacheKey != "" {
			if job.CacheHit {
				cacheNote = "hit"
			} else {
				cacheNote = "miss"
			}
		}
		artifactNote := "-"
		if job.ArtifactFiles > 0 {
			artifactNote = fmt.Sprintf("%d (%s)", job.ArtifactFiles, formatBytes(job.ArtifactBytes))
		}
		fmt.Fprintf(&summary, "%-20s %-14s %s %9s %6s %10s\n",
			job.Job, job.Variant,
			paint(theme.OutcomeColor(string(job.Outcome)), fmt.Sprintf("%-9s", job.Outcome)),
			formatDuration(job.DurationMS), cacheNote, artifactNote)
		if job.Error != "" {
			fmt.Fprintf(&summary, "  %s\n", paint(theme.Failure, job.Error))
		}
		if job.TunnelURL != "" {
			fmt.Fprintf(&summary, "  debug session: %s\n", job.TunnelURL)
		}
	}

	if result.Release != nil {
		release := result.Release
		if release.Error != "" {
			fmt.Fprintf(&summary, "\nrelease %s: %s\n", release.Tag,
				paint(theme.Failure, release.Error))
		} else {
			fmt.Fprintf(&summary, "\nrelease %s: %d bundles, %d assets, %s → %s\n",
				release.Tag, release.Bundles, release.Assets,
				formatBytes(release.TotalBytes), release.Handle)
		}
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(&summary, "%s %s\n", paint(theme.Warning, "warning:"), warning)
	}

	fmt.Fprintf(&summary, "\nrun %s in %s\n",
		paint(theme.OutcomeColor(result.Conclusion), result.Conclusion),
		formatDuration(result.DurationMS))
	return summary.String()
}

func formatDuration(milliseconds int64) string {
	duration := time.Duration(milliseconds) * time.Millisecond
	if duration >= time.Second {
		return duration.Round(100 * time.Millisecond).String()
	}
	return duration.Round(time.Millisecond).String()
}

func formatBytes(count int64) string {
	switch {
	case count >= 1<<30:
		return fmt.Sprintf("%.1fGiB", float64(count)/(1<<30))
	case count >= 1<<20:
		return fmt.Sprintf("%.1fMiB", float64(count)/(1<<20))
	case count >= 1<<10:
		return fmt.Sprintf("%.1fKiB", float64(count)/(1<<10))
	default:
		return fmt.Sprintf("%dB", count)
	}
}
