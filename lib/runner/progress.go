// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// EventKind classifies a progress event.
type EventKind string

const (
	// EventRunStarted fires once, before any job starts. Detail is
	// the pipeline name.
	EventRunStarted EventKind = "run_started"

	// EventJobStarted fires when an instance's goroutine begins.
	EventJobStarted EventKind = "job_started"

	// EventCache reports the cache restore verdict for an instance.
	// Status is "hit", "miss", or "error"; Detail is the key.
	EventCache EventKind = "cache"

	// EventStepStarted fires before a step command executes.
	EventStepStarted EventKind = "step_started"

	// EventStepFinished fires with the step's terminal status.
	EventStepFinished EventKind = "step_finished"

	// EventJobFinished fires with the instance's terminal outcome.
	EventJobFinished EventKind = "job_finished"

	// EventRelease reports the publish attempt. Status is "published"
	// or "failed"; Detail is the handle or the error.
	EventRelease EventKind = "release"

	// EventRunFinished fires once, after the release publisher.
	// Status is the run conclusion.
	EventRunFinished EventKind = "run_finished"
)

// Event is one progress notification. Secret values are masked before
// the event reaches a sink.
type Event struct {
	Kind     EventKind
	Instance string
	Step     string
	Status   string
	Detail   string
	Duration time.Duration
}

// Sink receives progress events. Implementations must be safe for
// concurrent use: instances emit from their own goroutines.
type Sink interface {
	Event(event Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Event(event Event) { f(event) }

// NopSink discards all events.
func NopSink() Sink {
	return SinkFunc(func(Event) {})
}

// WriterSink renders events as human progress lines:
//
//	[build/linux] step compile: ok (2.1s)
//
// Lines are written atomically under a mutex so concurrent instances
// never interleave mid-line.
type WriterSink struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewWriterSink wraps a writer in a line-oriented progress sink.
func NewWriterSink(writer io.Writer) *WriterSink {
	return &WriterSink{writer: writer}
}

func (s *WriterSink) Event(event Event) {
	line := formatEvent(event)
	if line == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.writer, line)
}

func formatEvent(event Event) string {
	switch event.Kind {
	case EventRunStarted:
		return fmt.Sprintf("pipeline %s: starting", event.Detail)
	case EventJobStarted:
		return fmt.Sprintf("[%s] starting", event.Instance)
	case EventCache:
		return fmt.Sprintf("[%s] cache: %s %s", event.Instance, event.Status, event.Detail)
	case EventStepStarted:
		// Start lines add noise in the plain renderer; the finish
		// line carries the duration.
		return ""
	case EventStepFinished:
		if event.Detail != "" {
			return fmt.Sprintf("[%s] step %s: %s (%s): %s",
				event.Instance, event.Step, event.Status, roundDuration(event.Duration), event.Detail)
		}
		return fmt.Sprintf("[%s] step %s: %s (%s)",
			event.Instance, event.Step, event.Status, roundDuration(event.Duration))
	case EventJobFinished:
		if event.Detail != "" {
			return fmt.Sprintf("[%s] %s (%s): %s",
				event.Instance, event.Status, roundDuration(event.Duration), event.Detail)
		}
		return fmt.Sprintf("[%s] %s (%s)", event.Instance, event.Status, roundDuration(event.Duration))
	case EventRelease:
		return fmt.Sprintf("release: %s %s", event.Status, event.Detail)
	case EventRunFinished:
		return fmt.Sprintf("run %s (%s)", event.Status, roundDuration(event.Duration))
	}
	return ""
}

func roundDuration(d time.Duration) time.Duration {
	if d >= time.Second {
		return d.Round(100 * time.Millisecond)
	}
	return d.Round(time.Millisecond)
}
