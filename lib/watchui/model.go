// Copyright 2026 The Kiln Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchui renders a live per-job status board for `kiln
// pipeline run --watch`. The model consumes the runner's progress
// events from a channel; when the channel closes the view freezes on
// the final state and the program quits.
//
// The package also provides the non-interactive run summary table
// printed after every run, with styling degraded to the terminal's
// color profile via termenv.
package watchui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/kiln-build/kiln/lib/runner"
)

// ChannelSink bridges runner progress events into the watch model.
// The runner side calls Event from instance goroutines; the UI side
// drains Events. Close after the run settles so the UI can exit.
type ChannelSink struct {
	events chan runner.Event
}

// NewChannelSink creates a sink with the given buffer. Size the
// buffer generously (a few hundred events) so instance goroutines
// never block on a slow terminal.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{events: make(chan runner.Event, buffer)}
}

func (s *ChannelSink) Event(event runner.Event) {
	s.events <- event
}

// Events is the UI-side view of the stream.
func (s *ChannelSink) Events() <-chan runner.Event {
	return s.events
}

// Close ends the stream. Call exactly once, after runner.Run returns.
func (s *ChannelSink) Close() {
	close(s.events)
}

// jobRow is one instance's line on the board.
type jobRow struct {
	instance string
	status   string // "pending", "running", or a terminal outcome
	step     string // current or last step
	cache    string // "hit"/"miss" once known
	duration time.Duration
	detail   string
}

type eventMsg runner.Event

// streamClosedMsg means the sink was closed: the run is over.
type streamClosedMsg struct{}

// Model is the bubbletea model for the watch view.
type Model struct {
	theme    Theme
	spinner  spinner.Model
	events   <-chan runner.Event
	pipeline string

	rows  []jobRow
	index map[string]int

	conclusion string
	width      int
	done       bool
}

// New builds a watch model reading from the given event stream.
func New(events <-chan runner.Event) Model {
	theme := DefaultTheme
	indicator := spinner.New()
	indicator.Spinner = spinner.MiniDot
	indicator.Style = lipgloss.NewStyle().Foreground(theme.Running)
	return Model{
		theme:   theme,
		spinner: indicator,
		events:  events,
		index:   make(map[string]int),
		width:   80,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func waitForEvent(events <-chan runner.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(event)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case eventMsg:
		m.apply(runner.Event(msg))
		return m, waitForEvent(m.events)

	case streamClosedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply folds one progress event into the board state.
func (m *Model) apply(event runner.Event) {
	switch event.Kind {
	case runner.EventRunStarted:
		m.pipeline = event.Detail

	case runner.EventJobStarted:
		m.row(event.Instance).status = "running"

	case runner.EventCache:
		m.row(event.Instance).cache = event.Status

	case runner.EventStepStarted:
		m.row(event.Instance).step = event.Step

	case runner.EventStepFinished:
		row := m.row(event.Instance)
		row.step = event.Step
		if event.Status != "ok" {
			row.detail = fmt.Sprintf("step %s: %s", event.Step, event.Status)
		}

	case runner.EventJobFinished:
		row := m.row(event.Instance)
		row.status = event.Status
		row.duration = event.Duration
		if event.Detail != "" {
			row.detail = event.Detail
		}

	case runner.EventRunFinished:
		m.conclusion = event.Status
	}
}

// row finds or creates the board row for an instance.
func (m *Model) row(instance string) *jobRow {
	if position, exists := m.index[instance]; exists {
		return &m.rows[position]
	}
	m.index[instance] = len(m.rows)
	m.rows = append(m.rows, jobRow{instance: instance, status: "pending"})
	return &m.rows[len(m.rows)-1]
}

func (m Model) View() string {
	var view strings.Builder

	header := lipgloss.NewStyle().Foreground(m.theme.HeaderForeground).Bold(true)
	title := "kiln"
	if m.pipeline != "" {
		title = "kiln · " + m.pipeline
	}
	view.WriteString(header.Render(title))
	view.WriteString("\n\n")

	faint := lipgloss.NewStyle().Foreground(m.theme.FaintText)
	for _, row := range m.rows {
		view.WriteString(m.renderRow(row, faint))
		view.WriteString("\n")
	}

	if m.conclusion != "" {
		view.WriteString("\n")
		conclusionStyle := lipgloss.NewStyle().Foreground(m.theme.OutcomeColor(m.conclusion)).Bold(true)
		view.WriteString(conclusionStyle.Render("run " + m.conclusion))
		view.WriteString("\n")
	} else {
		view.WriteString("\n")
		view.WriteString(faint.Render("q to quit (run keeps going)"))
		view.WriteString("\n")
	}
	return view.String()
}

func (m Model) renderRow(row jobRow, faint lipgloss.Style) string {
	indicator := " "
	switch row.status {
	case "running":
		indicator = m.spinner.View()
	case "success":
		indicator = lipgloss.NewStyle().Foreground(m.theme.Success).Render("✓")
	case "failed":
		indicator = lipgloss.NewStyle().Foreground(m.theme.Failure).Render("✗")
	case "skipped":
		indicator = faint.Render("-")
	}

	name := lipgloss.NewStyle().Foreground(m.theme.NormalText).Render(
		fmt.Sprintf("%-28s", row.instance))

	var notes []string
	if row.step != "" && row.status == "running" {
		notes = append(notes, row.step)
	}
	if row.cache != "" {
		notes = append(notes, "cache "+row.cache)
	}
	if row.duration > 0 {
		notes = append(notes, row.duration.Round(100*time.Millisecond).String())
	}
	if row.detail != "" {
		notes = append(notes, row.detail)
	}

	statusStyle := lipgloss.NewStyle().Foreground(m.theme.OutcomeColor(row.status))
	line := fmt.Sprintf("%s %s %s  %s",
		indicator, name, statusStyle.Render(fmt.Sprintf("%-8s", row.status)),
		faint.Render(strings.Join(notes, " · ")))

	// Never wrap: a wrapped row breaks the board layout on redraw.
	return ansi.Truncate(line, m.width, "…")
}
