package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/deepdiver/pkg/jobs"
)

const refreshInterval = time.Second

// jobDoneMsg reports that the job at index reached a result.
type jobDoneMsg struct {
	index  int
	result jobResult
}

type refreshMsg time.Time

type progressRow struct {
	desc    jobs.Descriptor
	state   string
	started time.Time
	result  *jobResult
}

// progressModel is the live view shown while jobs run. It polls the
// engine's running list for state changes and quits once every job has
// reported a result.
type progressModel struct {
	spinner   spinner.Model
	rows      []progressRow
	running   func() []jobs.JobStatus
	cancel    context.CancelFunc
	now       func() time.Time
	done      int
	cancelled bool
}

func newProgressModel(descs []jobs.Descriptor, running func() []jobs.JobStatus, cancel context.CancelFunc) *progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = successStyle

	m := &progressModel{
		spinner: s,
		running: running,
		cancel:  cancel,
		now:     time.Now,
	}
	start := m.now()
	for _, d := range descs {
		m.rows = append(m.rows, progressRow{desc: d, state: "submitting", started: start})
	}
	return m
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, refresh())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// Jobs observe the cancellation and report Cancelled; the view
			// quits once they have.
			if !m.cancelled {
				m.cancelled = true
				m.cancel()
			}
		}
		return m, nil

	case jobDoneMsg:
		if msg.index < 0 || msg.index >= len(m.rows) || m.rows[msg.index].result != nil {
			return m, nil
		}
		r := msg.result
		m.rows[msg.index].result = &r
		m.rows[msg.index].state = r.State
		m.done++
		if m.done == len(m.rows) {
			return m, tea.Quit
		}
		return m, nil

	case refreshMsg:
		m.applyRunning()
		return m, refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// applyRunning copies the engine's live states onto unfinished rows.
func (m *progressModel) applyRunning() {
	if m.running == nil {
		return
	}
	for _, st := range m.running() {
		for i := range m.rows {
			row := &m.rows[i]
			if row.desc.Tag == st.Tag && row.result == nil {
				row.state = st.State.String()
				row.started = st.Started
			}
		}
	}
}

func (m *progressModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Generating %d artifact(s)", len(m.rows))))
	b.WriteString("\n\n")

	for _, row := range m.rows {
		var icon, detail string
		switch {
		case row.result == nil:
			icon = m.spinner.View()
			detail = mutedStyle.Render(fmt.Sprintf("%s, %s", row.state, m.now().Sub(row.started).Round(time.Second)))
		case row.result.ok():
			icon = successStyle.Render("✓")
			title := ""
			if row.result.Artifact != nil {
				title = row.result.Artifact.Title
			}
			detail = fmt.Sprintf("%s %s", title, mutedStyle.Render(row.result.Elapsed))
		default:
			icon = errorStyle.Render("✗")
			detail = errorStyle.Render(fmt.Sprintf("%s: %s", row.result.State, row.result.Error))
		}
		fmt.Fprintf(&b, "%s %-10s %s\n", icon, row.desc.Kind, detail)
	}

	b.WriteString("\n")
	if m.cancelled {
		b.WriteString(warnStyle.Render("Cancelling, waiting for jobs to stop..."))
	} else {
		b.WriteString(mutedStyle.Render("q: cancel all jobs"))
	}
	b.WriteString("\n")
	return b.String()
}

// results returns the per-job results in submission order.
func (m *progressModel) results() []jobResult {
	out := make([]jobResult, len(m.rows))
	for i, row := range m.rows {
		if row.result != nil {
			out[i] = *row.result
			continue
		}
		out[i] = jobResult{Kind: string(row.desc.Kind), Tag: row.desc.Tag, State: "cancelled", Error: "no result"}
	}
	return out
}
