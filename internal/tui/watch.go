package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/zhuang-keju/GreyCells/internal/db"
	"github.com/zhuang-keju/GreyCells/internal/logging"
	"github.com/zhuang-keju/GreyCells/internal/model"
	"github.com/zhuang-keju/GreyCells/internal/run"
)

const pollInterval = 800 * time.Millisecond

// Watch opens the live view for a run and blocks until the user quits.
// The TUI owns the terminal, so the global logger goes quiet first.
func Watch(store *db.Store, runID string) error {
	logging.Silence()
	m := newWatchModel(store, runID)
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

type snapshotMsg struct {
	run       db.RunRecord
	events    []db.EventRecord
	decisions []db.DecisionRecord
	alive     bool
	err       error
}

type tickMsg time.Time

type watchModel struct {
	store *db.Store
	runID string

	width    int
	height   int
	spinner  spinner.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer
	styles   Styles

	run       db.RunRecord
	events    []db.EventRecord
	decisions []db.DecisionRecord
	alive     bool
	loaded    bool
	done      bool
	err       error
}

func newWatchModel(store *db.Store, runID string) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	vp := viewport.New(80, 20)
	return watchModel{
		store:    store,
		runID:    runID,
		spinner:  sp,
		viewport: vp,
		styles:   DefaultStyles(),
		width:    80,
		height:   24,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

func (m watchModel) poll() tea.Cmd {
	store, runID := m.store, m.runID
	return func() tea.Msg {
		ctx := context.Background()
		rec, err := store.GetRun(ctx, runID)
		if err != nil {
			return snapshotMsg{err: err}
		}
		events, err := store.ListEvents(ctx, runID)
		if err != nil {
			return snapshotMsg{err: err}
		}
		decisions, err := store.ListDecisions(ctx, runID)
		if err != nil {
			return snapshotMsg{err: err}
		}
		return snapshotMsg{
			run:       rec,
			events:    events,
			decisions: decisions,
			alive:     run.RunAlive(rec.RunDir),
		}
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "k", "up":
			m.viewport.LineUp(1)
		case "j", "down":
			m.viewport.LineDown(1)
		case "pgup":
			m.viewport.HalfViewUp()
		case "pgdown":
			m.viewport.HalfViewDown()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 3
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(msg.Width-4),
		)
		m.viewport.SetContent(m.buildContent())
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if m.done {
			return m, nil
		}
		return m, m.poll()

	case snapshotMsg:
		if msg.err != nil {
			m.err = msg.err
			m.done = true
			return m, nil
		}
		m.run = msg.run
		m.events = msg.events
		m.decisions = msg.decisions
		m.alive = msg.alive
		m.loaded = true
		m.err = nil
		if model.Phase(m.run.Status).Terminal() || !m.alive {
			m.done = true
		}
		m.viewport.SetContent(m.buildContent())
		if m.done {
			return m, nil
		}
		return m, tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m watchModel) View() string {
	header := m.styles.Header.Render(fmt.Sprintf(" %s ", m.runID))
	if m.loaded {
		phase := model.Phase(m.run.Status)
		status := m.styles.PhaseStyle(phase).Render(strings.ToUpper(m.run.Status))
		header += "  " + status
		if !phase.Terminal() {
			if m.alive {
				header += "  " + m.spinner.View()
			} else {
				header += "  " + m.styles.Error.Render("(stale: no live process)")
			}
		}
	}
	footer := m.styles.Muted.Render(" j/k scroll · q quit")
	return header + "\n" + m.viewport.View() + "\n" + footer
}

// buildContent renders the story, the arbitration record, and the
// timeline tail into one scrollable body.
func (m watchModel) buildContent() string {
	if m.err != nil {
		return m.styles.Error.Render(fmt.Sprintf("watch failed: %v", m.err))
	}
	if !m.loaded {
		return "loading run..."
	}

	var b strings.Builder

	b.WriteString(m.styles.Bold.Render("Story") + "\n")
	b.WriteString(m.renderStory(m.run.Story) + "\n")

	b.WriteString(m.styles.Bold.Render(fmt.Sprintf("Attempt %d/%d", m.run.Attempt, m.run.MaxAttempts)) + "\n")
	if m.run.SourcePath != "" {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf("%s / %s", m.run.SourcePath, m.run.TestPath)) + "\n")
	}
	b.WriteString("\n")

	if len(m.decisions) > 0 {
		b.WriteString(m.styles.Bold.Render("Arbitration") + "\n")
		for _, d := range m.decisions {
			style := m.styles.Warning
			if d.Verdict == string(model.Veto) {
				style = m.styles.Muted
			}
			b.WriteString(fmt.Sprintf(" %d  %s  %s\n", d.Attempt, style.Render(d.Verdict), d.Rationale))
		}
		b.WriteString("\n")
	}

	b.WriteString(m.styles.Bold.Render("Timeline") + "\n")
	events := m.events
	if len(events) > 20 {
		events = events[len(events)-20:]
	}
	for _, e := range events {
		b.WriteString(fmt.Sprintf(" %s  %-11s %s\n", e.CreatedAt, e.Phase, e.Message))
	}
	return b.String()
}

func (m watchModel) renderStory(story string) string {
	if m.renderer == nil {
		return story + "\n"
	}
	out, err := m.renderer.Render(story)
	if err != nil {
		return story + "\n"
	}
	return out
}
