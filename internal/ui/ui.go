package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tidalhook/shelfctl/internal/engine"
	"github.com/tidalhook/shelfctl/internal/formatter"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	RunView ViewState = iota
	ResultView
)

// recentLines caps the scrollback of per-item messages kept on screen.
const recentLines = 12

// Model represents the TUI application state for one run.
type Model struct {
	ctx        context.Context
	view       ViewState
	reconciler *engine.Reconciler
	width      int
	height     int

	progressChan chan engine.ProgressUpdate
	stats        engine.Stats
	page         int
	recent       []string
	result       *engine.RunResult
	err          error

	spin spinner.Model
	help help.Model
	keys keyMap
}

// keyMap defines the key bindings for the TUI.
type keyMap struct {
	pause  key.Binding
	resume key.Binding
	quit   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		pause: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "pause"),
		),
		resume: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "resume"),
		),
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "stop"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.pause, k.resume, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.pause, k.resume},
		{k.quit},
	}
}

type progressUpdateMsg engine.ProgressUpdate

type runCompleteMsg struct {
	result *engine.RunResult
	err    error
}

// NewModel creates a TUI model that will drive the provided reconciler.
func NewModel(ctx context.Context, reconciler *engine.Reconciler) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{
		ctx:          ctx,
		view:         RunView,
		reconciler:   reconciler,
		progressChan: make(chan engine.ProgressUpdate, 100),
		spin:         sp,
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// Init starts the run in the background and begins listening for progress.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.startRun(), m.waitForProgress())
}

// startRun launches the reconciliation and reports its completion as a message.
func (m *Model) startRun() tea.Cmd {
	return func() tea.Msg {
		result, err := m.reconciler.Run(m.ctx, m.progressChan)
		return runCompleteMsg{result: result, err: err}
	}
}

// waitForProgress reads one progress update from the engine's channel.
func (m *Model) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		update, ok := <-m.progressChan
		if !ok {
			return nil
		}
		return progressUpdateMsg(update)
	}
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		ctrl := m.reconciler.Controller()
		switch {
		case key.Matches(msg, m.keys.pause):
			ctrl.Pause()
			return m, nil
		case key.Matches(msg, m.keys.resume):
			ctrl.Resume()
			return m, nil
		case key.Matches(msg, m.keys.quit):
			if m.view == ResultView {
				return m, tea.Quit
			}
			ctrl.Stop()
			return m, nil
		}
		return m, nil

	case progressUpdateMsg:
		update := engine.ProgressUpdate(msg)
		m.stats = update.Stats
		if update.Page > m.page {
			m.page = update.Page
		}
		if update.Message != "" {
			m.recent = append(m.recent, update.Message)
			if len(m.recent) > recentLines {
				m.recent = m.recent[len(m.recent)-recentLines:]
			}
		}
		return m, m.waitForProgress()

	case runCompleteMsg:
		m.result = msg.result
		m.err = msg.err
		m.view = ResultView
		close(m.progressChan)
		m.progressChan = nil
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.view == ResultView {
		return m.resultView()
	}
	return m.runView()
}

func (m *Model) runView() string {
	var b strings.Builder

	b.WriteString(styles.title.Render("shelfctl run"))
	b.WriteString("\n")

	state := m.reconciler.Controller().State()
	switch state {
	case engine.StatePaused:
		b.WriteString(styles.warn.Render("⏸ paused"))
	default:
		b.WriteString(fmt.Sprintf("%s %s", m.spin.View(), state))
	}
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("page %d · %s %d · %s %d · %s %d · retried %d\n\n",
		m.page,
		styles.ok.Render("toggled"), m.stats.Toggled,
		styles.help.Render("skipped"), m.stats.Skipped,
		styles.err.Render("failed"), m.stats.Failed,
		m.stats.Retried,
	))

	for _, line := range m.recent {
		b.WriteString("  " + line + "\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) resultView() string {
	var b strings.Builder

	if m.err != nil {
		b.WriteString(styles.err.Render(fmt.Sprintf("run error: %v", m.err)))
		b.WriteString("\n\n")
	}
	if m.result != nil {
		b.WriteString(formatter.SummaryText(m.result))
	}
	b.WriteString(styles.help.Render("press q to quit"))
	return b.String()
}
