// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"context"
	"os"
	"strings"
	"time"

	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
)

// runTerminal drives work while an inline bubbletea program renders
// the task set to stderr. The program never takes the alt screen; the
// final frame stays in the scrollback as the run's summary.
func (tracker *Tracker) runTerminal(ctx context.Context, work func(context.Context) error) error {
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := newDisplayModel(tracker, cancel)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr))

	result := make(chan error, 1)
	go func() {
		err := work(workCtx)
		result <- err
		program.Send(workDoneMsg{})
	}()

	if _, err := program.Run(); err != nil {
		// The display failed; cancel the work and surface its error
		// over the cosmetic one.
		cancel()
		return <-result
	}
	return <-result
}

// tickMsg drives rate recomputation and elapsed-time redraws.
type tickMsg time.Time

// workDoneMsg tells the display that the work function returned.
type workDoneMsg struct{}

const tickInterval = 100 * time.Millisecond

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// displayModel is the bubbletea model for the terminal renderer. It
// holds no task state of its own; every frame reads the tracker.
type displayModel struct {
	tracker *Tracker
	cancel  context.CancelFunc

	bar        progressbar.Model
	spin       spinner.Model
	width      int
	now        time.Time
	cancelling bool
	finished   bool

	labelStyle lipgloss.Style
	dimStyle   lipgloss.Style
	doneStyle  lipgloss.Style
	failStyle  lipgloss.Style
}

// barWidth is the rendered width of a determinate progress bar.
const barWidth = 30

func newDisplayModel(tracker *Tracker, cancel context.CancelFunc) displayModel {
	// Build styles against an explicit stderr renderer so the color
	// profile (and NO_COLOR) is detected for the stream we draw on,
	// not stdout.
	renderer := lipgloss.NewRenderer(os.Stderr, termenv.WithColorCache(true))

	spin := spinner.New()
	spin.Spinner = spinner.MiniDot

	bar := progressbar.New(progressbar.WithDefaultGradient(), progressbar.WithWidth(barWidth), progressbar.WithoutPercentage())

	return displayModel{
		tracker:    tracker,
		cancel:     cancel,
		bar:        bar,
		spin:       spin,
		width:      80,
		now:        time.Now(),
		labelStyle: renderer.NewStyle().Bold(true),
		dimStyle:   renderer.NewStyle().Faint(true),
		doneStyle:  renderer.NewStyle().Foreground(lipgloss.Color("2")),
		failStyle:  renderer.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// Init implements tea.Model.
func (model displayModel) Init() tea.Cmd {
	return tea.Batch(model.spin.Tick, tickCmd())
}

// Update implements tea.Model.
func (model displayModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		switch message.String() {
		case "ctrl+c", "q", "esc":
			// Cancel the work and keep rendering until it unwinds;
			// quitting immediately would orphan the workers.
			model.cancelling = true
			model.cancel()
		}
		return model, nil

	case tea.WindowSizeMsg:
		model.width = message.Width
		return model, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		model.spin, cmd = model.spin.Update(message)
		return model, cmd

	case tickMsg:
		model.now = time.Time(message)
		for _, task := range model.tracker.snapshot() {
			if !task.finished() {
				task.updateRate(model.now)
			}
		}
		return model, tickCmd()

	case workDoneMsg:
		model.finished = true
		return model, tea.Quit
	}
	return model, nil
}

// View implements tea.Model. One line per task, truncated to the
// terminal width.
func (model displayModel) View() string {
	var view strings.Builder
	for _, task := range model.tracker.snapshot() {
		view.WriteString(model.renderTask(task))
		view.WriteByte('\n')
	}
	if model.cancelling && !model.finished {
		view.WriteString(model.dimStyle.Render("cancelling..."))
		view.WriteByte('\n')
	}
	return view.String()
}

func (model displayModel) renderTask(task *Task) string {
	var indicator string
	switch task.state.Load() {
	case stateDone:
		indicator = model.doneStyle.Render("✓")
	case stateFailed:
		indicator = model.failStyle.Render("✗")
	default:
		if pct := task.percent(); pct >= 0 {
			indicator = model.bar.ViewAs(pct)
		} else {
			indicator = model.spin.View()
		}
	}

	columns := []string{indicator, model.labelStyle.Render(task.label), task.amount()}
	if task.state.Load() == stateFailed {
		if err := task.Err(); err != nil {
			columns = append(columns, model.failStyle.Render(err.Error()))
		}
	} else if !task.finished() {
		if rate := task.rateString(); rate != "" {
			columns = append(columns, model.dimStyle.Render(rate))
		}
		columns = append(columns, model.dimStyle.Render(task.elapsed(model.now)))
	}

	line := strings.Join(columns, "  ")
	if model.width > 0 {
		line = ansi.Truncate(line, model.width, "…")
	}
	return line
}
