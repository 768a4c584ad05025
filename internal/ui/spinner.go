package ui

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// getTTY opens /dev/tty for direct terminal access (bypasses redirections)
func getTTY() (*os.File, error) {
	return os.OpenFile("/dev/tty", os.O_RDWR, 0)
}

// doneMsg carries the result of the background operation into the program
type doneMsg struct {
	err error
}

// spinnerModel is the bubbletea model for the loading spinner
type spinnerModel struct {
	spinner   spinner.Model
	label     string
	cancel    context.CancelFunc
	cancelled bool
	done      bool
	err       error
	dimStyle  lipgloss.Style
}

func newSpinnerModel(label string, cancel context.CancelFunc, tty *os.File) spinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	r := lipgloss.NewRenderer(tty)
	s.Style = r.NewStyle().Foreground(currentTheme.Spinner)
	return spinnerModel{
		spinner:  s,
		label:    label,
		cancel:   cancel,
		dimStyle: r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyEscape || msg.Type == tea.KeyCtrlC {
			m.cancelled = true
			m.cancel()
			return m, tea.Quit
		}
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() string {
	return m.spinner.View() + m.label + " " + m.dimStyle.Render("(esc to cancel)")
}

// RunWithSpinner shows a spinner on the terminal while fn runs.
// Pressing escape cancels the context passed to fn and returns
// context.Canceled. Without a usable terminal fn runs directly.
func RunWithSpinner(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Get tty for proper rendering
	tty, ttyErr := getTTY()
	if ttyErr != nil {
		return fn(ctx)
	}
	defer tty.Close()

	model := newSpinnerModel(label, cancel, tty)
	p := tea.NewProgram(model, tea.WithInput(tty), tea.WithOutput(tty))

	// Run the operation in the background and send the result to the program
	go func() {
		p.Send(doneMsg{err: fn(ctx)})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	m := finalModel.(spinnerModel)
	if m.cancelled {
		return context.Canceled
	}
	if !m.done {
		return fmt.Errorf("no result received")
	}
	return m.err
}
