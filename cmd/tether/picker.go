package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/musher-dev/tether/internal/recording"
)

var (
	pickerTitleStyle = lipgloss.NewStyle().MarginLeft(2).Bold(true)
	pickerHelpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1).MarginLeft(2)
)

// errPickCancelled means the user left the picker without choosing.
var errPickCancelled = errors.New("no recording selected")

type recordingItem struct {
	session recording.Session
}

func (i recordingItem) FilterValue() string { return i.session.SessionID + " " + i.session.Source }
func (i recordingItem) Title() string       { return i.session.SessionID }

func (i recordingItem) Description() string {
	desc := i.session.StartedAt.Local().Format(time.DateTime)
	if i.session.Source != "" {
		desc = i.session.Source + " · " + desc
	}

	if i.session.ClosedAt == nil {
		return desc + " · still open"
	}

	return desc + " · " + i.session.ClosedAt.Sub(i.session.StartedAt).Round(time.Second).String()
}

type pickerModel struct {
	list     list.Model
	choice   string
	quitting bool
}

func newPickerModel(sessions []recording.Session) pickerModel {
	items := make([]list.Item, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, recordingItem{session: s})
	}

	l := list.New(items, list.NewDefaultDelegate(), 80, 16)
	l.Title = "Recorded sessions"
	l.Styles.Title = pickerTitleStyle
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)

	return pickerModel{list: l}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-2)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			if it, ok := m.list.SelectedItem().(recordingItem); ok {
				m.choice = it.session.SessionID
			}

			m.quitting = true

			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	return m, cmd
}

func (m pickerModel) View() string {
	if m.quitting {
		return ""
	}

	return m.list.View() + "\n" + pickerHelpStyle.Render("↑/↓: navigate • /: filter • enter: play • q: cancel")
}

// pickRecording lets the user choose a recording to replay.
func pickRecording(sessions []recording.Session, in io.Reader, out io.Writer) (string, error) {
	p := tea.NewProgram(newPickerModel(sessions), tea.WithInput(in), tea.WithOutput(out))

	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("run recording picker: %w", err)
	}

	m, ok := final.(pickerModel)
	if !ok || m.choice == "" {
		return "", errPickCancelled
	}

	return m.choice, nil
}
