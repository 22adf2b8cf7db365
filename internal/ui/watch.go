package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/rendercast/internal/registry"
)

// Searcher triggers another discovery round.
type Searcher interface {
	Update() error
}

// DeviceMsg carries a delivered device into the watch model.
type DeviceMsg registry.Device

// ErrMsg carries a session error into the watch model.
type ErrMsg struct{ Err error }

// watchKeyMap defines key bindings for the watch screen
type watchKeyMap struct {
	Search key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Search, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Search, k.Quit}}
}

// maxErrors is how many recent errors the watch screen keeps.
const maxErrors = 3

// WatchModel shows devices as they are delivered. Devices keep their first
// seen position; an upgrade updates the row in place and marks it.
type WatchModel struct {
	searcher Searcher
	spinner  spinner.Model
	help     help.Model
	keys     watchKeyMap

	order    []string
	devices  map[string]registry.Device
	upgraded map[string]bool
	errors   []string

	searches   int
	lastSearch time.Time
	width      int
	quitting   bool
	now        func() time.Time
}

// NewWatchModel creates the watch screen. searcher may be nil, which
// disables the search key.
func NewWatchModel(searcher Searcher) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = DeviceHostStyle

	return WatchModel{
		searcher: searcher,
		spinner:  s,
		help:     help.New(),
		keys: watchKeyMap{
			Search: key.NewBinding(
				key.WithKeys("r"),
				key.WithHelp("r", "search again"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "ctrl+c", "esc"),
				key.WithHelp("q", "quit"),
			),
		},
		devices:  make(map[string]registry.Device),
		upgraded: make(map[string]bool),
		width:    GetTerminalWidth(),
		now:      time.Now,
	}
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Search):
			if m.searcher == nil {
				return m, nil
			}
			m.searches++
			m.lastSearch = m.now()
			searcher := m.searcher
			return m, func() tea.Msg {
				if err := searcher.Update(); err != nil {
					return ErrMsg{Err: err}
				}
				return nil
			}
		}

	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
		m.help.Width = m.width

	case DeviceMsg:
		d := registry.Device(msg)
		if _, seen := m.devices[d.Name]; seen {
			m.upgraded[d.Name] = true
		} else {
			m.order = append(m.order, d.Name)
		}
		m.devices[d.Name] = d

	case ErrMsg:
		if msg.Err != nil {
			m.errors = append(m.errors, msg.Err.Error())
			if len(m.errors) > maxErrors {
				m.errors = m.errors[len(m.errors)-maxErrors:]
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// Devices returns the devices shown, in first-seen order.
func (m WatchModel) Devices() []registry.Device {
	out := make([]registry.Device, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.devices[name])
	}
	return out
}

// View implements tea.Model
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(RenderHeader("Renderers", "rendercast watch", map[string]string{
		"Devices":  fmt.Sprintf("%d", len(m.order)),
		"Searches": fmt.Sprintf("%d", m.searches+1),
	}, m.width))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StatusStyle.Render(m.spinner.View() + " Searching for renderers..."))
		b.WriteString("\n")
	}
	for _, name := range m.order {
		b.WriteString(RenderDeviceLine(m.devices[name], m.upgraded[name]))
		b.WriteString("\n")
	}

	for _, e := range m.errors {
		b.WriteString("\n")
		b.WriteString(ErrorMessageStyle.Render("  " + FailureMarker + " " + e))
	}

	b.WriteString("\n\n")
	b.WriteString(StatusStyle.Render(m.help.View(m.keys)))
	b.WriteString("\n")
	return b.String()
}
