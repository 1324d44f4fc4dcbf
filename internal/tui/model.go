// Package tui is a keyboard-driven menu over the capture controller.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"firestige.xyz/s2onet/internal/config"
	"firestige.xyz/s2onet/internal/controller"
	"firestige.xyz/s2onet/internal/session"
)

// Backend is what the menu drives.
type Backend interface {
	Start() error
	Stop() error
	Reset() error
	Status() session.Snapshot
	SnapshotDecoded() []controller.DecodedFrame
}

// ControllerBackend starts captures on C with a fixed capture config.
type ControllerBackend struct {
	C       *controller.Controller
	Capture config.CaptureConfig
}

func (b ControllerBackend) Start() error                               { return b.C.Start(b.Capture) }
func (b ControllerBackend) Stop() error                                { return b.C.Stop() }
func (b ControllerBackend) Reset() error                               { return b.C.Reset() }
func (b ControllerBackend) Status() session.Snapshot                   { return b.C.Status() }
func (b ControllerBackend) SnapshotDecoded() []controller.DecodedFrame { return b.C.SnapshotDecoded() }

// View is the active screen.
type View int

const (
	ViewMenu View = iota
	ViewPackets
)

// Item is a menu entry.
type Item int

const (
	ItemStart Item = iota
	ItemStop
	ItemStatus
	ItemPackets
	ItemReset
	ItemQuit
)

var itemLabels = []string{
	ItemStart:   "Start capture",
	ItemStop:    "Stop capture",
	ItemStatus:  "Status",
	ItemPackets: "Packets",
	ItemReset:   "Reset session",
	ItemQuit:    "Quit",
}

// ResultMsg carries the outcome of a backend action.
type ResultMsg struct {
	Text string
	Err  error
}

// PacketsMsg carries a decoded snapshot.
type PacketsMsg []controller.DecodedFrame

var (
	StyleTitle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	StyleSelected = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	StyleItem     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	StyleError    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	StyleInfo     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	StyleHelp     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Model is the menu state.
type Model struct {
	Backend Backend

	ActiveView View
	Cursor     int
	Message    string
	Err        error
	Packets    []controller.DecodedFrame
	Width      int
	Height     int
}

// NewModel creates a menu over backend.
func NewModel(backend Backend) Model {
	return Model{Backend: backend}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ResultMsg:
		m.Message, m.Err = msg.Text, msg.Err
		return m, nil

	case PacketsMsg:
		m.Packets = msg
		m.ActiveView = ViewPackets
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		if m.ActiveView == ViewPackets {
			switch msg.String() {
			case "esc", "backspace":
				m.ActiveView = ViewMenu
			case "r":
				return m, m.loadPackets()
			}
			return m, nil
		}
		switch msg.String() {
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
			}
		case "down", "j":
			if m.Cursor < len(itemLabels)-1 {
				m.Cursor++
			}
		case "enter", " ":
			return m, m.activate(Item(m.Cursor))
		}
	}
	return m, nil
}

func (m Model) activate(item Item) tea.Cmd {
	switch item {
	case ItemStart:
		return func() tea.Msg {
			if err := m.Backend.Start(); err != nil {
				return ResultMsg{Err: err}
			}
			return ResultMsg{Text: "capture started"}
		}
	case ItemStop:
		return func() tea.Msg {
			if err := m.Backend.Stop(); err != nil {
				return ResultMsg{Err: err}
			}
			st := m.Backend.Status()
			return ResultMsg{Text: fmt.Sprintf("capture stopped, %d frames captured", st.FramesCaptured)}
		}
	case ItemStatus:
		return func() tea.Msg {
			return ResultMsg{Text: FormatStatus(m.Backend.Status())}
		}
	case ItemPackets:
		return m.loadPackets()
	case ItemReset:
		return func() tea.Msg {
			if err := m.Backend.Reset(); err != nil {
				return ResultMsg{Err: err}
			}
			return ResultMsg{Text: "session reset"}
		}
	case ItemQuit:
		return tea.Quit
	}
	return nil
}

func (m Model) loadPackets() tea.Cmd {
	return func() tea.Msg {
		return PacketsMsg(m.Backend.SnapshotDecoded())
	}
}

// FormatStatus renders a session snapshot on one line.
func FormatStatus(st session.Snapshot) string {
	s := fmt.Sprintf("state=%s captured=%d dropped=%d stored=%d hwm=%d",
		st.State, st.FramesCaptured, st.FramesDropped, st.StoreLen, st.HighWaterMark)
	if !st.StartedAt.IsZero() {
		s += " started=" + st.StartedAt.Format("15:04:05")
	}
	if st.LastError != nil {
		s += " error=" + st.LastError.Error()
	}
	return s
}

// FormatFrame renders one decoded frame on one line.
func FormatFrame(df controller.DecodedFrame) string {
	return fmt.Sprintf("#%-6d %-8s %5dB  %s", df.Frame.Seq, df.Frame.Direction, df.Frame.Len(), df.Record)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(StyleTitle.Render("s2onet capture") + "\n\n")

	if m.ActiveView == ViewPackets {
		b.WriteString(m.packetsView())
		b.WriteString("\n" + StyleHelp.Render("r refresh • esc back • q quit"))
		return b.String()
	}

	for i, label := range itemLabels {
		if i == m.Cursor {
			b.WriteString(StyleSelected.Render("> "+label) + "\n")
		} else {
			b.WriteString(StyleItem.Render("  "+label) + "\n")
		}
	}
	b.WriteString("\n")
	switch {
	case m.Err != nil:
		b.WriteString(StyleError.Render(m.Err.Error()) + "\n")
	case m.Message != "":
		b.WriteString(StyleInfo.Render(m.Message) + "\n")
	}
	b.WriteString("\n" + StyleHelp.Render("↑/↓ move • enter select • q quit"))
	return b.String()
}

func (m Model) packetsView() string {
	if len(m.Packets) == 0 {
		return "No packets captured.\n"
	}
	rows := m.Height - 6
	if rows <= 0 {
		rows = 20
	}
	shown := m.Packets
	if len(shown) > rows {
		shown = shown[len(shown)-rows:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d frames, showing last %d\n", len(m.Packets), len(shown))
	for _, df := range shown {
		b.WriteString(FormatFrame(df) + "\n")
	}
	return b.String()
}

// Run starts the menu on the terminal and blocks until it quits.
func Run(backend Backend) error {
	_, err := tea.NewProgram(NewModel(backend), tea.WithAltScreen()).Run()
	return err
}
