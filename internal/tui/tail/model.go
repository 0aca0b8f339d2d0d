package tail

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	defaultMaxFrames = 500
	reconnectDelay   = 3 * time.Second
)

// Connection states shown in the header.
const (
	StatusConnecting = "CONNECTING"
	StatusStreaming  = "STREAMING"
	StatusEnded      = "ENDED"
	StatusFailed     = "DISCONNECTED"
)

// Options tune the tail TUI.
type Options struct {
	// Reconnect reopens the stream after it ends, resuming from the last
	// seen event id.
	Reconnect bool
	// MaxFrames caps the scrollback.
	MaxFrames int
	// HideHeartbeats keeps heartbeat frames out of the scrollback. They
	// are still counted.
	HideHeartbeats bool
	Client         *http.Client
}

// Model is the BubbleTea model for the tail TUI.
type Model struct {
	ctx  context.Context
	src  Source
	opts Options

	width  int
	height int

	// State
	status      string
	connectedAt time.Time
	lastID      string
	lines       []string
	counts      map[string]int
	heartbeats  int
	pulse       Pulse
	lastError   string
	follow      bool

	// UI state
	theme    Theme
	viewport viewport.Model

	// Communication
	msgs chan tea.Msg
}

// New creates a new tail TUI model. The stream stops when ctx is done.
func New(ctx context.Context, src Source, opts Options) *Model {
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = defaultMaxFrames
	}
	if src.Method == "" {
		src.Method = http.MethodGet
	}
	return &Model{
		ctx:      ctx,
		src:      src,
		opts:     opts,
		status:   StatusConnecting,
		counts:   make(map[string]int),
		follow:   true,
		theme:    NewDefaultTheme(),
		viewport: viewport.New(0, 0),
		msgs:     make(chan tea.Msg, 256),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribe(m.ctx, m.opts.Client, m.src, m.lastID, m.msgs),
		receiveNext(m.msgs),
		tick(),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "f":
			m.follow = !m.follow
			if m.follow {
				m.viewport.GotoBottom()
			}
			return m, nil
		case "c":
			m.lines = nil
			m.refresh()
			return m, nil
		case "r":
			if m.status != StatusStreaming && m.status != StatusConnecting {
				m.status = StatusConnecting
				return m, subscribe(m.ctx, m.opts.Client, m.src, m.lastID, m.msgs)
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = max(m.width-6, 0)
		m.viewport.Height = max(m.height-headerHeight-4, 1)
		m.refresh()
		return m, nil

	case tickMsg:
		m.pulse.Decay(time.Time(msg))
		return m, tick()

	case connectedMsg:
		m.status = StatusStreaming
		m.connectedAt = time.Now()
		m.lastError = ""
		return m, receiveNext(m.msgs)

	case frameMsg:
		m.record(msg)
		return m, receiveNext(m.msgs)

	case endedMsg:
		if msg.err != nil {
			m.status = StatusFailed
			m.lastError = msg.err.Error()
		} else {
			m.status = StatusEnded
		}
		cmds := []tea.Cmd{receiveNext(m.msgs)}
		if m.opts.Reconnect && m.ctx.Err() == nil {
			cmds = append(cmds, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} }))
		}
		return m, tea.Batch(cmds...)

	case reconnectMsg:
		m.status = StatusConnecting
		return m, subscribe(m.ctx, m.opts.Client, m.src, m.lastID, m.msgs)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) record(msg frameMsg) {
	f := msg.frame
	if f.IsHeartbeat() {
		m.heartbeats++
		m.pulse.OnHeartbeat(msg.at)
		if m.opts.HideHeartbeats {
			return
		}
	} else {
		m.counts[f.Event]++
		m.pulse.OnFrame(msg.at)
		if f.ID != "" {
			m.lastID = f.ID
		}
	}

	m.lines = append(m.lines, FormatFrame(m.theme, f, msg.at))
	if over := len(m.lines) - m.opts.MaxFrames; over > 0 {
		m.lines = m.lines[over:]
	}
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

const headerHeight = 5

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to " + m.src.URL + "..."
	}

	header := m.renderHeader()
	body := m.theme.Border.Width(m.width - 4).Render(m.viewport.View())

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	followHint := "pause"
	if !m.follow {
		followHint = "follow"
	}
	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(fmt.Sprintf(" [q] Quit • [f] %s • [c] Clear • [r] Reconnect • [↑/↓] Scroll", followHint))

	parts := []string{header, body}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)
	return lipgloss.NewStyle().Margin(0, 1).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) renderHeader() string {
	innerWidth := m.width - 4

	statusText := m.theme.StatusOK.Render(m.status)
	if m.status == StatusFailed || m.status == StatusConnecting {
		statusText = m.theme.StatusFailed.Render(m.status)
	}

	uptime := "-"
	if m.status == StatusStreaming {
		uptime = formatDuration(time.Since(m.connectedAt))
	}

	titleText := fmt.Sprintf(" STARDISPATCH TAIL %s %s", m.theme.Dim.Render(strings.ToUpper(m.src.Method)), m.theme.Highlight.Render(m.src.URL))
	clock := m.theme.Dim.Render(time.Now().Format("15:04:05"))
	pad := max(innerWidth-lipgloss.Width(titleText)-lipgloss.Width(clock)-4, 1)
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	lastID := m.lastID
	if lastID == "" {
		lastID = "-"
	}
	statsLine := fmt.Sprintf(" %s  ⏱ %s  Last id: %s  %s", statusText, uptime, lastID, m.pulse.Render(m.theme))
	countsLine := " " + formatCounts(m.theme, m.counts, m.heartbeats)

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, countsLine)
	return m.theme.Border.Width(innerWidth).Render(content)
}
