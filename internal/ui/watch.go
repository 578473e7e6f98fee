package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/dantescan/internal/discovery"
)

// Source is the scanner a WatchModel drives. *dante.Context satisfies it.
type Source interface {
	Snapshot() *discovery.Snapshot
	PumpEvents(ctx context.Context)
	RefreshScan(ctx context.Context) error
}

// Messages for async operations
type watchTickMsg struct{}
type watchPumpMsg struct {
	snap *discovery.Snapshot
	err  error
}

// watchKeyMap defines key bindings for the watch screen
type watchKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Refresh, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down}, {k.Refresh, k.Quit}}
}

// WatchModel shows the live device table. Exactly one pump or refresh is
// in flight at a time; the next is scheduled when its result arrives.
type WatchModel struct {
	ctx       context.Context
	source    Source
	interval  time.Duration
	nicknames map[string]string

	Table   table.Model
	Spinner spinner.Model
	Help    help.Model
	Keys    watchKeyMap

	snap       *discovery.Snapshot
	refreshing bool
	queued     bool
	err        error
	width      int
}

// NewWatchModel creates a watch screen that pumps source every interval.
func NewWatchModel(ctx context.Context, source Source, interval time.Duration, nicknames map[string]string) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	t := table.New(
		table.WithColumns(watchColumns(MinTerminalWidth)),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(PrimaryColor).Bold(true)
	t.SetStyles(styles)

	return WatchModel{
		ctx:       ctx,
		source:    source,
		interval:  interval,
		nicknames: nicknames,
		Table:     t,
		Spinner:   s,
		Help:      help.New(),
		Keys: watchKeyMap{
			Up: key.NewBinding(
				key.WithKeys("up", "k"),
				key.WithHelp("↑/k", "move up"),
			),
			Down: key.NewBinding(
				key.WithKeys("down", "j"),
				key.WithHelp("↓/j", "move down"),
			),
			Refresh: key.NewBinding(
				key.WithKeys("r"),
				key.WithHelp("r", "refresh"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "esc", "ctrl+c"),
				key.WithHelp("q", "quit"),
			),
		},
		snap:  source.Snapshot(),
		width: MinTerminalWidth,
	}
}

// watchColumns sizes the table columns for width.
func watchColumns(width int) []table.Column {
	rest := width - 4 - 16 - 10 - 3 - 12 // id, ip, firmware, padding, borders
	if rest < 30 {
		rest = 30
	}
	return []table.Column{
		{Title: "#", Width: 4},
		{Title: "NAME", Width: rest * 3 / 5},
		{Title: "MODEL", Width: rest - rest*3/5},
		{Title: "FIRMWARE", Width: 10},
		{Title: "IP", Width: 16},
	}
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.Spinner.Tick, m.pump(false))
}

// pump returns a command that pumps events, or refreshes when refresh is
// set, and reports the resulting snapshot.
func (m WatchModel) pump(refresh bool) tea.Cmd {
	ctx, source := m.ctx, m.source
	return func() tea.Msg {
		var err error
		if refresh {
			err = source.RefreshScan(ctx)
		} else {
			source.PumpEvents(ctx)
		}
		return watchPumpMsg{snap: source.Snapshot(), err: err}
	}
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.Keys.Refresh):
			m.queued = true
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
		m.Table.SetColumns(watchColumns(m.width))
		if h := msg.Height - 8; h > 3 {
			m.Table.SetHeight(h)
		}
		m.Table.SetRows(m.rows())
		return m, nil

	case watchPumpMsg:
		m.refreshing = false
		m.err = msg.err
		if msg.snap != nil && (m.snap == nil || msg.snap.Generation != m.snap.Generation) {
			m.snap = msg.snap
			m.Table.SetRows(m.rows())
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return watchTickMsg{} })

	case watchTickMsg:
		refresh := m.queued
		m.queued = false
		m.refreshing = refresh
		return m, m.pump(refresh)

	case spinner.TickMsg:
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

// rows converts the current snapshot into table rows.
func (m WatchModel) rows() []table.Row {
	records := m.snap.Records()
	rows := make([]table.Row, len(records))
	for i, rec := range records {
		rows[i] = table.Row(DeviceRow(rec, DeviceTableOptions{Nicknames: m.nicknames}))
	}
	return rows
}

// Snapshot returns the snapshot currently displayed.
func (m WatchModel) Snapshot() *discovery.Snapshot {
	return m.snap
}

// View implements tea.Model
func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(HeaderTitleStyle.Render("DANTE DEVICES"))
	b.WriteString("\n")

	status := fmt.Sprintf("%s watching  ·  %d devices  ·  generation %d",
		m.Spinner.View(), m.snap.Len(), m.snap.Generation)
	if m.refreshing || m.queued {
		status += "  ·  refreshing"
	}
	if !m.snap.BuiltAt.IsZero() {
		status += "  ·  updated " + m.snap.BuiltAt.Format("15:04:05")
	}
	b.WriteString(HeaderCommandStyle.Render(status))
	b.WriteString("\n\n")

	if m.snap.Len() == 0 {
		b.WriteString(MutedStyle.Render("  Waiting for devices..."))
		b.WriteString("\n")
	} else {
		b.WriteString(m.Table.View())
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(ErrorMessageStyle.Render("  " + FailureMarker + " " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.Help.View(m.Keys))
	return b.String()
}

// RunWatch runs the watch screen until the user quits or ctx is done.
func RunWatch(ctx context.Context, source Source, interval time.Duration, nicknames map[string]string) error {
	p := tea.NewProgram(NewWatchModel(ctx, source, interval, nicknames), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
