package wizard

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/dantescan/internal/config"
	"github.com/muurk/dantescan/internal/netif"
	"github.com/muurk/dantescan/internal/ui"
)

// Screen represents the current step of the setup wizard
type Screen string

const (
	ScreenInterface Screen = "interface"
	ScreenWait      Screen = "wait"
	ScreenDone      Screen = "done"
)

// Limits for the scan wait entered by the user
const (
	minScanWait = 1
	maxScanWait = 60
)

// allInterfaces is the list entry that clears the interface preference
const allInterfaces = ""

// interfaceItem wraps an interface for use with bubbles/list
type interfaceItem struct {
	iface netif.Interface
	role  string
}

// FilterValue implements list.Item
func (i interfaceItem) FilterValue() string {
	return i.iface.Name + " " + i.iface.IP
}

func (i interfaceItem) title() string {
	if i.iface.Name == allInterfaces {
		return "All interfaces"
	}
	return i.iface.Name
}

func (i interfaceItem) description() string {
	if i.iface.Name == allInterfaces {
		return "Browse on every interface with an IPv4 address"
	}
	desc := i.iface.IP
	if i.role != "" {
		desc += "  ·  suggested: " + i.role
	}
	return desc
}

// interfaceDelegate renders interface items
type interfaceDelegate struct{}

func (d interfaceDelegate) Height() int                             { return 2 }
func (d interfaceDelegate) Spacing() int                            { return 1 }
func (d interfaceDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d interfaceDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(interfaceItem)
	if !ok {
		return
	}
	title, desc := item.title(), item.description()
	if index == m.Index() {
		title = selectedItemStyle.Render("> " + title)
		desc = selectedDescStyle.Render("  " + desc)
	} else {
		title = itemStyle.Render("  " + title)
		desc = itemDescStyle.Render("  " + desc)
	}
	_, _ = fmt.Fprintf(w, "%s\n%s", title, desc)
}

var (
	titleStyle        = lipgloss.NewStyle().Foreground(ui.PrimaryColor).Bold(true).PaddingLeft(2)
	itemStyle         = lipgloss.NewStyle().Foreground(ui.TextColor).PaddingLeft(2)
	itemDescStyle     = lipgloss.NewStyle().Foreground(ui.MutedColor).PaddingLeft(2)
	selectedItemStyle = lipgloss.NewStyle().Foreground(ui.PrimaryColor).Bold(true).PaddingLeft(2)
	selectedDescStyle = lipgloss.NewStyle().Foreground(ui.PrimaryColor).PaddingLeft(2)
)

// setupKeyMap defines key bindings for the wizard
type setupKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Confirm key.Binding
	Back    key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k setupKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Confirm, k.Back, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k setupKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down, k.Confirm}, {k.Back, k.Quit}}
}

// SetupModel walks the user through choosing the browse interface and
// scan wait, writing the choices into Preferences.
type SetupModel struct {
	CurrentScreen Screen
	Preferences   *config.Preferences

	List  list.Model
	Input textinput.Model
	Help  help.Model
	Keys  setupKeyMap

	Saved bool
	Err   error
}

// NewSetupModel creates a wizard over the host interfaces in list, starting
// from prefs. prefs is modified in place when the wizard completes.
func NewSetupModel(interfaces []netif.Interface, prefs *config.Preferences) SetupModel {
	roles := make(map[string]string)
	for _, a := range netif.SuggestRoles(interfaces) {
		roles[a.Interface.Name] = a.Role
	}

	items := []list.Item{interfaceItem{}}
	selected := 0
	for _, iface := range netif.Usable(interfaces) {
		if iface.Name == prefs.Interface {
			selected = len(items)
		}
		items = append(items, interfaceItem{iface: iface, role: roles[iface.Name]})
	}

	l := list.New(items, interfaceDelegate{}, ui.MinTerminalWidth, 16)
	l.Title = "Select the interface connected to the Dante network"
	l.Styles.Title = titleStyle
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.Select(selected)

	input := textinput.New()
	input.Placeholder = strconv.Itoa(config.DefaultScanWait)
	input.SetValue(strconv.Itoa(prefs.ScanWait))
	input.CharLimit = 2
	input.Width = 6

	return SetupModel{
		CurrentScreen: ScreenInterface,
		Preferences:   prefs,
		List:          l,
		Input:         input,
		Help:          help.New(),
		Keys: setupKeyMap{
			Up: key.NewBinding(
				key.WithKeys("up", "k"),
				key.WithHelp("↑/k", "move up"),
			),
			Down: key.NewBinding(
				key.WithKeys("down", "j"),
				key.WithHelp("↓/j", "move down"),
			),
			Confirm: key.NewBinding(
				key.WithKeys("enter"),
				key.WithHelp("enter", "confirm"),
			),
			Back: key.NewBinding(
				key.WithKeys("esc"),
				key.WithHelp("esc", "back"),
			),
			Quit: key.NewBinding(
				key.WithKeys("ctrl+c"),
				key.WithHelp("ctrl+c", "quit"),
			),
		},
	}
}

// Init implements tea.Model
func (m SetupModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m SetupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.List.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.Keys.Quit) {
			return m, tea.Quit
		}

		switch m.CurrentScreen {
		case ScreenInterface:
			if key.Matches(msg, m.Keys.Confirm) {
				m.CurrentScreen = ScreenWait
				m.Err = nil
				return m, m.Input.Focus()
			}
			if key.Matches(msg, m.Keys.Back) {
				return m, tea.Quit
			}
		case ScreenWait:
			switch {
			case key.Matches(msg, m.Keys.Confirm):
				wait, err := parseScanWait(m.Input.Value())
				if err != nil {
					m.Err = err
					return m, nil
				}
				m.apply(wait)
				m.CurrentScreen = ScreenDone
				return m, tea.Quit
			case key.Matches(msg, m.Keys.Back):
				m.Input.Blur()
				m.CurrentScreen = ScreenInterface
				return m, nil
			}
			m.Input, cmd = m.Input.Update(msg)
			return m, cmd
		}
	}

	if m.CurrentScreen == ScreenInterface {
		m.List, cmd = m.List.Update(msg)
	}
	return m, cmd
}

// apply writes the selections into Preferences.
func (m *SetupModel) apply(wait int) {
	if item, ok := m.List.SelectedItem().(interfaceItem); ok {
		m.Preferences.Interface = item.iface.Name
	}
	m.Preferences.ScanWait = wait
	m.Saved = true
}

// parseScanWait validates the scan wait entered by the user.
func parseScanWait(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return config.DefaultScanWait, nil
	}
	wait, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("scan wait must be a number of seconds")
	}
	if wait < minScanWait || wait > maxScanWait {
		return 0, fmt.Errorf("scan wait must be between %d and %d seconds", minScanWait, maxScanWait)
	}
	return wait, nil
}

// View implements tea.Model
func (m SetupModel) View() string {
	var b strings.Builder

	switch m.CurrentScreen {
	case ScreenInterface:
		b.WriteString(m.List.View())
	case ScreenWait:
		b.WriteString(titleStyle.Render("How many seconds should a scan collect devices?"))
		b.WriteString("\n\n  ")
		b.WriteString(m.Input.View())
		b.WriteString("\n")
		if m.Err != nil {
			b.WriteString("\n")
			b.WriteString(ui.ErrorMessageStyle.Render("  " + ui.FailureMarker + " " + m.Err.Error()))
			b.WriteString("\n")
		}
	case ScreenDone:
		return ""
	}

	b.WriteString("\n\n")
	b.WriteString(m.Help.View(m.Keys))
	return b.String()
}

// Run runs the wizard and reports whether the preferences were changed.
func Run(interfaces []netif.Interface, prefs *config.Preferences) (bool, error) {
	final, err := tea.NewProgram(NewSetupModel(interfaces, prefs)).Run()
	if err != nil {
		return false, err
	}
	return final.(SetupModel).Saved, nil
}
