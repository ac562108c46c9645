// Package tokenmgr is the interactive scope picker behind "token create":
// a checklist of admin API scopes that feeds the generated config snippet.
package tokenmgr

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tollkeep/tollkeep/internal/auth"
)

var (
	titleStyle        = lipgloss.NewStyle().MarginLeft(2)
	itemStyle         = lipgloss.NewStyle().PaddingLeft(4)
	selectedItemStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("170"))
	paginationStyle   = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	helpStyle         = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)
	quitTextStyle     = lipgloss.NewStyle().Margin(1, 0, 2, 4)
)

// scopeDescriptions explains each scope the admin API knows.
var scopeDescriptions = map[string]string{
	auth.ScopeAdmin:        "full administrative access (all scopes)",
	auth.ScopeDeliveries:   "read the webhook delivery log",
	auth.ScopeEntitlements: "read granted and revoked entitlements",
	auth.ScopeEvents:       "follow the real-time event stream (SSE)",
}

type item struct {
	scope    string
	desc     string
	selected bool
}

func (i item) checkbox() string {
	if i.selected {
		return "[x]"
	}
	return "[ ]"
}

func (i item) FilterValue() string { return i.scope }

// itemDelegate renders one scope per line with its checkbox.
type itemDelegate struct{}

func (d itemDelegate) Height() int                             { return 1 }
func (d itemDelegate) Spacing() int                            { return 0 }
func (d itemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, li list.Item) {
	it, ok := li.(item)
	if !ok {
		return
	}

	line := fmt.Sprintf("%s %-16s %s", it.checkbox(), it.scope, it.desc)
	if index == m.Index() {
		fmt.Fprint(w, selectedItemStyle.Render("> "+line))
		return
	}
	fmt.Fprint(w, itemStyle.Render(line))
}

type model struct {
	list     list.Model
	quitting bool
	done     bool
	scopes   []string
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit

		case " ": // Space to toggle
			if i, ok := m.list.SelectedItem().(item); ok {
				i.selected = !i.selected
				m.list.SetItem(m.list.Index(), i)
			}
			return m, nil

		case "a": // Toggle everything at once
			items := m.list.Items()
			all := true
			for _, li := range items {
				if it, ok := li.(item); ok && !it.selected {
					all = false
					break
				}
			}
			for idx, li := range items {
				if it, ok := li.(item); ok {
					it.selected = !all
					m.list.SetItem(idx, it)
				}
			}
			return m, nil

		case "enter":
			m.done = true
			var selected []string
			for _, li := range m.list.Items() {
				if it, ok := li.(item); ok && it.selected {
					selected = append(selected, it.scope)
				}
			}
			m.scopes = selected
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.quitting {
		return quitTextStyle.Render("Cancelled.")
	}
	if m.done {
		return quitTextStyle.Render(fmt.Sprintf("Selected scopes: %s", strings.Join(m.scopes, ", ")))
	}
	return "\n" + m.list.View()
}

func newModel() model {
	items := make([]list.Item, 0, len(auth.KnownScopes))
	for _, scope := range auth.KnownScopes {
		items = append(items, item{
			scope: scope,
			desc:  scopeDescriptions[scope],
		})
	}

	l := list.New(items, itemDelegate{}, 0, 0)
	l.Title = "Select scopes (Space to toggle, a for all, Enter to confirm)"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = titleStyle
	l.Styles.PaginationStyle = paginationStyle
	l.Styles.HelpStyle = helpStyle

	return model{list: l}
}

// Pick runs the interactive picker and returns the scopes confirmed with
// Enter. A cancelled picker returns nil with no error.
func Pick() ([]string, error) {
	p := tea.NewProgram(newModel())
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("scope picker failed: %w", err)
	}

	// Update works on a value receiver, so the selections live in the
	// model returned by Run, not in the one handed to NewProgram.
	m, ok := final.(model)
	if !ok {
		return nil, fmt.Errorf("scope picker returned unexpected model type %T", final)
	}
	if !m.done {
		return nil, nil
	}
	return m.scopes, nil
}
