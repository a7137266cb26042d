// Package tui is the interactive terminal view of the list. Every list
// operation runs as a tea.Cmd so the UI never blocks on storage.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"finished/api/internal/finished"
	"finished/api/internal/store"
)

// ListService is the part of finished.Service the view drives.
type ListService interface {
	ByType(itemType store.ItemType) []store.Item
	Identity() finished.Identity
	Add(ctx context.Context, title, description string, itemType store.ItemType) (store.Item, error)
	Remove(ctx context.Context, id string) error
	UpdateTitle(ctx context.Context, id, newTitle string) error
	Reorder(ctx context.Context, itemType store.ItemType, from, to int) error
}

// IdentityChange is delivered when another process signs in or out. Err is
// the outcome of switching the list to the new identity.
type IdentityChange struct {
	Identity finished.Identity
	Err      error
}

type mode int

const (
	modeBrowse mode = iota
	modeAdd
	modeEdit
)

// opDoneMsg reports the outcome of a service call.
type opDoneMsg struct {
	op     string
	err    error
	cursor int
}

type Model struct {
	svc     ListService
	changes <-chan IdentityChange
	timeout time.Duration

	tab    int
	cursor [3]int
	mode   mode
	editID string
	input  textinput.Model

	keys   keyMap
	help   help.Model
	status string
	err    error
	width  int
}

// New builds the model. changes may be nil when no auth watcher runs.
func New(svc ListService, changes <-chan IdentityChange) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = store.MaxTitleLength
	return Model{
		svc:     svc,
		changes: changes,
		timeout: 15 * time.Second,
		input:   ti,
		keys:    defaultKeys(),
		help:    help.New(),
		width:   80,
	}
}

func (m Model) Init() tea.Cmd {
	return m.waitForIdentity()
}

func (m Model) waitForIdentity() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	changes := m.changes
	return func() tea.Msg {
		change, ok := <-changes
		if !ok {
			return nil
		}
		return change
	}
}

func (m Model) itemType() store.ItemType {
	return store.ItemTypes[m.tab]
}

func (m Model) items() []store.Item {
	return m.svc.ByType(m.itemType())
}

// run wraps a service call in a command with a timeout.
func (m Model) run(op string, cursor int, fn func(ctx context.Context) error) tea.Cmd {
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return opDoneMsg{op: op, err: fn(ctx), cursor: cursor}
	}
}

func (m *Model) clampCursor() {
	n := len(m.items())
	if m.cursor[m.tab] >= n {
		m.cursor[m.tab] = n - 1
	}
	if m.cursor[m.tab] < 0 {
		m.cursor[m.tab] = 0
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil
	case opDoneMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.op
		} else {
			m.status = ""
		}
		if msg.cursor >= 0 {
			m.cursor[m.tab] = msg.cursor
		}
		m.clampCursor()
		return m, nil
	case IdentityChange:
		m.err = msg.Err
		m.status = "signed out"
		if id, ok := msg.Identity.(finished.Authenticated); ok {
			m.status = "signed in as " + id.DisplayName
		}
		m.clampCursor()
		return m, m.waitForIdentity()
	case tea.KeyMsg:
		if m.mode != modeBrowse {
			return m.updateInput(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeBrowse
		m.input.Blur()
		m.input.SetValue("")
		return m, nil
	case tea.KeyEnter:
		value := m.input.Value()
		itemType := m.itemType()
		m.input.Blur()
		m.input.SetValue("")
		svc := m.svc
		if m.mode == modeAdd {
			m.mode = modeBrowse
			last := len(m.items())
			return m, m.run("added", last, func(ctx context.Context) error {
				_, err := svc.Add(ctx, value, "", itemType)
				return err
			})
		}
		id := m.editID
		m.mode = modeBrowse
		return m, m.run("saved", -1, func(ctx context.Context) error {
			return svc.UpdateTitle(ctx, id, value)
		})
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := m.items()
	cur := m.cursor[m.tab]
	svc := m.svc
	itemType := m.itemType()

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Next):
		m.tab = (m.tab + 1) % len(store.ItemTypes)
		m.clampCursor()
	case key.Matches(msg, m.keys.Prev):
		m.tab = (m.tab + len(store.ItemTypes) - 1) % len(store.ItemTypes)
		m.clampCursor()
	case key.Matches(msg, m.keys.Up):
		if cur > 0 {
			m.cursor[m.tab]--
		}
	case key.Matches(msg, m.keys.Down):
		if cur < len(items)-1 {
			m.cursor[m.tab]++
		}
	case key.Matches(msg, m.keys.MoveUp):
		if cur > 0 {
			return m, m.run("moved", cur-1, func(ctx context.Context) error {
				return svc.Reorder(ctx, itemType, cur, cur-1)
			})
		}
	case key.Matches(msg, m.keys.MoveDown):
		if cur < len(items)-1 {
			return m, m.run("moved", cur+1, func(ctx context.Context) error {
				return svc.Reorder(ctx, itemType, cur, cur+1)
			})
		}
	case key.Matches(msg, m.keys.Add):
		m.mode = modeAdd
		m.input.Placeholder = "New " + itemType.Noun() + " title..."
		m.input.SetValue("")
		cmd := m.input.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.Edit):
		if cur < len(items) {
			m.mode = modeEdit
			m.editID = items[cur].ID
			m.input.Placeholder = "Title"
			m.input.SetValue(items[cur].Title)
			m.input.CursorEnd()
			cmd := m.input.Focus()
			return m, cmd
		}
	case key.Matches(msg, m.keys.Delete):
		if cur < len(items) {
			id := items[cur].ID
			return m, m.run("deleted", cur, func(ctx context.Context) error {
				return svc.Remove(ctx, id)
			})
		}
	case key.Matches(msg, m.keys.Open):
		if cur < len(items) {
			m.err = nil
			m.status = finished.SearchURL(items[cur])
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	tabs := make([]string, 0, len(store.ItemTypes))
	for i, itemType := range store.ItemTypes {
		label := fmt.Sprintf("%s (%d)", itemType, len(m.svc.ByType(itemType)))
		if i == m.tab {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	who := "local"
	if id, ok := m.svc.Identity().(finished.Authenticated); ok {
		who = id.DisplayName
	}
	b.WriteString(titleStyle.Render("Finished") + "  " + strings.Join(tabs, "  ") + "  " + mutedStyle.Render("["+who+"]"))
	b.WriteString("\n\n")

	items := m.items()
	if len(items) == 0 {
		b.WriteString(mutedStyle.Render("  nothing here yet, press a to add"))
		b.WriteString("\n")
	}
	for i, item := range items {
		line := fmt.Sprintf("%2d. %s", i+1, item.Title)
		if item.Description != "" {
			line += mutedStyle.Render("  " + item.Description)
		}
		if i == m.cursor[m.tab] && m.mode == modeBrowse {
			b.WriteString(selectedStyle.Render("> "+line) + "\n")
			continue
		}
		b.WriteString("  " + line + "\n")
	}

	if m.mode != modeBrowse {
		label := "Add " + m.itemType().Noun()
		if m.mode == modeEdit {
			label = "Edit title"
		}
		b.WriteString("\n" + panelStyle.Render(label+"\n"+m.input.View()) + "\n")
	}

	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("✖ "+m.err.Error()) + "\n")
	case m.status != "":
		b.WriteString(okStyle.Render("✔ "+m.status) + "\n")
	}
	b.WriteString(helpStyle.Render(m.help.View(m.keys)))

	return lipgloss.NewStyle().MaxWidth(m.width).Render(b.String())
}

// Run starts the program on the terminal and blocks until the user quits.
func Run(svc ListService, changes <-chan IdentityChange) error {
	_, err := tea.NewProgram(New(svc, changes), tea.WithAltScreen()).Run()
	return err
}
