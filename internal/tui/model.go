// Package tui is a terminal dashboard for a running foreman gateway. It
// polls the HTTP API and renders approvals, jobs and conflicts in tabbed
// tables with keyboard actions.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"foreman/internal/approval"
	"foreman/internal/scheduler"
	"foreman/pkg/client"
)

const pollInterval = 2 * time.Second

type tab int

const (
	tabApprovals tab = iota
	tabJobs
	tabConflicts
	tabCount
)

var tabNames = [tabCount]string{"Approvals", "Jobs", "Conflicts"}

// ModelConfig holds configuration for a new dashboard model.
type ModelConfig struct {
	Client     *client.Client
	GatewayURL string
	Approver   string
}

// Model is the root BubbleTea model.
type Model struct {
	config ModelConfig
	client *client.Client
	styles Styles

	active    tab
	approvals table.Model
	jobs      table.Model
	conflicts table.Model

	approvalRows []approval.Request
	jobRows      []scheduler.Job
	conflictRows []scheduler.ConflictGroup

	width     int
	height    int
	connected bool
	lastError string
	quitting  bool
}

type refreshMsg struct {
	approvals []approval.Request
	jobs      []scheduler.Job
	conflicts []scheduler.ConflictGroup
	err       error
}

type actionDoneMsg struct {
	note string
	err  error
}

type tickMsg time.Time

// NewModel creates the dashboard model.
func NewModel(config ModelConfig) Model {
	styles := NewStyles(lipgloss.DefaultRenderer())

	approvals := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 10},
			{Title: "Action", Width: 22},
			{Title: "Level", Width: 10},
			{Title: "Status", Width: 10},
			{Title: "Requester", Width: 12},
			{Title: "Expires", Width: 18},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	jobs := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 10},
			{Title: "Name", Width: 24},
			{Title: "Resource", Width: 12},
			{Title: "Status", Width: 10},
			{Title: "Next Fire", Width: 18},
			{Title: "Runs", Width: 6},
		}),
		table.WithHeight(12),
	)
	conflicts := table.New(
		table.WithColumns([]table.Column{
			{Title: "Resource", Width: 14},
			{Title: "At", Width: 20},
			{Title: "Jobs", Width: 40},
		}),
		table.WithHeight(12),
	)

	return Model{
		config: config,
		client: config.Client,
		styles: styles,

		approvals: approvals,
		jobs:      jobs,
		conflicts: conflicts,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refresh() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		msg := refreshMsg{}
		msg.approvals, msg.err = c.Approvals()
		if msg.err != nil {
			return msg
		}
		msg.jobs, msg.err = c.Jobs()
		if msg.err != nil {
			return msg
		}
		msg.conflicts, msg.err = c.Conflicts()
		return msg
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h := msg.Height - 8
		if h < 4 {
			h = 4
		}
		m.approvals.SetHeight(h)
		m.jobs.SetHeight(h)
		m.conflicts.SetHeight(h)
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), tick())

	case refreshMsg:
		if msg.err != nil {
			m.connected = false
			m.lastError = msg.err.Error()
			return m, nil
		}
		m.connected = true
		m.lastError = ""
		m.approvalRows = msg.approvals
		m.jobRows = msg.jobs
		m.conflictRows = msg.conflicts
		m.rebuildRows()
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.lastError = msg.err.Error()
		} else {
			m.lastError = msg.note
		}
		return m, m.refresh()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.active = (m.active + 1) % tabCount
		m.focusActive()
		return m, nil
	case "shift+tab":
		m.active = (m.active + tabCount - 1) % tabCount
		m.focusActive()
		return m, nil

	case "a":
		if m.active == tabApprovals {
			if id := m.selectedApprovalID(); id != "" {
				return m, m.approvalAction(id, "approve")
			}
		}
	case "x":
		if m.active == tabApprovals {
			if id := m.selectedApprovalID(); id != "" {
				return m, m.approvalAction(id, "reject")
			}
		}
	case "e":
		if m.active == tabApprovals {
			if id := m.selectedApprovalID(); id != "" {
				return m, m.approvalAction(id, "escalate")
			}
		}

	case "c":
		if m.active == tabJobs {
			if id := m.selectedJobID(); id != "" {
				return m, m.jobAction(id, "cancel")
			}
		}
	case "p":
		if m.active == tabJobs {
			if id := m.selectedJobID(); id != "" {
				return m, m.jobAction(id, "pause")
			}
		}
	case "u":
		if m.active == tabJobs {
			if id := m.selectedJobID(); id != "" {
				return m, m.jobAction(id, "resume")
			}
		}

	case "R":
		if m.active == tabConflicts {
			return m, m.resolveConflicts()
		}
	}

	var cmd tea.Cmd
	switch m.active {
	case tabApprovals:
		m.approvals, cmd = m.approvals.Update(msg)
	case tabJobs:
		m.jobs, cmd = m.jobs.Update(msg)
	case tabConflicts:
		m.conflicts, cmd = m.conflicts.Update(msg)
	}
	return m, cmd
}

func (m *Model) focusActive() {
	m.approvals.Blur()
	m.jobs.Blur()
	m.conflicts.Blur()
	switch m.active {
	case tabApprovals:
		m.approvals.Focus()
	case tabJobs:
		m.jobs.Focus()
	case tabConflicts:
		m.conflicts.Focus()
	}
}

func (m Model) selectedApprovalID() string {
	row := m.approvals.Cursor()
	if row < 0 || row >= len(m.approvalRows) {
		return ""
	}
	return m.approvalRows[row].ID
}

func (m Model) selectedJobID() string {
	row := m.jobs.Cursor()
	if row < 0 || row >= len(m.jobRows) {
		return ""
	}
	return m.jobRows[row].ID
}

func (m Model) approvalAction(id, verb string) tea.Cmd {
	c := m.client
	approver := m.config.Approver
	return func() tea.Msg {
		var err error
		switch verb {
		case "approve":
			_, err = c.Approve(id, approver, "")
		case "reject":
			_, err = c.Reject(id, approver, "rejected from dashboard")
		case "escalate":
			_, err = c.Escalate(id, "escalated from dashboard")
		}
		return actionDoneMsg{note: fmt.Sprintf("%sd %s", verb, shortID(id)), err: err}
	}
}

func (m Model) jobAction(id, verb string) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		var err error
		switch verb {
		case "cancel":
			_, err = c.CancelJob(id)
		case "pause":
			_, err = c.PauseJob(id)
		case "resume":
			_, err = c.ResumeJob(id)
		}
		return actionDoneMsg{note: fmt.Sprintf("%s %s", verb, shortID(id)), err: err}
	}
}

func (m Model) resolveConflicts() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		moved, err := c.ResolveConflicts()
		return actionDoneMsg{note: fmt.Sprintf("resolved, moved %d job(s)", len(moved)), err: err}
	}
}

func (m *Model) rebuildRows() {
	rows := make([]table.Row, 0, len(m.approvalRows))
	for _, req := range m.approvalRows {
		expires := "-"
		if req.ExpiresAt != nil {
			expires = req.ExpiresAt.Local().Format("Jan 02 15:04")
		}
		rows = append(rows, table.Row{
			shortID(req.ID), req.ActionType, req.Level.String(),
			string(req.Status), req.Requester, expires,
		})
	}
	m.approvals.SetRows(rows)

	rows = make([]table.Row, 0, len(m.jobRows))
	for _, job := range m.jobRows {
		rows = append(rows, table.Row{
			shortID(job.ID), job.Name, job.Resource, string(job.Status),
			job.NextFire.Local().Format("Jan 02 15:04"),
			fmt.Sprintf("%d", job.RunCount),
		})
	}
	m.jobs.SetRows(rows)

	rows = make([]table.Row, 0, len(m.conflictRows))
	for _, group := range m.conflictRows {
		ids := make([]string, len(group.JobIDs))
		for i, id := range group.JobIDs {
			ids[i] = shortID(id)
		}
		rows = append(rows, table.Row{
			group.Resource,
			group.At.Local().Format("Jan 02 15:04"),
			strings.Join(ids, ", "),
		})
	}
	m.conflicts.SetRows(rows)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var tabs []string
	for i := tab(0); i < tabCount; i++ {
		name := tabNames[i]
		switch i {
		case tabApprovals:
			name = fmt.Sprintf("%s (%d)", name, len(m.approvalRows))
		case tabJobs:
			name = fmt.Sprintf("%s (%d)", name, len(m.jobRows))
		case tabConflicts:
			name = fmt.Sprintf("%s (%d)", name, len(m.conflictRows))
		}
		if i == m.active {
			tabs = append(tabs, m.styles.TabActive.Render(name))
		} else {
			tabs = append(tabs, m.styles.TabInactive.Render(name))
		}
	}
	tabBar := m.styles.TabBar.Render(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))

	var body string
	switch m.active {
	case tabApprovals:
		body = m.styles.TableBorder.Render(m.approvals.View())
	case tabJobs:
		body = m.styles.TableBorder.Render(m.jobs.View())
	case tabConflicts:
		body = m.styles.TableBorder.Render(m.conflicts.View())
	}

	return m.styles.App.Render(lipgloss.JoinVertical(lipgloss.Left, tabBar, body, m.statusLine()))
}

func (m Model) statusLine() string {
	conn := m.styles.StatusDisconnected.Render("● offline")
	if m.connected {
		conn = m.styles.StatusConnected.Render("● " + m.config.GatewayURL)
	}

	help := m.styles.Muted.Render(m.helpForTab())
	line := conn + "  " + help
	if m.lastError != "" {
		line += "  " + m.styles.Error.Render(m.lastError)
	}
	return m.styles.StatusBar.Render(line)
}

func (m Model) helpForTab() string {
	switch m.active {
	case tabApprovals:
		return "a approve · x reject · e escalate · tab switch · q quit"
	case tabJobs:
		return "c cancel · p pause · u resume · tab switch · q quit"
	default:
		return "R resolve all · tab switch · q quit"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
