// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/coldmesh/pkg/mesh"
)

// commandTimeout bounds dashboard commands queued on the node loop
const commandTimeout = 5 * time.Second

// Messages
type tickMsg time.Time
type snapshotMsg mesh.Snapshot
type commandDoneMsg struct {
	text string
	err  error
}

// dashboardModel shows one node: its peer table, alarms and recent events
type dashboardModel struct {
	node     *mesh.Node
	connInfo string

	snap     mesh.Snapshot
	haveSnap bool
	peers    table.Model
	idInput  textinput.Model
	adding   bool
	notice   string
	noticeOK bool

	width    int
	height   int
	quitting bool
}

func newDashboard(node *mesh.Node, connInfo string) dashboardModel {
	ti := textinput.New()
	ti.Placeholder = "ABC123"
	ti.CharLimit = 6
	ti.Width = 10

	peers := table.New(
		table.WithColumns([]table.Column{
			{Title: "Node", Width: 8},
			{Title: "Temp 1", Width: 8},
			{Title: "Temp 2", Width: 8},
			{Title: "Temp 3", Width: 8},
			{Title: "Last Update", Width: 19},
			{Title: "Age", Width: 8},
			{Title: "Status", Width: 8},
		}),
		table.WithHeight(8),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = lipgloss.NewStyle()
	peers.SetStyles(styles)

	return dashboardModel{
		node:     node,
		connInfo: connInfo,
		peers:    peers,
		idInput:  ti,
		width:    80,
		height:   24,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return dashboardTickCmd()
}

func dashboardTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		rows := m.height - 20
		if rows < 3 {
			rows = 3
		}
		m.peers.SetHeight(rows)

	case tickMsg:
		return m, dashboardTickCmd()

	case snapshotMsg:
		m.snap = mesh.Snapshot(msg)
		m.haveSnap = true
		m.peers.SetRows(peerRows(m.snap))

	case commandDoneMsg:
		if msg.err != nil {
			m.notice, m.noticeOK = msg.err.Error(), false
		} else {
			m.notice, m.noticeOK = msg.text, true
		}
	}

	return m, nil
}

func (m dashboardModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.adding {
		switch msg.String() {
		case "esc":
			m.adding = false
			m.idInput.Blur()
			return m, nil
		case "enter":
			id := strings.TrimSpace(m.idInput.Value())
			m.adding = false
			m.idInput.Blur()
			m.idInput.SetValue("")
			return m, m.runCommand(func(ctx context.Context) (string, error) {
				return "added " + id, m.node.AddNode(ctx, id)
			})
		}
		var cmd tea.Cmd
		m.idInput, cmd = m.idInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "s":
		return m, m.runCommand(func(ctx context.Context) (string, error) {
			until, err := m.node.Silence(ctx)
			return "alarms silenced until " + until.Format("15:04"), err
		})

	case "a":
		m.adding = true
		m.notice = ""
		return m, m.idInput.Focus()
	}

	var cmd tea.Cmd
	m.peers, cmd = m.peers.Update(msg)
	return m, cmd
}

// runCommand queues fn on the node loop without blocking the UI
func (m dashboardModel) runCommand(fn func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		text, err := fn(ctx)
		return commandDoneMsg{text: text, err: err}
	}
}

func peerRows(s mesh.Snapshot) []table.Row {
	health := make(map[string]mesh.PeerHealth, len(s.Health))
	for _, h := range s.Health {
		health[h.ID] = h
	}

	var rows []table.Row
	seen := make(map[string]bool, len(s.Peers))
	for _, p := range s.Peers {
		seen[p.ID] = true
		lastUpdate := fmt.Sprintf("%d", p.LastUpdate)
		if p.TrustedClock {
			lastUpdate = time.Unix(p.LastUpdate, 0).In(s.Time.Location()).Format("2006-01-02 15:04:05")
		}
		status, age := "-", "-"
		if h, ok := health[p.ID]; ok {
			status = h.Health.String()
			age = h.Age.Truncate(time.Second).String()
		}
		if p.ID == s.Self {
			status = "SELF"
		}
		rows = append(rows, table.Row{
			p.ID, celsius(p.Temps[0]), celsius(p.Temps[1]), celsius(p.Temps[2]), lastUpdate, age, status,
		})
	}
	for _, id := range s.Roster {
		if !seen[id] {
			rows = append(rows, table.Row{id, "-", "-", "-", "never", "-", mesh.HealthUnknown.String()})
		}
	}
	return rows
}

func celsius(t float64) string {
	if math.IsNaN(t) {
		return "-"
	}
	return fmt.Sprintf("%.1f°C", t)
}

// formatUptime formats a duration as "1 day, 2 hours and 3 minutes"
func formatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	units := []struct {
		name string
		secs int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	parts := []string{}
	for _, u := range units {
		n := seconds / u.secs
		seconds %= u.secs
		if n == 1 {
			parts = append(parts, "1 "+u.name)
		} else if n > 1 {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	if len(parts) == 1 {
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}

func (m dashboardModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("COLDMESH - KEEP IT COLD"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(m.connInfo + " | s: silence  a: add node  q: quit"))
	s.WriteString("\n\n")

	if !m.haveSnap {
		s.WriteString(warningStyle.Render("⏳ Waiting for the node to start..."))
		s.WriteString("\n")
		return s.String()
	}
	snap := m.snap

	// Node status
	clock := statsValueStyle.Render("trusted")
	if snap.AwaitingSync {
		clock = warningStyle.Render("awaiting sync")
	} else if !snap.ClockTrusted {
		clock = warningStyle.Render("adopted/manual")
	}
	status := strings.Builder{}
	status.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Node:"), statsValueStyle.Render(snap.Self),
		statsLabelStyle.Render("Time:"), statsValueStyle.Render(snap.Time.Format("2006-01-02 15:04:05")),
		statsLabelStyle.Render("Clock:"), clock,
	))
	status.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Roster:"), statsValueStyle.Render(strings.Join(snap.Roster, ",")),
		statsLabelStyle.Render("Next TX:"), statsValueStyle.Render(time.Until(snap.NextTx).Truncate(time.Second).String()),
		statsLabelStyle.Render("Uptime:"), statsValueStyle.Render(formatUptime(time.Since(snap.Stats.StartTime))),
	))
	s.WriteString(boxStyle.Render(status.String()))
	s.WriteString("\n")

	// Alarms
	alarms := strings.Builder{}
	switch {
	case snap.Silenced:
		alarms.WriteString(warningStyle.Render("🔕 Silenced until " + snap.SilenceUntil.Format("15:04")))
	case len(snap.Alarms) == 0:
		alarms.WriteString(statsValueStyle.Render("✓ All roster nodes reporting"))
	default:
		for i, a := range snap.Alarms {
			if i > 0 {
				alarms.WriteString("\n")
			}
			text := "ALARM: node " + a.Node + " down"
			if a.Kind == mesh.AlarmProbeFault {
				text = "ALARM: temperature probe disconnected"
			}
			if !a.Audible {
				text += " (quiet hours)"
			}
			alarms.WriteString(errorStyle.Render("✗ " + text))
		}
	}
	s.WriteString(boxStyle.Render(alarms.String()))
	s.WriteString("\n")

	s.WriteString(boxStyle.Render(m.peers.View()))
	s.WriteString("\n")

	// Statistics
	st := snap.Stats
	s.WriteString(headerStyle.Render(fmt.Sprintf("tx %d (err %d)  rx %d  merged %d  decrypt err %d  parse err %d  unknown %d",
		st.Sent, st.TxErrors+st.SealErrors, st.Received, st.Merged, st.DecryptErrors, st.ParseErrors, st.Unknown)))
	s.WriteString("\n")

	if m.adding {
		s.WriteString(statsLabelStyle.Render("Add node: ") + m.idInput.View() + headerStyle.Render("  (enter to add, esc to cancel)"))
		s.WriteString("\n")
	} else if m.notice != "" {
		if m.noticeOK {
			s.WriteString(statsValueStyle.Render("✓ " + m.notice))
		} else {
			s.WriteString(errorStyle.Render("✗ " + m.notice))
		}
		s.WriteString("\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	logHeight := m.height - 22 - m.peers.Height()
	if logHeight < 3 {
		logHeight = 3
	}
	events := snap.Events
	if len(events) > logHeight {
		events = events[len(events)-logHeight:]
	}
	logContent := strings.Builder{}
	if len(events) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for i, e := range events {
		if i > 0 {
			logContent.WriteString("\n")
		}
		line := headerStyle.Render(e.Time.Format("01/02/06 15:04:05")) + " "
		switch {
		case e.Level >= slog.LevelWarn:
			line += errorStyle.Render("✗ " + e.Text)
		default:
			line += warningStyle.Render("ℹ " + e.Text)
		}
		logContent.WriteString(line)
	}
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(logContent.String()))

	return s.String()
}
