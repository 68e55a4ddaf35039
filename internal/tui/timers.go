package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sadopc/marktime/internal/engine"
	"github.com/sadopc/marktime/internal/timer"
)

// timersModel lists every timer the engine is tracking, live. Actions
// on a row go through the engine so the backing document is rewritten
// the same way an editor command would.
type timersModel struct {
	eng    *engine.Engine
	width  int
	height int

	cursor int
	infos  []engine.TimerInfo
}

func newTimersModel(eng *engine.Engine) timersModel {
	return timersModel{eng: eng}
}

func (m *timersModel) setSize(w, h int) {
	m.width = w
	m.height = h
}

type timersDataMsg struct {
	infos []engine.TimerInfo
}

func (m timersModel) refresh() tea.Cmd {
	return func() tea.Msg {
		return timersDataMsg{infos: m.eng.Timers()}
	}
}

func (m timersModel) selected() (engine.TimerInfo, bool) {
	if m.cursor < 0 || m.cursor >= len(m.infos) {
		return engine.TimerInfo{}, false
	}
	return m.infos[m.cursor], true
}

func (m timersModel) update(msg tea.Msg) (timersModel, tea.Cmd) {
	switch msg := msg.(type) {
	case timersDataMsg:
		m.infos = msg.infos
		if m.cursor >= len(m.infos) {
			m.cursor = max(0, len(m.infos)-1)
		}
		return m, nil

	case tickMsg:
		return m, m.refresh()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.infos)-1 {
				m.cursor++
			}
			return m, nil
		case key.Matches(msg, keys.Pause):
			info, ok := m.selected()
			if !ok {
				return m, nil
			}
			return m, m.toggle(info)
		case key.Matches(msg, keys.Delete):
			info, ok := m.selected()
			if !ok {
				return m, nil
			}
			return m, m.remove(info)
		}
	}
	return m, nil
}

func (m timersModel) toggle(info engine.TimerInfo) tea.Cmd {
	return func() tea.Msg {
		var err error
		if info.State.Status == timer.Running {
			_, err = m.eng.PauseByID(info.State.ID)
		} else {
			_, err = m.eng.ContinueByID(info.State.ID)
		}
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		return timersDataMsg{infos: m.eng.Timers()}
	}
}

func (m timersModel) remove(info engine.TimerInfo) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.eng.DeleteByID(info.State.ID); err != nil {
			return statusMsg{text: fmt.Sprintf("Error: %v", err), isError: true}
		}
		return timersDataMsg{infos: m.eng.Timers()}
	}
}

func (m timersModel) runningCount() int {
	n := 0
	for _, info := range m.infos {
		if info.State.Status == timer.Running {
			n++
		}
	}
	return n
}

func (m timersModel) view() string {
	w := m.width - 4

	title := titleStyle.Render("Timers")
	if len(m.infos) == 0 {
		content := strings.Join([]string{
			title,
			"",
			mutedStyle.Render("No timers. Start one from your editor and it will appear here."),
		}, "\n")
		return panelStyle.Width(w).Render(content)
	}

	var rows []string
	rows = append(rows, title)
	rows = append(rows, "")
	header := mutedStyle.Render(fmt.Sprintf("  %-2s %-10s %10s  %-20s %s", "", "ID", "Elapsed", "File", "Tags"))
	rows = append(rows, header)
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 60))))

	for i, info := range m.infos {
		glyph := warningStyle.Render("⏸")
		if info.State.Status == timer.Running {
			glyph = successStyle.Render("●")
		}

		cursor := "  "
		style := normalItemStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedItemStyle
		}

		tags := ""
		if len(info.Tags) > 0 {
			tags = "#" + strings.Join(info.Tags, " #")
		}

		row := fmt.Sprintf("%s%s %-10s %10s  %-20s %s",
			cursor, glyph,
			info.State.ID,
			formatSeconds(info.State.Accumulated),
			filepath.Base(info.Path),
			mutedStyle.Render(tags),
		)
		rows = append(rows, style.Render(row))
	}

	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  space: pause/resume  d: delete"))

	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
