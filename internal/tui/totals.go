package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/marktime/internal/export"
	"github.com/sadopc/marktime/internal/ledger"
)

type totalsMode int

const (
	totalsDaily totalsMode = iota
	totalsWeekly
)

type tagTotal struct {
	Tag     string
	Seconds int64
}

// totalsModel shows per-tag accumulated time for a day or a week, with
// an adjustment form that rewrites a tag's total for the visible
// period.
type totalsModel struct {
	led    *ledger.Ledger
	width  int
	height int

	mode   totalsMode
	offset int // days or weeks back from the current period (0 = current)
	cursor int
	totals []tagTotal

	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	adjustTag   *string
	adjustTotal *string
}

func newTotalsModel(led *ledger.Ledger) totalsModel {
	tag, total := "", ""
	return totalsModel{
		led:         led,
		adjustTag:   &tag,
		adjustTotal: &total,
	}
}

func (m *totalsModel) setSize(w, h int) {
	m.width = w
	m.height = h
}

type totalsDataMsg struct {
	totals []tagTotal
}

func (m totalsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		entries, err := m.led.ReadAll()
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Ledger error: %v", err), isError: true}
		}
		from, to := m.dateRange()
		return totalsDataMsg{totals: totalsForRange(entries, from, to)}
	}
}

// dateRange returns the half-open [from, to) period the view covers.
func (m totalsModel) dateRange() (time.Time, time.Time) {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch m.mode {
	case totalsWeekly:
		// Start of current week (Monday)
		weekday := today.Weekday()
		if weekday == time.Sunday {
			weekday = 7
		}
		startOfWeek := today.AddDate(0, 0, -int(weekday-time.Monday))
		startOfWeek = startOfWeek.AddDate(0, 0, -7*m.offset)
		return startOfWeek, startOfWeek.AddDate(0, 0, 7)
	default:
		day := today.AddDate(0, 0, -m.offset)
		return day, day.AddDate(0, 0, 1)
	}
}

// totalsForRange sums durations per tag over entries whose timestamp
// falls in [from, to), floored at zero so adjustments cannot show a
// negative total.
func totalsForRange(entries []ledger.Entry, from, to time.Time) []tagTotal {
	var inRange []ledger.Entry
	for _, e := range entries {
		if e.Timestamp.Before(from) || !e.Timestamp.Before(to) {
			continue
		}
		inRange = append(inRange, e)
	}

	byTag := export.TagTotals(inRange)
	out := make([]tagTotal, 0, len(byTag))
	for tag, secs := range byTag {
		out = append(out, tagTotal{Tag: tag, Seconds: secs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

func (m totalsModel) update(msg tea.Msg) (totalsModel, tea.Cmd) {
	if m.formActive && m.form != nil {
		return m.updateForm(msg)
	}

	switch msg := msg.(type) {
	case totalsDataMsg:
		m.totals = msg.totals
		if m.cursor >= len(m.totals) {
			m.cursor = max(0, len(m.totals)-1)
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.totals)-1 {
				m.cursor++
			}
			return m, nil
		case key.Matches(msg, keys.Left):
			m.offset++
			return m, m.refresh()
		case key.Matches(msg, keys.Right):
			if m.offset > 0 {
				m.offset--
			}
			return m, m.refresh()
		case key.Matches(msg, keys.Tab):
			if m.mode == totalsDaily {
				m.mode = totalsWeekly
			} else {
				m.mode = totalsDaily
			}
			m.offset = 0
			return m, m.refresh()
		case key.Matches(msg, keys.Adjust):
			return m.showForm()
		}
	}
	return m, nil
}

func (m totalsModel) showForm() (totalsModel, tea.Cmd) {
	*m.adjustTag = ""
	*m.adjustTotal = ""
	if m.cursor < len(m.totals) {
		sel := m.totals[m.cursor]
		*m.adjustTag = sel.Tag
		*m.adjustTotal = strconv.FormatInt(sel.Seconds/60, 10)
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Tag").Value(m.adjustTag).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("tag is required")
					}
					return nil
				}),
			huh.NewInput().Title("Total for period (min)").Value(m.adjustTotal).
				Validate(validateTotalMinutes),
		).Title("Adjust total"),
	).WithShowHelp(true).WithShowErrors(true)

	m.formActive = true
	return m, m.form.Init()
}

func validateTotalMinutes(s string) error {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("must be a whole number of minutes")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func (m totalsModel) updateForm(msg tea.Msg) (totalsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			m.formActive = false
			m.form = nil
			return m, nil
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.formActive = false
		return m, m.applyAdjustment()
	}

	return m, cmd
}

func (m totalsModel) applyAdjustment() tea.Cmd {
	tag := strings.TrimSpace(*m.adjustTag)
	mins, err := strconv.ParseInt(strings.TrimSpace(*m.adjustTotal), 10, 64)
	if err != nil || mins < 0 {
		return func() tea.Msg {
			return statusMsg{text: fmt.Sprintf("Invalid total: %v", *m.adjustTotal), isError: true}
		}
	}

	from, to := m.dateRange()
	// The ledger treats its period end inclusively; step back from the
	// half-open range bound so the next period's midnight stays out.
	end := to.Add(-time.Second)
	anchor := ledger.MiddayAnchor(from)
	return func() tea.Msg {
		if err := m.led.SetTotalForPeriod(tag, mins*60, from, end, anchor); err != nil {
			return statusMsg{text: fmt.Sprintf("Adjust error: %v", err), isError: true}
		}
		return adjustDoneMsg{tag: tag}
	}
}

func (m totalsModel) view() string {
	w := m.width - 4

	if m.formActive && m.form != nil {
		title := titleStyle.Render("Adjust total")
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", m.form.View()),
		)
	}

	// Mode tabs
	dailyTab := inactiveTabStyle.Render("Daily")
	weeklyTab := inactiveTabStyle.Render("Weekly")
	if m.mode == totalsDaily {
		dailyTab = activeTabStyle.Render("Daily")
	} else {
		weeklyTab = activeTabStyle.Render("Weekly")
	}
	modeTabs := lipgloss.JoinHorizontal(lipgloss.Bottom, dailyTab, weeklyTab)

	from, to := m.dateRange()
	dateLabel := mutedStyle.Render(fmt.Sprintf("%s — %s",
		from.Format("Jan 02"), to.Add(-24*time.Hour).Format("Jan 02, 2006")))

	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Totals"), "  ", modeTabs, "  ", dateLabel,
	)

	tableView := m.renderTable(w)

	nav := mutedStyle.Render("  ←/→: navigate  tab: daily/weekly  a: adjust")

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, "", tableView, "", nav),
	)
}

func (m totalsModel) renderTable(w int) string {
	if len(m.totals) == 0 {
		return mutedStyle.Render("  No time recorded for this period")
	}

	var rows []string
	headerRow := mutedStyle.Render(fmt.Sprintf("  %-20s %10s %8s", "Tag", "Duration", "Hours"))
	rows = append(rows, headerRow)
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 42))))

	var grand int64
	for i, t := range m.totals {
		cursor := "  "
		style := normalItemStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		rows = append(rows, style.Render(fmt.Sprintf("%s#%-19s %10s %8s",
			cursor, t.Tag, formatSeconds(t.Seconds), formatHours(t.Seconds))))
		grand += t.Seconds
	}

	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 42))))
	rows = append(rows, highlightStyle.Render(fmt.Sprintf("  %-20s %10s %8s",
		"total", formatSeconds(grand), formatHours(grand))))

	return strings.Join(rows, "\n")
}
