package watch

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/tollkeep/tollkeep/internal/events"
)

// maxDeliveryRows bounds the table backlog.
const maxDeliveryRows = 100

// DeliveryRow is one received webhook in the deliveries table.
type DeliveryRow struct {
	At         time.Time
	DeliveryID string
	EventType  string
	Outcome    string
	StatusCode int
}

// applyDeliveryEvent prepends a row for delivery.received events. Other
// event types pass through untouched.
func applyDeliveryEvent(rows []DeliveryRow, e events.Event) []DeliveryRow {
	if e.Type != events.TypeDeliveryReceived {
		return rows
	}

	var n events.DeliveryNotice
	if err := json.Unmarshal(e.Data, &n); err != nil {
		return rows
	}

	row := DeliveryRow{
		At:         e.At,
		DeliveryID: n.DeliveryID,
		EventType:  n.EventType,
		Outcome:    n.Outcome,
		StatusCode: n.StatusCode,
	}

	rows = append([]DeliveryRow{row}, rows...)
	if len(rows) > maxDeliveryRows {
		rows = rows[:maxDeliveryRows]
	}
	return rows
}

func newDeliveryTable(theme Theme) table.Model {
	columns := []table.Column{
		{Title: "Time", Width: 8},
		{Title: "Delivery", Width: 10},
		{Title: "Event Type", Width: 30},
		{Title: "Outcome", Width: 18},
		{Title: "Code", Width: 4},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(6),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.Inherit(theme.Header)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(styles)

	return t
}

func deliveryTableRows(rows []DeliveryRow) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, table.Row{
			r.At.Local().Format("15:04:05"),
			shortID(r.DeliveryID),
			r.EventType,
			r.Outcome,
			strconv.Itoa(r.StatusCode),
		})
	}
	return out
}

func renderDeliveries(t table.Model, count int, theme Theme, width int) string {
	innerWidth := width - 4

	if count == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("DELIVERIES"),
			theme.Dim.Render("  No deliveries yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("DELIVERIES"),
		t.View(),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

// shortID trims identifiers to eight characters for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
