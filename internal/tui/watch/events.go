package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/tollkeep/tollkeep/internal/events"
)

func renderEventStream(eventLog []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Local().Format("15:04:05"))
	typeName := eventTypeStyle(e, theme).Render(fmt.Sprintf("%-21s", e.Type))
	return fmt.Sprintf("%s %s %s", ts, typeName, describeEvent(e))
}

// eventTypeStyle picks the color for an event. Deliveries are colored by
// their outcome rather than the type itself.
func eventTypeStyle(e events.Event, theme Theme) lipgloss.Style {
	switch e.Type {
	case events.TypeDeliveryReceived:
		var n events.DeliveryNotice
		_ = json.Unmarshal(e.Data, &n)
		switch n.Outcome {
		case "processed":
			return theme.StatusOK
		case "acknowledged", "ignored":
			return theme.StatusIgnored
		default:
			return theme.StatusRejected
		}
	case events.TypeEntitlementGranted:
		return theme.StatusOK
	case events.TypeEntitlementRevoked:
		return theme.StatusRejected
	}
	return theme.Dim
}

func describeEvent(e events.Event) string {
	switch e.Type {
	case events.TypeDeliveryReceived:
		var n events.DeliveryNotice
		if err := json.Unmarshal(e.Data, &n); err != nil {
			return truncateRaw(e.Data)
		}
		parts := []string{fmt.Sprintf("[%s]", shortID(n.DeliveryID))}
		if n.EventType != "" {
			parts = append(parts, n.EventType)
		}
		parts = append(parts, n.Outcome)
		if n.StatusCode != 0 {
			parts = append(parts, fmt.Sprintf("(%d)", n.StatusCode))
		}
		if n.Message != "" {
			parts = append(parts, n.Message)
		}
		return strings.Join(parts, " ")

	case events.TypeEntitlementGranted, events.TypeEntitlementRevoked:
		var n events.EntitlementNotice
		if err := json.Unmarshal(e.Data, &n); err != nil {
			return truncateRaw(e.Data)
		}
		var parts []string
		if n.Email != "" {
			parts = append(parts, n.Email)
		}
		if n.SessionID != "" {
			parts = append(parts, n.SessionID)
		}
		if n.Revoked > 1 {
			parts = append(parts, fmt.Sprintf("%d revoked", n.Revoked))
		}
		if len(parts) == 0 {
			return truncateRaw(e.Data)
		}
		return strings.Join(parts, " ")
	}

	return truncateRaw(e.Data)
}

func truncateRaw(data []byte) string {
	raw := string(data)
	if len(raw) > 60 {
		raw = raw[:60] + "..."
	}
	return raw
}
