package watch

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/tollkeep/tollkeep/internal/events"
)

// EntitlementState tracks one buyer's entitlement as grant and revoke
// events arrive.
type EntitlementState struct {
	SessionID string
	Email     string
	Status    string // granted or revoked
	ChangedAt time.Time
}

// applyEntitlementEvent folds entitlement.granted and entitlement.revoked
// events into the state map. Subscription revocations arrive without a
// session ID, so the customer ID serves as a fallback key.
func applyEntitlementEvent(entitlements map[string]*EntitlementState, e events.Event) {
	var status string
	switch e.Type {
	case events.TypeEntitlementGranted:
		status = "granted"
	case events.TypeEntitlementRevoked:
		status = "revoked"
	default:
		return
	}

	var n events.EntitlementNotice
	if err := json.Unmarshal(e.Data, &n); err != nil {
		return
	}

	key := n.SessionID
	if key == "" {
		key = n.CustomerID
	}
	if key == "" {
		return
	}

	state, ok := entitlements[key]
	if !ok {
		state = &EntitlementState{SessionID: n.SessionID}
		entitlements[key] = state
	}
	if n.Email != "" {
		state.Email = n.Email
	}
	state.Status = status
	state.ChangedAt = time.Now()
}

func renderEntitlements(entitlements map[string]*EntitlementState, theme Theme, width int) string {
	innerWidth := width - 4

	if len(entitlements) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("ENTITLEMENTS"),
			theme.Dim.Render("  No entitlement changes yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	recent := recentEntitlements(entitlements)
	var lines []string
	for i, state := range recent {
		if i >= 6 {
			break
		}
		lines = append(lines, renderEntitlementRow(state, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{theme.Title.Render("ENTITLEMENTS")}, lines...)...,
	)
	return theme.Border.Width(innerWidth).Render(content)
}

// recentEntitlements returns entitlement states newest first.
func recentEntitlements(entitlements map[string]*EntitlementState) []*EntitlementState {
	out := make([]*EntitlementState, 0, len(entitlements))
	for _, state := range entitlements {
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ChangedAt.After(out[j].ChangedAt)
	})
	return out
}

func renderEntitlementRow(s *EntitlementState, theme Theme) string {
	status := theme.StatusOK.Render("[granted]")
	if s.Status == "revoked" {
		status = theme.StatusRejected.Render("[revoked]")
	}

	who := s.Email
	if who == "" {
		who = s.SessionID
	}

	ago := ""
	if !s.ChangedAt.IsZero() {
		ago = theme.Dim.Render(formatAgo(time.Since(s.ChangedAt).Round(time.Second)))
	}

	return fmt.Sprintf(" %-32s %s %s", who, status, ago)
}

func formatAgo(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh ago", int(d.Hours()))
}
