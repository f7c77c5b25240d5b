package output

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/feedwatch/feedwatch/internal/core"
	"github.com/feedwatch/feedwatch/internal/core/store"
)

// Targets renders watch targets.
type Targets []core.WatchTarget

func (Targets) Title() string { return "Watch Targets" }

func (Targets) Header() table.Row {
	return table.Row{"Handle", "Last Seen Item", "Last Checked"}
}

func (t Targets) Rows() []table.Row {
	rows := make([]table.Row, 0, len(t))
	for _, target := range t {
		rows = append(rows, table.Row{
			"@" + target.Handle,
			orEmpty(target.LastSeenItemID),
			formatTime(target.LastCheckedAt),
		})
	}
	return rows
}

// Sessions renders persisted sessions. Auth material is never shown.
type Sessions []core.PersistedSession

func (Sessions) Title() string { return "Sessions" }

func (Sessions) Header() table.Row {
	return table.Row{"Identity", "Last Login", "Attempts", "Status", "Cooldown Until"}
}

func (s Sessions) Rows() []table.Row {
	now := time.Now().UTC()
	rows := make([]table.Row, 0, len(s))
	for _, session := range s {
		status := "active"
		switch {
		case session.InCooldown(now):
			status = "blocked"
		case session.Blocked:
			status = "cooldown elapsed"
		case len(session.AuthMaterial) == 0:
			status = "no session"
		}
		rows = append(rows, table.Row{
			session.Identity,
			formatTime(session.LastLoginAt),
			session.LoginAttempts,
			status,
			formatTime(session.CooldownUntil),
		})
	}
	return rows
}

// RateLimits renders pool usage snapshots read from the store.
type RateLimits []store.RateLimitEntry

func (RateLimits) Title() string { return "Pool Usage" }

func (RateLimits) Header() table.Row {
	return table.Row{"Pool", "Resource", "Requests", "Window Start", "Last Used", "Blocked", "Cooldown Until"}
}

func (r RateLimits) Rows() []table.Row {
	rows := make([]table.Row, 0, len(r))
	for _, entry := range r {
		pool, resource := splitResource(entry.Resource)
		rows = append(rows, table.Row{
			pool,
			resource,
			entry.State.RequestCount,
			formatTime(entry.State.WindowStart),
			formatTimePtr(entry.State.LastUsedAt),
			entry.State.Blocked,
			formatTimePtr(entry.State.CooldownUntil),
		})
	}
	return rows
}

// Summary renders a key/value list.
type Summary struct {
	Heading string
	Pairs   [][2]string
}

func (s Summary) Title() string { return s.Heading }

func (Summary) Header() table.Row { return table.Row{"Field", "Value"} }

func (s Summary) Rows() []table.Row {
	rows := make([]table.Row, 0, len(s.Pairs))
	for _, pair := range s.Pairs {
		rows = append(rows, table.Row{pair[0], pair[1]})
	}
	return rows
}

// MarshalJSON renders the summary as an object.
func (s Summary) MarshalJSON() ([]byte, error) {
	values := make(map[string]string, len(s.Pairs))
	for _, pair := range s.Pairs {
		values[pair[0]] = pair[1]
	}
	return json.Marshal(values)
}

func splitResource(resource string) (string, string) {
	pool, rest, found := strings.Cut(resource, ":")
	if !found {
		return emptyCell, resource
	}
	return pool, rest
}

func orEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return emptyCell
	}
	return value
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return emptyCell
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return emptyCell
	}
	return formatTime(*t)
}
