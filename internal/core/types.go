package core

import (
	"strings"
	"time"
)

// WatchTarget is a monitored feed handle and the last item seen for it.
type WatchTarget struct {
	Handle         string    `json:"handle"`
	LastSeenItemID string    `json:"last_seen_item_id"`
	LastCheckedAt  time.Time `json:"last_checked_at"`
}

// NormalizeHandle strips whitespace and a leading "@".
func NormalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// Media is an attachment on an item.
type Media struct {
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
}

// EngagementMetrics holds the counters reported for an item.
type EngagementMetrics struct {
	Likes   int `json:"likes,omitempty"`
	Reposts int `json:"reposts,omitempty"`
	Replies int `json:"replies,omitempty"`
}

// Item is one retrievable unit of content from a feed.
type Item struct {
	ID        string            `json:"id"`
	Author    string            `json:"author"`
	AuthorURL string            `json:"author_url,omitempty"`
	Text      string            `json:"text"`
	URL       string            `json:"url,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Media     []Media           `json:"media,omitempty"`
	Metrics   EngagementMetrics `json:"metrics"`
}

// ProxyEndpoint is a configured network egress endpoint.
type ProxyEndpoint struct {
	URL      string `json:"url" mapstructure:"url" yaml:"url"`
	Username string `json:"username,omitempty" mapstructure:"username" yaml:"username"`
	Password string `json:"-" mapstructure:"password" yaml:"password"`
}

// HasAuth reports whether the endpoint carries credentials.
func (p ProxyEndpoint) HasAuth() bool {
	return p.Username != "" || p.Password != ""
}

// Account is a configured identity and its login secret.
type Account struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// PersistedSession is the stored authentication state for one identity.
type PersistedSession struct {
	Identity      string    `json:"identity"`
	AuthMaterial  []string  `json:"auth_material"`
	LastLoginAt   time.Time `json:"last_login_at"`
	LoginAttempts int       `json:"login_attempts"`
	Blocked       bool      `json:"blocked"`
	CooldownUntil time.Time `json:"cooldown_until"`
}

// InCooldown reports whether the session is blocked and the block has not elapsed.
func (s *PersistedSession) InCooldown(now time.Time) bool {
	return s != nil && s.Blocked && now.Before(s.CooldownUntil)
}

// SessionUpdate holds the fields merged by a partial session update.
// Nil fields are left untouched.
type SessionUpdate struct {
	AuthMaterial  []string
	LastLoginAt   *time.Time
	LoginAttempts *int
	Blocked       *bool
	CooldownUntil *time.Time
}

// Apply merges the update onto s.
func (u SessionUpdate) Apply(s *PersistedSession) {
	if s == nil {
		return
	}
	if u.AuthMaterial != nil {
		s.AuthMaterial = u.AuthMaterial
	}
	if u.LastLoginAt != nil {
		s.LastLoginAt = *u.LastLoginAt
	}
	if u.LoginAttempts != nil {
		s.LoginAttempts = *u.LoginAttempts
	}
	if u.Blocked != nil {
		s.Blocked = *u.Blocked
	}
	if u.CooldownUntil != nil {
		s.CooldownUntil = *u.CooldownUntil
	}
}

// NotificationField is a named value rendered alongside a notification.
type NotificationField struct {
	Name   string
	Value  string
	Inline bool
}

// Notification is a structured message for a notification sink.
type Notification struct {
	Title      string
	AuthorName string
	AuthorURL  string
	URL        string
	Body       string
	ImageURL   string
	Fields     []NotificationField
	Color      int
	Timestamp  time.Time
}
