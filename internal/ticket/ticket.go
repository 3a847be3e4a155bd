// Package ticket defines the canonical Ticket record and maps Jira issues onto it.
package ticket

import (
	"encoding/json"
	"time"

	"github.com/p-blackswan/impactlens/internal/jira"
)

// MaxRawPayload bounds the serialized source issue kept on a Ticket.
const MaxRawPayload = 30000

// Ticket is the canonical record of one external issue.
type Ticket struct {
	Key          string     `json:"ticketKey"`
	ID           string     `json:"ticketId"`
	Summary      string     `json:"summary"`
	Description  string     `json:"description,omitempty"`
	Status       string     `json:"status,omitempty"`
	Priority     string     `json:"priority,omitempty"`
	Assignee     string     `json:"assignee,omitempty"`
	Reporter     string     `json:"reporter,omitempty"`
	Created      string     `json:"createdAt,omitempty"`
	Updated      string     `json:"updatedAt,omitempty"`
	LastSyncedAt time.Time  `json:"lastSyncedAt"`
	RawPayload   string     `json:"-"`
	TTLExpiresAt *time.Time `json:"ttlExpiresAt,omitempty"`
}

// Normalizer maps issues to Tickets. TTL, when positive, stamps an expiry
// relative to the sync time.
type Normalizer struct {
	TTL time.Duration
	Now func() time.Time
	// Marshal serializes the source issue. Defaults to json.Marshal.
	Marshal func(v interface{}) ([]byte, error)
}

// Normalize maps one issue onto a Ticket. Missing source fields stay empty.
func (n Normalizer) Normalize(issue *jira.Issue) Ticket {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	marshal := json.Marshal
	if n.Marshal != nil {
		marshal = n.Marshal
	}

	f := issue.Fields
	t := Ticket{
		Key:     issue.Key,
		ID:      issue.ID,
		Summary: f.Summary,
		Created: f.Created,
		Updated: f.Updated,
	}
	if text, ok := jira.ExtractText(f.Description.Value); ok {
		t.Description = text
	}
	if f.Status != nil {
		t.Status = f.Status.Name
	}
	if f.Priority != nil {
		t.Priority = f.Priority.Name
	}
	if f.Assignee != nil {
		t.Assignee = f.Assignee.DisplayName
	}
	if f.Reporter != nil {
		t.Reporter = f.Reporter.DisplayName
	}

	t.LastSyncedAt = now().UTC()
	if n.TTL > 0 {
		exp := t.LastSyncedAt.Add(n.TTL)
		t.TTLExpiresAt = &exp
	}

	raw, err := marshal(issue)
	if err != nil {
		t.RawPayload = "{}"
	} else {
		t.RawPayload = truncate(string(raw), MaxRawPayload)
	}
	return t
}

// Overwrite replaces every mutable field of t with the values from src.
// Identity (Key) is left alone.
func (t *Ticket) Overwrite(src Ticket) {
	t.ID = src.ID
	t.Summary = src.Summary
	t.Description = src.Description
	t.Status = src.Status
	t.Priority = src.Priority
	t.Assignee = src.Assignee
	t.Reporter = src.Reporter
	t.Created = src.Created
	t.Updated = src.Updated
	t.RawPayload = src.RawPayload
	t.LastSyncedAt = src.LastSyncedAt
	t.TTLExpiresAt = src.TTLExpiresAt
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
