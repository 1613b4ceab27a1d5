package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Column limits shared by every store.
const (
	MaxSenderLen = 255
	MaxKindLen   = 50
)

// MaxOccurredAtMs is 2299-12-31T23:59:59.999Z, the last instant ClickHouse
// DateTime64 holds. Later values also break RFC 3339 encoding past year 9999.
var MaxOccurredAtMs = time.Date(2300, time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli() - 1

// Message is a single SMS record uploaded by the device. Immutable once stored.
type Message struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	Body       string    `json:"body"`
	OccurredAt time.Time `json:"occurred_at"` // device clock
	Kind       string    `json:"kind"`        // inbound | sent | export type ...
	ReceivedAt time.Time `json:"received_at"` // relay clock
}

// MarshalJSON adds occurred_at_ms so device clients can round-trip the wire format.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	return json.Marshal(struct {
		plain
		OccurredAtMs int64 `json:"occurred_at_ms"`
	}{plain: plain(m), OccurredAtMs: m.OccurredAt.UnixMilli()})
}

// SortOrder selects the occurred_at ordering of a message listing.
type SortOrder string

const (
	NewestFirst SortOrder = "desc"
	OldestFirst SortOrder = "asc"
)

// ParseSortOrder normalizes input; anything but "asc" means newest first.
func ParseSortOrder(s string) SortOrder {
	if strings.EqualFold(strings.TrimSpace(s), string(OldestFirst)) {
		return OldestFirst
	}
	return NewestFirst
}

// FromMillis converts a device epoch-milliseconds timestamp to UTC time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
