package model

import "time"

type EventType string

const (
	EventMessageReceived EventType = "message.received"
	EventCommandIssued   EventType = "command.issued"
)

// Envelope is the payload published to Kafka for the archiver.
type Envelope struct {
	ID      string         `json:"id"` // event ULID
	Type    EventType      `json:"type"`
	At      time.Time      `json:"at"`
	Message *Message       `json:"message,omitempty"`
	Command *HistoryRecord `json:"command,omitempty"`
}

// Key is the partition key: the message id, or the command target.
func (e Envelope) Key() string {
	switch {
	case e.Message != nil:
		return e.Message.ID
	case e.Command != nil:
		return e.Command.TargetAddress
	default:
		return e.ID
	}
}
