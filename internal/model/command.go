package model

import (
	"strings"
	"time"
)

// Command is the outstanding instruction for the device. Action "" means "no command".
type Command struct {
	Action        string `json:"action"`
	TargetAddress string `json:"target_address,omitempty"`
	Body          string `json:"body,omitempty"`
}

const (
	ActionSend    = "send"
	ActionSendSMS = "send_sms"
)

// Column limits shared by every store.
const (
	MaxActionLen  = 50
	MaxAddressLen = 255
)

// EmptyCommand is the canonical "nothing to do" sentinel.
func EmptyCommand() Command { return Command{} }

func (c Command) IsEmpty() bool { return c.Action == "" }

// IsSend reports whether the action instructs the device to send an SMS.
func (c Command) IsSend() bool {
	return IsSendAction(c.Action)
}

func IsSendAction(action string) bool {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case ActionSend, ActionSendSMS:
		return true
	default:
		return false
	}
}

type CommandStatus string

const (
	CommandPending CommandStatus = "pending"
	CommandSent    CommandStatus = "sent"
)

func (s CommandStatus) String() string { return string(s) }

func (s CommandStatus) Valid() bool {
	return s == CommandPending || s == CommandSent
}

// QueuedCommand is one entry of the FIFO mailbox. Index is its position in the queue.
type QueuedCommand struct {
	Index int `json:"index"`
	Command
	Status    CommandStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// HistoryRecord is the append-only audit entry of an issued send command.
type HistoryRecord struct {
	Action        string    `json:"action"`
	TargetAddress string    `json:"target_address"`
	Body          string    `json:"body"`
	IssuedAt      time.Time `json:"issued_at"`
}
