package repository

import (
	"context"
	"time"

	"github.com/jmehdipour/sms-relay/internal/model"
)

// MessagesRepository is the append-only received-message log.
type MessagesRepository interface {
	// AppendMessages stores all msgs or none of them.
	AppendMessages(ctx context.Context, msgs []model.Message) error
	// ListMessages returns every message sorted by OccurredAt in the given order.
	ListMessages(ctx context.Context, order model.SortOrder) ([]model.Message, error)
}

// HistoryRepository is the append-only log of issued send commands.
type HistoryRepository interface {
	AppendHistory(ctx context.Context, rec model.HistoryRecord) error
	// ListHistory returns records in insertion order.
	ListHistory(ctx context.Context) ([]model.HistoryRecord, error)
}

// CommandSlotRepository holds the single-slot mailbox value.
type CommandSlotRepository interface {
	// SwapCommand stores next and returns the value it replaced (empty when none).
	SwapCommand(ctx context.Context, next model.Command) (model.Command, error)
}

// CommandQueueRepository holds the FIFO mailbox.
type CommandQueueRepository interface {
	AppendQueued(ctx context.Context, cmd model.Command, at time.Time) error
	// ListQueue returns every entry, oldest first, with Index set to its position.
	ListQueue(ctx context.Context) ([]model.QueuedCommand, error)
	// MarkSent flags the entry at index as sent; false when index is out of range.
	MarkSent(ctx context.Context, index int, at time.Time) (bool, error)
}

// Store is a Durable Store backend carrying every relay record type.
type Store interface {
	MessagesRepository
	HistoryRepository
	CommandSlotRepository
	CommandQueueRepository
	Close() error
}
