package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmehdipour/sms-relay/internal/model"
)

// MemoryStore keeps everything in process memory. Used by tests and single-run setups.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []model.Message
	history  []model.HistoryRecord
	command  model.Command
	queue    []model.QueuedCommand
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) AppendMessages(_ context.Context, msgs []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, order model.SortOrder) ([]model.Message, error) {
	s.mu.RLock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	s.mu.RUnlock()

	sortMessages(out, order)
	return out, nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, rec model.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, rec)
	return nil
}

func (s *MemoryStore) ListHistory(_ context.Context) ([]model.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.HistoryRecord, len(s.history))
	copy(out, s.history)
	return out, nil
}

func (s *MemoryStore) SwapCommand(_ context.Context, next model.Command) (model.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.command
	s.command = next
	return prev, nil
}

func (s *MemoryStore) AppendQueued(_ context.Context, cmd model.Command, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, model.QueuedCommand{
		Index:     len(s.queue),
		Command:   cmd,
		Status:    model.CommandPending,
		CreatedAt: at,
	})
	return nil
}

func (s *MemoryStore) ListQueue(_ context.Context) ([]model.QueuedCommand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.QueuedCommand, len(s.queue))
	copy(out, s.queue)
	return out, nil
}

func (s *MemoryStore) MarkSent(_ context.Context, index int, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.queue) {
		return false, nil
	}
	s.queue[index].Status = model.CommandSent
	return true, nil
}

func (s *MemoryStore) Close() error { return nil }

// sortMessages orders by OccurredAt; ties keep insertion order.
func sortMessages(msgs []model.Message, order model.SortOrder) {
	if order == model.OldestFirst {
		sort.SliceStable(msgs, func(i, j int) bool {
			return msgs[i].OccurredAt.Before(msgs[j].OccurredAt)
		})
		return
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].OccurredAt.After(msgs[j].OccurredAt)
	})
}
