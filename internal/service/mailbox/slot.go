package mailbox

import (
	"context"
	"sync"

	"github.com/jmehdipour/sms-relay/internal/apperr"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmehdipour/sms-relay/internal/repository"
	"go.uber.org/zap"
)

// Slot is the single-slot mailbox: Set overwrites, Poll consumes.
type Slot struct {
	mu   sync.Mutex
	slot repository.CommandSlotRepository
	recorder
}

func NewSlot(slot repository.CommandSlotRepository, history repository.HistoryRepository, o Options) *Slot {
	return &Slot{slot: slot, recorder: newRecorder(history, o)}
}

// Set replaces the outstanding command. A pending command that was never polled is lost.
// The history record is written before the slot; when the slot write then fails
// the caller gets a StorageError but the record stays, so history is a superset
// of the commands the device could have received.
func (s *Slot) Set(ctx context.Context, cmd model.Command) (model.Command, error) {
	cmd, err := s.validate(cmd)
	if err != nil {
		return model.Command{}, err
	}

	rec, prev, err := s.set(ctx, cmd)
	s.emit(ctx, rec)
	if err != nil {
		return model.Command{}, err
	}

	if !prev.IsEmpty() {
		s.log.Info("pending command overwritten",
			zap.String("previous_action", prev.Action),
			zap.String("previous_target", prev.TargetAddress),
		)
	}
	countIssued(prev)
	return cmd, nil
}

func (s *Slot) set(ctx context.Context, cmd model.Command) (*model.HistoryRecord, model.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.record(ctx, cmd)
	if err != nil {
		return nil, model.Command{}, err
	}
	prev, err := s.slot.SwapCommand(ctx, cmd)
	if err != nil {
		return rec, model.Command{}, apperr.Storage("set command", err)
	}
	return rec, prev, nil
}

// Poll returns the outstanding command and resets the slot, or the empty command.
func (s *Slot) Poll(ctx context.Context) (model.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, err := s.slot.SwapCommand(ctx, model.EmptyCommand())
	if err != nil {
		return model.Command{}, apperr.Storage("poll command", err)
	}
	countPoll(!cmd.IsEmpty())
	return cmd, nil
}
