package mailbox

import (
	"context"
	"sync"

	"github.com/jmehdipour/sms-relay/internal/apperr"
	"github.com/jmehdipour/sms-relay/internal/metrics"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmehdipour/sms-relay/internal/repository"
	"go.uber.org/zap"
)

// Queue is the FIFO mailbox. Commands stay in the queue; the device acks them by index.
type Queue struct {
	mu    sync.Mutex
	queue repository.CommandQueueRepository
	recorder
}

func NewQueue(queue repository.CommandQueueRepository, history repository.HistoryRepository, o Options) *Queue {
	return &Queue{queue: queue, recorder: newRecorder(history, o)}
}

// Set appends cmd to the queue. As with Slot.Set, history is written first.
func (q *Queue) Set(ctx context.Context, cmd model.Command) (model.Command, error) {
	cmd, err := q.validate(cmd)
	if err != nil {
		return model.Command{}, err
	}

	rec, err := q.enqueue(ctx, cmd)
	q.emit(ctx, rec)
	if err != nil {
		return model.Command{}, err
	}
	countIssued(model.EmptyCommand())
	return cmd, nil
}

func (q *Queue) enqueue(ctx context.Context, cmd model.Command) (*model.HistoryRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, err := q.record(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if err := q.queue.AppendQueued(ctx, cmd, q.now()); err != nil {
		return rec, apperr.Storage("enqueue command", err)
	}
	return rec, nil
}

// Poll returns the oldest pending entry without consuming it. ok is false when nothing is pending.
func (q *Queue) Poll(ctx context.Context) (item model.QueuedCommand, ok bool, err error) {
	items, err := q.List(ctx)
	if err != nil {
		return model.QueuedCommand{}, false, err
	}
	for _, it := range items {
		if it.Status == model.CommandPending {
			// served, not delivered: the item stays pending until Ack
			metrics.PollsTotal.WithLabelValues("command").Inc()
			return it, true, nil
		}
	}
	metrics.PollsTotal.WithLabelValues("empty").Inc()
	return model.QueuedCommand{}, false, nil
}

func (q *Queue) List(ctx context.Context) ([]model.QueuedCommand, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.queue.ListQueue(ctx)
	if err != nil {
		return nil, apperr.Storage("list queue", err)
	}
	if items == nil {
		items = []model.QueuedCommand{}
	}
	return items, nil
}

// Ack marks the entry at index as sent. An index outside the queue changes nothing and is not an error.
func (q *Queue) Ack(ctx context.Context, index int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	found, err := q.queue.MarkSent(ctx, index, q.now())
	if err != nil {
		return apperr.Storage("ack command", err)
	}
	if !found {
		q.log.Debug("ack for unknown queue index", zap.Int("index", index))
		return nil
	}
	metrics.CommandsTotal.WithLabelValues("delivered").Inc()
	metrics.CommandsTotal.WithLabelValues("acked").Inc()
	return nil
}
