package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmehdipour/sms-relay/internal/kafka"
	"github.com/jmehdipour/sms-relay/internal/logger"
	"github.com/jmehdipour/sms-relay/internal/metrics"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmehdipour/sms-relay/internal/repository"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

// Source is the part of kafka.Consumer the archiver needs.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// Archiver:
// - fetches relay envelopes from Kafka,
// - batches them by size or time,
// - inserts each batch into the ClickHouse archive,
// - commits offsets only after the insert succeeded (at-least-once).
type Archiver struct {
	// Dependencies
	Source  Source
	Archive repository.ArchiveRepository
	Log     *zap.Logger

	// Behavior
	BatchSize int           // max envelopes per flush
	BatchWait time.Duration // max time to wait before flush
	Backoff   *backoff.Backoff
}

// NewArchiver builds a worker with sane defaults.
func NewArchiver(src Source, archive repository.ArchiveRepository, log *zap.Logger) *Archiver {
	return &Archiver{
		Source:    src,
		Archive:   archive,
		Log:       log,
		BatchSize: 500,
		BatchWait: time.Second,
	}
}

func (w *Archiver) defaults() {
	if w.BatchSize <= 0 {
		w.BatchSize = 500
	}
	if w.BatchWait <= 0 {
		w.BatchWait = time.Second
	}
	w.Log = logger.OrNop(w.Log)
	if w.Backoff == nil {
		w.Backoff = &backoff.Backoff{
			Min:    200 * time.Millisecond,
			Max:    10 * time.Second,
			Factor: 2,
			Jitter: true,
		}
	}
}

// Run starts the worker and blocks until ctx is cancelled. Pending envelopes are flushed on the way out.
func (w *Archiver) Run(ctx context.Context) error {
	w.defaults()

	msgCh := make(chan kafka.Message, w.BatchSize*2)
	go w.fetch(ctx, msgCh)

	b := &batch{}
	tick := time.NewTicker(w.BatchWait)
	defer tick.Stop()

	shutdown := func() error {
		w.drain(msgCh, b)
		// ctx is already cancelled; give the final flush its own deadline
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		w.flush(fctx, b)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return shutdown()

		case m, ok := <-msgCh:
			if !ok {
				return shutdown()
			}
			w.add(b, m)
			if b.size() >= w.BatchSize {
				w.flushWithRetry(ctx, b)
			}

		case <-tick.C:
			w.flush(ctx, b)
		}
	}
}

func (w *Archiver) fetch(ctx context.Context, out chan<- kafka.Message) {
	defer close(out)

	bo := &backoff.Backoff{Min: w.Backoff.Min, Max: w.Backoff.Max, Factor: w.Backoff.Factor, Jitter: w.Backoff.Jitter}
	for {
		m, err := w.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d := bo.Duration()
			w.Log.Warn("kafka fetch failed", zap.Error(err), zap.Duration("retry_in", d))
			select {
			case <-ctx.Done():
				return
			case <-time.After(d):
			}
			continue
		}
		bo.Reset()

		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}

// drain moves already fetched messages into the batch without blocking.
func (w *Archiver) drain(in <-chan kafka.Message, b *batch) {
	for {
		select {
		case m, ok := <-in:
			if !ok {
				return
			}
			w.add(b, m)
		default:
			return
		}
	}
}

type batch struct {
	msgs    []model.Message
	cmds    []repository.ArchivedCommand
	offsets []kafka.Message
}

func (b *batch) size() int { return len(b.offsets) }

func (b *batch) reset() {
	b.msgs = b.msgs[:0]
	b.cmds = b.cmds[:0]
	b.offsets = b.offsets[:0]
}

// add decodes m into the batch. Undecodable messages are only committed.
func (w *Archiver) add(b *batch, m kafka.Message) {
	b.offsets = append(b.offsets, m)

	var env model.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		w.Log.Warn("bad envelope json", zap.Int64("offset", m.Offset), zap.Error(err))
		return
	}

	switch {
	case env.Type == model.EventMessageReceived && env.Message != nil:
		b.msgs = append(b.msgs, *env.Message)
	case env.Type == model.EventCommandIssued && env.Command != nil:
		b.cmds = append(b.cmds, repository.ArchivedCommand{EventID: env.ID, HistoryRecord: *env.Command})
	default:
		w.Log.Warn("unknown envelope skipped", zap.String("type", string(env.Type)), zap.String("id", env.ID))
	}
}

// flush writes the batch and commits its offsets. On error the batch is kept for the next attempt.
func (w *Archiver) flush(ctx context.Context, b *batch) bool {
	if b.size() == 0 {
		return true
	}

	if len(b.msgs) > 0 {
		if err := w.Archive.InsertMessages(ctx, b.msgs); err != nil {
			w.Log.Error("archive messages failed", zap.Int("count", len(b.msgs)), zap.Error(err))
			return false
		}
		metrics.ArchivedTotal.WithLabelValues("relay_messages_archive").Add(float64(len(b.msgs)))
		// a retry after a command failure must not insert the messages again
		b.msgs = b.msgs[:0]
	}
	if len(b.cmds) > 0 {
		if err := w.Archive.InsertCommands(ctx, b.cmds); err != nil {
			w.Log.Error("archive commands failed", zap.Int("count", len(b.cmds)), zap.Error(err))
			return false
		}
		metrics.ArchivedTotal.WithLabelValues("relay_commands_archive").Add(float64(len(b.cmds)))
	}

	if err := w.Source.Commit(ctx, b.offsets...); err != nil {
		// rows are in; a redelivery is collapsed by the ReplacingMergeTree
		w.Log.Warn("kafka commit failed", zap.Error(err))
	}

	w.Log.Debug("archive flushed", zap.Int("envelopes", b.size()))
	b.reset()
	return true
}

// flushWithRetry blocks intake until the full batch is written or ctx ends.
func (w *Archiver) flushWithRetry(ctx context.Context, b *batch) {
	w.Backoff.Reset()
	for !w.flush(ctx, b) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.Backoff.Duration()):
		}
	}
}
