package events

import (
	"context"
	"errors"
	"time"

	"github.com/jmehdipour/sms-relay/internal/logger"
	"github.com/jmehdipour/sms-relay/internal/metrics"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmehdipour/sms-relay/internal/util"
	"go.uber.org/zap"
)

// Publisher ships relay events to the archive pipeline.
type Publisher interface {
	Publish(ctx context.Context, env model.Envelope) error
}

// Nop drops every event. Used when Kafka is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, model.Envelope) error { return nil }

// Emitter stamps and publishes events; failures are logged and counted, never returned,
// because the store write that produced the event has already succeeded.
type Emitter struct {
	pub Publisher
	log *zap.Logger
}

func NewEmitter(pub Publisher, log *zap.Logger) *Emitter {
	if pub == nil {
		pub = Nop{}
	}
	return &Emitter{pub: pub, log: logger.OrNop(log)}
}

func (e *Emitter) MessageReceived(ctx context.Context, m model.Message) {
	e.emit(ctx, model.Envelope{Type: model.EventMessageReceived, Message: &m})
}

func (e *Emitter) CommandIssued(ctx context.Context, rec model.HistoryRecord) {
	e.emit(ctx, model.Envelope{Type: model.EventCommandIssued, Command: &rec})
}

func (e *Emitter) emit(ctx context.Context, env model.Envelope) {
	if _, nop := e.pub.(Nop); nop {
		return
	}
	env.ID = util.NewID()
	env.At = time.Now().UTC()

	if err := e.pub.Publish(ctx, env); err != nil {
		if errors.Is(err, ErrBreakerOpen) {
			metrics.EventsPublished.WithLabelValues("dropped").Inc()
			return
		}
		metrics.EventsPublished.WithLabelValues("error").Inc()
		e.log.Warn("publish event failed",
			zap.String("type", string(env.Type)),
			zap.String("event_id", env.ID),
			zap.Error(err),
		)
		return
	}
	metrics.EventsPublished.WithLabelValues("ok").Inc()
}
