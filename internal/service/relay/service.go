// Package relay implements the device-facing message log: upload validation,
// storage and listing of messages and send history.
package relay

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmehdipour/sms-relay/internal/apperr"
	"github.com/jmehdipour/sms-relay/internal/events"
	"github.com/jmehdipour/sms-relay/internal/logger"
	"github.com/jmehdipour/sms-relay/internal/metrics"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmehdipour/sms-relay/internal/repository"
	"github.com/jmehdipour/sms-relay/internal/util"
	"go.uber.org/zap"
)

// Service validates uploads and reads back the message and history logs.
type Service struct {
	msgs    repository.MessagesRepository
	history repository.HistoryRepository
	events  *events.Emitter
	log     *zap.Logger
	now     func() time.Time
}

func New(
	msgs repository.MessagesRepository,
	history repository.HistoryRepository,
	emitter *events.Emitter,
	log *zap.Logger,
) *Service {
	if emitter == nil {
		emitter = events.NewEmitter(nil, nil)
	}
	return &Service{
		msgs:    msgs,
		history: history,
		events:  emitter,
		log:     logger.OrNop(log),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the receive clock. Used by tests and the seed command.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Upload validates every record, then stores them all at once.
// On any validation error nothing is stored. Returns the assigned ids in input order.
func (s *Service) Upload(ctx context.Context, in []UploadInput) ([]string, error) {
	if len(in) == 0 {
		return nil, apperr.Invalid("empty payload")
	}

	received := s.now()
	msgs := make([]model.Message, 0, len(in))
	for i, rec := range in {
		m, err := toMessage(rec)
		if err != nil {
			if len(in) > 1 {
				var ve *apperr.ValidationError
				if errors.As(err, &ve) {
					ve.Message = "record " + strconv.Itoa(i) + ": " + ve.Message
				}
			}
			return nil, err
		}
		m.ID = util.NewID()
		m.ReceivedAt = received
		msgs = append(msgs, m)
	}

	if err := s.msgs.AppendMessages(ctx, msgs); err != nil {
		return nil, apperr.Storage("append messages", err)
	}

	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
		metrics.MessagesUploaded.WithLabelValues(m.Kind).Inc()
		s.events.MessageReceived(ctx, m)
	}
	s.log.Debug("messages stored", zap.Int("count", len(msgs)))
	return ids, nil
}

func toMessage(in UploadInput) (model.Message, error) {
	if missing := in.missing(); len(missing) > 0 {
		return model.Message{}, apperr.MissingFields(missing...)
	}
	ms, ok := parseMillis(in.OccurredAtMs)
	if !ok {
		return model.Message{}, &apperr.ValidationError{
			Fields:  []string{"occurred_at_ms"},
			Message: "invalid timestamp format",
		}
	}
	m := model.Message{
		Sender:     util.NormalizePhone(in.Sender),
		Body:       in.Body,
		OccurredAt: model.FromMillis(ms),
		Kind:       strings.ToLower(strings.TrimSpace(in.Kind)),
	}
	if n := utf8.RuneCountInString(m.Sender); n > model.MaxSenderLen {
		return model.Message{}, apperr.TooLong("sender", n, model.MaxSenderLen)
	}
	if n := utf8.RuneCountInString(m.Kind); n > model.MaxKindLen {
		return model.Message{}, apperr.TooLong("kind", n, model.MaxKindLen)
	}
	return m, nil
}

// ListMessages returns every stored message sorted by OccurredAt.
func (s *Service) ListMessages(ctx context.Context, order model.SortOrder) ([]model.Message, error) {
	msgs, err := s.msgs.ListMessages(ctx, order)
	if err != nil {
		return nil, apperr.Storage("list messages", err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}

// ListHistory returns the send history in issue order.
func (s *Service) ListHistory(ctx context.Context) ([]model.HistoryRecord, error) {
	hist, err := s.history.ListHistory(ctx)
	if err != nil {
		return nil, apperr.Storage("list history", err)
	}
	if hist == nil {
		hist = []model.HistoryRecord{}
	}
	return hist, nil
}
