// Package mailbox holds the device command mailbox in its two configurations:
// a last-write-wins single slot and a FIFO queue with explicit acks.
package mailbox

import (
	"context"
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

const DefaultMaxBodyRunes = 1600

type Options struct {
	MaxBodyRunes int
	Now          func() time.Time
	Events       *events.Emitter
	Log          *zap.Logger
}

// recorder is shared by both configurations: it validates commands and
// writes the history record of send-type actions.
type recorder struct {
	history      repository.HistoryRepository
	events       *events.Emitter
	log          *zap.Logger
	now          func() time.Time
	maxBodyRunes int
}

func newRecorder(history repository.HistoryRepository, o Options) recorder {
	r := recorder{
		history:      history,
		events:       o.Events,
		log:          logger.OrNop(o.Log),
		now:          o.Now,
		maxBodyRunes: o.MaxBodyRunes,
	}
	if r.events == nil {
		r.events = events.NewEmitter(nil, nil)
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	if r.maxBodyRunes <= 0 {
		r.maxBodyRunes = DefaultMaxBodyRunes
	}
	return r
}

// validate returns the normalised command or a ValidationError.
func (r recorder) validate(cmd model.Command) (model.Command, error) {
	cmd.Action = strings.TrimSpace(cmd.Action)
	cmd.TargetAddress = util.NormalizePhone(strings.TrimSpace(cmd.TargetAddress))

	if cmd.Action == "" {
		return model.Command{}, apperr.MissingFields("action")
	}
	if n := utf8.RuneCountInString(cmd.Action); n > model.MaxActionLen {
		return model.Command{}, apperr.TooLong("action", n, model.MaxActionLen)
	}
	if n := utf8.RuneCountInString(cmd.TargetAddress); n > model.MaxAddressLen {
		return model.Command{}, apperr.TooLong("target_address", n, model.MaxAddressLen)
	}
	if !cmd.IsSend() {
		return cmd, nil
	}

	var missing []string
	if cmd.TargetAddress == "" {
		missing = append(missing, "target_address")
	}
	if strings.TrimSpace(cmd.Body) == "" {
		missing = append(missing, "body")
	}
	if len(missing) > 0 {
		return model.Command{}, apperr.MissingFields(missing...)
	}
	if n := utf8.RuneCountInString(cmd.Body); n > r.maxBodyRunes {
		return model.Command{}, apperr.Invalid("body too long: %d characters, max %d", n, r.maxBodyRunes)
	}
	return cmd, nil
}

// record appends the history entry of a send-type command and returns it for
// emit. Other actions are not audited and yield nil.
func (r recorder) record(ctx context.Context, cmd model.Command) (*model.HistoryRecord, error) {
	if !cmd.IsSend() {
		return nil, nil
	}
	rec := model.HistoryRecord{
		Action:        cmd.Action,
		TargetAddress: cmd.TargetAddress,
		Body:          cmd.Body,
		IssuedAt:      r.now(),
	}
	if err := r.history.AppendHistory(ctx, rec); err != nil {
		return nil, apperr.Storage("append history", err)
	}
	return &rec, nil
}

// emit publishes command.issued. Callers must not hold the mailbox lock:
// the publisher may block on the broker.
func (r recorder) emit(ctx context.Context, rec *model.HistoryRecord) {
	if rec != nil {
		r.events.CommandIssued(ctx, *rec)
	}
}

func countIssued(prev model.Command) {
	metrics.CommandsTotal.WithLabelValues("issued").Inc()
	if !prev.IsEmpty() {
		metrics.CommandsTotal.WithLabelValues("overwritten").Inc()
	}
}

// countPoll counts a slot poll. A delivered command has left the mailbox.
func countPoll(delivered bool) {
	if delivered {
		metrics.PollsTotal.WithLabelValues("command").Inc()
		metrics.CommandsTotal.WithLabelValues("delivered").Inc()
		return
	}
	metrics.PollsTotal.WithLabelValues("empty").Inc()
}
