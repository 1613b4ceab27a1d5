package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAndRecovers(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	br := NewBreaker(2, time.Minute)
	br.now = func() time.Time { return now }

	pub := &recordingPublisher{err: errors.New("broker down")}
	g := NewGuarded(pub, br)
	ctx := context.Background()

	assert.Error(t, g.Publish(ctx, model.Envelope{}))
	assert.Error(t, g.Publish(ctx, model.Envelope{}))

	// open: the broker is not called
	assert.ErrorIs(t, g.Publish(ctx, model.Envelope{}), ErrBreakerOpen)
	require.Len(t, pub.envs, 2)

	// probe after openFor fails and re-opens
	now = now.Add(time.Minute + time.Second)
	assert.NotErrorIs(t, g.Publish(ctx, model.Envelope{}), ErrBreakerOpen)
	require.Len(t, pub.envs, 3)
	assert.ErrorIs(t, g.Publish(ctx, model.Envelope{}), ErrBreakerOpen)

	// successful probe closes it
	now = now.Add(time.Minute + time.Second)
	pub.err = nil
	assert.NoError(t, g.Publish(ctx, model.Envelope{}))
	assert.NoError(t, g.Publish(ctx, model.Envelope{}))
	assert.Len(t, pub.envs, 5)
}

func TestBreakerSingleProbe(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	br := NewBreaker(1, time.Second)
	br.now = func() time.Time { return now }

	br.OnFailure()
	assert.False(t, br.TryAcquire())

	now = now.Add(2 * time.Second)
	assert.True(t, br.TryAcquire())
	assert.False(t, br.TryAcquire())
}

func TestEmitterDropsWhileOpen(t *testing.T) {
	br := NewBreaker(1, time.Hour)
	pub := &recordingPublisher{err: errors.New("broker down")}
	e := NewEmitter(NewGuarded(pub, br), nil)

	e.MessageReceived(context.Background(), model.Message{ID: "a"})
	e.MessageReceived(context.Background(), model.Message{ID: "b"})
	assert.Len(t, pub.envs, 1)
}
