package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu   sync.Mutex
	envs []model.Envelope
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, env model.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return p.err
}

func TestEmitterStampsEnvelopes(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEmitter(pub, nil)
	ctx := context.Background()

	e.MessageReceived(ctx, model.Message{ID: "m1", Sender: "+1"})
	e.CommandIssued(ctx, model.HistoryRecord{Action: "send", TargetAddress: "+2", Body: "hi"})

	require.Len(t, pub.envs, 2)
	assert.Equal(t, model.EventMessageReceived, pub.envs[0].Type)
	assert.Equal(t, "m1", pub.envs[0].Message.ID)
	assert.NotEmpty(t, pub.envs[0].ID)
	assert.False(t, pub.envs[0].At.IsZero())

	assert.Equal(t, model.EventCommandIssued, pub.envs[1].Type)
	assert.Equal(t, "+2", pub.envs[1].Command.TargetAddress)
	assert.NotEqual(t, pub.envs[0].ID, pub.envs[1].ID)
}

func TestEmitterSwallowsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	e := NewEmitter(pub, nil)

	assert.NotPanics(t, func() {
		e.MessageReceived(context.Background(), model.Message{ID: "m1"})
	})
	assert.Len(t, pub.envs, 1)
}

func TestNilPublisherIsNop(t *testing.T) {
	e := NewEmitter(nil, nil)
	assert.NotPanics(t, func() {
		e.CommandIssued(context.Background(), model.HistoryRecord{})
	})
}
