package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/sms-relay/internal/kafka"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmehdipour/sms-relay/internal/repository"
	"github.com/jpillora/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs int
	committed []int64
}

func (s *fakeSource) Fetch(ctx context.Context) (kafka.Message, error) {
	s.mu.Lock()
	if s.fetchErrs > 0 {
		s.fetchErrs--
		s.mu.Unlock()
		return kafka.Message{}, errors.New("broker not available")
	}
	if len(s.queue) > 0 {
		m := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (s *fakeSource) Commit(_ context.Context, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.committed = append(s.committed, m.Offset)
	}
	return nil
}

func (s *fakeSource) commits() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.committed...)
}

type fakeArchive struct {
	mu        sync.Mutex
	msgs      []model.Message
	cmds      []repository.ArchivedCommand
	failMsgs  int
	msgCalls  int
	listCalls int
}

func (a *fakeArchive) InsertMessages(_ context.Context, msgs []model.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgCalls++
	if a.failMsgs > 0 {
		a.failMsgs--
		return errors.New("clickhouse: timeout")
	}
	a.msgs = append(a.msgs, msgs...)
	return nil
}

func (a *fakeArchive) InsertCommands(_ context.Context, cmds []repository.ArchivedCommand) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cmds = append(a.cmds, cmds...)
	return nil
}

func (a *fakeArchive) ListMessages(context.Context, repository.ReportFilter) ([]model.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listCalls++
	return nil, nil
}

func (a *fakeArchive) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.msgs), len(a.cmds)
}

func envelopeMsg(t *testing.T, offset int64, env model.Envelope) kafka.Message {
	t.Helper()
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(env.Key()), Value: b}
}

func testEnvelopes(t *testing.T) []kafka.Message {
	return []kafka.Message{
		envelopeMsg(t, 1, model.Envelope{ID: "e1", Type: model.EventMessageReceived, Message: &model.Message{ID: "m1", Sender: "+1"}}),
		envelopeMsg(t, 2, model.Envelope{ID: "e2", Type: model.EventCommandIssued, Command: &model.HistoryRecord{Action: "send", TargetAddress: "+2", Body: "hi"}}),
		{Offset: 3, Value: []byte("not json")},
		envelopeMsg(t, 4, model.Envelope{ID: "e4", Type: model.EventMessageReceived, Message: &model.Message{ID: "m4", Sender: "+4"}}),
	}
}

func runArchiver(t *testing.T, w *Archiver) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("archiver did not stop")
		}
	}
}

func TestArchiverFlushesOnBatchSize(t *testing.T) {
	src := &fakeSource{queue: testEnvelopes(t)}
	arch := &fakeArchive{}

	w := NewArchiver(src, arch, nil)
	w.BatchSize = 4
	w.BatchWait = time.Hour
	stop := runArchiver(t, w)
	defer stop()

	require.Eventually(t, func() bool { return len(src.commits()) == 4 }, 2*time.Second, 5*time.Millisecond)

	nm, nc := arch.counts()
	assert.Equal(t, 2, nm)
	assert.Equal(t, 1, nc)
	assert.Equal(t, []int64{1, 2, 3, 4}, src.commits())

	arch.mu.Lock()
	assert.Equal(t, "e2", arch.cmds[0].EventID)
	assert.Equal(t, "+2", arch.cmds[0].TargetAddress)
	arch.mu.Unlock()
}

func TestArchiverFlushesOnTick(t *testing.T) {
	src := &fakeSource{queue: testEnvelopes(t)[:2]}
	arch := &fakeArchive{}

	w := NewArchiver(src, arch, nil)
	w.BatchSize = 100
	w.BatchWait = 20 * time.Millisecond
	stop := runArchiver(t, w)
	defer stop()

	require.Eventually(t, func() bool { return len(src.commits()) == 2 }, 2*time.Second, 5*time.Millisecond)
	nm, nc := arch.counts()
	assert.Equal(t, 1, nm)
	assert.Equal(t, 1, nc)
}

func TestArchiverRetriesWithoutCommitting(t *testing.T) {
	src := &fakeSource{queue: testEnvelopes(t), fetchErrs: 2}
	arch := &fakeArchive{failMsgs: 2}

	w := NewArchiver(src, arch, nil)
	w.BatchSize = 4
	w.BatchWait = time.Hour
	w.Backoff = &backoff.Backoff{Min: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2}
	stop := runArchiver(t, w)
	defer stop()

	require.Eventually(t, func() bool { return len(src.commits()) == 4 }, 2*time.Second, 5*time.Millisecond)

	arch.mu.Lock()
	defer arch.mu.Unlock()
	assert.Equal(t, 3, arch.msgCalls)
	assert.Len(t, arch.msgs, 2)
	assert.Len(t, arch.cmds, 1)
}

func TestArchiverFlushesOnShutdown(t *testing.T) {
	src := &fakeSource{queue: testEnvelopes(t)[:1]}
	arch := &fakeArchive{}

	w := NewArchiver(src, arch, nil)
	w.BatchSize = 100
	w.BatchWait = time.Hour
	stop := runArchiver(t, w)

	// give the fetcher time to hand the message over
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.queue) == 0
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	stop()

	nm, _ := arch.counts()
	assert.Equal(t, 1, nm)
	assert.Equal(t, []int64{1}, src.commits())
}
