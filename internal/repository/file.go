package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmehdipour/sms-relay/internal/model"
)

const (
	messagesDoc = "messages.json"
	historyDoc  = "history.json"
	commandDoc  = "command.json"
	queueDoc    = "queue.json"
)

// FileStore keeps one JSON document per logical store under dir.
// Every write rewrites the whole document, so all writes are serialised behind mu.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty store dir")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

var _ Store = (*FileStore)(nil)

func (s *FileStore) AppendMessages(_ context.Context, msgs []model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []model.Message
	if err := s.load(messagesDoc, &all); err != nil {
		return err
	}
	return s.save(messagesDoc, append(all, msgs...))
}

func (s *FileStore) ListMessages(_ context.Context, order model.SortOrder) ([]model.Message, error) {
	s.mu.RLock()
	var all []model.Message
	err := s.load(messagesDoc, &all)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if all == nil {
		all = []model.Message{}
	}
	sortMessages(all, order)
	return all, nil
}

func (s *FileStore) AppendHistory(_ context.Context, rec model.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []model.HistoryRecord
	if err := s.load(historyDoc, &all); err != nil {
		return err
	}
	return s.save(historyDoc, append(all, rec))
}

func (s *FileStore) ListHistory(_ context.Context) ([]model.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := []model.HistoryRecord{}
	if err := s.load(historyDoc, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (s *FileStore) SwapCommand(_ context.Context, next model.Command) (model.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev model.Command
	if err := s.load(commandDoc, &prev); err != nil {
		return model.EmptyCommand(), err
	}
	if err := s.save(commandDoc, next); err != nil {
		return model.EmptyCommand(), err
	}
	return prev, nil
}

func (s *FileStore) AppendQueued(_ context.Context, cmd model.Command, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var q []model.QueuedCommand
	if err := s.load(queueDoc, &q); err != nil {
		return err
	}
	q = append(q, model.QueuedCommand{
		Command:   cmd,
		Status:    model.CommandPending,
		CreatedAt: at,
	})
	return s.save(queueDoc, reindex(q))
}

func (s *FileStore) ListQueue(_ context.Context) ([]model.QueuedCommand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := []model.QueuedCommand{}
	if err := s.load(queueDoc, &q); err != nil {
		return nil, err
	}
	return reindex(q), nil
}

func (s *FileStore) MarkSent(_ context.Context, index int, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var q []model.QueuedCommand
	if err := s.load(queueDoc, &q); err != nil {
		return false, err
	}
	if index < 0 || index >= len(q) {
		return false, nil
	}
	q[index].Status = model.CommandSent
	return true, s.save(queueDoc, reindex(q))
}

func (s *FileStore) Close() error { return nil }

// load decodes a document into v; a missing document leaves v untouched.
func (s *FileStore) load(name string, v any) error {
	b, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// save writes v to a temp file and renames it over the document.
func (s *FileStore) save(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

func reindex(q []model.QueuedCommand) []model.QueuedCommand {
	for i := range q {
		q[i].Index = i
	}
	return q
}
