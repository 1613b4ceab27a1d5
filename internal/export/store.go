// Package export stores raw SMS export files uploaded by the device and
// turns them into structured records.
package export

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmehdipour/sms-relay/internal/apperr"
	"github.com/jmehdipour/sms-relay/internal/model"
)

const (
	DefaultType   = "unknown"
	timeLayout    = "20060102_150405"
	fileExtension = ".txt"
)

var validType = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Store keeps export files as <prefix>_<type>_<YYYYMMDD_HHMMSS>.txt under dir.
type Store struct {
	dir      string
	prefix   string
	maxBytes int64

	mu  sync.Mutex
	now func() time.Time
}

func NewStore(dir, prefix string, maxBytes int64) (*Store, error) {
	if prefix == "" {
		prefix = "sms"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Storage("create export dir", err)
	}
	return &Store{
		dir:      dir,
		prefix:   prefix,
		maxBytes: maxBytes,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// NormalizeType applies the default and rejects types that would make the file prefix ambiguous.
func NormalizeType(typ string) (string, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return DefaultType, nil
	}
	if !validType.MatchString(typ) {
		return "", &apperr.ValidationError{
			Fields:  []string{"type"},
			Message: "invalid export type: letters, digits and '-' only",
		}
	}
	return typ, nil
}

func (s *Store) fileName(typ string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s%s", s.prefix, typ, at.Format(timeLayout), fileExtension)
}

// Save writes r as the newest export of typ and returns the stored file name.
// A second upload of the same type within one second replaces the first.
func (s *Store) Save(typ string, r io.Reader) (string, error) {
	typ, err := NormalizeType(typ)
	if err != nil {
		return "", err
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return "", apperr.Invalid("read upload: %v", err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return "", &apperr.ValidationError{
			Fields:  []string{"file"},
			Message: fmt.Sprintf("file too large: max %d bytes", s.maxBytes),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.fileName(typ, s.now())
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", apperr.Storage("save export", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", apperr.Storage("save export", err)
	}
	if err := tmp.Close(); err != nil {
		return "", apperr.Storage("save export", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", apperr.Storage("save export", err)
	}
	return name, nil
}

// names returns the export files of typ, oldest first.
func (s *Store) names(typ string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("list exports", err)
	}

	prefix := s.prefix + "_" + typ + "_"
	var out []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, prefix) || !strings.HasSuffix(n, fileExtension) {
			continue
		}
		// the remainder must be a timestamp, so "a" never matches "a-b" files
		stamp := strings.TrimSuffix(strings.TrimPrefix(n, prefix), fileExtension)
		if _, err := time.Parse(timeLayout, stamp); err != nil {
			continue
		}
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// Latest returns the name and content of the newest export of typ, or apperr.ErrNotFound.
func (s *Store) Latest(typ string) (string, []byte, error) {
	typ, err := NormalizeType(typ)
	if err != nil {
		return "", nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.names(typ)
	if err != nil {
		return "", nil, err
	}
	if len(names) == 0 {
		return "", nil, apperr.ErrNotFound
	}

	name := names[len(names)-1]
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return "", nil, apperr.Storage("read export", err)
	}
	return name, data, nil
}

// Parsed returns the records of the newest export of typ; empty when none exists.
func (s *Store) Parsed(typ string) ([]model.ExportRecord, error) {
	_, data, err := s.Latest(typ)
	if errors.Is(err, apperr.ErrNotFound) {
		return []model.ExportRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(string(data)), nil
}
