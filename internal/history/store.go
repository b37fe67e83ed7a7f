// Package history implements the append-only play history: one JSON encoded
// track envelope per line.
package history

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/mikey-austin/nowplaying/pkg/np"
)

// DefaultPath is the history file used when none is configured.
const DefaultPath = "history.log"

// Store is a line-delimited history file. A missing file reads as empty and
// is created by the first Append.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store backed by path.
func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path required")
	}
	return &Store{path: path}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Append writes env as a single line and syncs the file. If the file ends
// in a torn line from an earlier crash, the torn line is terminated first
// so it cannot swallow the new record.
func (s *Store) Append(env np.TrackEnvelope) error {
	line, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	torn, err := endsTorn(s.path)
	if err != nil {
		return err
	}

	buf := make([]byte, 0, len(line)+2)
	if torn {
		buf = append(buf, '\n')
	}
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return f.Sync()
}

// Scan calls fn for every complete, parseable record in append order until
// fn returns false. Unterminated and malformed lines are skipped. A missing
// file is not an error.
func (s *Store) Scan(fn func(np.TrackEnvelope) bool) error {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				// anything left without a newline is a write in progress
				return nil
			}
			return err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var env np.TrackEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			continue
		}
		if !fn(env) {
			return nil
		}
	}
}

// Count returns how many records carry trackID.
func (s *Store) Count(trackID string) (int, error) {
	count := 0
	err := s.Scan(func(env np.TrackEnvelope) bool {
		if env.TrackID == trackID {
			count++
		}
		return true
	})
	return count, err
}

// Tail returns the last n records, oldest first. n <= 0 returns everything.
func (s *Store) Tail(n int) ([]np.TrackEnvelope, error) {
	out := []np.TrackEnvelope{}
	err := s.Scan(func(env np.TrackEnvelope) bool {
		out = append(out, env)
		if n > 0 && len(out) > n {
			out = out[1:]
		}
		return true
	})
	return out, err
}

func endsTorn(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}
