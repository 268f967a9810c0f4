// Package memory provides the bounded, persistent conversation log
package memory

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Turn is one recorded message. Turns are immutable once appended.
type Turn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // system | user | assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn creates a turn with a fresh id.
func NewTurn(role, content string) Turn {
	return Turn{
		ID:        fmt.Sprintf("msg_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8]),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// logFile is the persisted JSON shape. The context sequence is carried
// through opaquely for older clients; unknown extra fields are ignored.
type logFile struct {
	Conversations []Turn            `json:"conversations"`
	Context       []json.RawMessage `json:"context"`
}

// Archiver receives turns evicted from the bounded log.
type Archiver interface {
	ArchiveTurns(turns []Turn) error
}

// Store is an append-only conversation log with FIFO trimming, persisted as
// a single JSON file. All mutations are serialized through one mutex so
// concurrent Handle calls never lose a read-modify-write cycle.
type Store struct {
	mu      sync.Mutex
	path    string
	max     int
	turns   []Turn
	context []json.RawMessage
	archive Archiver
}

// Open loads the store from path. A missing, unreadable, or corrupt file
// yields an empty log; corruption must never block startup.
func Open(path string, maxMessages int) *Store {
	if maxMessages <= 0 {
		maxMessages = 100
	}
	s := &Store{path: path, max: maxMessages}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var f logFile
	if err := json.Unmarshal(data, &f); err != nil {
		log.Printf("[WARN] memory: %s is corrupt, starting fresh: %v", path, err)
		return s
	}
	s.turns = f.Conversations
	s.context = f.Context
	if len(s.turns) > s.max {
		s.turns = s.turns[len(s.turns)-s.max:]
	}
	return s
}

// SetArchive attaches an archive for evicted turns. Archival is best effort.
func (s *Store) SetArchive(a Archiver) {
	s.mu.Lock()
	s.archive = a
	s.mu.Unlock()
}

// Append adds a turn to the end of the log, trims to the retention cap, and
// persists synchronously. Write failures are returned to the caller; the
// in-memory log is already updated when that happens.
func (s *Store) Append(role, content string) (Turn, error) {
	t := NewTurn(role, content)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, t)
	if len(s.turns) > s.max {
		evicted := make([]Turn, len(s.turns)-s.max)
		copy(evicted, s.turns[:len(s.turns)-s.max])
		s.turns = s.turns[len(s.turns)-s.max:]
		if s.archive != nil {
			if err := s.archive.ArchiveTurns(evicted); err != nil {
				log.Printf("[WARN] memory: archive failed: %v", err)
			}
		}
	}
	return t, s.persistLocked()
}

// Context returns the last n turns in original order. The result is a copy;
// mutating it cannot touch the stored log.
func (s *Store) Context(n int) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.turns) {
		n = len(s.turns)
	}
	out := make([]Turn, n)
	copy(out, s.turns[len(s.turns)-n:])
	return out
}

// Turns returns a copy of the whole log.
func (s *Store) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of stored turns.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Search returns turns whose content contains the query, case-insensitively,
// in original order. Linear scan; the log is bounded.
func (s *Store) Search(query string) []Turn {
	q := strings.ToLower(query)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Turn
	for _, t := range s.turns {
		if strings.Contains(strings.ToLower(t.Content), q) {
			out = append(out, t)
		}
	}
	return out
}

// Clear resets the log to empty and persists immediately.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.context = nil
	return s.persistLocked()
}

// persistLocked writes the log via a temp file and rename so a crash
// mid-write never leaves a truncated file. Caller holds s.mu.
func (s *Store) persistLocked() error {
	ctxSeq := s.context
	if ctxSeq == nil {
		ctxSeq = []json.RawMessage{} // older clients expect an array, not null
	}
	data, err := json.MarshalIndent(logFile{
		Conversations: append([]Turn{}, s.turns...),
		Context:       ctxSeq,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("save conversation log: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("save conversation log: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("save conversation log: %w", err)
	}
	return nil
}
