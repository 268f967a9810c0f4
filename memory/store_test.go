package memory

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func tempStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "conversations.json")
}

func TestAppendAndContext(t *testing.T) {
	s := Open(tempStorePath(t), 100)

	if _, err := s.Append("user", "hi"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := s.Append("assistant", "hello!"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	turns := s.Context(10)
	if len(turns) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != "user" || turns[0].Content != "hi" {
		t.Errorf("Expected user 'hi' first, got %s %q", turns[0].Role, turns[0].Content)
	}
	if turns[1].Role != "assistant" || turns[1].Content != "hello!" {
		t.Errorf("Expected assistant 'hello!' second, got %s %q", turns[1].Role, turns[1].Content)
	}
}

func TestBoundedLog(t *testing.T) {
	s := Open(tempStorePath(t), 100)

	for i := 0; i < 150; i++ {
		if _, err := s.Append("user", "message "+strconv.Itoa(i)); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	if s.Len() != 100 {
		t.Fatalf("Expected 100 turns after trim, got %d", s.Len())
	}

	turns := s.Turns()
	if turns[0].Content != "message 50" {
		t.Errorf("Expected oldest surviving turn 'message 50', got %q", turns[0].Content)
	}
	if turns[99].Content != "message 149" {
		t.Errorf("Expected newest turn 'message 149', got %q", turns[99].Content)
	}
}

func TestRoundTripPersistence(t *testing.T) {
	path := tempStorePath(t)

	s := Open(path, 100)
	s.Append("user", "remember me")
	s.Append("assistant", "noted")

	reopened := Open(path, 100)
	if reopened.Len() != 2 {
		t.Fatalf("Expected 2 turns after reopen, got %d", reopened.Len())
	}
	turns := reopened.Turns()
	if turns[0].Content != "remember me" {
		t.Errorf("Expected 'remember me', got %q", turns[0].Content)
	}
	if turns[0].ID == "" {
		t.Error("Expected turn ID to survive the round trip")
	}
	if turns[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to survive the round trip")
	}
}

func TestCorruptFileStartsFresh(t *testing.T) {
	path := tempStorePath(t)
	os.MkdirAll(filepath.Dir(path), 0o755)
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := Open(path, 100)
	if s.Len() != 0 {
		t.Fatalf("Expected empty store for corrupt file, got %d turns", s.Len())
	}

	// store must remain appendable after corruption
	if _, err := s.Append("user", "fresh start"); err != nil {
		t.Fatalf("Append after corruption failed: %v", err)
	}
	reopened := Open(path, 100)
	if reopened.Len() != 1 {
		t.Errorf("Expected 1 turn after recovery, got %d", reopened.Len())
	}
}

func TestOversizedFileTrimmedOnOpen(t *testing.T) {
	path := tempStorePath(t)

	s := Open(path, 200)
	for i := 0; i < 150; i++ {
		s.Append("user", "m"+strconv.Itoa(i))
	}

	// reopen with a smaller cap
	trimmed := Open(path, 100)
	if trimmed.Len() != 100 {
		t.Fatalf("Expected trim to 100 on open, got %d", trimmed.Len())
	}
	if trimmed.Turns()[0].Content != "m50" {
		t.Errorf("Expected oldest turn 'm50', got %q", trimmed.Turns()[0].Content)
	}
}

func TestContextWindow(t *testing.T) {
	s := Open(tempStorePath(t), 100)
	for i := 0; i < 30; i++ {
		s.Append("user", "m"+strconv.Itoa(i))
	}

	ctx := s.Context(10)
	if len(ctx) != 10 {
		t.Fatalf("Expected 10 turns, got %d", len(ctx))
	}
	if ctx[0].Content != "m20" {
		t.Errorf("Expected window to start at 'm20', got %q", ctx[0].Content)
	}
	if ctx[9].Content != "m29" {
		t.Errorf("Expected window to end at 'm29', got %q", ctx[9].Content)
	}

	// asking for more than stored returns everything
	all := s.Context(100)
	if len(all) != 30 {
		t.Errorf("Expected 30 turns, got %d", len(all))
	}
}

func TestContextReturnsCopy(t *testing.T) {
	s := Open(tempStorePath(t), 100)
	s.Append("user", "original")

	ctx := s.Context(1)
	ctx[0].Content = "mutated"

	if s.Turns()[0].Content != "original" {
		t.Error("Mutating the returned slice changed the stored log")
	}
}

func TestSearch(t *testing.T) {
	s := Open(tempStorePath(t), 100)
	s.Append("user", "Tell me about Go generics")
	s.Append("assistant", "Generics arrived in Go 1.18")
	s.Append("user", "what about rust")

	hits := s.Search("GENERICS")
	if len(hits) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(hits))
	}
	if !strings.Contains(hits[0].Content, "generics") {
		t.Errorf("Unexpected first hit: %q", hits[0].Content)
	}

	if hits := s.Search("python"); len(hits) != 0 {
		t.Errorf("Expected no hits, got %d", len(hits))
	}
}

func TestClear(t *testing.T) {
	path := tempStorePath(t)
	s := Open(path, 100)
	s.Append("user", "to be removed")

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Expected empty store, got %d turns", s.Len())
	}

	if reopened := Open(path, 100); reopened.Len() != 0 {
		t.Errorf("Expected clear to persist, got %d turns", reopened.Len())
	}
}

type recordingArchiver struct {
	archived []Turn
	fail     bool
}

func (r *recordingArchiver) ArchiveTurns(turns []Turn) error {
	if r.fail {
		return os.ErrPermission
	}
	r.archived = append(r.archived, turns...)
	return nil
}

func TestEvictedTurnsGoToArchive(t *testing.T) {
	s := Open(tempStorePath(t), 5)
	archiver := &recordingArchiver{}
	s.SetArchive(archiver)

	for i := 0; i < 8; i++ {
		s.Append("user", "m"+strconv.Itoa(i))
	}

	if len(archiver.archived) != 3 {
		t.Fatalf("Expected 3 archived turns, got %d", len(archiver.archived))
	}
	if archiver.archived[0].Content != "m0" {
		t.Errorf("Expected 'm0' archived first, got %q", archiver.archived[0].Content)
	}
	if s.Len() != 5 {
		t.Errorf("Expected 5 live turns, got %d", s.Len())
	}
}

func TestArchiveFailureDoesNotBlockAppend(t *testing.T) {
	s := Open(tempStorePath(t), 2)
	s.SetArchive(&recordingArchiver{fail: true})

	for i := 0; i < 4; i++ {
		if _, err := s.Append("user", "m"+strconv.Itoa(i)); err != nil {
			t.Fatalf("Append %d failed despite best-effort archive: %v", i, err)
		}
	}
	if s.Len() != 2 {
		t.Errorf("Expected 2 turns, got %d", s.Len())
	}
}

func TestNewTurnIDFormat(t *testing.T) {
	turn := NewTurn("user", "hi")
	if !strings.HasPrefix(turn.ID, "msg_") {
		t.Errorf("Expected msg_ prefix, got %q", turn.ID)
	}
	other := NewTurn("user", "hi")
	if turn.ID == other.ID {
		t.Error("Expected unique IDs for distinct turns")
	}
}

func TestAppendSurfacesWriteFailure(t *testing.T) {
	path := tempStorePath(t)
	store := Open(path, 10)

	if _, err := store.Append("user", "first"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// a directory at the log path makes the rename fail
	os.Remove(path)
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("Failed to block log path: %v", err)
	}

	_, err := store.Append("user", "second")
	if err == nil {
		t.Fatal("Expected a storage error when the log cannot be written")
	}
	if !strings.Contains(err.Error(), "save conversation log") {
		t.Errorf("Expected a save error, got %v", err)
	}

	// the in-memory log keeps the turn even though persistence failed
	if store.Len() != 2 {
		t.Errorf("Expected 2 in-memory turns, got %d", store.Len())
	}
	turns := store.Turns()
	if turns[1].Content != "second" {
		t.Errorf("Expected failed-persist turn in memory, got %q", turns[1].Content)
	}
}
