// Archive storage - SQLite record of turns evicted from the bounded log

package storage

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/gliderlab/clawbee/memory"
	_ "github.com/mattn/go-sqlite3"
)

// ArchivedTurn is one turn in the archive. Unlike the live log, the archive
// is unbounded; it exists so trimming the context window loses nothing.
type ArchivedTurn struct {
	ID        int64     `json:"id"`
	TurnID    string    `json:"turn_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes the archive contents.
type Stats struct {
	Total  int            `json:"total"`
	ByRole map[string]int `json:"by_role"`
	Oldest time.Time      `json:"oldest,omitempty"`
	Newest time.Time      `json:"newest,omitempty"`
}

type Storage struct {
	db *sql.DB

	// Prepared statements for the hot paths
	stmtArchive *sql.Stmt
	stmtSearch  *sql.Stmt
	stmtRecent  *sql.Stmt
}

// New opens (or creates) the archive database.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path required")
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database connection failed: %v", err)
	}

	s := &Storage{db: db}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to set WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous: %v", err)
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %v", err)
	}
	if err := s.initPreparedStmts(); err != nil {
		log.Printf("[WARN] Failed to prepare statements: %v (continuing without prepared statements)", err)
	}

	return s, nil
}

func (s *Storage) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS turns_archive (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			turn_id TEXT UNIQUE,
			role TEXT NOT NULL,
			content TEXT,
			created_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_archive_created ON turns_archive(created_at)`)
	return err
}

func (s *Storage) initPreparedStmts() error {
	var err error
	if s.stmtArchive, err = s.db.Prepare("INSERT OR IGNORE INTO turns_archive (turn_id, role, content, created_at) VALUES (?, ?, ?, ?)"); err != nil {
		return fmt.Errorf("ArchiveTurns: %v", err)
	}
	if s.stmtSearch, err = s.db.Prepare("SELECT id, turn_id, role, content, created_at FROM turns_archive WHERE content LIKE ? COLLATE NOCASE ORDER BY id ASC LIMIT ?"); err != nil {
		return fmt.Errorf("Search: %v", err)
	}
	if s.stmtRecent, err = s.db.Prepare("SELECT id, turn_id, role, content, created_at FROM turns_archive ORDER BY id DESC LIMIT ?"); err != nil {
		return fmt.Errorf("Recent: %v", err)
	}
	return nil
}

// ArchiveTurns implements memory.Archiver.
func (s *Storage) ArchiveTurns(turns []memory.Turn) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt := tx.Stmt(s.stmtArchive)
	for _, t := range turns {
		if _, err := stmt.Exec(t.ID, t.Role, t.Content, t.Timestamp); err != nil {
			tx.Rollback()
			return fmt.Errorf("archive turn %s: %v", t.ID, err)
		}
	}
	return tx.Commit()
}

// Search returns archived turns whose content matches the query,
// case-insensitively, oldest first.
func (s *Storage) Search(query string, limit int) ([]ArchivedTurn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.stmtSearch.Query("%"+query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTurns(rows)
}

// Recent returns the newest archived turns, newest first.
func (s *Storage) Recent(limit int) ([]ArchivedTurn, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.stmtRecent.Query(limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTurns(rows)
}

func scanTurns(rows *sql.Rows) ([]ArchivedTurn, error) {
	var out []ArchivedTurn
	for rows.Next() {
		var t ArchivedTurn
		if err := rows.Scan(&t.ID, &t.TurnID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Stats reports archive totals by role.
func (s *Storage) Stats() (*Stats, error) {
	st := &Stats{ByRole: make(map[string]int)}

	rows, err := s.db.Query("SELECT role, COUNT(*) FROM turns_archive GROUP BY role")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		st.ByRole[role] = n
		st.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if st.Total > 0 {
		// Select the column directly: aggregates lose the declared type
		// the driver needs for time.Time conversion.
		s.db.QueryRow("SELECT created_at FROM turns_archive ORDER BY created_at ASC LIMIT 1").Scan(&st.Oldest)
		s.db.QueryRow("SELECT created_at FROM turns_archive ORDER BY created_at DESC LIMIT 1").Scan(&st.Newest)
	}
	return st, nil
}

// DB exposes the underlying handle for components sharing the archive file.
func (s *Storage) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Storage) Close() error {
	if s.stmtArchive != nil {
		s.stmtArchive.Close()
	}
	if s.stmtSearch != nil {
		s.stmtSearch.Close()
	}
	if s.stmtRecent != nil {
		s.stmtRecent.Close()
	}
	return s.db.Close()
}

// Ensure Storage implements memory.Archiver
var _ memory.Archiver = (*Storage)(nil)
