// Package sqlite implements the state store on a single SQLite database,
// one row per session holding the serialized record.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/datakettle/dp-composer/internal/domain"
	"github.com/datakettle/dp-composer/internal/store"
)

// Store is a SQLite implementation of the state store.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New opens (or creates) the database at dsn.
func New(dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, now: time.Now}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			last_updated TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(last_updated)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

type sessionRow struct {
	SessionID   string    `db:"session_id"`
	State       string    `db:"state"`
	CreatedAt   time.Time `db:"created_at"`
	LastUpdated time.Time `db:"last_updated"`
}

func (s *Store) Load(ctx context.Context, sessionID string) (*domain.ConversationState, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT session_id, state, created_at, last_updated FROM sessions WHERE session_id = ?`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewConversationState(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	state, ok := store.Decode([]byte(row.State), sessionID)
	if !ok {
		return domain.NewConversationState(sessionID), nil
	}
	return state, nil
}

func (s *Store) Save(ctx context.Context, state *domain.ConversationState) error {
	if state == nil || state.SessionID == "" {
		return domain.ErrEmptySessionID
	}

	store.Stamp(state, s.now())

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", state.SessionID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, state, created_at, last_updated)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			state = excluded.state,
			created_at = excluded.created_at,
			last_updated = excluded.last_updated`,
		state.SessionID, string(raw), state.CreatedAt, state.LastUpdated)
	if err != nil {
		return fmt.Errorf("save session %s: %w", state.SessionID, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]store.SessionInfo, error) {
	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT session_id, state, created_at, last_updated FROM sessions ORDER BY last_updated DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	infos := []store.SessionInfo{}
	var corrupted []string
	for _, row := range rows {
		state, ok := store.Decode([]byte(row.State), row.SessionID)
		if !ok {
			corrupted = append(corrupted, row.SessionID)
			continue
		}
		infos = append(infos, store.Info(state))
	}

	for _, id := range corrupted {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id); err != nil {
			return infos, fmt.Errorf("clean corrupted session %s: %w", id, err)
		}
	}

	return infos, nil
}

func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return affected > 0, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
