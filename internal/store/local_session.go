package store

import (
	"context"
	"database/sql"
	"fmt"

	"safetycopilot/internal/logging"
	"safetycopilot/internal/session"
)

var _ session.Service = (*LocalStore)(nil)

// CreateSession inserts an empty session.
func (s *LocalStore) CreateSession(ctx context.Context, key session.Key) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (app_name, user_id, id, created_at) VALUES (?, ?, ?, ?)",
		key.AppName, key.UserID, key.ID, formatTime(created),
	)
	if err != nil {
		logging.StoreError("Failed to create session %s: %v", key.ID, err)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%s/%s/%s: %w", key.AppName, key.UserID, key.ID, session.ErrExists)
	}

	logging.StoreDebug("Created session %s (app=%s user=%s)", key.ID, key.AppName, key.UserID)
	return &session.Session{AppName: key.AppName, UserID: key.UserID, ID: key.ID, CreatedAt: created}, nil
}

// GetSession loads a session with its full history.
func (s *LocalStore) GetSession(ctx context.Context, key session.Key) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := &session.Session{AppName: key.AppName, UserID: key.UserID, ID: key.ID}
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT created_at FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?",
		key.AppName, key.UserID, key.ID,
	).Scan(&createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s/%s/%s: %w", key.AppName, key.UserID, key.ID, session.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	out.CreatedAt = parseTime(createdAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, author, text, created_at FROM session_turns
		 WHERE app_name = ? AND user_id = ? AND session_id = ?
		 ORDER BY seq`,
		key.AppName, key.UserID, key.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t session.Turn
		var role, created string
		if err := rows.Scan(&role, &t.Author, &t.Text, &created); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Role = session.Role(role)
		t.CreatedAt = parseTime(created)
		out.Turns = append(out.Turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logging.StoreDebug("Loaded session %s with %d turns", key.ID, len(out.Turns))
	return out, nil
}

// AppendTurn appends turns in a single transaction.
func (s *LocalStore) AppendTurn(ctx context.Context, key session.Key, turns ...session.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx,
		"SELECT 1 FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?",
		key.AppName, key.UserID, key.ID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%s/%s/%s: %w", key.AppName, key.UserID, key.ID, session.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}

	for _, t := range turns {
		created := t.CreatedAt
		if created.IsZero() {
			created = s.now()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_turns (app_name, user_id, session_id, role, author, text, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			key.AppName, key.UserID, key.ID, string(t.Role), t.Author, t.Text, formatTime(created),
		); err != nil {
			logging.StoreError("Failed to append turn to %s: %v", key.ID, err)
			return fmt.Errorf("failed to append turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turns: %w", err)
	}
	logging.StoreDebug("Appended %d turns to session %s", len(turns), key.ID)
	return nil
}

// DeleteSession removes a session and its turns.
func (s *LocalStore) DeleteSession(ctx context.Context, key session.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM session_turns WHERE app_name = ? AND user_id = ? AND session_id = ?",
		key.AppName, key.UserID, key.ID,
	); err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?",
		key.AppName, key.UserID, key.ID,
	); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	logging.StoreDebug("Deleted session %s", key.ID)
	return nil
}
