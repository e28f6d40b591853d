package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/odvcencio/webrunner/pkg/plan"
)

// ErrSessionNotFound reports an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

const sessionColumns = `session_id, website_url, prompt, plan_json, status,
	created_at, started_at, completed_at, duration_sec,
	success_count, fail_count, screenshots_json, error_summary`

// SaveSession inserts a new session record with retry logic for transient
// database locks.
func (s *Store) SaveSession(ctx context.Context, session *plan.Session) error {
	planJSON, screenshotsJSON, err := encodeSession(session)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err = s.execRetry(ctx, query,
		session.ID,
		session.WebsiteURL,
		session.Prompt,
		planJSON,
		string(session.Status),
		session.CreatedAt,
		nullableTime(session.StartedAt),
		nullableTime(session.CompletedAt),
		session.DurationSec,
		session.SuccessCount,
		session.FailCount,
		screenshotsJSON,
		session.ErrorSummary,
	)
	if err != nil {
		return err
	}
	s.notify(newEvent(EventSessionCreated, session.ID, *session))
	return nil
}

// UpdateSession overwrites the stored record. The periodic-flush and
// final-write race within one run resolves last-write-wins, which is safe
// because both originate from the run's single thread of control.
func (s *Store) UpdateSession(ctx context.Context, session *plan.Session) error {
	planJSON, screenshotsJSON, err := encodeSession(session)
	if err != nil {
		return err
	}

	query := `
		UPDATE sessions
		SET website_url = ?, prompt = ?, plan_json = ?, status = ?,
		    started_at = ?, completed_at = ?, duration_sec = ?,
		    success_count = ?, fail_count = ?, screenshots_json = ?, error_summary = ?
		WHERE session_id = ?
	`
	err = s.execRetry(ctx, query,
		session.WebsiteURL,
		session.Prompt,
		planJSON,
		string(session.Status),
		nullableTime(session.StartedAt),
		nullableTime(session.CompletedAt),
		session.DurationSec,
		session.SuccessCount,
		session.FailCount,
		screenshotsJSON,
		session.ErrorSummary,
		session.ID,
	)
	if err != nil {
		return err
	}
	s.notify(newEvent(EventSessionUpdated, session.ID, *session))
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*plan.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = ?`
	session, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, err
}

// UpdateSessionStatus updates only the status column.
func (s *Store) UpdateSessionStatus(ctx context.Context, id string, status plan.SessionStatus) error {
	err := s.execRetry(ctx, "UPDATE sessions SET status = ? WHERE session_id = ?", string(status), id)
	if err != nil {
		return err
	}
	s.notify(newEvent(EventSessionUpdated, id, status))
	return nil
}

// DeleteSession removes a session record, reporting whether it existed.
func (s *Store) DeleteSession(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	s.notify(newEvent(EventSessionDeleted, id, nil))
	return true, nil
}

// ListSessions returns one page of sessions, newest first, plus the total
// record count. Page numbering starts at 1.
func (s *Store) ListSessions(ctx context.Context, page, perPage int) ([]plan.Session, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sessions := []plan.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, total, rows.Err()
}

// Statistics summarizes stored sessions for the dashboard endpoint.
type Statistics struct {
	TotalSessions  int                        `json:"total_sessions"`
	ByStatus       map[plan.SessionStatus]int `json:"by_status"`
	AvgDurationSec float64                    `json:"avg_duration_sec"`
	TotalActions   int                        `json:"total_actions"`
}

// SessionStatistics aggregates counts and durations across all sessions.
func (s *Store) SessionStatistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{ByStatus: make(map[plan.SessionStatus]int)}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM sessions GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.ByStatus[plan.SessionStatus(status)] = count
		stats.TotalSessions += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(duration_sec), 0),
		       COALESCE(SUM(success_count + fail_count), 0)
		FROM sessions
		WHERE completed_at IS NOT NULL
	`).Scan(&stats.AvgDurationSec, &stats.TotalActions)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// execRetry executes a write with exponential backoff on SQLITE_BUSY/LOCKED.
func (s *Store) execRetry(ctx context.Context, query string, args ...any) error {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		_, err = s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}
		if isBusyError(err) && attempt < maxRetries {
			time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
			continue
		}
		return err
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*plan.Session, error) {
	var session plan.Session
	var planJSON, screenshotsJSON, status string
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&session.ID,
		&session.WebsiteURL,
		&session.Prompt,
		&planJSON,
		&status,
		&session.CreatedAt,
		&startedAt,
		&completedAt,
		&session.DurationSec,
		&session.SuccessCount,
		&session.FailCount,
		&screenshotsJSON,
		&session.ErrorSummary,
	)
	if err != nil {
		return nil, err
	}

	session.Status = plan.SessionStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		session.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		session.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(planJSON), &session.Plan); err != nil {
		return nil, fmt.Errorf("decode plan for session %s: %w", session.ID, err)
	}
	if err := json.Unmarshal([]byte(screenshotsJSON), &session.Screenshots); err != nil {
		return nil, fmt.Errorf("decode screenshots for session %s: %w", session.ID, err)
	}
	return &session, nil
}

func encodeSession(session *plan.Session) (string, string, error) {
	planJSON, err := json.Marshal(session.Plan)
	if err != nil {
		return "", "", fmt.Errorf("encode plan: %w", err)
	}
	screenshots := session.Screenshots
	if screenshots == nil {
		screenshots = []string{}
	}
	screenshotsJSON, err := json.Marshal(screenshots)
	if err != nil {
		return "", "", fmt.Errorf("encode screenshots: %w", err)
	}
	return string(planJSON), string(screenshotsJSON), nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
