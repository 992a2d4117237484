package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Upsert inserts or replaces the session row keyed by user. A resumed user
// gets a fresh session id, so any row left under a different id is removed
// first; its message log cascades away with it. Without that, message
// inserts for the new id would violate the session FK.
func (r *PGRepo) Upsert(ctx context.Context, s Session) error {
	const supersede = `
DELETE FROM onboarding_sessions WHERE user_id = $1 AND id <> $2`
	const query = `
INSERT INTO onboarding_sessions (
    id,
    user_id,
    kind,
    step,
    website_url,
    document_key,
    question_cursor,
    answers,
    completed_at,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (user_id) DO UPDATE SET
    step = EXCLUDED.step,
    website_url = EXCLUDED.website_url,
    document_key = EXCLUDED.document_key,
    question_cursor = EXCLUDED.question_cursor,
    answers = EXCLUDED.answers,
    completed_at = EXCLUDED.completed_at,
    updated_at = EXCLUDED.updated_at`

	var answers any
	if len(s.Answers) > 0 {
		raw, err := json.Marshal(s.Answers)
		if err != nil {
			return err
		}
		answers = raw
	}

	var websiteURL sql.NullString
	if s.WebsiteURL != "" {
		websiteURL = sql.NullString{String: s.WebsiteURL, Valid: true}
	}
	var documentKey sql.NullString
	if s.DocumentKey != "" {
		documentKey = sql.NullString{String: s.DocumentKey, Valid: true}
	}
	var completedAt sql.NullTime
	if s.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *s.CompletedAt, Valid: true}
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, supersede, s.UserID, s.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(
		ctx,
		query,
		s.ID,
		s.UserID,
		s.Kind,
		s.Step,
		websiteURL,
		documentKey,
		s.QuestionCursor,
		answers,
		completedAt,
		s.CreatedAt,
		s.UpdatedAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// GetByUser returns the session row for a user.
func (r *PGRepo) GetByUser(ctx context.Context, userID string) (Session, error) {
	const query = `
SELECT id, user_id, kind, step, website_url, document_key, question_cursor, answers, completed_at, created_at, updated_at
FROM onboarding_sessions
WHERE user_id = $1
LIMIT 1`

	var s Session
	var websiteURL sql.NullString
	var documentKey sql.NullString
	var answersRaw []byte
	var completedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, userID).Scan(
		&s.ID,
		&s.UserID,
		&s.Kind,
		&s.Step,
		&websiteURL,
		&documentKey,
		&s.QuestionCursor,
		&answersRaw,
		&completedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	if websiteURL.Valid {
		s.WebsiteURL = websiteURL.String
	}
	if documentKey.Valid {
		s.DocumentKey = documentKey.String
	}
	if len(answersRaw) > 0 {
		if err := json.Unmarshal(answersRaw, &s.Answers); err != nil {
			return Session{}, err
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		s.CompletedAt = &t
	}
	return s, nil
}

// AppendMessage inserts one chat message with the next sequence number.
func (r *PGRepo) AppendMessage(ctx context.Context, sessionID string, msg Message) error {
	const query = `
INSERT INTO onboarding_messages (session_id, seq, role, content, created_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.DB.ExecContext(ctx, query, sessionID, msg.ID, msg.Role, msg.Content, msg.At)
	return err
}

// ListMessages returns the ordered chat log for a session.
func (r *PGRepo) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	const query = `
SELECT seq, role, content, created_at
FROM onboarding_messages
WHERE session_id = $1
ORDER BY seq ASC`

	rows, err := r.DB.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &msg.At); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// DeleteByUser removes the session row; messages cascade.
func (r *PGRepo) DeleteByUser(ctx context.Context, userID string) error {
	const query = `DELETE FROM onboarding_sessions WHERE user_id = $1`
	_, err := r.DB.ExecContext(ctx, query, userID)
	return err
}

var _ Repo = (*PGRepo)(nil)
