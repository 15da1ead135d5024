package sqlite3

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/swiftie-vault/eastereggs/auth"
)

const (
	tableSessions = "sessions"

	sessionFieldID        = "id"
	sessionFieldUserID    = "user_id"
	sessionFieldCreatedAt = "created_at"
	sessionFieldExpiresAt = "expires_at"
)

var sessionColumns = []string{
	sessionFieldID,
	sessionFieldUserID,
	sessionFieldCreatedAt,
	sessionFieldExpiresAt,
}

type SessionRepository struct {
	db *sql.DB
}

var _ auth.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSession(row sq.RowScanner) (*auth.Session, error) {
	session := new(auth.Session)

	err := row.Scan(&session.ID, &session.UserID, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	return session, nil
}

func (repo *SessionRepository) Insert(ctx context.Context, session *auth.Session) error {
	_, err := execRows(ctx, sq.Insert(tableSessions).
		Columns(sessionColumns...).
		Values(session.ID, session.UserID, session.CreatedAt.UTC(), session.ExpiresAt.UTC()).
		RunWith(repo.db))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

func (repo *SessionRepository) Find(ctx context.Context, id string) (*auth.Session, error) {
	q := sq.Select(sessionColumns...).
		From(tableSessions).
		Where(sq.Eq{sessionFieldID: id}).
		RunWith(repo.db)

	return queryRow(ctx, q, scanSession, &auth.SessionNotFoundError{ID: id})
}

func (repo *SessionRepository) Delete(ctx context.Context, id string) error {
	deleted, err := execRows(ctx, sq.Delete(tableSessions).
		Where(sq.Eq{sessionFieldID: id}).
		RunWith(repo.db))
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if deleted == 0 {
		return &auth.SessionNotFoundError{ID: id}
	}

	return nil
}

// DeleteExpired removes every session whose expiry is at or before now.
func (repo *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	deleted, err := execRows(ctx, sq.Delete(tableSessions).
		Where(sq.LtOrEq{sessionFieldExpiresAt: now.UTC()}).
		RunWith(repo.db))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	return deleted, nil
}
