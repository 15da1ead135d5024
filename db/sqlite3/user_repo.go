package sqlite3

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/swiftie-vault/eastereggs/auth"
)

const (
	tableUsers = "users"

	userFieldID           = "id"
	userFieldUsername     = "username"
	userFieldPasswordHash = "password_hash"
	userFieldRegisteredAt = "registered_at"
)

var userColumns = []string{
	userFieldID,
	userFieldUsername,
	userFieldPasswordHash,
	userFieldRegisteredAt,
}

type UserRepository struct {
	db *sql.DB
}

var _ auth.UserRepository = (*UserRepository)(nil)

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row sq.RowScanner) (*auth.User, error) {
	user := new(auth.User)

	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.RegisteredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	return user, nil
}

// Insert stores a new account. A taken username yields
// UserAlreadyExistsError.
func (repo *UserRepository) Insert(ctx context.Context, user *auth.User) error {
	_, err := execRows(ctx, sq.Insert(tableUsers).
		Columns(userColumns...).
		Values(user.ID, user.Username, user.PasswordHash, user.RegisteredAt.UTC()).
		RunWith(repo.db))
	if err != nil {
		if isConstraintViolation(err) {
			return &auth.UserAlreadyExistsError{Username: user.Username}
		}

		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

func (repo *UserRepository) selectUser(where sq.Eq) sq.SelectBuilder {
	return sq.Select(userColumns...).
		From(tableUsers).
		Where(where).
		RunWith(repo.db)
}

func (repo *UserRepository) Find(ctx context.Context, userID string) (*auth.User, error) {
	return queryRow(ctx, repo.selectUser(sq.Eq{userFieldID: userID}), scanUser, &auth.UserNotFoundError{ID: userID})
}

func (repo *UserRepository) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	return queryRow(
		ctx,
		repo.selectUser(sq.Eq{userFieldUsername: username}),
		scanUser,
		&auth.UserByUsernameNotFoundError{Username: username},
	)
}

func (repo *UserRepository) ListUsernames(ctx context.Context) ([]string, error) {
	rows, err := sq.Select(userFieldUsername).
		From(tableUsers).
		OrderBy(userFieldUsername).
		RunWith(repo.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query usernames: %w", err)
	}

	defer closeRows(ctx, rows)

	usernames := []string{}

	for rows.Next() {
		var username string

		err = rows.Scan(&username)
		if err != nil {
			return nil, fmt.Errorf("failed to scan username: %w", err)
		}

		usernames = append(usernames, username)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate usernames: %w", err)
	}

	return usernames, nil
}
