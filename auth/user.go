package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	MaxUsernameLength = 50
	MinPasswordLength = 6
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	RegisteredAt time.Time `json:"registered_at"`
}

type UserRepository interface {
	Insert(ctx context.Context, user *User) (err error)
	Find(ctx context.Context, userID string) (user *User, err error)
	FindByUsername(ctx context.Context, username string) (user *User, err error)
	ListUsernames(ctx context.Context) (usernames []string, err error)
}

type UserNotFoundError struct {
	ID string
}

func (err UserNotFoundError) Error() string {
	return fmt.Sprintf("user with id %q not found", err.ID)
}

type UserByUsernameNotFoundError struct {
	Username string
}

func (err UserByUsernameNotFoundError) Error() string {
	return fmt.Sprintf("user with username %q not found", err.Username)
}

type UserAlreadyExistsError struct {
	Username string
}

func (err UserAlreadyExistsError) Error() string {
	return fmt.Sprintf("user with username %q already exists", err.Username)
}

type InvalidUsernameError struct {
	Reason string
}

func (err InvalidUsernameError) Error() string {
	return "invalid username: " + err.Reason
}

type InvalidPasswordError struct {
	Reason string
}

func (err InvalidPasswordError) Error() string {
	return "invalid password: " + err.Reason
}

var ErrCurrentUserNotFound = errors.New("current user not found")
