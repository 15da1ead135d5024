package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	authcontext "github.com/swiftie-vault/eastereggs/auth/context"
	"golang.org/x/crypto/bcrypt"
)

const DefaultSessionTTL = 30 * 24 * time.Hour

type Service struct {
	userRepo    UserRepository
	sessionRepo SessionRepository
	tokens      *Tokens
	sessionTTL  time.Duration
	bloomFilter *BloomFilter
	now         func() time.Time
}

func NewService(userRepo UserRepository, sessionRepo SessionRepository, tokens *Tokens, sessionTTL time.Duration) *Service {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}

	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		tokens:      tokens,
		sessionTTL:  sessionTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// LoadBloomFilter seeds the username filter from the repository.
func (svc *Service) LoadBloomFilter(ctx context.Context, minCapacity uint, falsePositiveRate float64) error {
	usernames, err := svc.userRepo.ListUsernames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list usernames for bloom filter: %w", err)
	}

	bf := NewBloomFilter(max(uint(len(usernames)), minCapacity), falsePositiveRate)
	for _, u := range usernames {
		bf.Add(u)
	}

	svc.bloomFilter = bf

	slog.InfoContext(ctx, "username bloom filter loaded", "usernames", len(usernames))

	return nil
}

func HashPassword(password string) (string, error) {
	bcryptHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(bcryptHash), nil
}

// NormalizeUsername trims surrounding whitespace and checks the length limits.
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)

	switch {
	case username == "":
		return "", &InvalidUsernameError{Reason: "username is required"}
	case utf8.RuneCountInString(username) > MaxUsernameLength:
		return "", &InvalidUsernameError{Reason: fmt.Sprintf("username must be at most %d characters", MaxUsernameLength)}
	}

	return username, nil
}

func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return &InvalidPasswordError{Reason: fmt.Sprintf("password must be at least %d characters", MinPasswordLength)}
	}

	return nil
}

func (svc *Service) Register(ctx context.Context, username, password string) (*User, error) {
	username, err := NormalizeUsername(username)
	if err != nil {
		return nil, err
	}

	err = ValidatePassword(password)
	if err != nil {
		return nil, err
	}

	err = svc.ensureUsernameAvailable(ctx, username)
	if err != nil {
		return nil, err
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		RegisteredAt: svc.now(),
	}

	err = svc.userRepo.Insert(ctx, user)
	if err != nil {
		var alreadyExistsErr *UserAlreadyExistsError
		if errors.As(err, &alreadyExistsErr) {
			svc.rememberUsername(username)

			return nil, alreadyExistsErr
		}

		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	svc.rememberUsername(username)

	user.PasswordHash = ""

	return user, nil
}

// ensureUsernameAvailable skips the lookup when the bloom filter rules the
// name out. A positive filter answer is confirmed by the repository.
func (svc *Service) ensureUsernameAvailable(ctx context.Context, username string) error {
	if svc.bloomFilter != nil && !svc.bloomFilter.Test(username) {
		return nil
	}

	_, err := svc.userRepo.FindByUsername(ctx, username)
	if err == nil {
		return &UserAlreadyExistsError{Username: username}
	}

	var userByUsernameNotFoundErr *UserByUsernameNotFoundError
	if !errors.As(err, &userByUsernameNotFoundErr) {
		return fmt.Errorf("failed to check if username already exists: %w", err)
	}

	return nil
}

func (svc *Service) rememberUsername(username string) {
	if svc.bloomFilter != nil {
		svc.bloomFilter.Add(username)
	}
}

var ErrInvalidCredentials = errors.New("invalid credentials")

type LoginResult struct {
	User    *User
	Session *Session
	Token   string
}

func (svc *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := svc.userRepo.FindByUsername(ctx, username)
	if err != nil {
		var userByUsernameNotFoundErr *UserByUsernameNotFoundError
		if errors.As(err, &userByUsernameNotFoundErr) {
			return nil, ErrInvalidCredentials
		}

		return nil, fmt.Errorf("failed to find user by username: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}

		return nil, fmt.Errorf("failed to compare password hash: %w", err)
	}

	timeNow := svc.now()

	session := &Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: timeNow,
		ExpiresAt: timeNow.Add(svc.sessionTTL),
	}

	err = svc.sessionRepo.Insert(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, err := svc.tokens.Issue(session)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	user.PasswordHash = ""

	return &LoginResult{User: user, Session: session, Token: token}, nil
}

func (svc *Service) Logout(ctx context.Context, sessionID string) error {
	err := svc.sessionRepo.Delete(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// GetSession returns a live session. Expired sessions are removed on sight.
func (svc *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	session, err := svc.sessionRepo.Find(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	if session.Expired(svc.now()) {
		err = svc.sessionRepo.Delete(ctx, sessionID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to delete expired session", "sessionId", sessionID, "error", err)
		}

		return nil, &SessionExpiredError{ID: sessionID}
	}

	return session, nil
}

// Authenticate resolves a bearer token to its live session.
func (svc *Service) Authenticate(ctx context.Context, token string) (*Session, error) {
	claims, err := svc.tokens.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	session, err := svc.GetSession(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if session.UserID != claims.Subject {
		return nil, ErrInvalidToken
	}

	return session, nil
}

func (svc *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	deleted, err := svc.sessionRepo.DeleteExpired(ctx, svc.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	return deleted, nil
}

func (svc *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := svc.userRepo.Find(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by id: %w", err)
	}

	user.PasswordHash = "" // clear password hash before returning user

	return user, nil
}

func (svc *Service) GetCurrentUser(ctx context.Context) (*User, error) {
	sub := authcontext.GetSubject(ctx)
	if sub == authcontext.Anonymous {
		return nil, ErrCurrentUserNotFound
	}

	user, err := svc.GetUser(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	return user, nil
}
