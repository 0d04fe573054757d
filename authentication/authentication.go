package authentication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	authcontext "github.com/nasermirzaei89/agora/authentication/context"
	"golang.org/x/crypto/bcrypt"
)

const DefaultSessionDuration = 30 * 24 * time.Hour

type Service struct {
	userRepo        UserRepository
	sessionRepo     SessionRepository
	bloomFilter     *BloomFilter
	sessionDuration time.Duration
}

func NewService(userRepo UserRepository, sessionRepo SessionRepository, sessionDuration time.Duration) *Service {
	if sessionDuration <= 0 {
		sessionDuration = DefaultSessionDuration
	}

	return &Service{
		userRepo:        userRepo,
		sessionRepo:     sessionRepo,
		sessionDuration: sessionDuration,
	}
}

// LoadBloomFilter seeds the filter of registered emails used to skip
// duplicate lookups for addresses that were never seen.
func (svc *Service) LoadBloomFilter(ctx context.Context, minCapacity uint, falsePositiveRate float64) error {
	emails, err := svc.userRepo.ListEmails(ctx)
	if err != nil {
		return fmt.Errorf("failed to list emails for bloom filter: %w", err)
	}

	capacity := max(uint(len(emails)), minCapacity)

	bf := NewBloomFilter(capacity, falsePositiveRate)
	for _, email := range emails {
		bf.Add(email)
	}

	svc.bloomFilter = bf

	return nil
}

func HashPassword(password string) (string, error) {
	bcryptHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(bcryptHash), nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type RegisterRequest struct {
	Name     string
	Email    string
	Password string
	Picture  string
}

func (req RegisterRequest) validate() error {
	if strings.TrimSpace(req.Name) == "" {
		return &InvalidFieldError{Field: "name", Reason: "must not be empty"}
	}

	addr, err := mail.ParseAddress(req.Email)
	if err != nil || addr.Address != req.Email {
		return &InvalidFieldError{Field: "email", Reason: "must be a valid email address"}
	}

	if req.Password == "" {
		return &InvalidFieldError{Field: "password", Reason: "must not be empty"}
	}

	return nil
}

func (svc *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	req.Email = NormalizeEmail(req.Email)

	err := req.validate()
	if err != nil {
		return nil, err
	}

	// a negative answer from the filter is definite, so the lookup is skipped
	if svc.bloomFilter == nil || svc.bloomFilter.Test(req.Email) {
		_, err := svc.userRepo.FindByEmail(ctx, req.Email)
		if err == nil {
			return nil, &UserAlreadyExistsError{Email: req.Email}
		}

		var notFoundErr *UserByEmailNotFoundError
		if !errors.As(err, &notFoundErr) {
			return nil, fmt.Errorf("failed to check if email already exists: %w", err)
		}
	}

	passwordHash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        req.Email,
		Picture:      req.Picture,
		PasswordHash: passwordHash,
		RegisteredAt: time.Now().UTC(),
	}

	err = svc.userRepo.Insert(ctx, user)
	if err != nil {
		var alreadyExistsErr *UserAlreadyExistsError
		if errors.As(err, &alreadyExistsErr) {
			svc.rememberEmail(req.Email)

			return nil, alreadyExistsErr
		}

		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	svc.rememberEmail(req.Email)

	user.PasswordHash = ""

	return user, nil
}

func (svc *Service) rememberEmail(email string) {
	if svc.bloomFilter != nil {
		svc.bloomFilter.Add(email)
	}
}

var ErrInvalidCredentials = errors.New("invalid credentials")

func (svc *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)

	user, err := svc.userRepo.FindByEmail(ctx, email)
	if err != nil {
		var notFoundErr *UserByEmailNotFoundError
		if errors.As(err, &notFoundErr) {
			return nil, ErrInvalidCredentials
		}

		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}

		return nil, fmt.Errorf("failed to compare password hash: %w", err)
	}

	timeNow := time.Now().UTC()

	session := &Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: timeNow,
		ExpiresAt: timeNow.Add(svc.sessionDuration),
	}

	err = svc.sessionRepo.Insert(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

func (svc *Service) Logout(ctx context.Context, sessionID string) error {
	err := svc.sessionRepo.Delete(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

func (svc *Service) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	session, err := svc.sessionRepo.Find(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	if session.ExpiresAt.Before(time.Now()) {
		err = svc.sessionRepo.Delete(ctx, sessionID)
		if err != nil {
			var notFoundErr *SessionNotFoundError
			if !errors.As(err, &notFoundErr) {
				slog.ErrorContext(ctx, "failed to delete expired session", "sessionId", sessionID, "error", err)
			}
		}

		return nil, &SessionExpiredError{ID: sessionID}
	}

	return session, nil
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
