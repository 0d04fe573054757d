package authentication

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type User struct {
	ID           string
	Name         string
	Email        string
	Picture      string
	PasswordHash string
	RegisteredAt time.Time
}

type UserRepository interface {
	Insert(ctx context.Context, user *User) (err error)
	Find(ctx context.Context, userID string) (user *User, err error)
	FindByEmail(ctx context.Context, email string) (user *User, err error)
	ListEmails(ctx context.Context) (emails []string, err error)
}

type UserNotFoundError struct {
	ID string
}

func (err UserNotFoundError) Error() string {
	return fmt.Sprintf("user with id %q not found", err.ID)
}

type UserByEmailNotFoundError struct {
	Email string
}

func (err UserByEmailNotFoundError) Error() string {
	return fmt.Sprintf("user with email %q not found", err.Email)
}

type UserAlreadyExistsError struct {
	Email string
}

func (err UserAlreadyExistsError) Error() string {
	return fmt.Sprintf("user with email %q already exists", err.Email)
}

type InvalidFieldError struct {
	Field  string
	Reason string
}

func (err InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", err.Field, err.Reason)
}

var ErrCurrentUserNotFound = errors.New("current user not found")
