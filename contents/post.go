package contents

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Post struct {
	ID            string
	AuthorID      string
	Image         string
	Content       string
	Category      string
	ViewCount     int
	UpvoteCount   int
	DownvoteCount int
	ReplyCount    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PostRepository stores posts. Vote and reply counters are never written
// through it; they move only together with the interaction that causes them.
type PostRepository interface {
	Insert(ctx context.Context, post *Post) (err error)
	Find(ctx context.Context, postID string) (post *Post, err error)
	List(ctx context.Context) (posts []*Post, err error)
	Update(ctx context.Context, post *Post) (err error)
	IncrementViewCount(ctx context.Context, postID string) (err error)
	Delete(ctx context.Context, postID string) (err error)
}

type PostNotFoundError struct {
	ID string
}

func (err PostNotFoundError) Error() string {
	return fmt.Sprintf("post with id %q not found", err.ID)
}

type NotPostOwnerError struct {
	PostID string
	UserID string
}

func (err NotPostOwnerError) Error() string {
	return fmt.Sprintf("user %q is not the author of post %q", err.UserID, err.PostID)
}

var (
	ErrEmptyContent = errors.New("post content must not be empty")
	ErrUnauthorized = errors.New("authentication required")
)
