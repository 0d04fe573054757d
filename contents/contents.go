package contents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	authcontext "github.com/nasermirzaei89/agora/authentication/context"
)

type Service struct {
	postRepo PostRepository
}

func NewService(postRepo PostRepository) *Service {
	return &Service{
		postRepo: postRepo,
	}
}

type CreatePostRequest struct {
	AuthorID string
	Image    string
	Content  string
	Category string
}

func (svc *Service) CreatePost(ctx context.Context, req CreatePostRequest) (*Post, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyContent
	}

	timeNow := time.Now().UTC()

	post := &Post{
		ID:        uuid.Must(uuid.NewV7()).String(),
		AuthorID:  req.AuthorID,
		Image:     req.Image,
		Content:   req.Content,
		Category:  req.Category,
		CreatedAt: timeNow,
		UpdatedAt: timeNow,
	}

	err := svc.postRepo.Insert(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	return post, nil
}

// GetPost counts a view and returns the post.
func (svc *Service) GetPost(ctx context.Context, postID string) (*Post, error) {
	err := svc.postRepo.IncrementViewCount(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to increment view count: %w", err)
	}

	post, err := svc.postRepo.Find(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}

	return post, nil
}

func (svc *Service) ListPosts(ctx context.Context) ([]*Post, error) {
	posts, err := svc.postRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	return posts, nil
}

// CheckOwnership fails unless the subject in ctx authored the post.
func (svc *Service) CheckOwnership(ctx context.Context, postID string) (*Post, error) {
	sub := authcontext.GetSubject(ctx)
	if sub == authcontext.Anonymous {
		return nil, ErrUnauthorized
	}

	post, err := svc.postRepo.Find(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}

	if post.AuthorID != sub {
		return nil, &NotPostOwnerError{PostID: postID, UserID: sub}
	}

	return post, nil
}

// UpdatePostRequest leaves nil fields unchanged.
type UpdatePostRequest struct {
	PostID   string
	Image    *string
	Content  *string
	Category *string
}

func (svc *Service) UpdatePost(ctx context.Context, req UpdatePostRequest) (*Post, error) {
	post, err := svc.CheckOwnership(ctx, req.PostID)
	if err != nil {
		return nil, err
	}

	if req.Content != nil {
		if strings.TrimSpace(*req.Content) == "" {
			return nil, ErrEmptyContent
		}

		post.Content = *req.Content
	}

	if req.Image != nil {
		post.Image = *req.Image
	}

	if req.Category != nil {
		post.Category = *req.Category
	}

	post.UpdatedAt = time.Now().UTC()

	err = svc.postRepo.Update(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("failed to update post: %w", err)
	}

	return post, nil
}
