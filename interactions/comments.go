package interactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nasermirzaei89/agora/authentication"
	"github.com/nasermirzaei89/agora/contents"
)

type Author struct {
	Name    string
	Picture string
}

type ReplyView struct {
	ID        string
	Author    Author
	Comment   string
	CreatedAt time.Time
}

type CommentView struct {
	ID        string
	Author    Author
	Comment   string
	CreatedAt time.Time
	Replies   []*ReplyView
}

// ListComments returns the post's comments in the order they were made.
// Vote-only records are skipped, and so is anything written by a user that
// no longer resolves. A deleted post has no comments, even if an interrupted
// delete left records behind.
func (svc *Service) ListComments(ctx context.Context, postID string) ([]*CommentView, error) {
	_, err := svc.postRepo.Find(ctx, postID)
	if err != nil {
		var notFoundErr *contents.PostNotFoundError
		if errors.As(err, &notFoundErr) {
			return []*CommentView{}, nil
		}

		return nil, fmt.Errorf("failed to find post: %w", err)
	}

	items, err := svc.repo.ListByPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}

	resolver := &authorResolver{users: svc.users, known: make(map[string]*Author)}
	result := make([]*CommentView, 0, len(items))

	for _, item := range items {
		if !item.HasComment() {
			continue
		}

		author, err := resolver.resolve(ctx, item.UserID)
		if err != nil {
			return nil, err
		}

		if author == nil {
			slog.DebugContext(ctx, "skipping comment of unknown user", "interactionId", item.ID, "userId", item.UserID)

			continue
		}

		view := &CommentView{
			ID:        item.ID,
			Author:    *author,
			Comment:   *item.Comment,
			CreatedAt: item.CreatedAt,
			Replies:   make([]*ReplyView, 0, len(item.Replies)),
		}

		for _, reply := range item.Replies {
			replyAuthor, err := resolver.resolve(ctx, reply.UserID)
			if err != nil {
				return nil, err
			}

			if replyAuthor == nil {
				slog.DebugContext(ctx, "skipping reply of unknown user", "replyId", reply.ID, "userId", reply.UserID)

				continue
			}

			view.Replies = append(view.Replies, &ReplyView{
				ID:        reply.ID,
				Author:    *replyAuthor,
				Comment:   reply.Comment,
				CreatedAt: reply.CreatedAt,
			})
		}

		result = append(result, view)
	}

	return result, nil
}

// authorResolver looks every user up at most once per listing. A nil author
// without error means the user does not exist.
type authorResolver struct {
	users UserDirectory
	known map[string]*Author
}

func (r *authorResolver) resolve(ctx context.Context, userID string) (*Author, error) {
	if author, ok := r.known[userID]; ok {
		return author, nil
	}

	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		var notFoundErr *authentication.UserNotFoundError
		if !errors.As(err, &notFoundErr) {
			return nil, fmt.Errorf("failed to resolve author %q: %w", userID, err)
		}

		r.known[userID] = nil

		return nil, nil
	}

	author := &Author{Name: user.Name, Picture: user.Picture}
	r.known[userID] = author

	return author, nil
}
