package interactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nasermirzaei89/agora/contents"
)

// DefaultMaxAttempts bounds how often a write is recomputed after losing a
// compare-and-set against a concurrent request.
const DefaultMaxAttempts = 3

var ErrEmptyComment = errors.New("comment must not be empty")

type Service struct {
	repo        Repository
	postRepo    PostRepository
	users       UserDirectory
	publisher   Publisher
	maxAttempts int
}

func NewService(repo Repository, postRepo PostRepository, users UserDirectory, publisher Publisher) *Service {
	if publisher == nil {
		publisher = NopPublisher{}
	}

	return &Service{
		repo:        repo,
		postRepo:    postRepo,
		users:       users,
		publisher:   publisher,
		maxAttempts: DefaultMaxAttempts,
	}
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func (svc *Service) UpVote(ctx context.Context, userID, postID string) (*Interaction, error) {
	return svc.vote(ctx, userID, postID, Upvote)
}

func (svc *Service) DownVote(ctx context.Context, userID, postID string) (*Interaction, error) {
	return svc.vote(ctx, userID, postID, Downvote)
}

func (svc *Service) vote(ctx context.Context, userID, postID string, direction Direction) (*Interaction, error) {
	_, err := svc.postRepo.Find(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}

	for attempt := 1; ; attempt++ {
		change, err := svc.prepareVote(ctx, userID, postID, direction)
		if err != nil {
			return nil, err
		}

		err = svc.repo.ApplyVote(ctx, change)
		if err != nil {
			if isStale(err) && attempt < svc.maxAttempts {
				slog.DebugContext(ctx, "vote lost a concurrent update, retrying", "userId", userID, "postId", postID, "attempt", attempt)

				continue
			}

			return nil, fmt.Errorf("failed to apply vote: %w", err)
		}

		eventType := EventPostUpvoted
		if direction == Downvote {
			eventType = EventPostDownvoted
		}

		svc.publish(ctx, eventType, change.Interaction, userID)

		return change.Interaction, nil
	}
}

func (svc *Service) prepareVote(ctx context.Context, userID, postID string, direction Direction) (*VoteChange, error) {
	current, found, err := svc.findPrimary(ctx, userID, postID)
	if err != nil {
		return nil, err
	}

	timeNow := time.Now().UTC()

	if !found {
		current = &Interaction{
			ID:        newID(),
			UserID:    userID,
			PostID:    postID,
			Replies:   []*Reply{},
			Vote:      VoteNone,
			Primary:   true,
			CreatedAt: timeNow,
		}
	}

	next, delta, err := Transition(current.Vote, direction)
	if err != nil {
		if errors.Is(err, ErrAlreadyVoted) {
			return nil, &AlreadyVotedError{UserID: userID, PostID: postID, Vote: current.Vote}
		}

		return nil, fmt.Errorf("failed to compute vote transition: %w", err)
	}

	change := &VoteChange{
		Interaction: current,
		Previous:    current.Vote,
		Create:      !found,
		Delta:       delta,
	}

	current.Vote = next
	current.UpdatedAt = timeNow

	return change, nil
}

func (svc *Service) findPrimary(ctx context.Context, userID, postID string) (*Interaction, bool, error) {
	interaction, err := svc.repo.FindPrimary(ctx, userID, postID)
	if err != nil {
		var notFoundErr *PrimaryInteractionNotFoundError
		if errors.As(err, &notFoundErr) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("failed to find interaction: %w", err)
	}

	return interaction, true, nil
}

type AddCommentRequest struct {
	UserID  string
	PostID  string
	Comment string
}

// AddComment stores the comment on the user's primary interaction when it
// has none yet. Otherwise the comment gets a record of its own.
func (svc *Service) AddComment(ctx context.Context, req AddCommentRequest) (*Interaction, error) {
	if strings.TrimSpace(req.Comment) == "" {
		return nil, ErrEmptyComment
	}

	_, err := svc.postRepo.Find(ctx, req.PostID)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}

	for attempt := 1; ; attempt++ {
		change, err := svc.prepareComment(ctx, req)
		if err != nil {
			return nil, err
		}

		err = svc.repo.AttachComment(ctx, change)
		if err != nil {
			if isStale(err) && attempt < svc.maxAttempts {
				slog.DebugContext(ctx, "comment lost a concurrent update, retrying", "userId", req.UserID, "postId", req.PostID, "attempt", attempt)

				continue
			}

			return nil, fmt.Errorf("failed to attach comment: %w", err)
		}

		svc.publish(ctx, EventCommentCreated, change.Interaction, req.UserID)

		return change.Interaction, nil
	}
}

func (svc *Service) prepareComment(ctx context.Context, req AddCommentRequest) (*CommentChange, error) {
	current, found, err := svc.findPrimary(ctx, req.UserID, req.PostID)
	if err != nil {
		return nil, err
	}

	timeNow := time.Now().UTC()
	comment := req.Comment

	if found && current.Comment == nil {
		current.Comment = &comment
		current.UpdatedAt = timeNow

		return &CommentChange{Interaction: current, Create: false}, nil
	}

	return &CommentChange{
		Interaction: &Interaction{
			ID:        newID(),
			UserID:    req.UserID,
			PostID:    req.PostID,
			Comment:   &comment,
			Replies:   []*Reply{},
			Vote:      VoteNone,
			Primary:   !found,
			CreatedAt: timeNow,
			UpdatedAt: timeNow,
		},
		Create: true,
	}, nil
}

type AddReplyRequest struct {
	InteractionID string
	UserID        string
	Comment       string
}

func (svc *Service) AddReply(ctx context.Context, req AddReplyRequest) (*Interaction, error) {
	if strings.TrimSpace(req.Comment) == "" {
		return nil, ErrEmptyComment
	}

	reply := &Reply{
		ID:        newID(),
		UserID:    req.UserID,
		Comment:   req.Comment,
		CreatedAt: time.Now().UTC(),
	}

	err := svc.repo.AppendReply(ctx, req.InteractionID, reply)
	if err != nil {
		return nil, fmt.Errorf("failed to append reply: %w", err)
	}

	interaction, err := svc.repo.Find(ctx, req.InteractionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find interaction: %w", err)
	}

	svc.publish(ctx, EventReplyCreated, interaction, req.UserID)

	return interaction, nil
}

// DeletePost removes a post together with all of its interactions. Each
// step is idempotent, so calling it again after a partial failure finishes
// the job; a post that is already gone still has its leftovers swept.
func (svc *Service) DeletePost(ctx context.Context, postID string) error {
	_, err := svc.postRepo.Find(ctx, postID)
	if err != nil {
		var notFoundErr *contents.PostNotFoundError
		if errors.As(err, &notFoundErr) {
			sweepErr := svc.repo.DeleteByPost(ctx, postID)
			if sweepErr != nil {
				return fmt.Errorf("failed to delete leftover interactions: %w", sweepErr)
			}
		}

		return fmt.Errorf("failed to find post: %w", err)
	}

	err = svc.repo.DeleteByPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("failed to delete interactions: %w", err)
	}

	err = svc.postRepo.Delete(ctx, postID)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}

	// catches interactions committed between the first sweep and the post
	// deletion; none can be written after it
	err = svc.repo.DeleteByPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("failed to delete interactions: %w", err)
	}

	return nil
}

func (svc *Service) publish(ctx context.Context, eventType EventType, interaction *Interaction, userID string) {
	event := &Event{
		Type:          eventType,
		InteractionID: interaction.ID,
		PostID:        interaction.PostID,
		UserID:        userID,
		OccurredAt:    time.Now().UTC(),
	}

	err := svc.publisher.Publish(ctx, event)
	if err != nil {
		slog.ErrorContext(ctx, "failed to publish interaction event", "type", eventType, "interactionId", interaction.ID, "error", err)
	}
}

func isStale(err error) bool {
	var staleErr *StaleInteractionError

	return errors.As(err, &staleErr)
}
