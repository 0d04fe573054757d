package interactions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nasermirzaei89/agora/contents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staleRepository reports every write as stale until the configured number
// of conflicts has been used up.
type staleRepository struct {
	Repository

	mu        sync.Mutex
	conflicts int
	votes     int
	comments  int
}

func (repo *staleRepository) FindPrimary(_ context.Context, userID, postID string) (*Interaction, error) {
	return nil, &PrimaryInteractionNotFoundError{UserID: userID, PostID: postID}
}

func (repo *staleRepository) conflict(userID, postID string) error {
	if repo.conflicts > 0 {
		repo.conflicts--

		return &StaleInteractionError{UserID: userID, PostID: postID}
	}

	return nil
}

func (repo *staleRepository) ApplyVote(_ context.Context, change *VoteChange) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.votes++

	return repo.conflict(change.Interaction.UserID, change.Interaction.PostID)
}

func (repo *staleRepository) AttachComment(_ context.Context, change *CommentChange) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	repo.comments++

	return repo.conflict(change.Interaction.UserID, change.Interaction.PostID)
}

type stubPostRepository struct{}

func (stubPostRepository) Find(_ context.Context, postID string) (*contents.Post, error) {
	timeNow := time.Now().UTC()

	return &contents.Post{ID: postID, Content: "post", CreatedAt: timeNow, UpdatedAt: timeNow}, nil
}

func (stubPostRepository) Delete(context.Context, string) error {
	return nil
}

func TestVoteRetriesStaleWrites(t *testing.T) {
	t.Parallel()

	repo := &staleRepository{conflicts: DefaultMaxAttempts - 1}
	svc := NewService(repo, stubPostRepository{}, nil, nil)

	interaction, err := svc.UpVote(context.Background(), "user", "post")
	require.NoError(t, err)
	assert.Equal(t, VoteUp, interaction.Vote)
	assert.Equal(t, DefaultMaxAttempts, repo.votes)
}

func TestVoteGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	repo := &staleRepository{conflicts: DefaultMaxAttempts}
	svc := NewService(repo, stubPostRepository{}, nil, nil)

	_, err := svc.DownVote(context.Background(), "user", "post")

	var staleErr *StaleInteractionError
	require.ErrorAs(t, err, &staleErr)
	assert.Equal(t, DefaultMaxAttempts, repo.votes)
}

func TestCommentRetriesStaleWrites(t *testing.T) {
	t.Parallel()

	repo := &staleRepository{conflicts: 1}
	svc := NewService(repo, stubPostRepository{}, nil, nil)

	interaction, err := svc.AddComment(context.Background(), AddCommentRequest{UserID: "user", PostID: "post", Comment: "hi"})
	require.NoError(t, err)
	assert.True(t, interaction.Primary)
	assert.Equal(t, 2, repo.comments)
}
