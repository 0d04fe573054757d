package mongodb_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nasermirzaei89/agora/authentication"
	"github.com/nasermirzaei89/agora/contents"
	"github.com/nasermirzaei89/agora/database/mongodb"
	"github.com/nasermirzaei89/agora/interactions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

// newTestDatabase connects to MONGODB_URI, which must point at a replica
// set since interaction writes run in transactions.
func newTestDatabase(t *testing.T) *mongo.Database {
	t.Helper()

	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI is not set")
	}

	ctx := context.Background()

	client, err := mongodb.NewClient(ctx, uri)
	require.NoError(t, err)

	db := client.Database("agora_test_" + uuid.NewString()[:8])

	t.Cleanup(func() {
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	require.NoError(t, mongodb.EnsureIndexes(ctx, db))

	return db
}

func TestUserAndSessionRepositories(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)

	users := mongodb.NewUserRepository(db)
	sessions := mongodb.NewSessionRepository(db)

	user := &authentication.User{
		ID:           uuid.NewString(),
		Name:         "Alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		RegisteredAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	require.NoError(t, users.Insert(ctx, user))

	duplicate := *user
	duplicate.ID = uuid.NewString()

	var existsErr *authentication.UserAlreadyExistsError
	require.ErrorAs(t, users.Insert(ctx, &duplicate), &existsErr)

	got, err := users.FindByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	emails, err := users.ListEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{user.Email}, emails)

	session := &authentication.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}

	require.NoError(t, sessions.Insert(ctx, session))
	require.NoError(t, sessions.Delete(ctx, session.ID))

	var notFoundErr *authentication.SessionNotFoundError

	_, err = sessions.Find(ctx, session.ID)
	require.ErrorAs(t, err, &notFoundErr)
}

func TestInteractionRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)

	posts := mongodb.NewPostRepository(db)
	repo := mongodb.NewInteractionRepository(db)

	timeNow := time.Now().UTC().Truncate(time.Millisecond)
	post := &contents.Post{ID: uuid.NewString(), AuthorID: "author", Content: "hello", CreatedAt: timeNow, UpdatedAt: timeNow}
	require.NoError(t, posts.Insert(ctx, post))

	interaction := &interactions.Interaction{
		ID:        uuid.NewString(),
		UserID:    "voter",
		PostID:    post.ID,
		Replies:   []*interactions.Reply{},
		Vote:      interactions.VoteUp,
		Primary:   true,
		CreatedAt: timeNow,
		UpdatedAt: timeNow,
	}

	require.NoError(t, repo.ApplyVote(ctx, &interactions.VoteChange{
		Interaction: interaction,
		Create:      true,
		Delta:       interactions.CounterDelta{Upvotes: 1},
	}))

	var staleErr *interactions.StaleInteractionError

	second := *interaction
	second.ID = uuid.NewString()
	require.ErrorAs(t, repo.ApplyVote(ctx, &interactions.VoteChange{
		Interaction: &second,
		Create:      true,
		Delta:       interactions.CounterDelta{Upvotes: 1},
	}), &staleErr)

	switched := *interaction
	switched.Vote = interactions.VoteDown
	require.NoError(t, repo.ApplyVote(ctx, &interactions.VoteChange{
		Interaction: &switched,
		Previous:    interactions.VoteUp,
		Delta:       interactions.CounterDelta{Upvotes: -1, Downvotes: 1},
	}))

	comment := "hello"
	switched.Comment = &comment
	require.NoError(t, repo.AttachComment(ctx, &interactions.CommentChange{Interaction: &switched}))
	require.ErrorAs(t, repo.AttachComment(ctx, &interactions.CommentChange{Interaction: &switched}), &staleErr)

	reply := &interactions.Reply{ID: uuid.NewString(), UserID: "author", Comment: "thanks", CreatedAt: timeNow}
	require.NoError(t, repo.AppendReply(ctx, interaction.ID, reply))

	got, err := repo.FindPrimary(ctx, "voter", post.ID)
	require.NoError(t, err)
	assert.Equal(t, interactions.VoteDown, got.Vote)
	require.NotNil(t, got.Comment)
	require.Len(t, got.Replies, 1)

	stored, err := posts.Find(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.UpvoteCount)
	assert.Equal(t, 1, stored.DownvoteCount)
	assert.Equal(t, 2, stored.ReplyCount)

	require.NoError(t, repo.DeleteByPost(ctx, post.ID))

	items, err := repo.ListByPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}
