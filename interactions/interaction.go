package interactions

import (
	"context"
	"fmt"
	"time"

	"github.com/nasermirzaei89/agora/authentication"
	"github.com/nasermirzaei89/agora/contents"
)

type Reply struct {
	ID        string
	UserID    string
	Comment   string
	CreatedAt time.Time
}

// Interaction is a user's vote and comment on a post. Exactly one record
// per user and post is primary and carries the vote; further comments by
// the same user are stored as non-primary records without a vote.
type Interaction struct {
	ID        string
	UserID    string
	PostID    string
	Comment   *string
	Replies   []*Reply
	Vote      VoteState
	Primary   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (i *Interaction) Upvoted() bool {
	return i.Vote == VoteUp
}

func (i *Interaction) Downvoted() bool {
	return i.Vote == VoteDown
}

func (i *Interaction) HasComment() bool {
	return i.Comment != nil && *i.Comment != ""
}

// VoteChange moves an interaction from Previous to Interaction.Vote and
// applies Delta to the post's counters in the same atomic step. When Create
// is set the interaction is inserted as the primary record.
type VoteChange struct {
	Interaction *Interaction
	Previous    VoteState
	Create      bool
	Delta       CounterDelta
}

// CommentChange attaches Interaction.Comment to an existing record whose
// comment is unset, or inserts the interaction when Create is set.
type CommentChange struct {
	Interaction *Interaction
	Create      bool
}

// Repository persists interactions. ApplyVote, AttachComment and
// AppendReply each commit the interaction write and the matching post
// counter update together, failing with contents.PostNotFoundError when the
// post is gone and with StaleInteractionError when the stored record no
// longer matches the state the change was computed from.
type Repository interface {
	Find(ctx context.Context, id string) (interaction *Interaction, err error)
	FindPrimary(ctx context.Context, userID, postID string) (interaction *Interaction, err error)
	ListByPost(ctx context.Context, postID string) (interactions []*Interaction, err error)
	ApplyVote(ctx context.Context, change *VoteChange) (err error)
	AttachComment(ctx context.Context, change *CommentChange) (err error)
	AppendReply(ctx context.Context, interactionID string, reply *Reply) (err error)
	DeleteByPost(ctx context.Context, postID string) (err error)
}

type PostRepository interface {
	Find(ctx context.Context, postID string) (post *contents.Post, err error)
	Delete(ctx context.Context, postID string) (err error)
}

// UserDirectory resolves comment authors. A missing user is reported with
// authentication.UserNotFoundError.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (user *authentication.User, err error)
}

type InteractionNotFoundError struct {
	ID string
}

func (err InteractionNotFoundError) Error() string {
	return fmt.Sprintf("interaction with id %q not found", err.ID)
}

type PrimaryInteractionNotFoundError struct {
	UserID string
	PostID string
}

func (err PrimaryInteractionNotFoundError) Error() string {
	return fmt.Sprintf("user %q has no interaction with post %q", err.UserID, err.PostID)
}

type AlreadyVotedError struct {
	UserID string
	PostID string
	Vote   VoteState
}

func (err AlreadyVotedError) Error() string {
	return fmt.Sprintf("user %q has already %s post %q", err.UserID, err.Vote, err.PostID)
}

func (err AlreadyVotedError) Unwrap() error {
	return ErrAlreadyVoted
}

type StaleInteractionError struct {
	UserID string
	PostID string
}

func (err StaleInteractionError) Error() string {
	return fmt.Sprintf("interaction of user %q with post %q was modified concurrently", err.UserID, err.PostID)
}
