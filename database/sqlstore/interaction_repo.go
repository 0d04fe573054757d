package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/nasermirzaei89/agora/contents"
	"github.com/nasermirzaei89/agora/interactions"
)

const (
	tableInteractions = "interactions"
	tableReplies      = "interaction_replies"
)

type InteractionRepository struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
}

var _ interactions.Repository = (*InteractionRepository)(nil)

func NewInteractionRepository(db *sql.DB, dialect Dialect) *InteractionRepository {
	return &InteractionRepository{db: db, dialect: dialect, sb: dialect.builder()}
}

const (
	interactionFieldID        = "id"
	interactionFieldUserID    = "user_id"
	interactionFieldPostID    = "post_id"
	interactionFieldComment   = "comment"
	interactionFieldUpvoted   = "upvoted"
	interactionFieldDownvoted = "downvoted"
	interactionFieldPrimary   = "is_primary"
	interactionFieldCreatedAt = "created_at"
	interactionFieldUpdatedAt = "updated_at"
)

func interactionColumns() []string {
	return []string{
		interactionFieldID,
		interactionFieldUserID,
		interactionFieldPostID,
		interactionFieldComment,
		interactionFieldUpvoted,
		interactionFieldDownvoted,
		interactionFieldPrimary,
		interactionFieldCreatedAt,
		interactionFieldUpdatedAt,
	}
}

func scanInteraction(row sq.RowScanner) (*interactions.Interaction, error) {
	var (
		interaction interactions.Interaction
		upvoted     bool
		downvoted   bool
	)

	err := row.Scan(
		&interaction.ID,
		&interaction.UserID,
		&interaction.PostID,
		&interaction.Comment,
		&upvoted,
		&downvoted,
		&interaction.Primary,
		&interaction.CreatedAt,
		&interaction.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	interaction.Vote, err = interactions.VoteStateFromFlags(upvoted, downvoted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode vote of interaction %q: %w", interaction.ID, err)
	}

	interaction.Replies = make([]*interactions.Reply, 0)

	return &interaction, nil
}

const (
	replyFieldID            = "id"
	replyFieldInteractionID = "interaction_id"
	replyFieldUserID        = "user_id"
	replyFieldComment       = "comment"
	replyFieldCreatedAt     = "created_at"
)

func replyColumns() []string {
	return []string{
		replyFieldID,
		replyFieldInteractionID,
		replyFieldUserID,
		replyFieldComment,
		replyFieldCreatedAt,
	}
}

func (repo *InteractionRepository) Find(ctx context.Context, id string) (*interactions.Interaction, error) {
	q := repo.sb.Select(interactionColumns()...).
		From(tableInteractions).
		Where(sq.Eq{interactionFieldID: id}).
		RunWith(repo.db)

	interaction, err := scanInteraction(q.QueryRowContext(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &interactions.InteractionNotFoundError{ID: id}
		}

		return nil, fmt.Errorf("failed to scan interaction: %w", err)
	}

	err = repo.loadReplies(ctx, []*interactions.Interaction{interaction})
	if err != nil {
		return nil, err
	}

	return interaction, nil
}

func (repo *InteractionRepository) FindPrimary(ctx context.Context, userID, postID string) (*interactions.Interaction, error) {
	q := repo.sb.Select(interactionColumns()...).
		From(tableInteractions).
		Where(sq.Eq{
			interactionFieldUserID:  userID,
			interactionFieldPostID:  postID,
			interactionFieldPrimary: true,
		}).
		RunWith(repo.db)

	interaction, err := scanInteraction(q.QueryRowContext(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &interactions.PrimaryInteractionNotFoundError{UserID: userID, PostID: postID}
		}

		return nil, fmt.Errorf("failed to scan interaction: %w", err)
	}

	err = repo.loadReplies(ctx, []*interactions.Interaction{interaction})
	if err != nil {
		return nil, err
	}

	return interaction, nil
}

func (repo *InteractionRepository) ListByPost(ctx context.Context, postID string) ([]*interactions.Interaction, error) {
	items, err := repo.listByPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	err = repo.loadReplies(ctx, items)
	if err != nil {
		return nil, err
	}

	return items, nil
}

func (repo *InteractionRepository) listByPost(ctx context.Context, postID string) ([]*interactions.Interaction, error) {
	q := repo.sb.Select(interactionColumns()...).
		From(tableInteractions).
		Where(sq.Eq{interactionFieldPostID: postID}).
		OrderBy(interactionFieldCreatedAt+" ASC", interactionFieldID+" ASC").
		RunWith(repo.db)

	rows, err := q.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}

	defer closeRows(ctx, rows)

	items := make([]*interactions.Interaction, 0)

	for rows.Next() {
		interaction, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}

		items = append(items, interaction)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate interactions: %w", err)
	}

	return items, nil
}

func (repo *InteractionRepository) loadReplies(ctx context.Context, items []*interactions.Interaction) error {
	if len(items) == 0 {
		return nil
	}

	byID := make(map[string]*interactions.Interaction, len(items))
	ids := make([]string, 0, len(items))

	for _, item := range items {
		byID[item.ID] = item
		ids = append(ids, item.ID)
	}

	q := repo.sb.Select(replyColumns()...).
		From(tableReplies).
		Where(sq.Eq{replyFieldInteractionID: ids}).
		OrderBy(replyFieldCreatedAt+" ASC", replyFieldID+" ASC").
		RunWith(repo.db)

	rows, err := q.QueryContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to query replies: %w", err)
	}

	defer closeRows(ctx, rows)

	for rows.Next() {
		var (
			reply         interactions.Reply
			interactionID string
		)

		err := rows.Scan(&reply.ID, &interactionID, &reply.UserID, &reply.Comment, &reply.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to scan reply: %w", err)
		}

		if parent, ok := byID[interactionID]; ok {
			parent.Replies = append(parent.Replies, &reply)
		}
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("failed to iterate replies: %w", err)
	}

	return nil
}

func (repo *InteractionRepository) insert(ctx context.Context, tx *sql.Tx, interaction *interactions.Interaction) error {
	upvoted, downvoted := interaction.Vote.Flags()

	q := repo.sb.Insert(tableInteractions).
		Columns(interactionColumns()...).
		Values(
			interaction.ID,
			interaction.UserID,
			interaction.PostID,
			interaction.Comment,
			upvoted,
			downvoted,
			interaction.Primary,
			interaction.CreatedAt,
			interaction.UpdatedAt,
		).
		RunWith(tx)

	_, err := q.ExecContext(ctx)
	if err != nil {
		if interaction.Primary && repo.dialect.IsUniqueViolation(err) {
			return &interactions.StaleInteractionError{UserID: interaction.UserID, PostID: interaction.PostID}
		}

		return fmt.Errorf("failed to insert interaction: %w", err)
	}

	return nil
}

// ApplyVote compare-and-sets the vote flags against change.Previous and
// moves the post counters in one transaction.
func (repo *InteractionRepository) ApplyVote(ctx context.Context, change *interactions.VoteChange) error {
	interaction := change.Interaction

	return withTx(ctx, repo.db, func(tx *sql.Tx) error {
		if change.Create {
			err := repo.insert(ctx, tx, interaction)
			if err != nil {
				return err
			}
		} else {
			upvoted, downvoted := interaction.Vote.Flags()
			previousUpvoted, previousDownvoted := change.Previous.Flags()

			q := repo.sb.Update(tableInteractions).
				Set(interactionFieldUpvoted, upvoted).
				Set(interactionFieldDownvoted, downvoted).
				Set(interactionFieldUpdatedAt, interaction.UpdatedAt).
				Where(sq.Eq{
					interactionFieldID:        interaction.ID,
					interactionFieldUpvoted:   previousUpvoted,
					interactionFieldDownvoted: previousDownvoted,
				}).
				RunWith(tx)

			err := execOne(ctx, q, &interactions.StaleInteractionError{UserID: interaction.UserID, PostID: interaction.PostID})
			if err != nil {
				return err
			}
		}

		return applyPostCounters(ctx, tx, repo.sb, interaction.PostID, change.Delta, 0)
	})
}

// AttachComment sets the comment on a record that has none, or inserts a
// new record, and counts it on the post.
func (repo *InteractionRepository) AttachComment(ctx context.Context, change *interactions.CommentChange) error {
	interaction := change.Interaction

	return withTx(ctx, repo.db, func(tx *sql.Tx) error {
		if change.Create {
			err := repo.insert(ctx, tx, interaction)
			if err != nil {
				return err
			}
		} else {
			q := repo.sb.Update(tableInteractions).
				Set(interactionFieldComment, interaction.Comment).
				Set(interactionFieldUpdatedAt, interaction.UpdatedAt).
				Where(sq.Eq{
					interactionFieldID:      interaction.ID,
					interactionFieldComment: nil,
				}).
				RunWith(tx)

			err := execOne(ctx, q, &interactions.StaleInteractionError{UserID: interaction.UserID, PostID: interaction.PostID})
			if err != nil {
				return err
			}
		}

		return applyPostCounters(ctx, tx, repo.sb, interaction.PostID, interactions.CounterDelta{}, 1)
	})
}

// AppendReply locks the parent record so a concurrent DeleteByPost either
// waits for the reply and cascades it, or commits first and the reply is
// rejected as not found.
func (repo *InteractionRepository) AppendReply(ctx context.Context, interactionID string, reply *interactions.Reply) error {
	return withTx(ctx, repo.db, func(tx *sql.Tx) error {
		var postID string

		q := repo.sb.Select(interactionFieldPostID).
			From(tableInteractions).
			Where(sq.Eq{interactionFieldID: interactionID})

		if repo.dialect.LockSuffix != "" {
			q = q.Suffix(repo.dialect.LockSuffix)
		}

		err := q.RunWith(tx).
			QueryRowContext(ctx).
			Scan(&postID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &interactions.InteractionNotFoundError{ID: interactionID}
			}

			return fmt.Errorf("failed to find interaction: %w", err)
		}

		_, err = repo.sb.Insert(tableReplies).
			Columns(replyColumns()...).
			Values(reply.ID, interactionID, reply.UserID, reply.Comment, reply.CreatedAt).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert reply: %w", err)
		}

		err = applyPostCounters(ctx, tx, repo.sb, postID, interactions.CounterDelta{}, 1)
		if err != nil {
			var postNotFoundErr *contents.PostNotFoundError
			if errors.As(err, &postNotFoundErr) {
				// leftover of a deleted post
				return &interactions.InteractionNotFoundError{ID: interactionID}
			}

			return err
		}

		return nil
	})
}

func (repo *InteractionRepository) DeleteByPost(ctx context.Context, postID string) error {
	return withTx(ctx, repo.db, func(tx *sql.Tx) error {
		_, err := repo.sb.Delete(tableReplies).
			Where(sq.Expr(
				replyFieldInteractionID+" IN (SELECT "+interactionFieldID+" FROM "+tableInteractions+" WHERE "+interactionFieldPostID+" = ?)",
				postID,
			)).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete replies: %w", err)
		}

		_, err = repo.sb.Delete(tableInteractions).
			Where(sq.Eq{interactionFieldPostID: postID}).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete interactions: %w", err)
		}

		return nil
	})
}
