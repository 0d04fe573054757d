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

const tablePosts = "posts"

type PostRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var (
	_ contents.PostRepository     = (*PostRepository)(nil)
	_ interactions.PostRepository = (*PostRepository)(nil)
)

func NewPostRepository(db *sql.DB, dialect Dialect) *PostRepository {
	return &PostRepository{db: db, sb: dialect.builder()}
}

const (
	postFieldID            = "id"
	postFieldAuthorID      = "author_id"
	postFieldImage         = "image"
	postFieldContent       = "content"
	postFieldCategory      = "category"
	postFieldViewCount     = "view_count"
	postFieldUpvoteCount   = "upvote_count"
	postFieldDownvoteCount = "downvote_count"
	postFieldReplyCount    = "reply_count"
	postFieldCreatedAt     = "created_at"
	postFieldUpdatedAt     = "updated_at"
)

func postColumns() []string {
	return []string{
		postFieldID,
		postFieldAuthorID,
		postFieldImage,
		postFieldContent,
		postFieldCategory,
		postFieldViewCount,
		postFieldUpvoteCount,
		postFieldDownvoteCount,
		postFieldReplyCount,
		postFieldCreatedAt,
		postFieldUpdatedAt,
	}
}

func scanPost(row sq.RowScanner) (*contents.Post, error) {
	var post contents.Post

	err := row.Scan(
		&post.ID,
		&post.AuthorID,
		&post.Image,
		&post.Content,
		&post.Category,
		&post.ViewCount,
		&post.UpvoteCount,
		&post.DownvoteCount,
		&post.ReplyCount,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	return &post, nil
}

func (repo *PostRepository) Insert(ctx context.Context, post *contents.Post) error {
	q := repo.sb.Insert(tablePosts).
		Columns(postColumns()...).
		Values(
			post.ID,
			post.AuthorID,
			post.Image,
			post.Content,
			post.Category,
			post.ViewCount,
			post.UpvoteCount,
			post.DownvoteCount,
			post.ReplyCount,
			post.CreatedAt,
			post.UpdatedAt,
		).
		RunWith(repo.db)

	_, err := q.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec insert: %w", err)
	}

	return nil
}

func (repo *PostRepository) Find(ctx context.Context, postID string) (*contents.Post, error) {
	q := repo.sb.Select(postColumns()...).
		From(tablePosts).
		Where(sq.Eq{postFieldID: postID}).
		RunWith(repo.db)

	post, err := scanPost(q.QueryRowContext(ctx))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &contents.PostNotFoundError{ID: postID}
		}

		return nil, fmt.Errorf("failed to scan post: %w", err)
	}

	return post, nil
}

func (repo *PostRepository) List(ctx context.Context) ([]*contents.Post, error) {
	q := repo.sb.Select(postColumns()...).
		From(tablePosts).
		OrderBy(postFieldCreatedAt+" DESC", postFieldID+" DESC").
		RunWith(repo.db)

	rows, err := q.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	defer closeRows(ctx, rows)

	posts := make([]*contents.Post, 0)

	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}

		posts = append(posts, post)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return posts, nil
}

// Update writes the editable fields only.
func (repo *PostRepository) Update(ctx context.Context, post *contents.Post) error {
	q := repo.sb.Update(tablePosts).
		Set(postFieldImage, post.Image).
		Set(postFieldContent, post.Content).
		Set(postFieldCategory, post.Category).
		Set(postFieldUpdatedAt, post.UpdatedAt).
		Where(sq.Eq{postFieldID: post.ID}).
		RunWith(repo.db)

	return execOne(ctx, q, &contents.PostNotFoundError{ID: post.ID})
}

func (repo *PostRepository) IncrementViewCount(ctx context.Context, postID string) error {
	q := repo.sb.Update(tablePosts).
		Set(postFieldViewCount, sq.Expr(postFieldViewCount+" + 1")).
		Where(sq.Eq{postFieldID: postID}).
		RunWith(repo.db)

	return execOne(ctx, q, &contents.PostNotFoundError{ID: postID})
}

func (repo *PostRepository) Delete(ctx context.Context, postID string) error {
	q := repo.sb.Delete(tablePosts).
		Where(sq.Eq{postFieldID: postID}).
		RunWith(repo.db)

	return execOne(ctx, q, &contents.PostNotFoundError{ID: postID})
}

// applyPostCounters adds the deltas to a post inside tx.
func applyPostCounters(
	ctx context.Context,
	tx *sql.Tx,
	sb sq.StatementBuilderType,
	postID string,
	delta interactions.CounterDelta,
	replies int,
) error {
	q := sb.Update(tablePosts).
		Set(postFieldUpvoteCount, sq.Expr(postFieldUpvoteCount+" + ?", delta.Upvotes)).
		Set(postFieldDownvoteCount, sq.Expr(postFieldDownvoteCount+" + ?", delta.Downvotes)).
		Set(postFieldReplyCount, sq.Expr(postFieldReplyCount+" + ?", replies)).
		Where(sq.Eq{postFieldID: postID}).
		RunWith(tx)

	return execOne(ctx, q, &contents.PostNotFoundError{ID: postID})
}

type execer interface {
	ExecContext(ctx context.Context) (sql.Result, error)
}

// execOne runs q and returns notFoundErr when no row was affected.
func execOne(ctx context.Context, q execer, notFoundErr error) error {
	result, err := q.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to exec statement: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return notFoundErr
	}

	return nil
}
