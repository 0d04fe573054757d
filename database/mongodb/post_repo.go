package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nasermirzaei89/agora/contents"
	"github.com/nasermirzaei89/agora/interactions"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PostRepository struct {
	collection *mongo.Collection
}

var (
	_ contents.PostRepository     = (*PostRepository)(nil)
	_ interactions.PostRepository = (*PostRepository)(nil)
)

func NewPostRepository(db *mongo.Database) *PostRepository {
	return &PostRepository{collection: db.Collection(collectionPosts)}
}

type postDocument struct {
	ID            string    `bson:"_id"`
	AuthorID      string    `bson:"author_id"`
	Image         string    `bson:"image"`
	Content       string    `bson:"content"`
	Category      string    `bson:"category"`
	ViewCount     int       `bson:"view_count"`
	UpvoteCount   int       `bson:"upvote_count"`
	DownvoteCount int       `bson:"downvote_count"`
	ReplyCount    int       `bson:"reply_count"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func (doc *postDocument) toPost() *contents.Post {
	return &contents.Post{
		ID:            doc.ID,
		AuthorID:      doc.AuthorID,
		Image:         doc.Image,
		Content:       doc.Content,
		Category:      doc.Category,
		ViewCount:     doc.ViewCount,
		UpvoteCount:   doc.UpvoteCount,
		DownvoteCount: doc.DownvoteCount,
		ReplyCount:    doc.ReplyCount,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

func (repo *PostRepository) Insert(ctx context.Context, post *contents.Post) error {
	_, err := repo.collection.InsertOne(ctx, &postDocument{
		ID:            post.ID,
		AuthorID:      post.AuthorID,
		Image:         post.Image,
		Content:       post.Content,
		Category:      post.Category,
		ViewCount:     post.ViewCount,
		UpvoteCount:   post.UpvoteCount,
		DownvoteCount: post.DownvoteCount,
		ReplyCount:    post.ReplyCount,
		CreatedAt:     post.CreatedAt,
		UpdatedAt:     post.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}

	return nil
}

func (repo *PostRepository) Find(ctx context.Context, postID string) (*contents.Post, error) {
	var doc postDocument

	err := repo.collection.FindOne(ctx, bson.M{"_id": postID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &contents.PostNotFoundError{ID: postID}
		}

		return nil, fmt.Errorf("failed to find post: %w", err)
	}

	return doc.toPost(), nil
}

func (repo *PostRepository) List(ctx context.Context) ([]*contents.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := repo.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}

	defer closeCursor(ctx, cursor)

	posts := make([]*contents.Post, 0)

	for cursor.Next(ctx) {
		var doc postDocument

		err := cursor.Decode(&doc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode post: %w", err)
		}

		posts = append(posts, doc.toPost())
	}

	err = cursor.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return posts, nil
}

func (repo *PostRepository) Update(ctx context.Context, post *contents.Post) error {
	return updateOne(ctx, repo.collection, post.ID, bson.M{
		"$set": bson.M{
			"image":      post.Image,
			"content":    post.Content,
			"category":   post.Category,
			"updated_at": post.UpdatedAt,
		},
	})
}

func (repo *PostRepository) IncrementViewCount(ctx context.Context, postID string) error {
	return updateOne(ctx, repo.collection, postID, bson.M{"$inc": bson.M{"view_count": 1}})
}

func (repo *PostRepository) Delete(ctx context.Context, postID string) error {
	result, err := repo.collection.DeleteOne(ctx, bson.M{"_id": postID})
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}

	if result.DeletedCount == 0 {
		return &contents.PostNotFoundError{ID: postID}
	}

	return nil
}

// updateOne applies update to a post; ctx may carry a transaction.
func updateOne(ctx context.Context, collection *mongo.Collection, postID string, update bson.M) error {
	result, err := collection.UpdateOne(ctx, bson.M{"_id": postID}, update)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}

	if result.MatchedCount == 0 {
		return &contents.PostNotFoundError{ID: postID}
	}

	return nil
}

func applyPostCounters(
	ctx context.Context,
	collection *mongo.Collection,
	postID string,
	delta interactions.CounterDelta,
	replies int,
) error {
	return updateOne(ctx, collection, postID, bson.M{
		"$inc": bson.M{
			"upvote_count":   delta.Upvotes,
			"downvote_count": delta.Downvotes,
			"reply_count":    replies,
		},
	})
}
