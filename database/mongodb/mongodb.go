// Package mongodb stores users, posts and interactions in MongoDB.
// Interaction writes use multi-document transactions, which need a replica
// set or sharded cluster.
package mongodb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionUsers        = "users"
	collectionSessions     = "sessions"
	collectionPosts        = "posts"
	collectionInteractions = "interactions"
)

const connectTimeout = 10 * time.Second

func NewClient(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return client, nil
}

// EnsureIndexes creates the indexes the repositories rely on, including
// the partial unique index that allows one primary interaction per user
// and post.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(collectionUsers).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_idx"),
	})
	if err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	_, err = db.Collection(collectionPosts).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "created_at", Value: -1}},
		Options: options.Index().SetName("posts_created_at_idx"),
	})
	if err != nil {
		return fmt.Errorf("failed to create posts index: %w", err)
	}

	_, err = db.Collection(collectionInteractions).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "post_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"primary": true}).
				SetName("interactions_primary_idx"),
		},
		{
			Keys:    bson.D{{Key: "post_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("interactions_post_id_idx"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create interactions indexes: %w", err)
	}

	slog.InfoContext(ctx, "mongodb indexes ensured", "database", db.Name())

	return nil
}

func closeCursor(ctx context.Context, cursor *mongo.Cursor) {
	err := cursor.Close(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to close cursor", "error", err)
	}
}
