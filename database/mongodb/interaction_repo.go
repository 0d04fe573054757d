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

type InteractionRepository struct {
	client       *mongo.Client
	interactions *mongo.Collection
	posts        *mongo.Collection
}

var _ interactions.Repository = (*InteractionRepository)(nil)

func NewInteractionRepository(db *mongo.Database) *InteractionRepository {
	return &InteractionRepository{
		client:       db.Client(),
		interactions: db.Collection(collectionInteractions),
		posts:        db.Collection(collectionPosts),
	}
}

type replyDocument struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Comment   string    `bson:"comment"`
	CreatedAt time.Time `bson:"created_at"`
}

type interactionDocument struct {
	ID        string          `bson:"_id"`
	UserID    string          `bson:"user_id"`
	PostID    string          `bson:"post_id"`
	Comment   *string         `bson:"comment,omitempty"`
	Replies   []replyDocument `bson:"replies"`
	Upvoted   bool            `bson:"upvoted"`
	Downvoted bool            `bson:"downvoted"`
	Primary   bool            `bson:"primary"`
	CreatedAt time.Time       `bson:"created_at"`
	UpdatedAt time.Time       `bson:"updated_at"`
}

func newInteractionDocument(interaction *interactions.Interaction) *interactionDocument {
	upvoted, downvoted := interaction.Vote.Flags()

	replies := make([]replyDocument, 0, len(interaction.Replies))
	for _, reply := range interaction.Replies {
		replies = append(replies, replyDocument{
			ID:        reply.ID,
			UserID:    reply.UserID,
			Comment:   reply.Comment,
			CreatedAt: reply.CreatedAt,
		})
	}

	return &interactionDocument{
		ID:        interaction.ID,
		UserID:    interaction.UserID,
		PostID:    interaction.PostID,
		Comment:   interaction.Comment,
		Replies:   replies,
		Upvoted:   upvoted,
		Downvoted: downvoted,
		Primary:   interaction.Primary,
		CreatedAt: interaction.CreatedAt,
		UpdatedAt: interaction.UpdatedAt,
	}
}

func (doc *interactionDocument) toInteraction() (*interactions.Interaction, error) {
	vote, err := interactions.VoteStateFromFlags(doc.Upvoted, doc.Downvoted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode vote of interaction %q: %w", doc.ID, err)
	}

	replies := make([]*interactions.Reply, 0, len(doc.Replies))
	for _, reply := range doc.Replies {
		replies = append(replies, &interactions.Reply{
			ID:        reply.ID,
			UserID:    reply.UserID,
			Comment:   reply.Comment,
			CreatedAt: reply.CreatedAt,
		})
	}

	return &interactions.Interaction{
		ID:        doc.ID,
		UserID:    doc.UserID,
		PostID:    doc.PostID,
		Comment:   doc.Comment,
		Replies:   replies,
		Vote:      vote,
		Primary:   doc.Primary,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (repo *InteractionRepository) findOne(ctx context.Context, filter bson.M) (*interactions.Interaction, error) {
	var doc interactionDocument

	err := repo.interactions.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		return nil, err
	}

	return doc.toInteraction()
}

func (repo *InteractionRepository) Find(ctx context.Context, id string) (*interactions.Interaction, error) {
	interaction, err := repo.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &interactions.InteractionNotFoundError{ID: id}
		}

		return nil, fmt.Errorf("failed to find interaction: %w", err)
	}

	return interaction, nil
}

func (repo *InteractionRepository) FindPrimary(ctx context.Context, userID, postID string) (*interactions.Interaction, error) {
	interaction, err := repo.findOne(ctx, bson.M{"user_id": userID, "post_id": postID, "primary": true})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &interactions.PrimaryInteractionNotFoundError{UserID: userID, PostID: postID}
		}

		return nil, fmt.Errorf("failed to find interaction: %w", err)
	}

	return interaction, nil
}

func (repo *InteractionRepository) ListByPost(ctx context.Context, postID string) ([]*interactions.Interaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := repo.interactions.Find(ctx, bson.M{"post_id": postID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}

	defer closeCursor(ctx, cursor)

	items := make([]*interactions.Interaction, 0)

	for cursor.Next(ctx) {
		var doc interactionDocument

		err := cursor.Decode(&doc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode interaction: %w", err)
		}

		interaction, err := doc.toInteraction()
		if err != nil {
			return nil, err
		}

		items = append(items, interaction)
	}

	err = cursor.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate interactions: %w", err)
	}

	return items, nil
}

func (repo *InteractionRepository) withTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := repo.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})

	return err
}

func (repo *InteractionRepository) insert(ctx context.Context, interaction *interactions.Interaction) error {
	_, err := repo.interactions.InsertOne(ctx, newInteractionDocument(interaction))
	if err != nil {
		if interaction.Primary && mongo.IsDuplicateKeyError(err) {
			return &interactions.StaleInteractionError{UserID: interaction.UserID, PostID: interaction.PostID}
		}

		return fmt.Errorf("failed to insert interaction: %w", err)
	}

	return nil
}

// compareAndSet applies update only if the stored interaction still
// matches filter.
func (repo *InteractionRepository) compareAndSet(
	ctx context.Context,
	interaction *interactions.Interaction,
	filter bson.M,
	update bson.M,
) error {
	filter["_id"] = interaction.ID

	result, err := repo.interactions.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update interaction: %w", err)
	}

	if result.MatchedCount == 0 {
		return &interactions.StaleInteractionError{UserID: interaction.UserID, PostID: interaction.PostID}
	}

	return nil
}

func (repo *InteractionRepository) ApplyVote(ctx context.Context, change *interactions.VoteChange) error {
	interaction := change.Interaction

	return repo.withTransaction(ctx, func(sc mongo.SessionContext) error {
		if change.Create {
			err := repo.insert(sc, interaction)
			if err != nil {
				return err
			}
		} else {
			upvoted, downvoted := interaction.Vote.Flags()
			previousUpvoted, previousDownvoted := change.Previous.Flags()

			err := repo.compareAndSet(
				sc,
				interaction,
				bson.M{"upvoted": previousUpvoted, "downvoted": previousDownvoted},
				bson.M{"$set": bson.M{"upvoted": upvoted, "downvoted": downvoted, "updated_at": interaction.UpdatedAt}},
			)
			if err != nil {
				return err
			}
		}

		return applyPostCounters(sc, repo.posts, interaction.PostID, change.Delta, 0)
	})
}

func (repo *InteractionRepository) AttachComment(ctx context.Context, change *interactions.CommentChange) error {
	interaction := change.Interaction

	return repo.withTransaction(ctx, func(sc mongo.SessionContext) error {
		if change.Create {
			err := repo.insert(sc, interaction)
			if err != nil {
				return err
			}
		} else {
			err := repo.compareAndSet(
				sc,
				interaction,
				bson.M{"comment": nil},
				bson.M{"$set": bson.M{"comment": interaction.Comment, "updated_at": interaction.UpdatedAt}},
			)
			if err != nil {
				return err
			}
		}

		return applyPostCounters(sc, repo.posts, interaction.PostID, interactions.CounterDelta{}, 1)
	})
}

func (repo *InteractionRepository) AppendReply(ctx context.Context, interactionID string, reply *interactions.Reply) error {
	return repo.withTransaction(ctx, func(sc mongo.SessionContext) error {
		var doc interactionDocument

		err := repo.interactions.FindOneAndUpdate(
			sc,
			bson.M{"_id": interactionID},
			bson.M{"$push": bson.M{"replies": replyDocument{
				ID:        reply.ID,
				UserID:    reply.UserID,
				Comment:   reply.Comment,
				CreatedAt: reply.CreatedAt,
			}}},
		).Decode(&doc)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return &interactions.InteractionNotFoundError{ID: interactionID}
			}

			return fmt.Errorf("failed to push reply: %w", err)
		}

		err = applyPostCounters(sc, repo.posts, doc.PostID, interactions.CounterDelta{}, 1)
		if err != nil {
			var postNotFoundErr *contents.PostNotFoundError
			if errors.As(err, &postNotFoundErr) {
				return &interactions.InteractionNotFoundError{ID: interactionID}
			}

			return err
		}

		return nil
	})
}

func (repo *InteractionRepository) DeleteByPost(ctx context.Context, postID string) error {
	_, err := repo.interactions.DeleteMany(ctx, bson.M{"post_id": postID})
	if err != nil {
		return fmt.Errorf("failed to delete interactions: %w", err)
	}

	return nil
}
