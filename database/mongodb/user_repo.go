package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nasermirzaei89/agora/authentication"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type UserRepository struct {
	collection *mongo.Collection
}

var _ authentication.UserRepository = (*UserRepository)(nil)

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{collection: db.Collection(collectionUsers)}
}

type userDocument struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	Picture      string    `bson:"picture"`
	PasswordHash string    `bson:"password_hash"`
	RegisteredAt time.Time `bson:"registered_at"`
}

func (doc *userDocument) toUser() *authentication.User {
	return &authentication.User{
		ID:           doc.ID,
		Name:         doc.Name,
		Email:        doc.Email,
		Picture:      doc.Picture,
		PasswordHash: doc.PasswordHash,
		RegisteredAt: doc.RegisteredAt,
	}
}

func (repo *UserRepository) Insert(ctx context.Context, user *authentication.User) error {
	_, err := repo.collection.InsertOne(ctx, &userDocument{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Picture:      user.Picture,
		PasswordHash: user.PasswordHash,
		RegisteredAt: user.RegisteredAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &authentication.UserAlreadyExistsError{Email: user.Email}
		}

		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

func (repo *UserRepository) Find(ctx context.Context, userID string) (*authentication.User, error) {
	var doc userDocument

	err := repo.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &authentication.UserNotFoundError{ID: userID}
		}

		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return doc.toUser(), nil
}

func (repo *UserRepository) FindByEmail(ctx context.Context, email string) (*authentication.User, error) {
	var doc userDocument

	err := repo.collection.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &authentication.UserByEmailNotFoundError{Email: email}
		}

		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return doc.toUser(), nil
}

func (repo *UserRepository) ListEmails(ctx context.Context) ([]string, error) {
	cursor, err := repo.collection.Find(ctx, bson.D{}, options.Find().SetProjection(bson.M{"email": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to query emails: %w", err)
	}

	defer closeCursor(ctx, cursor)

	emails := make([]string, 0)

	for cursor.Next(ctx) {
		var doc userDocument

		err := cursor.Decode(&doc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode email: %w", err)
		}

		emails = append(emails, doc.Email)
	}

	err = cursor.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate emails: %w", err)
	}

	return emails, nil
}
