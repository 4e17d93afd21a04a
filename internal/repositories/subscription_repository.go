package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/anonto42/vidtube/backend/internal/models"
)

// SubscriptionRepository defines the interface for subscription data operations
type SubscriptionRepository interface {
	ToggleSubscription(ctx context.Context, subscriberID, channelID primitive.ObjectID) (bool, error)
}

// MongoSubscriptionRepository implements SubscriptionRepository for MongoDB
type MongoSubscriptionRepository struct {
	collection *mongo.Collection
}

// NewMongoSubscriptionRepository creates a new MongoSubscriptionRepository
func NewMongoSubscriptionRepository(db *mongo.Database) *MongoSubscriptionRepository {
	return &MongoSubscriptionRepository{collection: db.Collection(CollectionSubscriptions)}
}

// EnsureIndexes makes (subscriber, channel) unique and indexes the channel side.
func (r *MongoSubscriptionRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "subscriber", Value: 1}, {Key: "channel", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "channel", Value: 1}}},
	})
	return wrap(err, "subscriptions.indexes")
}

// ToggleSubscription unsubscribes if a subscription exists, otherwise subscribes.
// It returns true when the subscriber follows the channel after the call.
func (r *MongoSubscriptionRepository) ToggleSubscription(ctx context.Context, subscriberID, channelID primitive.ObjectID) (bool, error) {
	filter := bson.M{"subscriber": subscriberID, "channel": channelID}

	err := r.collection.FindOneAndDelete(ctx, filter).Err()
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return false, wrap(err, "subscriptions.delete", "channel", channelID.Hex())
	}

	now := time.Now().UTC()
	sub := models.Subscription{
		ID:         primitive.NewObjectID(),
		Subscriber: subscriberID,
		Channel:    channelID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := r.collection.InsertOne(ctx, sub); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return true, nil
		}
		return false, wrap(err, "subscriptions.insert", "channel", channelID.Hex())
	}
	return true, nil
}
