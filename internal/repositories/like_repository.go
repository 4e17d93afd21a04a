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

// LikeRepository defines the interface for like data operations
type LikeRepository interface {
	ToggleLike(ctx context.Context, target models.LikeTarget, targetID, userID primitive.ObjectID) (bool, error)
	DeleteByComment(ctx context.Context, commentID primitive.ObjectID) (int64, error)
}

// MongoLikeRepository implements LikeRepository for MongoDB
type MongoLikeRepository struct {
	collection *mongo.Collection
}

// NewMongoLikeRepository creates a new MongoLikeRepository
func NewMongoLikeRepository(db *mongo.Database) *MongoLikeRepository {
	return &MongoLikeRepository{collection: db.Collection(CollectionLikes)}
}

// EnsureIndexes makes (user, target) unique per target kind, so concurrent toggles
// cannot produce two likes.
func (r *MongoLikeRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "likedBy", Value: 1}, {Key: "video", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"video": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "likedBy", Value: 1}, {Key: "comment", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"comment": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "comment", Value: 1}}},
	})
	return wrap(err, "likes.indexes")
}

// ToggleLike removes the user's like on the target if present, otherwise creates it.
// It returns true when the target is liked after the call.
func (r *MongoLikeRepository) ToggleLike(ctx context.Context, target models.LikeTarget, targetID, userID primitive.ObjectID) (bool, error) {
	like := models.NewLike(target, targetID, userID)
	filter, err := likeFilter(like)
	if err != nil {
		return false, err
	}

	err = r.collection.FindOneAndDelete(ctx, filter).Err()
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return false, wrap(err, "likes.delete", "target", string(target), "target_id", targetID.Hex())
	}

	like.ID = primitive.NewObjectID()
	like.CreatedAt = time.Now().UTC()
	if _, err := r.collection.InsertOne(ctx, like); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// A concurrent toggle already created it.
			return true, nil
		}
		return false, wrap(err, "likes.insert", "target", string(target), "target_id", targetID.Hex())
	}
	return true, nil
}

// DeleteByComment removes every like pointing at a comment
func (r *MongoLikeRepository) DeleteByComment(ctx context.Context, commentID primitive.ObjectID) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"comment": commentID})
	if err != nil {
		return 0, wrap(err, "likes.delete_by_comment", "comment", commentID.Hex())
	}
	return res.DeletedCount, nil
}

// likeFilter matches the user's like on the like's single target.
func likeFilter(like models.Like) (bson.M, error) {
	if !like.Valid() {
		return nil, errors.New("like must reference exactly one target")
	}
	if like.Video != nil {
		return bson.M{"video": *like.Video, "likedBy": like.LikedBy}, nil
	}
	return bson.M{"comment": *like.Comment, "likedBy": like.LikedBy}, nil
}
