package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/anonto42/vidtube/backend/internal/models"
)

// VideoRepository defines the interface for video data operations
type VideoRepository interface {
	CreateVideo(ctx context.Context, video *models.Video) error
	GetVideoByID(ctx context.Context, id primitive.ObjectID) (*models.Video, error)
	Exists(ctx context.Context, id primitive.ObjectID) (bool, error)
	IncrementViews(ctx context.Context, id primitive.ObjectID) (*models.Video, error)
}

// MongoVideoRepository implements VideoRepository for MongoDB
type MongoVideoRepository struct {
	collection *mongo.Collection
}

// NewMongoVideoRepository creates a new MongoVideoRepository
func NewMongoVideoRepository(db *mongo.Database) *MongoVideoRepository {
	return &MongoVideoRepository{collection: db.Collection(CollectionVideos)}
}

// EnsureIndexes creates the owner index used by the channel profile view.
func (r *MongoVideoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	return wrap(err, "videos.indexes")
}

// CreateVideo inserts a video document
func (r *MongoVideoRepository) CreateVideo(ctx context.Context, video *models.Video) error {
	now := time.Now().UTC()
	if video.ID.IsZero() {
		video.ID = primitive.NewObjectID()
	}
	if video.CreatedAt.IsZero() {
		video.CreatedAt = now
	}
	video.UpdatedAt = now
	_, err := r.collection.InsertOne(ctx, video)
	return wrap(err, "videos.insert")
}

// GetVideoByID retrieves a video by ID
func (r *MongoVideoRepository) GetVideoByID(ctx context.Context, id primitive.ObjectID) (*models.Video, error) {
	var video models.Video
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&video); err != nil {
		return nil, wrap(err, "videos.find_by_id", "id", id.Hex())
	}
	return &video, nil
}

// Exists reports whether a video with the given ID exists
func (r *MongoVideoRepository) Exists(ctx context.Context, id primitive.ObjectID) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, wrap(err, "videos.exists", "id", id.Hex())
	}
	return n > 0, nil
}

// IncrementViews bumps the view counter and returns the updated video
func (r *MongoVideoRepository) IncrementViews(ctx context.Context, id primitive.ObjectID) (*models.Video, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var video models.Video
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"views": 1}}, opts).Decode(&video)
	if err != nil {
		return nil, wrap(err, "videos.increment_views", "id", id.Hex())
	}
	return &video, nil
}
