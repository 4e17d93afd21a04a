package repositories

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/anonto42/vidtube/backend/internal/models"
)

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	CreateComment(ctx context.Context, comment *models.Comment) error
	GetCommentByID(ctx context.Context, id primitive.ObjectID) (*models.Comment, error)
	UpdateContent(ctx context.Context, id primitive.ObjectID, content string) (*models.Comment, error)
	DeleteComment(ctx context.Context, id primitive.ObjectID) error
}

// MongoCommentRepository implements CommentRepository for MongoDB
type MongoCommentRepository struct {
	collection *mongo.Collection
}

// NewMongoCommentRepository creates a new MongoCommentRepository
func NewMongoCommentRepository(db *mongo.Database) *MongoCommentRepository {
	return &MongoCommentRepository{collection: db.Collection(CollectionComments)}
}

// EnsureIndexes creates the per-video index the comments view matches on.
func (r *MongoCommentRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "video", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	return wrap(err, "comments.indexes")
}

// CreateComment inserts a comment
func (r *MongoCommentRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	now := time.Now().UTC()
	comment.ID = primitive.NewObjectID()
	comment.Content = strings.TrimSpace(comment.Content)
	comment.CreatedAt = now
	comment.UpdatedAt = now
	_, err := r.collection.InsertOne(ctx, comment)
	return wrap(err, "comments.insert", "video", comment.Video.Hex())
}

// GetCommentByID retrieves a comment by ID
func (r *MongoCommentRepository) GetCommentByID(ctx context.Context, id primitive.ObjectID) (*models.Comment, error) {
	var comment models.Comment
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&comment); err != nil {
		return nil, wrap(err, "comments.find_by_id", "id", id.Hex())
	}
	return &comment, nil
}

// UpdateContent replaces a comment's text and returns the updated document
func (r *MongoCommentRepository) UpdateContent(ctx context.Context, id primitive.ObjectID, content string) (*models.Comment, error) {
	update := bson.M{"$set": bson.M{
		"content":   strings.TrimSpace(content),
		"updatedAt": time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var comment models.Comment
	if err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&comment); err != nil {
		return nil, wrap(err, "comments.update", "id", id.Hex())
	}
	return &comment, nil
}

// DeleteComment removes a comment by ID
func (r *MongoCommentRepository) DeleteComment(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return wrap(err, "comments.delete", "id", id.Hex())
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
