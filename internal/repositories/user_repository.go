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

// UserRepository defines the interface for identity data operations
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetPublicUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByLogin(ctx context.Context, username, email string) (*models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	SetRefreshToken(ctx context.Context, id primitive.ObjectID, token string) error
	ClearRefreshToken(ctx context.Context, id primitive.ObjectID) error
	UpdatePassword(ctx context.Context, id primitive.ObjectID, digest string) error
	UpdateAccount(ctx context.Context, id primitive.ObjectID, fullName, email string) (*models.User, error)
	ReplaceAsset(ctx context.Context, id primitive.ObjectID, field string, asset models.Asset) (models.Asset, error)
	PushWatchHistory(ctx context.Context, id, videoID primitive.ObjectID) error
}

// Asset fields a user may replace.
const (
	FieldAvatar     = "avatar"
	FieldCoverImage = "coverImage"
)

// publicProjection drops the credential fields.
var publicProjection = bson.D{{Key: "password", Value: 0}, {Key: "refreshToken", Value: 0}}

// MongoUserRepository implements UserRepository for MongoDB
type MongoUserRepository struct {
	collection *mongo.Collection
}

// NewMongoUserRepository creates a new MongoUserRepository
func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{collection: db.Collection(CollectionUsers)}
}

// EnsureIndexes creates the unique handle and email indexes.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	return wrap(err, "users.indexes")
}

// CreateUser inserts a user. The password must already be hashed.
func (r *MongoUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.ID = primitive.NewObjectID()
	user.Username = strings.ToLower(user.Username)
	user.Email = strings.ToLower(user.Email)
	if user.WatchHistory == nil {
		user.WatchHistory = []primitive.ObjectID{}
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	_, err := r.collection.InsertOne(ctx, user)
	return wrap(err, "users.insert", "username", user.Username)
}

// GetUserByID returns the full user document, credentials included.
func (r *MongoUserRepository) GetUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, wrap(err, "users.find_by_id", "id", id.Hex())
	}
	return &user, nil
}

// GetPublicUserByID returns the user without password and refresh token.
func (r *MongoUserRepository) GetPublicUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var user models.User
	opts := options.FindOne().SetProjection(publicProjection)
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&user); err != nil {
		return nil, wrap(err, "users.find_public_by_id", "id", id.Hex())
	}
	return &user, nil
}

// FindByLogin looks a user up by username or email, whichever are non-empty.
func (r *MongoUserRepository) FindByLogin(ctx context.Context, username, email string) (*models.User, error) {
	filter := loginFilter(username, email)
	if filter == nil {
		return nil, ErrNotFound
	}
	var user models.User
	if err := r.collection.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, wrap(err, "users.find_by_login")
	}
	return &user, nil
}

// ExistsByUsernameOrEmail reports whether either unique field is already taken.
func (r *MongoUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	filter := loginFilter(username, email)
	if filter == nil {
		return false, nil
	}
	n, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, wrap(err, "users.exists")
	}
	return n > 0, nil
}

// SetRefreshToken overwrites the stored refresh token.
func (r *MongoUserRepository) SetRefreshToken(ctx context.Context, id primitive.ObjectID, token string) error {
	return r.updateOne(ctx, id, "users.set_refresh_token", bson.M{
		"$set": bson.M{"refreshToken": token, "updatedAt": time.Now().UTC()},
	})
}

// ClearRefreshToken removes the stored refresh token.
func (r *MongoUserRepository) ClearRefreshToken(ctx context.Context, id primitive.ObjectID) error {
	return r.updateOne(ctx, id, "users.clear_refresh_token", bson.M{
		"$unset": bson.M{"refreshToken": 1},
		"$set":   bson.M{"updatedAt": time.Now().UTC()},
	})
}

// UpdatePassword stores a new password digest.
func (r *MongoUserRepository) UpdatePassword(ctx context.Context, id primitive.ObjectID, digest string) error {
	return r.updateOne(ctx, id, "users.update_password", bson.M{
		"$set": bson.M{"password": digest, "updatedAt": time.Now().UTC()},
	})
}

// UpdateAccount sets the display name and email and returns the public document.
func (r *MongoUserRepository) UpdateAccount(ctx context.Context, id primitive.ObjectID, fullName, email string) (*models.User, error) {
	update := bson.M{"$set": bson.M{
		"fullName":  strings.TrimSpace(fullName),
		"email":     strings.ToLower(strings.TrimSpace(email)),
		"updatedAt": time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(publicProjection)

	var user models.User
	if err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&user); err != nil {
		return nil, wrap(err, "users.update_account", "id", id.Hex())
	}
	return &user, nil
}

// ReplaceAsset swaps the avatar or cover image and returns the previous reference so
// the caller can delete it from the media store.
func (r *MongoUserRepository) ReplaceAsset(ctx context.Context, id primitive.ObjectID, field string, asset models.Asset) (models.Asset, error) {
	update := bson.M{"$set": bson.M{field: asset, "updatedAt": time.Now().UTC()}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.Before).
		SetProjection(bson.D{{Key: field, Value: 1}})

	var before bson.M
	if err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&before); err != nil {
		return models.Asset{}, wrap(err, "users.replace_asset", "id", id.Hex(), "field", field)
	}

	var prev models.Asset
	if raw, ok := before[field]; ok && raw != nil {
		data, err := bson.Marshal(raw)
		if err != nil {
			return models.Asset{}, wrap(err, "users.replace_asset.decode")
		}
		if err := bson.Unmarshal(data, &prev); err != nil {
			return models.Asset{}, wrap(err, "users.replace_asset.decode")
		}
	}
	return prev, nil
}

// PushWatchHistory moves videoID to the end of the user's watch history, removing any
// earlier occurrence, in a single update.
func (r *MongoUserRepository) PushWatchHistory(ctx context.Context, id, videoID primitive.ObjectID) error {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"watchHistory": bson.M{"$concatArrays": bson.A{
				bson.M{"$filter": bson.M{
					"input": bson.M{"$ifNull": bson.A{"$watchHistory", bson.A{}}},
					"cond":  bson.M{"$ne": bson.A{"$$this", videoID}},
				}},
				bson.A{videoID},
			}},
		}}},
	}
	return r.updateOne(ctx, id, "users.push_watch_history", pipeline)
}

func (r *MongoUserRepository) updateOne(ctx context.Context, id primitive.ObjectID, op string, update interface{}) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return wrap(err, op, "id", id.Hex())
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func loginFilter(username, email string) bson.M {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))
	var or bson.A
	if username != "" {
		or = append(or, bson.M{"username": username})
	}
	if email != "" {
		or = append(or, bson.M{"email": email})
	}
	if len(or) == 0 {
		return nil
	}
	return bson.M{"$or": or}
}
