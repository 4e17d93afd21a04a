package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Video is a media item stored in the "videos" collection.
type Video struct {
	ID          primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Owner       primitive.ObjectID `json:"owner" bson:"owner"`
	VideoFile   Asset              `json:"videoFile" bson:"videoFile"`
	Thumbnail   Asset              `json:"thumbnail" bson:"thumbnail"`
	Title       string             `json:"title" bson:"title"`
	Description string             `json:"description" bson:"description"`
	Duration    float64            `json:"duration" bson:"duration"` // seconds
	Views       int64              `json:"views" bson:"views"`
	IsPublished bool               `json:"isPublished" bson:"isPublished"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// VideoSummary is the projection of a video embedded in views.
type VideoSummary struct {
	ID          primitive.ObjectID `json:"_id" bson:"_id"`
	VideoFile   Asset              `json:"videoFile" bson:"videoFile"`
	Thumbnail   Asset              `json:"thumbnail" bson:"thumbnail"`
	Owner       primitive.ObjectID `json:"owner" bson:"owner"`
	Title       string             `json:"title" bson:"title"`
	Description string             `json:"description" bson:"description"`
	Duration    float64            `json:"duration" bson:"duration"`
	Views       int64              `json:"views" bson:"views"`
	IsPublished bool               `json:"isPublished" bson:"isPublished"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
}
