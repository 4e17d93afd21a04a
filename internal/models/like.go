package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Like is a reaction record. Exactly one of Video and Comment is set; presence of the
// record means "liked".
type Like struct {
	ID        primitive.ObjectID  `json:"_id" bson:"_id,omitempty"`
	Video     *primitive.ObjectID `json:"video,omitempty" bson:"video,omitempty"`
	Comment   *primitive.ObjectID `json:"comment,omitempty" bson:"comment,omitempty"`
	LikedBy   primitive.ObjectID  `json:"likedBy" bson:"likedBy"`
	CreatedAt time.Time           `json:"createdAt" bson:"createdAt"`
}

// LikeTarget names which kind of document a like points at.
type LikeTarget string

const (
	LikeTargetVideo   LikeTarget = "video"
	LikeTargetComment LikeTarget = "comment"
)

// NewLike builds a like for exactly one target kind.
func NewLike(target LikeTarget, targetID, likedBy primitive.ObjectID) Like {
	like := Like{LikedBy: likedBy}
	id := targetID
	switch target {
	case LikeTargetVideo:
		like.Video = &id
	case LikeTargetComment:
		like.Comment = &id
	}
	return like
}

// Valid reports whether the like references exactly one target.
func (l Like) Valid() bool {
	return (l.Video == nil) != (l.Comment == nil)
}

// ToggleLikeResponse is returned by the toggle endpoints.
type ToggleLikeResponse struct {
	IsLiked bool `json:"isLiked"`
}
