package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is an identity stored in the "users" collection. It carries no behaviour:
// hashing, token minting and comparison live in the auth package.
type User struct {
	ID           primitive.ObjectID   `json:"_id" bson:"_id,omitempty"`
	Username     string               `json:"username" bson:"username"` // unique, lowercase
	Email        string               `json:"email" bson:"email"`       // unique, lowercase
	FullName     string               `json:"fullName" bson:"fullName"`
	Avatar       Asset                `json:"avatar" bson:"avatar"`
	CoverImage   Asset                `json:"coverImage" bson:"coverImage"`
	WatchHistory []primitive.ObjectID `json:"watchHistory" bson:"watchHistory"` // most recent last
	Password     string               `json:"-" bson:"password,omitempty"`
	RefreshToken string               `json:"-" bson:"refreshToken,omitempty"`
	CreatedAt    time.Time            `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt" bson:"updatedAt"`
}

// UserCompact is the public projection of a user used inside views.
type UserCompact struct {
	ID       primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Username string             `json:"username" bson:"username"`
	FullName string             `json:"fullName" bson:"fullName"`
	Avatar   Asset              `json:"avatar" bson:"avatar"`
}

// RegisterUserRequest holds the text fields of the multipart registration form.
type RegisterUserRequest struct {
	Username string `form:"username" json:"username" validate:"required,min=3,max=30,alphanum"`
	Email    string `form:"email" json:"email" validate:"required,email"`
	FullName string `form:"fullName" json:"fullName" validate:"required,min=1,max=80"`
	Password string `form:"password" json:"password" validate:"required,max=72"`
}

// LoginRequest accepts either a username or an email.
type LoginRequest struct {
	Username string `json:"username" validate:"required_without=Email"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is used by clients that do not send cookies.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ChangePasswordRequest defines the request body for a password change.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,max=72,nefield=OldPassword"`
}

// UpdateAccountRequest defines the request body for updating account details.
type UpdateAccountRequest struct {
	FullName string `json:"fullName" validate:"required,min=1,max=80"`
	Email    string `json:"email" validate:"required,email"`
}
