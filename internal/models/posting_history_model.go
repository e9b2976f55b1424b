package models

import "time"

// PostingHistory records the outcome of a single publish attempt.
type PostingHistory struct {
	ID           string    `bson:"_id,omitempty" db:"id" json:"id"`
	PostID       string    `bson:"post_id" db:"post_id" json:"postId"`
	Platform     Platform  `bson:"platform" db:"platform" json:"platform"`
	Attempt      int       `bson:"attempt" db:"attempt" json:"attempt"`
	Success      bool      `bson:"success" db:"success" json:"success"`
	ExternalID   string    `bson:"external_id,omitempty" db:"external_id" json:"externalId,omitempty"`
	ErrorMessage string    `bson:"error_message,omitempty" db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt    time.Time `bson:"created_at" db:"created_at" json:"createdAt"`
}
