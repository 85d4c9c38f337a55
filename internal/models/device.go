package models

import (
	"time"

	"github.com/google/uuid"
)

// Device is a push-delivery target registered for a user. The push transport
// collaborator resolves the token to an actual APNs/FCM endpoint.
type Device struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
}
