// Package notify defines the operator notification side-channel.
package notify

import (
	"context"
	"errors"
)

// ErrUserNotFound is returned when a notification targets an unknown user.
var ErrUserNotFound = errors.New("user not found")

// User is a Telegram user registered to receive notifications.
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
}

// Sender delivers one message to an end user.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}
