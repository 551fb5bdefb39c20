package utils

import "github.com/google/uuid"

// GenID returns a new opaque unique identifier for conversations and
// messages.
func GenID() string {
	return uuid.NewString()
}
