package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateSessionID returns a new counseling session id.
func GenerateSessionID() string {
	return "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateRequestID returns an id for the X-Request-ID header.
func GenerateRequestID() string {
	return uuid.NewString()
}
