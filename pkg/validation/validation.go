package validation

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// IdentifierRegex validates user, counselor and session identifiers.
	IdentifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

const (
	MaxIdentifierLength = 100
	MaxNoteLength       = 1000
	MaxFrameDimension   = 8192
	MaxLandmarkPoints   = 1024
)

func validateIdentifier(value, field string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(value) > MaxIdentifierLength {
		return fmt.Errorf("%s is too long (max %d characters)", field, MaxIdentifierLength)
	}
	if !IdentifierRegex.MatchString(value) {
		return fmt.Errorf("invalid %s format", field)
	}
	return nil
}

func ValidateUserID(userID string) error {
	return validateIdentifier(userID, "user ID")
}

func ValidateCounselorID(counselorID string) error {
	return validateIdentifier(counselorID, "counselor ID")
}

func ValidateSessionID(sessionID string) error {
	return validateIdentifier(sessionID, "session ID")
}

// ValidateRating checks a feedback rating on the 1..5 scale.
func ValidateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5")
	}
	return nil
}

func ValidateNote(note string) error {
	if utf8.RuneCountInString(note) > MaxNoteLength {
		return fmt.Errorf("note is too long (max %d characters)", MaxNoteLength)
	}
	return nil
}

// ValidateFrameSize checks the pixel size of a landmark frame.
func ValidateFrameSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("frame size must be positive, got %dx%d", width, height)
	}
	if width > MaxFrameDimension || height > MaxFrameDimension {
		return fmt.Errorf("frame size %dx%d exceeds %d", width, height, MaxFrameDimension)
	}
	return nil
}

// ValidatePointCount bounds the number of landmark slots in one frame.
func ValidatePointCount(n int) error {
	if n > MaxLandmarkPoints {
		return fmt.Errorf("too many landmark points (%d > %d)", n, MaxLandmarkPoints)
	}
	return nil
}

// IsNormalized reports whether v is a finite coordinate within [0, 1].
func IsNormalized(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// ValidateWebSocketURL checks a channel URL handed out by the backend.
func ValidateWebSocketURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("websocket URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("websocket URL must use ws or wss scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("websocket URL must have a host")
	}
	return nil
}
