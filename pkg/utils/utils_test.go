package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateSessionID(t *testing.T) {
	a, b := GenerateSessionID(), GenerateSessionID()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "sess_"))
	assert.NotContains(t, a, "-")
}

func TestGenerateRequestID(t *testing.T) {
	assert.Len(t, GenerateRequestID(), 36)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{-time.Second, "00:00"},
		{59 * time.Second, "00:59"},
		{61*time.Second + 500*time.Millisecond, "01:01"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
}

func TestSince_UsesNow(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	Now = func() time.Time { return fixed }
	defer func() { Now = time.Now }()

	assert.Equal(t, 90*time.Second, Since(fixed.Add(-90*time.Second)))
}
