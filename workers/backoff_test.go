package workers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DoublesAndCapsAttempts(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 30 * time.Second, MaxAttempts: 3}

	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 4*time.Second, b.Next())
	assert.Equal(t, 8*time.Second, b.Next())

	// The attempt counter stops at MaxAttempts: further failures keep the
	// same delay instead of growing without bound.
	assert.Equal(t, 8*time.Second, b.Next())
	assert.Equal(t, 8*time.Second, b.Next())
	assert.Equal(t, 3, b.Attempts())
	assert.True(t, b.Exhausted())
}

func TestBackoff_Cap(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 3 * time.Second, MaxAttempts: 5}

	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 3*time.Second, b.Next())
	assert.Equal(t, 3*time.Second, b.Next())
}

func TestBackoff_Reset(t *testing.T) {
	b := Backoff{Base: time.Second, MaxAttempts: 3}
	b.Next()
	b.Next()

	b.Reset()
	assert.Equal(t, 0, b.Attempts())
	assert.False(t, b.Exhausted())
	assert.Equal(t, 2*time.Second, b.Next())
}
