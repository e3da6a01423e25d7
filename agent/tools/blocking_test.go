package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBlocking_ReturnsResult(t *testing.T) {
	out, err := RunBlocking(context.Background(), func() (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestRunBlocking_HonorsTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := RunBlocking(ctx, func() (string, error) {
		time.Sleep(100 * time.Millisecond)
		return "too late", nil
	})
	assert.Error(t, err)
}
