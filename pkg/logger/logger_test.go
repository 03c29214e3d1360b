package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	logg := NewLogger("debug")
	ctx := NewContext(context.Background(), logg)

	got := FromContext(ctx)
	assert.Same(t, logg, got)
}

func TestFromContextFallsBack(t *testing.T) {
	got := FromContext(context.Background())
	require.NotNil(t, got)
	// the fallback is usable, not a nil interface
	got.Debugf("no logger in context")
}
