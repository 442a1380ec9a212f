package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextsApplyDeadline(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context) (context.Context, context.CancelFunc)
		want time.Duration
	}{
		{"read", ReadContext, ReadTimeout},
		{"write", WriteContext, WriteTimeout},
		{"scan", ScanContext, ScanTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.fn(context.Background())
			defer cancel()

			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			remaining := time.Until(deadline)
			assert.LessOrEqual(t, remaining, tt.want)
			assert.Greater(t, remaining, tt.want-time.Second)
		})
	}
}

func TestContextKeepsTighterParentDeadline(t *testing.T) {
	parent, cancelParent := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelParent()
	want, _ := parent.Deadline()

	ctx, cancel := ScanContext(parent)
	defer cancel()

	got, ok := ctx.Deadline()
	require.True(t, ok)
	assert.True(t, got.Equal(want))
}

func TestCancelReleasesContext(t *testing.T) {
	ctx, cancel := WriteContext(context.Background())
	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
