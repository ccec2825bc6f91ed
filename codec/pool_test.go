package codec

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolCompressDecompressRoundTrip(t *testing.T) {
	pool := NewPool(2)
	ctx := context.Background()
	original := []byte(strings.Repeat("pooled codec payload ", 4000))

	compressed, err := pool.Compress(ctx, original, DefaultCompressionLevel)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(original))

	decompressed, err := pool.Decompress(ctx, compressed)
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}

func TestPoolCompressRespectsCancellation(t *testing.T) {
	pool := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pool.Compress(ctx, []byte("data"), DefaultCompressionLevel)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPoolBlocksWhenSaturatedUntilSlotFrees(t *testing.T) {
	pool := NewPool(1)
	ctx := context.Background()

	// occupy the only slot directly so the next call must wait for it
	pool.slots <- struct{}{}

	done := make(chan error, 1)
	go func() {
		_, err := pool.Compress(ctx, []byte(strings.Repeat("x", 1000)), DefaultCompressionLevel)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("compress completed while the pool was saturated")
	case <-time.After(50 * time.Millisecond):
	}

	<-pool.slots
	require.NoError(t, <-done)
}

func TestPoolSaturatedCallCancels(t *testing.T) {
	pool := NewPool(1)
	pool.slots <- struct{}{}
	defer func() { <-pool.slots }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pool.Decompress(ctx, []byte("irrelevant"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
