package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/cube-segmenter/pkg/types"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "segment:abc123:normalized", Key("abc123", "normalized"))
	assert.NotEqual(t, Key("abc123", "normalized"), Key("abc123", "absolute"))
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}

	require.NoError(t, c.Set(context.Background(), "h", "normalized", types.Segmentation{}))
	seg, err := c.Get(context.Background(), "h", "normalized")
	require.NoError(t, err)
	assert.Nil(t, seg)
}

// TestRedisRoundTrip needs a live server, e.g. CUBESEG_TEST_REDIS=localhost:6379
func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("CUBESEG_TEST_REDIS")
	if addr == "" {
		t.Skip("CUBESEG_TEST_REDIS not set")
	}

	c := NewRedisCache(Config{Addr: addr, TTL: time.Minute})
	defer c.Close()
	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	miss, err := c.Get(ctx, "missing-"+time.Now().String(), "normalized")
	require.NoError(t, err)
	assert.Nil(t, miss)

	want := types.Segmentation{Top: types.Point{X: 0.5, Y: 0.1}, Center: types.Point{X: 0.5, Y: 0.5}}
	require.NoError(t, c.Set(ctx, "roundtrip", "normalized", want))
	got, err := c.Get(ctx, "roundtrip", "normalized")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}
