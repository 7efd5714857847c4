package network

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnyReachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := closed.Addr().String()
	closed.Close()

	ctx := context.Background()
	assert.NoError(t, Dial(ctx, ln.Addr().String(), time.Second))
	assert.Error(t, Dial(ctx, deadAddr, time.Second))
	assert.NoError(t, AnyReachable(ctx, []string{deadAddr, ln.Addr().String()}, time.Second))
	assert.Error(t, AnyReachable(ctx, []string{deadAddr}, time.Second))
	assert.Error(t, AnyReachable(ctx, nil, time.Second))
}
