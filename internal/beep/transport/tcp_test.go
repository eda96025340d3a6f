package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPWriteReadRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ct := NewTCP(client, 0)
	defer ct.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		_ = ct.Write(ctx, []byte("hello"))
	}()

	buf := make([]byte, 5)
	n, err := server.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestTCPReadSomeReturnsServerBytes(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ct := NewTCP(client, 0)
	defer ct.Close()

	go func() {
		_, _ = server.Write([]byte("payload"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := ct.ReadSome(ctx)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestTCPCloseUnblocksOperations(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	ct := NewTCP(client, 0)
	require.NoError(t, ct.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := ct.ReadSome(ctx)
	assert.Error(t, err)
}
