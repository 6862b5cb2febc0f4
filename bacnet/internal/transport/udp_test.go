package transport

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAndLoopbackSend(t *testing.T) {
	sender := NewUDP("127.0.0.1:0")
	require.NoError(t, sender.Open())
	defer sender.Close()

	receiver := NewUDP("127.0.0.1:0")
	require.NoError(t, receiver.Open())
	defer receiver.Close()

	payload := []byte{0x81, 0x0A, 0x00, 0x05, 0x42}
	require.NoError(t, sender.Send(context.Background(), payload, receiver.LocalAddr()))

	data, from, err := receiver.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, sender.LocalAddr().Port, from.Port)
}

func TestOpenBindConflictFallsBackToEphemeral(t *testing.T) {
	first := NewUDP("127.0.0.1:0")
	require.NoError(t, first.Open())
	defer first.Close()

	taken := first.LocalAddr().Port

	second := NewUDP(fmt.Sprintf("127.0.0.1:%d", taken))
	require.NoError(t, second.Open(), "bind conflict must fall back to an ephemeral port")
	defer second.Close()

	assert.NotEqual(t, taken, second.LocalAddr().Port)
	assert.NotZero(t, second.LocalAddr().Port)
}

func TestOpenInvalidAddress(t *testing.T) {
	tr := NewUDP("not an address")
	assert.Error(t, tr.Open())
}

func TestOpenTwice(t *testing.T) {
	tr := NewUDP("127.0.0.1:0")
	require.NoError(t, tr.Open())
	defer tr.Close()
	assert.Error(t, tr.Open())
}

func TestReceiveTimeout(t *testing.T) {
	tr := NewUDP("127.0.0.1:0")
	require.NoError(t, tr.Open())
	defer tr.Close()

	_, _, err := tr.Receive(50 * time.Millisecond)
	require.Error(t, err)
	netErr, ok := err.(net.Error)
	require.True(t, ok)
	assert.True(t, netErr.Timeout())
}

func TestSendHonorsContextDeadline(t *testing.T) {
	tr := NewUDP("127.0.0.1:0")
	require.NoError(t, tr.Open())
	defer tr.Close()

	ctx, cancel := context.WithDeadline(context.Background(),
		time.Now().Add(-time.Second))
	defer cancel()

	dest := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 47808}
	assert.Error(t, tr.Send(ctx, []byte{0x01}, dest))
}

func TestCloseLifecycle(t *testing.T) {
	tr := NewUDP("127.0.0.1:0")
	require.NoError(t, tr.Open())

	assert.False(t, tr.IsClosed())
	require.NoError(t, tr.Close())
	assert.True(t, tr.IsClosed())
	assert.Nil(t, tr.LocalAddr())

	// Closing again is a no-op.
	assert.NoError(t, tr.Close())

	assert.Error(t, tr.Send(context.Background(), []byte{0x01},
		&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 47808}))
	_, _, err := tr.Receive(10 * time.Millisecond)
	assert.Error(t, err)
}
