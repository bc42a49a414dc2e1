package iq

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func startBroadcaster(t *testing.T) (*Broadcaster, string, context.CancelFunc) {
	t.Helper()

	// Grab a free port, release it, and let Serve bind it.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	b := NewBroadcaster(addr, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = b.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Wait for the listener to come up.
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	return b, addr, cancel
}

func TestHandshakeBytes(t *testing.T) {
	_, addr, _ := startBroadcaster(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	buf := make([]byte, 12)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)

	// "RTL0", tuner type R820T (1), 29 gain steps, both big-endian.
	require.Equal(t, []byte{
		0x52, 0x54, 0x4C, 0x30,
		0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x1D,
	}, buf)
}

func TestBroadcastReachesAllClients(t *testing.T) {
	b, addr, _ := startBroadcaster(t)

	dial := func() net.Conn {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		hs := make([]byte, 12)
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, err = io.ReadFull(conn, hs)
		require.NoError(t, err)
		return conn
	}

	c1 := dial()
	defer func() { _ = c1.Close() }()
	c2 := dial()
	defer func() { _ = c2.Close() }()

	require.Eventually(t, func() bool {
		return b.ClientCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	frame := []complex64{complex(1, -1), complex(0, 0)}
	b.Broadcast(frame)

	want := []byte{255, 0, 128, 128}
	for _, conn := range []net.Conn{c1, c2} {
		got := make([]byte, len(want))
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, err := io.ReadFull(conn, got)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	// A disconnected client is dropped; the rest keep receiving.
	require.NoError(t, c2.Close())
	require.Eventually(t, func() bool {
		return b.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	b.Broadcast(frame)
	got := make([]byte, len(want))
	require.NoError(t, c1.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := io.ReadFull(c1, got)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSerializeQuantization(t *testing.T) {
	cases := []struct {
		in      complex64
		wantI   byte
		wantQ   byte
		comment string
	}{
		{complex(0, 0), 128, 128, "midpoint rounds up from 127.5"},
		{complex(1, 1), 255, 255, "full scale"},
		{complex(-1, -1), 0, 0, "negative full scale"},
		{complex(2, -2), 255, 0, "clamped beyond full scale"},
		{complex(0.5, -0.5), 191, 64, "quarter points"},
	}

	for _, tc := range cases {
		out := Serialize([]complex64{tc.in})
		require.Len(t, out, 2)
		require.Equal(t, tc.wantI, out[0], tc.comment)
		require.Equal(t, tc.wantQ, out[1], tc.comment)
	}
}

func TestSerializeInterleavesIQ(t *testing.T) {
	out := Serialize([]complex64{complex(1, -1), complex(-1, 1)})
	require.Equal(t, []byte{255, 0, 0, 255}, out)
}
