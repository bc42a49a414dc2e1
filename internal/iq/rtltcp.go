package iq

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rangeops/excon/internal/metrics"
)

const (
	tunerTypeR820T = 1
	tunerGainCount = 29

	clientWriteTimeout = 2 * time.Second
)

// Broadcaster is a TCP server speaking the rtl-tcp wire format: a 12-byte
// dongle-info handshake per connection followed by an unframed stream of
// interleaved unsigned 8-bit I/Q bytes.
type Broadcaster struct {
	addr   string
	logger zerolog.Logger

	mu       sync.Mutex
	clients  map[net.Conn]struct{}
	listener net.Listener
}

func NewBroadcaster(addr string, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		addr:    addr,
		logger:  logger,
		clients: make(map[net.Conn]struct{}),
	}
}

// dongleInfo builds the handshake: magic "RTL0", tuner type, gain count.
func dongleInfo() []byte {
	buf := make([]byte, 12)
	copy(buf, "RTL0")
	binary.BigEndian.PutUint32(buf[4:], tunerTypeR820T)
	binary.BigEndian.PutUint32(buf[8:], tunerGainCount)
	return buf
}

// Serve accepts clients until ctx is canceled.
func (b *Broadcaster) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", b.addr)
	if err != nil {
		return fmt.Errorf("rtl-tcp listen on %s: %w", b.addr, err)
	}

	b.mu.Lock()
	b.listener = listener
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	b.logger.Info().Str("addr", b.addr).Msg("rtl-tcp server listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("rtl-tcp accept: %w", err)
		}
		go b.handleClient(conn)
	}
}

func (b *Broadcaster) handleClient(conn net.Conn) {
	addr := conn.RemoteAddr().String()

	_ = conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
	if _, err := conn.Write(dongleInfo()); err != nil {
		b.logger.Warn().Err(err).Str("client", addr).Msg("handshake write failed")
		_ = conn.Close()
		return
	}

	b.mu.Lock()
	b.clients[conn] = struct{}{}
	n := len(b.clients)
	b.mu.Unlock()
	metrics.RTLClients.Set(float64(n))
	b.logger.Info().Str("client", addr).Msg("rtl-tcp client connected")

	// Inbound bytes are tuner commands; this version reads and discards
	// them, dropping the client on EOF.
	buf := make([]byte, 64)
	for {
		if _, err := conn.Read(buf); err != nil {
			if err != io.EOF {
				b.logger.Debug().Err(err).Str("client", addr).Msg("client read ended")
			}
			break
		}
	}
	b.dropClient(conn)
	b.logger.Info().Str("client", addr).Msg("rtl-tcp client disconnected")
}

func (b *Broadcaster) dropClient(conn net.Conn) {
	b.mu.Lock()
	if _, ok := b.clients[conn]; ok {
		delete(b.clients, conn)
		_ = conn.Close()
	}
	n := len(b.clients)
	b.mu.Unlock()
	metrics.RTLClients.Set(float64(n))
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Broadcast serializes the frame to u8 I/Q pairs and writes it to every
// connected client. A write failure drops that client only.
func (b *Broadcaster) Broadcast(frame []complex64) {
	if len(frame) == 0 {
		return
	}

	b.mu.Lock()
	if len(b.clients) == 0 {
		b.mu.Unlock()
		return
	}
	conns := make([]net.Conn, 0, len(b.clients))
	for c := range b.clients {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	payload := Serialize(frame)
	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
		if _, err := conn.Write(payload); err != nil {
			b.logger.Warn().Err(err).Str("client", conn.RemoteAddr().String()).Msg("broadcast write failed, dropping client")
			b.dropClient(conn)
		}
	}
	metrics.FramesBroadcastTotal.Inc()
}

// Serialize maps each complex sample with components in [-1, 1] to two
// unsigned bytes round(127.5*x + 127.5), I before Q.
func Serialize(frame []complex64) []byte {
	out := make([]byte, len(frame)*2)
	for i, s := range frame {
		out[i*2] = quantize(real(s))
		out[i*2+1] = quantize(imag(s))
	}
	return out
}

func quantize(x float32) byte {
	v := float64(x)*127.5 + 127.5
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return byte(v + 0.5)
}
