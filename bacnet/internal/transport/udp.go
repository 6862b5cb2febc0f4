// Package transport owns the UDP socket used for BACnet/IP.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"
)

// maxBindAttempts bounds the bind-conflict fallback loop.
const maxBindAttempts = 3

// UDPTransport is a BACnet/IP datagram transport bound to a local port.
type UDPTransport struct {
	requestedAddr string

	mu     sync.Mutex
	conn   *net.UDPConn
	closed bool

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewUDP creates a transport that will bind to localAddr, e.g.
// "0.0.0.0:47808".
func NewUDP(localAddr string) *UDPTransport {
	return &UDPTransport{
		requestedAddr: localAddr,
		readTimeout:   1 * time.Second,
		writeTimeout:  1 * time.Second,
	}
}

// Open binds the UDP socket. If the requested port is taken, it retries
// with an OS-assigned ephemeral port; if every attempt fails, the last
// error is returned wrapped so callers can map it to their transport
// sentinel.
func (t *UDPTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return errors.New("transport already open")
	}

	addr, err := net.ResolveUDPAddr("udp4", t.requestedAddr)
	if err != nil {
		return fmt.Errorf("resolve local address: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxBindAttempts; attempt++ {
		conn, err := net.ListenUDP("udp4", addr)
		if err == nil {
			enableBroadcast(conn)
			t.conn = conn
			t.closed = false
			return nil
		}
		lastErr = err
		if !isAddrInUse(err) {
			break
		}
		// Port conflict: fall back to an ephemeral port.
		addr = &net.UDPAddr{IP: addr.IP, Port: 0}
	}

	return fmt.Errorf("bind %s: %w", t.requestedAddr, lastErr)
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

// enableBroadcast sets SO_BROADCAST so Who-Is can go to the limited
// broadcast address. Failure is non-fatal: unicast still works.
func enableBroadcast(conn *net.UDPConn) {
	rc, err := conn.SyscallConn()
	if err != nil {
		return
	}
	rc.Control(func(fd uintptr) {
		syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
}

// Send transmits data to a unicast destination.
func (t *UDPTransport) Send(ctx context.Context, data []byte, dest *net.UDPAddr) error {
	conn := t.connection()
	if conn == nil {
		return errors.New("transport not open")
	}

	deadline := time.Now().Add(t.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	_, err := conn.WriteToUDP(data, dest)
	return err
}

// Broadcast transmits data as a limited broadcast on the local network.
func (t *UDPTransport) Broadcast(ctx context.Context, data []byte, port int) error {
	return t.Send(ctx, data, &net.UDPAddr{IP: net.IPv4bcast, Port: port})
}

// Receive blocks for one datagram or until the timeout elapses.
func (t *UDPTransport) Receive(timeout time.Duration) ([]byte, *net.UDPAddr, error) {
	conn := t.connection()
	if conn == nil {
		return nil, nil, errors.New("transport not open")
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, nil, err
	}

	buf := make([]byte, 1500)
	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, err
	}
	return buf[:n], addr, nil
}

// LocalAddr returns the bound address, which may differ from the requested
// one after a bind-conflict fallback.
func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	conn := t.connection()
	if conn == nil {
		return nil
	}
	return conn.LocalAddr().(*net.UDPAddr)
}

// Close shuts the socket.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.closed {
		return nil
	}
	t.closed = true
	err := t.conn.Close()
	t.conn = nil
	return err
}

// IsClosed reports whether Close has been called.
func (t *UDPTransport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *UDPTransport) connection() *net.UDPConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}
