// Package transport provides SCPI connections to instruments: raw TCP
// sockets and Prologix GPIB-USB controllers.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// DefaultSocketPort is the conventional raw SCPI socket port.
const DefaultSocketPort = "5025"

// DefaultTimeout bounds a single write or query.
const DefaultTimeout = 5 * time.Second

// Socket is a newline-terminated SCPI connection over TCP.
type Socket struct {
	mu      sync.Mutex
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// DialSocket connects to addr, adding the default SCPI port when addr has
// none.
func DialSocket(ctx context.Context, addr string, timeout time.Duration) (*Socket, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, DefaultSocketPort)
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return NewSocket(conn, timeout), nil
}

// NewSocket wraps an established connection.
func NewSocket(conn net.Conn, timeout time.Duration) *Socket {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Socket{conn: conn, r: bufio.NewReader(conn), timeout: timeout}
}

func (s *Socket) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(s.timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

func (s *Socket) send(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.conn.SetDeadline(s.deadline(ctx)); err != nil {
		return err
	}
	_, err := s.conn.Write([]byte(cmd + "\n"))
	return err
}

// Write sends a command that produces no response.
func (s *Socket) Write(ctx context.Context, cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.send(ctx, cmd); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	return nil
}

// Query sends cmd and reads one response line.
func (s *Socket) Query(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.send(ctx, cmd); err != nil {
		return "", fmt.Errorf("query %q: %w", cmd, err)
	}
	line, err := s.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("query %q: %w", cmd, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *Socket) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

func (s *Socket) SetTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
}

// Close closes the connection.
func (s *Socket) Close() error {
	return s.conn.Close()
}
