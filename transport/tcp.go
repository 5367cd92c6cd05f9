package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/arloliu/go-instrument/internal/pool"
)

// Kind names of network transports.
const (
	KindTCPIP  = "tcpip"
	KindSocket = "socket"
)

const (
	readChunkSize = 4096
	drainDeadline = 20 * time.Millisecond
)

// TCPTransport is a Transport over a TCP socket.
//
// When credentials are configured, Connect performs a textual login handshake:
// a blank line is sent until the last line of the reply ends with the login prompt,
// then the user ID and the password are sent, each followed by a settle delay and a
// read. The final reply must contain the welcome marker.
//
// Read modes: until a login succeeds, a receive uses one deadline of Timeout() for the
// whole reply (blocking mode). A successful login switches the link into poll mode, where
// every read waits up to Timeout() for the socket to become readable, so a reply that keeps
// trickling in is not cut off. Connections without login stay in blocking mode.
//
// A read that returns zero bytes means the peer closed the link; the transport
// disconnects itself and reports ErrCommunication.
type TCPTransport struct {
	base

	host      string
	port      int
	skipLogin bool
	dial      func(ctx context.Context, network, address string) (net.Conn, error)

	conn     net.Conn
	pending  []byte
	pollMode bool
}

var _ Transport = (*TCPTransport)(nil)

// NewTCP creates a disconnected "tcpip" transport. Use WithCredentials to enable the login handshake.
// The default terminator is a line feed.
func NewTCP(host string, port int, opts ...Option) (*TCPTransport, error) {
	return newTCP(KindTCPIP, host, port, opts)
}

// NewSocket creates a disconnected "socket" transport, a raw TCP link that never logs in.
func NewSocket(host string, port int, opts ...Option) (*TCPTransport, error) {
	t, err := newTCP(KindSocket, host, port, opts)
	if err != nil {
		return nil, err
	}
	t.skipLogin = true

	return t, nil
}

func newTCP(kind, host string, port int, opts []Option) (*TCPTransport, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("%w: empty host", ErrInvalidParameters)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range [1, 65535]", ErrInvalidParameters, port)
	}

	cfg, err := newConfig(DefaultNetworkTerm, opts)
	if err != nil {
		return nil, err
	}

	t := &TCPTransport{host: host, port: port}
	dialer := &net.Dialer{Timeout: cfg.dialTimeout}
	t.dial = dialer.DialContext
	t.init(kind, t, cfg)

	return t, nil
}

// Address returns "host:port".
func (t *TCPTransport) Address() string {
	return net.JoinHostPort(t.host, strconv.Itoa(t.port))
}

// ConnectWithoutLogin connects and skips the login handshake, for links that do not require one.
// Reconnect keeps skipping the handshake afterwards.
func (t *TCPTransport) ConnectWithoutLogin(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.skipLogin = true

	return t.connectLocked(ctx)
}

// PollMode reports whether the link was switched into poll mode by a successful login.
func (t *TCPTransport) PollMode() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.pollMode
}

func (t *TCPTransport) open(ctx context.Context) error {
	conn, err := t.dial(ctx, "tcp", t.Address())
	if err != nil {
		return commError("dial "+t.Address(), err)
	}

	t.conn = conn
	t.pending = t.pending[:0]
	t.pollMode = false
	t.logger.Info("socket connected", "address", t.Address())

	if t.skipLogin || t.cfg.userID == "" {
		return nil
	}

	if err := t.login(ctx); err != nil {
		_ = t.close()
		return err
	}

	t.pollMode = true
	t.logger.Debug("login succeeded, switched to poll mode", "user", t.cfg.userID)

	return nil
}

func (t *TCPTransport) login(ctx context.Context) error {
	term := []byte(t.terminator)

	found := false
	for attempt := 1; attempt <= t.cfg.loginAttempts; attempt++ {
		reply, err := t.exchange(ctx, term)
		if err != nil {
			return err
		}

		if hasPrompt(reply, t.cfg.loginPrompt) {
			found = true
			break
		}
		t.logger.Debug("login prompt not seen", "attempt", attempt, "reply", reply)
	}

	if !found {
		return fmt.Errorf("%w: login: %w after %d attempts", ErrCommunication, ErrNoLoginPrompt, t.cfg.loginAttempts)
	}

	if _, err := t.exchange(ctx, append([]byte(t.cfg.userID), term...)); err != nil {
		return err
	}

	reply, err := t.exchange(ctx, append([]byte(t.cfg.password), term...))
	if err != nil {
		return err
	}

	if !strings.Contains(reply, t.cfg.welcomeMarker) {
		return fmt.Errorf("%w: user %q: welcome marker %q not in reply", ErrLoginFailure, t.cfg.userID, t.cfg.welcomeMarker)
	}

	return nil
}

// exchange writes one handshake line, waits the settle delay and reads whatever arrived.
func (t *TCPTransport) exchange(ctx context.Context, line []byte) (string, error) {
	if err := t.write(line); err != nil {
		return "", commError("login", err)
	}

	if err := pool.Sleep(ctx, t.cfg.loginSettle); err != nil {
		return "", commError("login", err)
	}

	reply, err := t.readAvailable()
	if err != nil {
		return "", commError("login", err)
	}

	return reply, nil
}

// readAvailable reads what the peer sent, waiting up to Timeout() for the first bytes.
// A timeout with nothing received yields an empty reply.
func (t *TCPTransport) readAvailable() (string, error) {
	var out []byte
	if len(t.pending) > 0 {
		out = append(out, t.pending...)
		t.pending = t.pending[:0]
	}

	chunk := make([]byte, readChunkSize)
	wait := t.Timeout()
	for {
		if err := t.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
			return "", err
		}

		n, err := t.conn.Read(chunk)
		out = append(out, chunk[:n]...)
		if err != nil {
			if isTimeout(err) {
				return string(out), nil
			}
			if errors.Is(err, io.EOF) {
				return string(out), ErrConnectionClosed
			}

			return string(out), err
		}
		if n == 0 {
			return string(out), ErrConnectionClosed
		}

		wait = drainDeadline
	}
}

func (t *TCPTransport) close() error {
	if t.conn == nil {
		return nil
	}

	err := t.conn.Close()
	t.conn = nil
	t.pending = nil
	t.pollMode = false

	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}

func (t *TCPTransport) write(p []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.Timeout())); err != nil {
		return err
	}

	for written := 0; written < len(p); {
		n, err := t.conn.Write(p[written:])
		written += n
		if err != nil {
			return err
		}
	}

	return nil
}

func (t *TCPTransport) fill(deadline time.Time, chunk []byte) error {
	if t.pollMode {
		deadline = time.Now().Add(t.Timeout())
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return err
	}

	n, err := t.conn.Read(chunk)
	t.pending = append(t.pending, chunk[:n]...)
	switch {
	case err != nil && isTimeout(err):
		return ErrTimeout
	case err != nil && errors.Is(err, io.EOF):
		return ErrConnectionClosed
	case err != nil:
		return err
	case n == 0:
		return ErrConnectionClosed
	}

	return nil
}

func (t *TCPTransport) readLine(term []byte) ([]byte, error) {
	deadline := time.Now().Add(t.Timeout())
	chunk := make([]byte, readChunkSize)

	for {
		if i := bytes.Index(t.pending, term); i >= 0 {
			end := i + len(term)
			line := make([]byte, end)
			copy(line, t.pending[:end])
			t.pending = append(t.pending[:0], t.pending[end:]...)

			return line, nil
		}

		if err := t.fill(deadline, chunk); err != nil {
			return nil, err
		}
	}
}

func (t *TCPTransport) readN(n int) ([]byte, error) {
	deadline := time.Now().Add(t.Timeout())
	chunk := make([]byte, readChunkSize)

	for len(t.pending) < n {
		if err := t.fill(deadline, chunk); err != nil {
			return nil, err
		}
	}

	data := make([]byte, n)
	copy(data, t.pending[:n])
	t.pending = append(t.pending[:0], t.pending[n:]...)

	return data, nil
}

// applyTimeout is a no-op: every read computes its deadline from Timeout().
func (t *TCPTransport) applyTimeout(time.Duration) error { return nil }

func hasPrompt(reply, prompt string) bool {
	lines := strings.Split(strings.ReplaceAll(reply, "\r", "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		return strings.HasSuffix(strings.ToLower(line), strings.ToLower(prompt))
	}

	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var ne net.Error

	return errors.As(err, &ne) && ne.Timeout()
}

func isClosed(err error) bool {
	return errors.Is(err, ErrConnectionClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
