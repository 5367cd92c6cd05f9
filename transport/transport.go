package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-instrument/logger"
)

// Transport owns exactly one physical link to an instrument and frames the text
// commands exchanged over it.
//
// All wire I/O of one Transport passes through a single lock, so request/reply
// pairs on one link never interleave. QueryText holds the lock for the whole
// send and receive.
type Transport interface {
	// Kind returns the transport kind name, e.g. "serial" or "tcpip".
	Kind() string
	// Address returns a human-readable link address such as a port name or host:port.
	Address() string

	// Connect establishes the link with the configured parameters.
	Connect(ctx context.Context) error
	// Disconnect tears down the link. It is idempotent.
	Disconnect() error
	// Reconnect disconnects, then connects again with the remembered parameters.
	Reconnect(ctx context.Context) error
	// IsConnected reports whether the link is up.
	IsConnected() bool

	// Send writes one framed command.
	Send(text string) error
	// Recv reads one reply up to the terminator, which is stripped.
	Recv() (string, error)
	// QueryText sends cmd and reads its reply under a single lock acquisition.
	QueryText(cmd string) (string, error)
	// QueryInt queries cmd and parses the reply as an integer.
	QueryInt(cmd string) (int, error)
	// QueryFloat queries cmd and parses the reply as a float.
	QueryFloat(cmd string) (float64, error)
	// ReadBinary reads exactly n raw bytes.
	ReadBinary(n int) ([]byte, error)

	// Timeout returns the receive timeout.
	Timeout() time.Duration
	// SetTimeout changes the receive timeout.
	SetTimeout(d time.Duration) error
	// Terminator returns the framing terminator.
	Terminator() string
	// SetTerminator changes the framing terminator.
	SetTerminator(term string)

	// Metrics returns the link counters.
	Metrics() *Metrics
}

// wire is the link-specific half of a transport. Its methods are only called
// with the base lock held.
type wire interface {
	open(ctx context.Context) error
	close() error
	write(p []byte) error
	readLine(term []byte) ([]byte, error)
	readN(n int) ([]byte, error)
	applyTimeout(d time.Duration) error
}

// base implements the locking, framing and bookkeeping shared by all kinds.
type base struct {
	mu         sync.Mutex
	w          wire
	kind       string
	cfg        *Config
	logger     logger.Logger
	connected  atomic.Bool
	timeout    atomic.Int64
	terminator string

	metrics Metrics
}

func (b *base) init(kind string, w wire, cfg *Config) {
	b.kind = kind
	b.w = w
	b.cfg = cfg
	b.terminator = cfg.terminator
	b.timeout.Store(int64(cfg.timeout))
	b.logger = cfg.logger.With("transport", kind)
}

func (b *base) Kind() string { return b.kind }

func (b *base) IsConnected() bool { return b.connected.Load() }

func (b *base) Metrics() *Metrics { return &b.metrics }

func (b *base) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.connectLocked(ctx)
}

func (b *base) connectLocked(ctx context.Context) error {
	if b.connected.Load() {
		return nil
	}

	if err := b.w.open(ctx); err != nil {
		b.metrics.incErrorCount()
		return err
	}

	b.connected.Store(true)
	b.metrics.setConnected(true)
	b.logger.Debug("transport connected")

	if b.cfg.hooks.OnConnect != nil {
		b.cfg.hooks.OnConnect()
	}

	return nil
}

func (b *base) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.disconnectLocked()
}

func (b *base) disconnectLocked() error {
	if !b.connected.Load() {
		return nil
	}

	b.connected.Store(false)
	b.metrics.setConnected(false)

	err := b.w.close()
	if err != nil {
		b.logger.Warn("failed to close link", "error", err)
	}

	b.logger.Debug("transport disconnected")

	if b.cfg.hooks.OnDisconnect != nil {
		b.cfg.hooks.OnDisconnect()
	}

	return err
}

func (b *base) Reconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_ = b.disconnectLocked()
	b.metrics.incReconnectCount()

	return b.connectLocked(ctx)
}

func (b *base) Send(text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.sendLocked(text)
}

func (b *base) sendLocked(text string) error {
	if !b.connected.Load() {
		return commError("send", ErrNotConnected)
	}

	frame := text
	if !strings.HasSuffix(frame, b.terminator) {
		frame += b.terminator
	}

	if err := b.w.write([]byte(frame)); err != nil {
		b.metrics.incErrorCount()
		return b.linkFault("send", err)
	}

	b.metrics.addBytesSent(len(frame))
	b.metrics.incCommandCount()
	b.logger.Debug("sent", "text", text)

	if b.cfg.hooks.OnSend != nil {
		b.cfg.hooks.OnSend(text)
	}

	return nil
}

func (b *base) Recv() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.recvLocked()
}

func (b *base) recvLocked() (string, error) {
	if !b.connected.Load() {
		return "", commError("recv", ErrNotConnected)
	}

	raw, err := b.w.readLine([]byte(b.terminator))
	if err != nil {
		b.metrics.incErrorCount()
		return "", b.linkFault("recv", err)
	}

	b.metrics.addBytesReceived(len(raw))

	text := strings.TrimSuffix(string(raw), b.terminator)
	b.logger.Debug("received", "text", text)

	if b.cfg.hooks.OnReceive != nil {
		b.cfg.hooks.OnReceive(text)
	}

	return text, nil
}

// linkFault normalizes a wire error into ErrCommunication and performs the
// implicit disconnect when the peer closed the link.
func (b *base) linkFault(op string, err error) error {
	if isClosed(err) {
		b.logger.Warn("link closed by peer", "op", op)
		_ = b.disconnectLocked()
	}

	return commError(op, err)
}

func (b *base) QueryText(cmd string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.sendLocked(cmd); err != nil {
		return "", err
	}
	b.metrics.incQueryCount()

	return b.recvLocked()
}

func (b *base) QueryInt(cmd string) (int, error) {
	reply, err := b.QueryText(cmd)
	if err != nil {
		return 0, err
	}

	v, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil {
		return 0, &QueryError{Command: cmd, Reply: reply, Err: ErrInvalidReply}
	}

	return v, nil
}

func (b *base) QueryFloat(cmd string) (float64, error) {
	reply, err := b.QueryText(cmd)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return 0, &QueryError{Command: cmd, Reply: reply, Err: ErrInvalidReply}
	}

	return v, nil
}

func (b *base) ReadBinary(n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected.Load() {
		return nil, commError("read binary", ErrNotConnected)
	}
	if n <= 0 {
		return []byte{}, nil
	}

	data, err := b.w.readN(n)
	if err != nil {
		b.metrics.incErrorCount()
		return nil, b.linkFault("read binary", err)
	}
	b.metrics.addBytesReceived(len(data))

	return data, nil
}

func (b *base) Timeout() time.Duration {
	return time.Duration(b.timeout.Load())
}

func (b *base) SetTimeout(d time.Duration) error {
	if d < MinTimeout || d > MaxTimeout {
		return fmt.Errorf("%w: timeout %v out of range [%v, %v]", ErrInvalidParameters, d, MinTimeout, MaxTimeout)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.setTimeoutLocked(d)
}

func (b *base) setTimeoutLocked(d time.Duration) error {
	b.timeout.Store(int64(d))
	if !b.connected.Load() {
		return nil
	}

	if err := b.w.applyTimeout(d); err != nil {
		return commError("set timeout", err)
	}

	return nil
}

func (b *base) Terminator() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.terminator
}

func (b *base) SetTerminator(term string) {
	if term == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.terminator = term
}
