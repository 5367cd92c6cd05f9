// Package simulator provides a scripted text-protocol instrument served over TCP.
//
// It speaks the "<name>?" / "<name> <value>" convention with optional indexed
// registers ("<name>? <index>", "<name> <index>,<value>") and can require the
// login handshake used by tcpip transports.
package simulator

import (
	"bufio"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-instrument/logger"
)

// HandlerFunc answers one command line. ok=false means no reply is sent.
type HandlerFunc func(line string) (reply string, ok bool)

// Login configures the handshake required before commands are accepted.
type Login struct {
	User     string
	Password string
	// Banner is sent for every blank line until the prompt is shown.
	Banner string
	// Prompt ends the banner; an empty prompt means it is never shown.
	Prompt string
	// Welcome is sent after a correct password.
	Welcome string
}

// DefaultLogin returns a handshake with the usual prompt and welcome markers.
func DefaultLogin(user, password string) *Login {
	return &Login{
		User:     user,
		Password: password,
		Banner:   "Simulated instrument",
		Prompt:   "login:",
		Welcome:  "Welcome " + user,
	}
}

// Option configures an Instrument.
type Option func(*Instrument)

// WithLogin requires the login handshake.
func WithLogin(l *Login) Option {
	return func(s *Instrument) { s.login = l }
}

// WithTerminator sets the line terminator, "\n" by default.
func WithTerminator(term string) Option {
	return func(s *Instrument) { s.terminator = term }
}

// WithReplyDelay delays every reply, to exercise receive timeouts.
func WithReplyDelay(d time.Duration) Option {
	return func(s *Instrument) { s.replyDelay = d }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Instrument) { s.logger = l }
}

// Instrument is a simulated instrument listening on a loopback TCP port.
type Instrument struct {
	mu         sync.Mutex
	listener   net.Listener
	conns      map[net.Conn]struct{}
	terminator string
	login      *Login
	replyDelay time.Duration
	logger     logger.Logger

	values   map[string]string
	indexed  map[string]bool
	handlers map[string]HandlerFunc
	received []string

	wg sync.WaitGroup
}

// New creates a stopped simulator.
func New(opts ...Option) *Instrument {
	s := &Instrument{
		conns:      make(map[net.Conn]struct{}),
		terminator: "\n",
		logger:     logger.GetLogger(),
		values:     make(map[string]string),
		indexed:    make(map[string]bool),
		handlers:   make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "simulator")

	return s
}

// Start listens on 127.0.0.1 with a random port and serves connections in the background.
func (s *Instrument) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)

	return nil
}

// Host returns the listening host.
func (s *Instrument) Host() string { return "127.0.0.1" }

// Port returns the listening port.
func (s *Instrument) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return 0
	}

	return s.listener.Addr().(*net.TCPAddr).Port //nolint:forcetypeassert
}

// Close stops listening, drops every connection and waits for the serving goroutines.
func (s *Instrument) Close() {
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()

	s.DropConnections()
	s.wg.Wait()
}

// DropConnections closes every client connection, as an instrument power cycle would.
func (s *Instrument) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.conns {
		_ = c.Close()
	}
}

// Set stores the value answered to "<name>?".
func (s *Instrument) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[name] = value
}

// SetIndexed stores the value answered to "<name>? <index>".
func (s *Instrument) SetIndexed(name string, index int, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.indexed[name] = true
	s.values[indexKey(name, index)] = value
}

// Value returns the current value of a register.
func (s *Instrument) Value(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[name]

	return v, ok
}

// IndexedValue returns the current value of an indexed register.
func (s *Instrument) IndexedValue(name string, index int) (string, bool) {
	return s.Value(indexKey(name, index))
}

// Handle installs a handler for an exact command line; it takes precedence over registers.
func (s *Instrument) Handle(line string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[line] = fn
}

// Received returns the command lines received after login, in order.
func (s *Instrument) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.received))
	copy(out, s.received)

	return out
}

func (s *Instrument) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Error("accept failed", "error", err)
			}
			return
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn)
	}
}

type loginState int

const (
	waitBlank loginState = iota
	waitUser
	waitPassword
	loggedIn
)

func (s *Instrument) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	state := loggedIn
	if s.login != nil {
		state = waitBlank
	}
	var user string

	reader := bufio.NewReader(conn)
	term := s.terminator[len(s.terminator)-1]
	for {
		raw, err := reader.ReadString(term)
		if err != nil {
			return
		}
		line := strings.TrimRight(raw, "\r\n")

		var reply string
		var ok bool
		switch state {
		case waitBlank:
			reply, ok = s.login.Banner+"\r\n", true
			if s.login.Prompt != "" {
				reply += s.login.Prompt + " "
				state = waitUser
			}
		case waitUser:
			user = line
			reply, ok = "Password: ", true
			state = waitPassword
		case waitPassword:
			if user == s.login.User && line == s.login.Password {
				reply, ok = s.login.Welcome+"\r\n", true
				state = loggedIn
			} else {
				reply, ok = "Login incorrect\r\n"+s.login.Prompt+" ", true
				state = waitUser
			}
		default:
			reply, ok = s.process(line)
			if ok {
				reply += s.terminator
			}
		}

		if !ok {
			continue
		}
		if s.replyDelay > 0 {
			time.Sleep(s.replyDelay)
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

func (s *Instrument) process(line string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if line == "" {
		return "", false
	}
	s.received = append(s.received, line)

	if fn, ok := s.handlers[line]; ok {
		s.mu.Unlock()
		reply, ok := fn(line)
		s.mu.Lock()

		return reply, ok
	}

	// query: "<name>?" or "<name>? <index>"
	if name, rest, found := strings.Cut(line, "?"); found {
		key := name
		if idx := strings.TrimSpace(rest); idx != "" {
			key = name + "," + idx
		}
		v, ok := s.values[key]

		return v, ok
	}

	// set: "<name> <value>" or "<name> <index>,<value>"
	name, arg, found := strings.Cut(line, " ")
	if !found {
		return "", false
	}
	if s.indexed[name] {
		if idx, value, ok := strings.Cut(arg, ","); ok {
			if _, err := strconv.Atoi(idx); err == nil {
				s.values[name+","+idx] = value
				return "", false
			}
		}
	}
	s.values[name] = arg

	return "", false
}

func indexKey(name string, index int) string {
	return name + "," + strconv.Itoa(index)
}
