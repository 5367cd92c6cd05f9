package command

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-instrument/transport"
)

// fakeTransport is an in-memory instrument: "<name> <value>" stores a register and
// "<name>?" reads it back. Scripted replies take precedence over registers.
type fakeTransport struct {
	mu       sync.Mutex
	regs     map[string]string
	replies  map[string]string
	sent     []string
	queryErr error
	metrics  transport.Metrics
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{regs: map[string]string{}, replies: map[string]string{}}
}

func (f *fakeTransport) Kind() string                    { return "fake" }
func (f *fakeTransport) Address() string                 { return "memory" }
func (f *fakeTransport) Connect(context.Context) error   { return nil }
func (f *fakeTransport) Disconnect() error               { return nil }
func (f *fakeTransport) Reconnect(context.Context) error { return nil }
func (f *fakeTransport) IsConnected() bool               { return true }
func (f *fakeTransport) Timeout() time.Duration          { return time.Second }
func (f *fakeTransport) SetTimeout(time.Duration) error  { return nil }
func (f *fakeTransport) Terminator() string              { return "\n" }
func (f *fakeTransport) SetTerminator(string)            {}
func (f *fakeTransport) Metrics() *transport.Metrics     { return &f.metrics }
func (f *fakeTransport) Recv() (string, error)           { return "", transport.ErrTimeout }

func (f *fakeTransport) ReadBinary(int) ([]byte, error) { return nil, transport.ErrTimeout }

func (f *fakeTransport) Send(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, text)
	if name, value, ok := strings.Cut(text, " "); ok {
		f.regs[name] = value
		if idx, v, ok := strings.Cut(value, ","); ok {
			if _, err := strconv.Atoi(idx); err == nil {
				f.regs[name+"#"+idx] = v
			}
		}
	}

	return nil
}

func (f *fakeTransport) QueryText(cmd string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, cmd)
	if f.queryErr != nil {
		return "", f.queryErr
	}
	if reply, ok := f.replies[cmd]; ok {
		return reply, nil
	}

	// "NAME?" and "NAME? 2" read back what "NAME v" and "NAME 2,v" stored
	name, idx, _ := strings.Cut(cmd, "?")
	if idx = strings.TrimSpace(idx); idx != "" {
		return f.regs[name+"#"+idx], nil
	}

	return f.regs[name], nil
}

func (f *fakeTransport) QueryInt(cmd string) (int, error) {
	reply, err := f.QueryText(cmd)
	if err != nil {
		return 0, err
	}

	return strconv.Atoi(reply)
}

func (f *fakeTransport) QueryFloat(cmd string) (float64, error) {
	reply, err := f.QueryText(cmd)
	if err != nil {
		return 0, err
	}

	return strconv.ParseFloat(reply, 64)
}

func (f *fakeTransport) sends() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.sent...)
}

// fakeTarget is a Target with a fixed transport.
type fakeTarget struct {
	tr transport.Transport
}

func (t *fakeTarget) Transport() transport.Transport { return t.tr }
