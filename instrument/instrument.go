package instrument

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/arloliu/go-instrument/logger"
	"github.com/arloliu/go-instrument/transport"
)

// Identity holds the fields of a verified identity reply.
type Identity struct {
	Manufacturer string
	Model        string
	Serial       string
	Firmware     string
	// Fields are all reply fields, trimmed.
	Fields []string
}

// Instrument is the root Component of an instrument model. It selects, connects and
// owns the transport shared by the whole component tree, and verifies the identity
// of the connected device.
type Instrument struct {
	*Component

	cfg    *config
	logger logger.Logger

	connMu   sync.Mutex
	identity *Identity
}

// New creates a disconnected instrument.
func New(name string, class *Class, opts ...Option) (*Instrument, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return &Instrument{
		Component: NewComponent(name, class, nil),
		cfg:       cfg,
		logger:    cfg.logger.With("instrument", name),
	}, nil
}

// Kinds returns the transport kinds the instrument offers, with their parameter schemas.
func (i *Instrument) Kinds() []transport.Kind {
	return slices.Clone(i.cfg.kinds)
}

// IDString returns the substring an identity reply must contain.
func (i *Instrument) IDString() string { return i.cfg.idString }

// IsConnected reports whether a transport is attached and connected.
func (i *Instrument) IsConnected() bool {
	tr := i.Transport()
	return tr != nil && tr.IsConnected()
}

// Connect tears down any existing link, creates a transport of the named kind from the
// positional args, connects it and attaches it to the whole component tree.
//
// An unknown kind or malformed args fail before any connection attempt.
func (i *Instrument) Connect(ctx context.Context, kind string, args ...string) error {
	k, err := transport.FindKind(i.cfg.kinds, kind)
	if err != nil {
		return err
	}

	params, err := k.Schema.Parse(args)
	if err != nil {
		return fmt.Errorf("%s: %w", k.Name, err)
	}

	return i.connect(ctx, k, params)
}

// ConnectWithParameterString connects with a colon-separated parameter string as stored in
// configuration, e.g. "tcpip:10.0.0.5:admin:secret:23".
func (i *Instrument) ConnectWithParameterString(ctx context.Context, s string) error {
	k, params, err := transport.ParseParameterString(s, i.cfg.kinds)
	if err != nil {
		return err
	}

	return i.connect(ctx, k, params)
}

func (i *Instrument) connect(ctx context.Context, k transport.Kind, params transport.Params) error {
	i.connMu.Lock()
	defer i.connMu.Unlock()

	_ = i.disconnectLocked()

	opts := append([]transport.Option{transport.WithLogger(i.logger)}, i.cfg.transportOpts...)
	tr, err := k.New(params, opts...)
	if err != nil {
		return err
	}
	if i.cfg.terminator != "" {
		tr.SetTerminator(i.cfg.terminator)
	}

	if err := tr.Connect(ctx); err != nil {
		i.logger.Error("connect failed", "kind", k.Name, "address", tr.Address(), "error", err)
		return err
	}

	i.SetTransport(tr)
	i.logger.Info("connected", "kind", k.Name, "address", tr.Address())

	return nil
}

// Disconnect tears down the link and clears the cached identity. The transport stays
// attached so that Reconnect can re-establish it.
func (i *Instrument) Disconnect() error {
	i.connMu.Lock()
	defer i.connMu.Unlock()

	return i.disconnectLocked()
}

func (i *Instrument) disconnectLocked() error {
	i.identity = nil

	tr := i.Transport()
	if tr == nil {
		return nil
	}

	err := tr.Disconnect()
	i.logger.Info("disconnected", "address", tr.Address())

	return err
}

// Reconnect re-establishes the current link with its remembered parameters.
func (i *Instrument) Reconnect(ctx context.Context) error {
	i.connMu.Lock()
	defer i.connMu.Unlock()

	tr := i.Transport()
	if tr == nil {
		return fmt.Errorf("%w: reconnect: %w", transport.ErrCommunication, transport.ErrNotConnected)
	}
	i.identity = nil

	return tr.Reconnect(ctx)
}

// CheckID issues the identity query and verifies the reply.
//
// A reply without exactly the configured number of fields yields (nil, nil): the device
// answered but is not an instrument of this kind. A reply with the right field count that
// does not contain the ID string fails with *IdentityError. Otherwise the identity is cached
// and returned.
func (i *Instrument) CheckID() (*Identity, error) {
	tr := i.Transport()
	if tr == nil {
		return nil, &transport.QueryError{
			Command: i.cfg.idQuery,
			Err:     fmt.Errorf("%w: %w", transport.ErrCommunication, transport.ErrNotConnected),
		}
	}

	reply, err := tr.QueryText(i.cfg.idQuery)
	if err != nil {
		return nil, &transport.QueryError{Command: i.cfg.idQuery, Err: err}
	}

	fields := strings.Split(reply, ",")
	if len(fields) != i.cfg.idFields {
		i.logger.Warn("unexpected identity reply", "reply", reply, "fields", len(fields), "expected", i.cfg.idFields)
		return nil, nil //nolint:nilnil
	}

	if !strings.Contains(reply, i.cfg.idString) {
		return nil, &IdentityError{Expected: i.cfg.idString, Reply: reply}
	}

	for n := range fields {
		fields[n] = strings.TrimSpace(fields[n])
	}
	id := &Identity{Fields: fields}
	for n, dst := range []*string{&id.Manufacturer, &id.Model, &id.Serial, &id.Firmware} {
		if n < len(fields) {
			*dst = fields[n]
		}
	}

	i.connMu.Lock()
	i.identity = id
	i.connMu.Unlock()

	i.logger.Info("identity verified", "model", id.Model, "serial", id.Serial, "firmware", id.Firmware)

	return id, nil
}

// Identity returns the identity cached by the last successful CheckID.
func (i *Instrument) Identity() (*Identity, bool) {
	i.connMu.Lock()
	defer i.connMu.Unlock()

	return i.identity, i.identity != nil
}
