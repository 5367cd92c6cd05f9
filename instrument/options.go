package instrument

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arloliu/go-instrument/logger"
	"github.com/arloliu/go-instrument/transport"
)

const (
	// DefaultIDQuery is the identity query.
	DefaultIDQuery = "*IDN?"
	// DefaultIDFieldCount is the number of comma-separated fields of an identity reply:
	// manufacturer, model, serial number and firmware.
	DefaultIDFieldCount = 4
)

var errInvalidOption = errors.New("instrument: invalid option")

type config struct {
	kinds         []transport.Kind
	idString      string
	idQuery       string
	idFields      int
	terminator    string
	logger        logger.Logger
	transportOpts []transport.Option
}

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		kinds:    []transport.Kind{transport.SerialKind(), transport.TCPKind(), transport.SocketKind()},
		idQuery:  DefaultIDQuery,
		idFields: DefaultIDFieldCount,
		logger:   logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option is a functional option for configuring an Instrument.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithTransportKinds sets the transport kinds the instrument can be connected with.
// By default serial, tcpip and socket are offered.
func WithTransportKinds(kinds ...transport.Kind) Option {
	return optFunc(func(cfg *config) error {
		if len(kinds) == 0 {
			return fmt.Errorf("%w: no transport kinds", errInvalidOption)
		}
		cfg.kinds = kinds

		return nil
	})
}

// WithIDString sets the substring every valid identity reply must contain.
func WithIDString(id string) Option {
	return optFunc(func(cfg *config) error {
		cfg.idString = id
		return nil
	})
}

// WithIDQuery overrides the identity query.
func WithIDQuery(query string) Option {
	return optFunc(func(cfg *config) error {
		if strings.TrimSpace(query) == "" {
			return fmt.Errorf("%w: empty identity query", errInvalidOption)
		}
		cfg.idQuery = query

		return nil
	})
}

// WithIDFieldCount sets the exact number of comma-separated fields of an identity reply.
func WithIDFieldCount(n int) Option {
	return optFunc(func(cfg *config) error {
		if n <= 0 {
			return fmt.Errorf("%w: identity field count %d", errInvalidOption, n)
		}
		cfg.idFields = n

		return nil
	})
}

// WithTerminator sets the terminator applied to every transport the instrument connects,
// overriding the transport kind default.
func WithTerminator(term string) Option {
	return optFunc(func(cfg *config) error {
		cfg.terminator = term
		return nil
	})
}

// WithLogger sets the logger of the instrument and of the transports it creates.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return fmt.Errorf("%w: nil logger", errInvalidOption)
		}
		cfg.logger = l

		return nil
	})
}

// WithTransportOptions sets options passed to every transport the instrument creates,
// e.g. transport.WithTimeout.
func WithTransportOptions(opts ...transport.Option) Option {
	return optFunc(func(cfg *config) error {
		cfg.transportOpts = append(cfg.transportOpts, opts...)
		return nil
	})
}
