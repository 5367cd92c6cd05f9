package transport

import (
	"fmt"
	"time"

	"github.com/arloliu/go-instrument/logger"
)

// Default values of the transport configuration.
const (
	DefaultTimeout       = 2 * time.Second
	DefaultDialTimeout   = 3 * time.Second
	DefaultBaudRate      = 9600
	DefaultTCPPort       = 23
	DefaultSerialTerm    = "\r"
	DefaultNetworkTerm   = "\n"
	DefaultLoginAttempts = 3
	DefaultLoginSettle   = 200 * time.Millisecond
	DefaultClearTimeout  = 100 * time.Millisecond
	DefaultClearAttempts = 32
	DefaultLoginPrompt   = "login:"
	DefaultWelcomeMarker = "Welcome"
)

// Timeout range limits.
const (
	MinTimeout = 10 * time.Millisecond
	MaxTimeout = 10 * time.Minute
)

// Flow control modes of a serial link.
const (
	FlowNone   = "none"
	FlowRTSCTS = "rtscts"
	FlowDSRDTR = "dsrdtr"
)

// Hooks are optional side-channel notifications. They run while the transport lock is held
// and must not call back into the transport.
type Hooks struct {
	OnSend       func(text string)
	OnReceive    func(text string)
	OnConnect    func()
	OnDisconnect func()
}

// Config holds the configuration shared by all transport kinds.
// Fields that only apply to one kind are ignored by the others.
type Config struct {
	timeout    time.Duration
	terminator string
	logger     logger.Logger
	hooks      Hooks

	// serial
	baudRate      int
	dataBits      int
	parity        Parity
	flow          string
	clearBuffer   bool
	clearTimeout  time.Duration
	clearAttempts int

	// network
	dialTimeout   time.Duration
	userID        string
	password      string
	loginAttempts int
	loginSettle   time.Duration
	loginPrompt   string
	welcomeMarker string
}

// Parity is the parity mode of a serial link.
type Parity int

// Parity modes.
const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "None"
	case ParityOdd:
		return "Odd"
	case ParityEven:
		return "Even"
	case ParityMark:
		return "Mark"
	case ParitySpace:
		return "Space"
	default:
		return fmt.Sprintf("Parity(%d)", int(p))
	}
}

func newConfig(defaultTerm string, opts []Option) (*Config, error) {
	cfg := &Config{
		timeout:       DefaultTimeout,
		terminator:    defaultTerm,
		logger:        logger.GetLogger(),
		baudRate:      DefaultBaudRate,
		dataBits:      8,
		parity:        ParityNone,
		flow:          FlowNone,
		dialTimeout:   DefaultDialTimeout,
		loginAttempts: DefaultLoginAttempts,
		loginSettle:   DefaultLoginSettle,
		loginPrompt:   DefaultLoginPrompt,
		welcomeMarker: DefaultWelcomeMarker,
		clearTimeout:  DefaultClearTimeout,
		clearAttempts: DefaultClearAttempts,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option is a functional option for configuring a transport.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithTimeout sets the receive timeout.
func WithTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinTimeout || d > MaxTimeout {
			return fmt.Errorf("%w: timeout %v out of range [%v, %v]", ErrInvalidParameters, d, MinTimeout, MaxTimeout)
		}
		cfg.timeout = d

		return nil
	})
}

// WithTerminator sets the byte sequence that ends every command and reply.
func WithTerminator(term string) Option {
	return optFunc(func(cfg *Config) error {
		if term == "" {
			return fmt.Errorf("%w: empty terminator", ErrInvalidParameters)
		}
		cfg.terminator = term

		return nil
	})
}

// WithLogger sets the logger of the transport.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l != nil {
			cfg.logger = l
		}

		return nil
	})
}

// WithHooks installs side-channel notification hooks.
func WithHooks(h Hooks) Option {
	return optFunc(func(cfg *Config) error {
		cfg.hooks = h
		return nil
	})
}

// WithBaudRate sets the serial baud rate.
func WithBaudRate(baud int) Option {
	return optFunc(func(cfg *Config) error {
		if baud <= 0 {
			return fmt.Errorf("%w: baud rate %d", ErrInvalidParameters, baud)
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithDataBits sets the serial data bits (5 to 8).
func WithDataBits(bits int) Option {
	return optFunc(func(cfg *Config) error {
		if bits < 5 || bits > 8 {
			return fmt.Errorf("%w: data bits %d out of range [5, 8]", ErrInvalidParameters, bits)
		}
		cfg.dataBits = bits

		return nil
	})
}

// WithParity sets the serial parity.
func WithParity(p Parity) Option {
	return optFunc(func(cfg *Config) error {
		if p < ParityNone || p > ParitySpace {
			return fmt.Errorf("%w: parity %d", ErrInvalidParameters, int(p))
		}
		cfg.parity = p

		return nil
	})
}

// WithFlowControl sets the serial flow control mode: FlowNone, FlowRTSCTS or FlowDSRDTR.
func WithFlowControl(flow string) Option {
	return optFunc(func(cfg *Config) error {
		switch flow {
		case FlowNone, FlowRTSCTS, FlowDSRDTR:
			cfg.flow = flow
			return nil
		default:
			return fmt.Errorf("%w: flow control %q", ErrInvalidParameters, flow)
		}
	})
}

// WithClearBuffer makes Connect drain stale bytes left by an abnormal prior disconnect.
func WithClearBuffer(enabled bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.clearBuffer = enabled
		return nil
	})
}

// WithDialTimeout sets the TCP dial timeout.
func WithDialTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("%w: dial timeout %v", ErrInvalidParameters, d)
		}
		cfg.dialTimeout = d

		return nil
	})
}

// WithCredentials enables the textual login handshake on a TCP link.
// An empty userID connects without login.
func WithCredentials(userID, password string) Option {
	return optFunc(func(cfg *Config) error {
		cfg.userID = userID
		cfg.password = password

		return nil
	})
}

// WithLoginSettleDelay sets the delay between each handshake line and the read of its reply.
func WithLoginSettleDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 {
			return fmt.Errorf("%w: settle delay %v", ErrInvalidParameters, d)
		}
		cfg.loginSettle = d

		return nil
	})
}

// WithLoginMarkers overrides the login prompt and welcome markers of the handshake.
func WithLoginMarkers(prompt, welcome string) Option {
	return optFunc(func(cfg *Config) error {
		if prompt == "" || welcome == "" {
			return fmt.Errorf("%w: empty login marker", ErrInvalidParameters)
		}
		cfg.loginPrompt = prompt
		cfg.welcomeMarker = welcome

		return nil
	})
}

// WithLoginAttempts sets how many blank lines are sent while waiting for the login prompt.
func WithLoginAttempts(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n <= 0 {
			return fmt.Errorf("%w: login attempts %d", ErrInvalidParameters, n)
		}
		cfg.loginAttempts = n

		return nil
	})
}

// WithClearBufferTimeout sets the shortened timeout used while draining stale bytes.
func WithClearBufferTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("%w: clear timeout %v", ErrInvalidParameters, d)
		}
		cfg.clearTimeout = d

		return nil
	})
}
