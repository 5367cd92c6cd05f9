package task

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"golang.org/x/text/language"

	"github.com/arloliu/go-instrument/instrument"
	"github.com/arloliu/go-instrument/logger"
)

var errInvalidOption = errors.New("task: invalid option")

// Surface is a drawable area a task may request updates for. Drawing itself happens
// outside the task engine.
type Surface interface {
	// Clear removes previous figures.
	Clear()
}

type config struct {
	instruments  map[string]*instrument.Instrument
	surfaces     map[string]Surface
	callbacks    Callbacks
	sink         ResultSink
	shared       *SharedData
	guard        *RunGuard
	logger       logger.Logger
	traceback    bool
	lang         language.Tag
	pollInterval time.Duration
}

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		instruments:  map[string]*instrument.Instrument{},
		surfaces:     map[string]Surface{},
		callbacks:    NopCallbacks{},
		logger:       logger.GetLogger(),
		lang:         language.AmericanEnglish,
		pollInterval: DefaultPollInterval,
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.shared == nil {
		cfg.shared = NewSharedData()
	}

	return cfg, nil
}

// Option is a functional option for configuring a Task.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithInstruments injects the instruments the procedure uses, keyed by name.
func WithInstruments(instruments map[string]*instrument.Instrument) Option {
	return optFunc(func(cfg *config) error {
		cfg.instruments = maps.Clone(instruments)
		return nil
	})
}

// WithSurfaces injects the drawable surfaces, keyed by name.
func WithSurfaces(surfaces map[string]Surface) Option {
	return optFunc(func(cfg *config) error {
		cfg.surfaces = maps.Clone(surfaces)
		return nil
	})
}

// WithCallbacks sets the notification consumer. By default notifications are dropped.
func WithCallbacks(cb Callbacks) Option {
	return optFunc(func(cfg *config) error {
		if cb == nil {
			return fmt.Errorf("%w: nil callbacks", errInvalidOption)
		}
		cfg.callbacks = cb

		return nil
	})
}

// WithResultSink sets the sink receiving the result of every run.
func WithResultSink(sink ResultSink) Option {
	return optFunc(func(cfg *config) error {
		cfg.sink = sink
		return nil
	})
}

// WithSharedData sets the scratch space shared with other tasks.
func WithSharedData(shared *SharedData) Option {
	return optFunc(func(cfg *config) error {
		cfg.shared = shared
		return nil
	})
}

// WithRunGuard sets the guard marked while the task runs.
func WithRunGuard(g *RunGuard) Option {
	return optFunc(func(cfg *config) error {
		cfg.guard = g
		return nil
	})
}

// WithLogger sets the base logger. Records are also captured into the run result.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return fmt.Errorf("%w: nil logger", errInvalidOption)
		}
		cfg.logger = l

		return nil
	})
}

// WithTraceback logs the goroutine stack of panics escaping a procedure phase.
func WithTraceback(enabled bool) Option {
	return optFunc(func(cfg *config) error {
		cfg.traceback = enabled
		return nil
	})
}

// WithLanguage sets the language of status lines, American English by default.
func WithLanguage(tag language.Tag) Option {
	return optFunc(func(cfg *config) error {
		cfg.lang = tag
		return nil
	})
}

// WithPollInterval sets how often AskQuestion checks for an answer.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return fmt.Errorf("%w: poll interval %v", errInvalidOption, d)
		}
		cfg.pollInterval = d

		return nil
	})
}
