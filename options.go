package nasc

import (
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Option is a function that configures a Nasc container.
type Option func(*Nasc) error

// WithConfig applies cfg on top of the defaults.
func WithConfig(cfg Config) Option {
	return func(n *Nasc) error {
		n.applyConfig(cfg)
		return nil
	}
}

// WithLogger sets the logger used by the factory.
func WithLogger(log zerolog.Logger) Option {
	return func(n *Nasc) error {
		n.log = log
		return nil
	}
}

// WithDebug logs creation, early exposure and destruction of beans to
// stderr at debug level.
func WithDebug() Option {
	return func(n *Nasc) error {
		output := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
		n.log = zerolog.New(output).Level(zerolog.DebugLevel).
			With().Timestamp().Str("component", "nasc").Logger()
		return nil
	}
}

// WithParent makes parent the fallback for names not defined locally and
// the source of inherited definitions.
func WithParent(parent *Nasc) Option {
	return func(n *Nasc) error {
		if parent == nil {
			return errors.New("parent factory cannot be nil")
		}
		n.parent = parent
		return nil
	}
}

// WithInstantiationStrategy replaces the strategy that turns definitions
// into raw instances.
func WithInstantiationStrategy(s InstantiationStrategy) Option {
	return func(n *Nasc) error {
		if s == nil {
			return errors.New("instantiation strategy cannot be nil")
		}
		n.strategy = s
		return nil
	}
}

// WithAllowCircularReferences toggles early exposure of singletons.
func WithAllowCircularReferences(allow bool) Option {
	return func(n *Nasc) error {
		n.allowCircularReferences = allow
		return nil
	}
}

// WithAllowDefinitionOverriding toggles replacing definitions by name.
func WithAllowDefinitionOverriding(allow bool) Option {
	return func(n *Nasc) error {
		n.defs.SetAllowOverriding(allow)
		return nil
	}
}

// WithAllowRawInjection accepts raw early references in other beans even
// when the final bean was wrapped.
func WithAllowRawInjection(allow bool) Option {
	return func(n *Nasc) error {
		n.allowRawInjection = allow
		return nil
	}
}

// WithTagInjection enables inject struct tags on every bean the factory
// creates.
func WithTagInjection() Option {
	return func(n *Nasc) error {
		n.tagInjection = true
		return nil
	}
}
