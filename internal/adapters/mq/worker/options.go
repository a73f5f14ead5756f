package worker

import (
	"errors"

	"github.com/okian/foldboard/pkg/logger"
)

var errPanic = errors.New("task panicked")

// Option configures a Pool.
type Option func(*Pool)

// WithName sets the pool name used for logging and metrics.
func WithName(name string) Option {
	return func(p *Pool) {
		if name != "" {
			p.name = name
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
