package engine

import "github.com/sirupsen/logrus"

// Option configures ambient engine behaviour that is not part of Config.
type Option func(*options)

type options struct {
	logger     *logrus.Logger
	arenaSlack int
	lockMemory bool
}

func defaultOptions() options {
	return options{
		logger:     logrus.StandardLogger(),
		arenaSlack: 64,
	}
}

// WithLogger sets the logger for lifecycle and control-side events. The
// audio side never logs.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithArenaSlack adds samples to the scratch arena beyond what the
// configured block size needs.
func WithArenaSlack(samples int) Option {
	return func(o *options) {
		if samples >= 0 {
			o.arenaSlack = samples
		}
	}
}

// WithMemoryLock pins the scratch arena in physical memory where the
// platform supports it. Failure to lock is logged, not fatal.
func WithMemoryLock(enabled bool) Option {
	return func(o *options) { o.lockMemory = enabled }
}
