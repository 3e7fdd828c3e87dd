// ABOUTME: Functional options shared by Encoder and Worker
// ABOUTME: Injects the logger and the metrics sink
package encode

import (
	"time"

	"go.uber.org/zap"
)

// Metrics receives encoder activity. Implementations must be safe for
// concurrent use when shared between encoders.
type Metrics interface {
	SessionStarted()
	SessionFinished(outcome string, outputBytes int, elapsed time.Duration)
	FrameEncoded(samples int)
	Failure(reason string)
}

type nopMetrics struct{}

func (nopMetrics) SessionStarted()                            {}
func (nopMetrics) SessionFinished(string, int, time.Duration) {}
func (nopMetrics) FrameEncoded(int)                           {}
func (nopMetrics) Failure(string)                             {}

type options struct {
	logger  *zap.Logger
	metrics Metrics
}

// Option configures an Encoder or Worker
type Option func(*options)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), metrics: nopMetrics{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
