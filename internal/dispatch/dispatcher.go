// Package dispatch is the single entry point callers use to run a strategy:
// it resolves a discriminator through a creator and invokes the result only
// through the capability contract.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/dejo1307/dispatchkit/internal/capability"
	"github.com/dejo1307/dispatchkit/internal/errors"
	"github.com/dejo1307/dispatchkit/internal/logging"
)

// unregisteredLabel replaces the key label of dispatches whose key was not
// resolved to a registered strategy, either because it is unknown or because
// the dispatch was rejected before resolution.
const unregisteredLabel = "<unregistered>"

// Creator builds a strategy for a discriminator. *registry.Registry satisfies it.
type Creator[K comparable, T any] interface {
	Create(key K) (T, error)
	Keys() []K
}

type options struct {
	limiter *rate.Limiter
	metrics *Metrics
	logger  *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*options)

// WithLimiter makes every dispatch wait for a token from l.
func WithLimiter(l *rate.Limiter) Option { return func(o *options) { o.limiter = l } }

// WithMetrics records every dispatch in m.
func WithMetrics(m *Metrics) Option { return func(o *options) { o.metrics = m } }

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// Dispatcher resolves and runs strategies of one family. It holds no state
// between calls and is safe to share.
type Dispatcher[K comparable, P, R any] struct {
	family  string
	creator Creator[K, capability.Executor[P, R]]
	opt     options
	log     *slog.Logger
}

// New creates a dispatcher for family backed by creator.
func New[K comparable, P, R any](family string, creator Creator[K, capability.Executor[P, R]], opts ...Option) *Dispatcher[K, P, R] {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return &Dispatcher[K, P, R]{
		family:  family,
		creator: creator,
		opt:     o,
		log:     logging.Component(o.logger, "dispatch").With("family", family),
	}
}

// Family returns the strategy family name.
func (d *Dispatcher[K, P, R]) Family() string { return d.family }

// Keys lists the discriminators the dispatcher can resolve.
func (d *Dispatcher[K, P, R]) Keys() []K { return d.creator.Keys() }

// Process creates the strategy registered under key and executes it with
// payload. Errors from the creator and from the strategy are returned as is.
func (d *Dispatcher[K, P, R]) Process(ctx context.Context, key K, payload P) (R, error) {
	var zero R
	start := time.Now()
	done := d.opt.metrics.begin(d.family)
	defer done()

	label := fmt.Sprint(key)

	if d.opt.limiter != nil {
		if err := d.opt.limiter.Wait(ctx); err != nil {
			werr := errors.WrapWithContext(errors.ErrCodeRateLimited,
				fmt.Sprintf("waiting to dispatch %s/%s", d.family, label), err,
				map[string]any{"family": d.family, "key": label})
			d.opt.metrics.observe(d.family, unregisteredLabel, string(errors.ErrCodeRateLimited), time.Since(start))
			return zero, werr
		}
	}

	strategy, err := d.creator.Create(key)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeUnknownKey) {
			label = unregisteredLabel
		}
		d.opt.metrics.observe(d.family, label, outcome(err), time.Since(start))
		d.log.Warn("strategy resolution failed", "key", fmt.Sprint(key), "error", err)
		return zero, err
	}

	result, err := strategy.Execute(ctx, payload)
	elapsed := time.Since(start)
	d.opt.metrics.observe(d.family, label, outcome(err), elapsed)
	if err != nil {
		d.log.Warn("strategy failed", "key", label, "duration", elapsed, "error", err)
		return zero, err
	}

	d.log.Debug("dispatched", "key", label, "duration", elapsed)
	return result, nil
}

func outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if code := errors.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}
