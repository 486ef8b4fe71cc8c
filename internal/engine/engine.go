// Package engine is the composition root: it owns one registry and one
// dispatcher per strategy family, wires them to the shared resources, and
// exposes the family operations used by the CLI and the MCP server.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/dejo1307/dispatchkit/internal/config"
	"github.com/dejo1307/dispatchkit/internal/dispatch"
	"github.com/dejo1307/dispatchkit/internal/ledger"
	"github.com/dejo1307/dispatchkit/internal/logging"
	"github.com/dejo1307/dispatchkit/internal/registry"
	"github.com/dejo1307/dispatchkit/internal/settings"
	"github.com/dejo1307/dispatchkit/internal/strategies"
	"github.com/dejo1307/dispatchkit/internal/strategies/bonus"
	"github.com/dejo1307/dispatchkit/internal/strategies/notify"
	"github.com/dejo1307/dispatchkit/internal/strategies/payment"
)

// Engine wires registries, dispatchers and shared resources together.
type Engine struct {
	cfg *config.Config
	log *slog.Logger
	res strategies.Resources

	reg     prometheus.Registerer
	metrics *dispatch.Metrics
	limiter *rate.Limiter

	payments  *registry.Registry[string, payment.Processor]
	notifiers *registry.Registry[string, notify.Notifier]
	bonuses   *registry.Registry[string, bonus.Calculator]

	payDispatcher    *dispatch.Dispatcher[string, payment.Request, payment.Receipt]
	notifyDispatcher *dispatch.Dispatcher[string, notify.Message, notify.Delivery]
	bonusDispatcher  *dispatch.Dispatcher[string, bonus.Employee, bonus.Award]
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithRegisterer registers dispatch metrics with reg. Without it metrics are
// collected but not exported.
func WithRegisterer(reg prometheus.Registerer) Option { return func(e *Engine) { e.reg = reg } }

// WithResources overrides the managed resources strategies read from.
func WithResources(res strategies.Resources) Option { return func(e *Engine) { e.res = res } }

// StrategyInfo describes one registered strategy.
type StrategyInfo struct {
	Family string `json:"family"`
	Key    string `json:"key"`
	Doc    string `json:"doc,omitempty"`
}

// New creates an Engine with empty registries and loads cfg.Settings into
// the settings store. Strategies must be registered after creation.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	e := &Engine{cfg: cfg, res: strategies.DefaultResources()}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logging.Component(e.log, "engine")

	if err := e.res.Settings.Get().Load(cfg.Settings); err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	e.metrics = dispatch.NewMetrics(e.reg)
	if cfg.Dispatch.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.Dispatch.RateLimit), cfg.Dispatch.Burst)
	}

	e.payments = newRegistry[payment.Processor](ledger.FamilyPayment, cfg.Dispatch.CacheInstances)
	e.notifiers = newRegistry[notify.Notifier](ledger.FamilyNotify, cfg.Dispatch.CacheInstances)
	e.bonuses = newRegistry[bonus.Calculator](ledger.FamilyBonus, cfg.Dispatch.CacheInstances)

	dopts := []dispatch.Option{dispatch.WithMetrics(e.metrics), dispatch.WithLogger(e.log)}
	if e.limiter != nil {
		dopts = append(dopts, dispatch.WithLimiter(e.limiter))
	}
	e.payDispatcher = dispatch.New[string, payment.Request, payment.Receipt](ledger.FamilyPayment, e.payments, dopts...)
	e.notifyDispatcher = dispatch.New[string, notify.Message, notify.Delivery](ledger.FamilyNotify, e.notifiers, dopts...)
	e.bonusDispatcher = dispatch.New[string, bonus.Employee, bonus.Award](ledger.FamilyBonus, e.bonuses, dopts...)

	return e, nil
}

func newRegistry[T any](family string, caching bool) *registry.Registry[string, T] {
	opts := []registry.Option[string]{
		registry.WithName[string](family),
		registry.WithNormalizer(registry.FoldCase),
	}
	if caching {
		opts = append(opts, registry.WithCaching[string]())
	}
	return registry.New[string, T](opts...)
}

// RegisterBuiltins registers every built-in strategy enabled in the config.
func (e *Engine) RegisterBuiltins() error {
	if err := e.RegisterPayment(payment.Definitions(e.res)...); err != nil {
		return err
	}
	if err := e.RegisterNotifier(notify.Definitions(e.res)...); err != nil {
		return err
	}
	return e.RegisterBonus(bonus.Definitions(e.res)...)
}

// RegisterPayment adds payment methods. Methods disabled in the config are skipped.
func (e *Engine) RegisterPayment(defs ...strategies.Definition[payment.Processor]) error {
	return register(e, ledger.FamilyPayment, e.payments, defs)
}

// RegisterNotifier adds notification channels. Channels disabled in the config are skipped.
func (e *Engine) RegisterNotifier(defs ...strategies.Definition[notify.Notifier]) error {
	return register(e, ledger.FamilyNotify, e.notifiers, defs)
}

// RegisterBonus adds bonus calculators. Roles disabled in the config are skipped.
func (e *Engine) RegisterBonus(defs ...strategies.Definition[bonus.Calculator]) error {
	return register(e, ledger.FamilyBonus, e.bonuses, defs)
}

func register[T any](e *Engine, family string, reg *registry.Registry[string, T], defs []strategies.Definition[T]) error {
	enabled := make([]strategies.Definition[T], 0, len(defs))
	for _, d := range defs {
		if !e.cfg.IsEnabled(family, d.Key) {
			e.log.Info("strategy disabled by config", "family", family, "key", d.Key)
			continue
		}
		enabled = append(enabled, d)
	}
	if err := strategies.Register(reg, enabled); err != nil {
		return err
	}
	e.log.Debug("strategies registered", "family", family, "count", len(enabled))
	return nil
}

// Seal freezes all registries. Further registrations fail with SEALED.
// Configured keys that no registered strategy matches are logged as warnings.
func (e *Engine) Seal() {
	e.payments.Seal()
	e.notifiers.Seal()
	e.bonuses.Seal()
	warnUnmatched(e, ledger.FamilyPayment, e.payments)
	warnUnmatched(e, ledger.FamilyNotify, e.notifiers)
	warnUnmatched(e, ledger.FamilyBonus, e.bonuses)
	e.log.Info("registries sealed", "strategies", len(e.Strategies()))
}

func warnUnmatched[T any](e *Engine, family string, reg *registry.Registry[string, T]) {
	for _, key := range e.cfg.Enabled(family) {
		if !reg.Has(key) {
			e.log.Warn("configured strategy matches no registered strategy", "family", family, "key", key)
		}
	}
}

// Pay dispatches a payment to method.
func (e *Engine) Pay(ctx context.Context, method string, req payment.Request) (payment.Receipt, error) {
	return e.payDispatcher.Process(ctx, method, req)
}

// PayBatch dispatches payments concurrently, bounded by the configured
// batch concurrency. Outcomes follow the order of jobs.
func (e *Engine) PayBatch(ctx context.Context, jobs []dispatch.Job[string, payment.Request]) []dispatch.Outcome[string, payment.Receipt] {
	return e.payDispatcher.ProcessBatch(ctx, jobs, e.cfg.Dispatch.BatchConcurrency)
}

// Notify dispatches a message to channel.
func (e *Engine) Notify(ctx context.Context, channel string, msg notify.Message) (notify.Delivery, error) {
	return e.notifyDispatcher.Process(ctx, channel, msg)
}

// Bonus dispatches a bonus computation for role.
func (e *Engine) Bonus(ctx context.Context, role string, emp bonus.Employee) (bonus.Award, error) {
	return e.bonusDispatcher.Process(ctx, role, emp)
}

// Strategies lists every registered strategy ordered by family and key.
func (e *Engine) Strategies() []StrategyInfo {
	var out []StrategyInfo
	out = appendInfos(out, ledger.FamilyPayment, e.payments.Entries())
	out = appendInfos(out, ledger.FamilyNotify, e.notifiers.Entries())
	out = appendInfos(out, ledger.FamilyBonus, e.bonuses.Entries())
	sort.SliceStable(out, func(i, j int) bool { return out[i].Family < out[j].Family })
	return out
}

func appendInfos(out []StrategyInfo, family string, entries []registry.Info[string]) []StrategyInfo {
	for _, en := range entries {
		out = append(out, StrategyInfo{Family: family, Key: en.Key, Doc: en.Doc})
	}
	return out
}

// Settings returns the live settings store.
func (e *Engine) Settings() *settings.Store { return e.res.Settings.Get() }

// Ledger returns the live ledger.
func (e *Engine) Ledger() *ledger.Ledger { return e.res.Ledger.Get() }

// Config returns the engine config.
func (e *Engine) Config() *config.Config { return e.cfg }

// WriteLedger writes the ledger as JSONL to path, creating parent directories.
// The file is replaced atomically, so a failed write leaves the previous
// contents in place.
func (e *Engine) WriteLedger(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating ledger dir: %w", err)
	}
	f, err := os.CreateTemp(dir, ".ledger-*.jsonl")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return fmt.Errorf("setting mode on %s: %w", tmp, err)
	}

	if err := e.Ledger().WriteJSONL(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	e.log.Info("ledger written", "path", path, "entries", e.Ledger().Count())
	return nil
}

// LoadLedger appends the entries stored at path to the ledger.
func (e *Engine) LoadLedger(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if err := e.Ledger().ReadJSONL(f); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	e.log.Info("ledger loaded", "path", path, "entries", e.Ledger().Count())
	return nil
}
