// Package singleton owns shared resources that must exist at most once per
// process, such as the settings store and the transaction ledger.
//
// A Manager is an explicit object that holds the single instance behind an
// initialization lock. Nothing is attached to the resource type itself:
//
//	var settingsManager = singleton.New("settings", newDefaultStore)
//
//	func Instance() *Store { return settingsManager.Get() }
//
// The first Get constructs the resource; every later Get returns the same
// value until Reset, which test harnesses use to start from a clean state.
package singleton

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dejo1307/dispatchkit/internal/errors"
)

// State is the lifecycle state of a Manager.
type State int32

const (
	// Uninitialized means no instance is live.
	Uninitialized State = iota
	// Initialized means an instance is live and Get returns it.
	Initialized
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Option configures a Manager.
type Option[T any] func(*Manager[T])

// WithTeardown registers a function run on the live instance by Reset.
func WithTeardown[T any](fn func(T) error) Option[T] {
	return func(m *Manager[T]) { m.teardown = fn }
}

// Manager guarantees a single live instance of T.
type Manager[T any] struct {
	name      string
	construct func() T
	teardown  func(T) error

	mu            sync.Mutex
	instance      atomic.Pointer[T]
	constructions atomic.Int64
}

// New creates a manager that builds its instance with construct on first use.
func New[T any](name string, construct func() T, opts ...Option[T]) *Manager[T] {
	if construct == nil {
		panic(fmt.Sprintf("singleton %s: nil constructor", name))
	}
	m := &Manager[T]{name: name, construct: construct}
	for _, fn := range opts {
		fn(m)
	}
	return m
}

// Name returns the resource name.
func (m *Manager[T]) Name() string { return m.name }

// Get returns the live instance, constructing it on the first call.
// Concurrent first calls construct exactly once.
func (m *Manager[T]) Get() T {
	if p := m.instance.Load(); p != nil {
		return *p
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p := m.instance.Load(); p != nil {
		return *p
	}
	v := m.construct()
	m.constructions.Add(1)
	m.instance.Store(&v)
	return v
}

// State reports whether an instance is live.
func (m *Manager[T]) State() State {
	if m.instance.Load() != nil {
		return Initialized
	}
	return Uninitialized
}

// Constructions returns how many times the constructor has run.
func (m *Manager[T]) Constructions() int64 { return m.constructions.Load() }

// Reset discards the live instance, running the teardown if one is set.
// The next Get constructs a new instance. Reset is meant for tests and
// explicit shutdown, never for normal request handling.
func (m *Manager[T]) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.instance.Swap(nil)
	if p == nil || m.teardown == nil {
		return nil
	}
	if err := m.teardown(*p); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, fmt.Sprintf("tearing down %s", m.name), err)
	}
	return nil
}

// Guard rejects every construction after the first until it is released.
// A resource constructor claims the guard so that building the resource
// anywhere but its manager fails with ILLEGAL_CONSTRUCTION.
type Guard struct {
	name    string
	claimed atomic.Bool
}

// NewGuard creates an unclaimed guard.
func NewGuard(name string) *Guard {
	return &Guard{name: name}
}

// Claim marks the guarded resource as constructed.
func (g *Guard) Claim() error {
	if !g.claimed.CompareAndSwap(false, true) {
		return errors.NewWithContext(errors.ErrCodeIllegalConstruction,
			fmt.Sprintf("%s is already constructed; obtain it from its manager", g.name),
			map[string]any{"resource": g.name})
	}
	return nil
}

// Release allows the next Claim to succeed.
func (g *Guard) Release() { g.claimed.Store(false) }

// Claimed reports whether the guard is held.
func (g *Guard) Claimed() bool { return g.claimed.Load() }
