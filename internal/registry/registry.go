package registry

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dejo1307/dispatchkit/internal/errors"
)

// Factory builds a new value implementing the registry's contract type.
type Factory[T any] func() T

// Info describes a registered entry without exposing its factory.
type Info[K comparable] struct {
	Key K
	Doc string
}

type entry[T any] struct {
	factory Factory[T]
	doc     string

	// used only when caching is enabled
	once   sync.Once
	cached T
	err    error
}

type options[K comparable] struct {
	name       string
	normalizer func(K) K
	caching    bool
}

// Option configures a Registry.
type Option[K comparable] func(*options[K])

// WithName sets the name used in error messages (e.g. "payment").
func WithName[K comparable](name string) Option[K] {
	return func(o *options[K]) { o.name = name }
}

// WithNormalizer canonicalizes keys on every operation.
func WithNormalizer[K comparable](fn func(K) K) Option[K] {
	return func(o *options[K]) { o.normalizer = fn }
}

// WithCaching makes Create return one instance per key, built on first use.
// Instances are fresh per call without it.
func WithCaching[K comparable]() Option[K] {
	return func(o *options[K]) { o.caching = true }
}

// FoldCase trims and lower-cases string keys.
func FoldCase(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// DocOption modifies per-entry registration parameters.
type DocOption func(*string)

// WithDoc attaches a human-readable note to the entry.
func WithDoc(doc string) DocOption { return func(d *string) { *d = doc } }

// Registry maps discriminators to factories. It is safe for concurrent use.
type Registry[K comparable, T any] struct {
	mu      sync.RWMutex
	entries map[K]*entry[T]
	opt     options[K]
	sealed  atomic.Bool
}

// New creates an empty registry.
func New[K comparable, T any](opts ...Option[K]) *Registry[K, T] {
	o := options[K]{name: "registry"}
	for _, fn := range opts {
		fn(&o)
	}
	return &Registry[K, T]{
		entries: make(map[K]*entry[T]),
		opt:     o,
	}
}

// Name returns the registry name.
func (r *Registry[K, T]) Name() string { return r.opt.name }

func (r *Registry[K, T]) normalize(k K) K {
	if r.opt.normalizer != nil {
		return r.opt.normalizer(k)
	}
	return k
}

// Register stores factory under key.
func (r *Registry[K, T]) Register(key K, factory Factory[T], dopts ...DocOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return r.sealedErr(key)
	}
	key = r.normalize(key)
	var zero K
	if key == zero {
		return errors.New(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("%s registry: empty key", r.opt.name))
	}
	if factory == nil {
		return errors.NewWithContext(errors.ErrCodeContractViolation,
			fmt.Sprintf("%s registry: nil factory for key %v", r.opt.name, key),
			map[string]any{"key": key})
	}

	var doc string
	for _, fn := range dopts {
		fn(&doc)
	}

	if _, exists := r.entries[key]; exists {
		return errors.NewWithContext(errors.ErrCodeDuplicateKey,
			fmt.Sprintf("%s key %v already registered", r.opt.name, key),
			map[string]any{"key": key})
	}
	r.entries[key] = &entry[T]{factory: factory, doc: doc}
	return nil
}

// MustRegister panics on registration error. Useful at composition time.
func (r *Registry[K, T]) MustRegister(key K, factory Factory[T], dopts ...DocOption) {
	if err := r.Register(key, factory, dopts...); err != nil {
		panic(err)
	}
}

// Unregister removes key. Later Create calls for it fail with UNKNOWN_KEY.
func (r *Registry[K, T]) Unregister(key K) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed.Load() {
		return r.sealedErr(key)
	}
	key = r.normalize(key)
	if _, ok := r.entries[key]; !ok {
		return r.unknown(key)
	}
	delete(r.entries, key)
	return nil
}

func (r *Registry[K, T]) sealedErr(key K) error {
	return errors.NewWithContext(errors.ErrCodeSealed,
		fmt.Sprintf("%s registry is sealed", r.opt.name),
		map[string]any{"key": key})
}

// Create invokes the factory registered under key and returns its product.
func (r *Registry[K, T]) Create(key K) (T, error) {
	key = r.normalize(key)

	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()

	if !ok {
		var zero T
		return zero, r.unknown(key)
	}

	if !r.opt.caching {
		return r.build(key, e.factory)
	}
	e.once.Do(func() {
		e.cached, e.err = r.build(key, e.factory)
	})
	return e.cached, e.err
}

func (r *Registry[K, T]) build(key K, factory Factory[T]) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero T
			v = zero
			err = errors.NewWithContext(errors.ErrCodeInternal,
				fmt.Sprintf("%s factory for key %v panicked: %v", r.opt.name, key, p),
				map[string]any{"key": key})
		}
	}()

	v = factory()
	if isNil(v) {
		var zero T
		return zero, errors.NewWithContext(errors.ErrCodeContractViolation,
			fmt.Sprintf("%s factory for key %v returned nil", r.opt.name, key),
			map[string]any{"key": key})
	}
	return v, nil
}

func (r *Registry[K, T]) unknown(key K) error {
	return errors.NewWithContext(errors.ErrCodeUnknownKey,
		fmt.Sprintf("%s key %v not registered", r.opt.name, key),
		map[string]any{"key": key})
}

// Has reports whether key is registered.
func (r *Registry[K, T]) Has(key K) bool {
	key = r.normalize(key)
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Len returns the number of registered keys.
func (r *Registry[K, T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Keys returns all registered keys ordered by their string form.
func (r *Registry[K, T]) Keys() []K {
	r.mu.RLock()
	keys := make([]K, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
	})
	return keys
}

// Entries returns key and doc for every entry, ordered like Keys.
func (r *Registry[K, T]) Entries() []Info[K] {
	keys := r.Keys()

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info[K], 0, len(keys))
	for _, k := range keys {
		if e, ok := r.entries[k]; ok {
			out = append(out, Info[K]{Key: k, Doc: e.doc})
		}
	}
	return out
}

// Seal prevents further Register and Unregister calls. It reports whether
// this call changed the state. Once Seal returns, no in-flight Register or
// Unregister can still modify the table.
func (r *Registry[K, T]) Seal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.sealed.Swap(true)
}

// Sealed reports whether the registry is sealed.
func (r *Registry[K, T]) Sealed() bool { return r.sealed.Load() }

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
