// Package settings holds the process-wide key/value configuration that
// strategies read at execution time (currency, fees, bonus rates, sender).
//
// The Store is a managed singleton: Instance returns the one live Store,
// creating it with DefaultValues on first use. Values written with Set are
// visible to every later Instance caller until Reset.
package settings

import (
	"fmt"
	"maps"
	"sort"
	"strconv"
	"sync"

	"github.com/dejo1307/dispatchkit/internal/errors"
	"github.com/dejo1307/dispatchkit/internal/singleton"
)

// Well-known keys.
const (
	KeyCurrency          = "payment.currency"
	KeyCardFeePercent    = "payment.card.fee_percent"
	KeyNetBankingFlatFee = "payment.netbanking.flat_fee"
	KeyNotifySender      = "notify.sender"
	KeySMSMaxLength      = "notify.sms.max_length"

	keyBonusRateTemplate = "bonus.%s.rate"
)

// BonusRateKey returns the settings key holding the bonus rate for role.
func BonusRateKey(role string) string {
	return fmt.Sprintf(keyBonusRateTemplate, role)
}

// DefaultValues returns the built-in configuration used when the store is
// created without explicit values.
func DefaultValues() map[string]string {
	return map[string]string{
		KeyCurrency:          "INR",
		KeyCardFeePercent:    "2",
		KeyNetBankingFlatFee: "10",
		KeyNotifySender:      "dispatchkit",
		KeySMSMaxLength:      "160",

		BonusRateKey("developer"): "0.20",
		BonusRateKey("manager"):   "0.30",
		BonusRateKey("tester"):    "0.15",
		BonusRateKey("hr"):        "0.18",
	}
}

// Store is a concurrency-safe key/value configuration store.
// Obtain it from Instance; a Store built any other way rejects writes.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

var (
	guard   = singleton.NewGuard("settings store")
	manager = singleton.New("settings", func() *Store {
		s, err := newStore(DefaultValues())
		if err != nil {
			panic(err)
		}
		return s
	}, singleton.WithTeardown(func(*Store) error {
		guard.Release()
		return nil
	}))
)

// New always fails with ILLEGAL_CONSTRUCTION: the Store is built only by its
// manager. Application code uses Instance.
func New(map[string]string) (*Store, error) {
	return nil, errors.New(errors.ErrCodeIllegalConstruction,
		"settings: the store is constructed by its manager; use settings.Instance")
}

// newStore is the manager's constructor. It claims the guard so a second
// live store can never exist.
func newStore(defaults map[string]string) (*Store, error) {
	if err := guard.Claim(); err != nil {
		return nil, err
	}
	values := make(map[string]string, len(defaults))
	maps.Copy(values, defaults)
	return &Store{values: values}, nil
}

// Instance returns the live Store, creating it with DefaultValues on first use.
func Instance() *Store { return manager.Get() }

// Manager exposes the singleton manager for lifecycle inspection.
func Manager() *singleton.Manager[*Store] { return manager }

// Reset discards the live Store and releases the construction guard, even
// when no store is live. Tests only.
func Reset() error {
	err := manager.Reset()
	guard.Release()
	return err
}

// Get returns the value for key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *Store) Set(key, value string) error {
	if key == "" {
		return errors.New(errors.ErrCodeInvalidRequest, "settings: empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		return errors.New(errors.ErrCodeIllegalConstruction,
			"settings: store was not obtained from settings.Instance")
	}
	s.values[key] = value
	return nil
}

// Load overlays values onto the store.
func (s *Store) Load(values map[string]string) error {
	for _, k := range sortedKeys(values) {
		if err := s.Set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// String returns the value for key, or def when unset.
func (s *Store) String(key, def string) string {
	if v, ok := s.Get(key); ok {
		return v
	}
	return def
}

// Float parses the value for key, returning def when unset.
func (s *Store) Float(key string, def float64) (float64, error) {
	v, ok := s.Get(key)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, errors.WrapWithContext(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("settings: %s is not a number", key), err,
			map[string]any{"key": key, "value": v})
	}
	return f, nil
}

// Int parses the value for key, returning def when unset.
func (s *Store) Int(key string, def int) (int, error) {
	v, ok := s.Get(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, errors.WrapWithContext(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("settings: %s is not an integer", key), err,
			map[string]any{"key": key, "value": v})
	}
	return n, nil
}

// Snapshot returns a copy of all values.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	maps.Copy(out, s.values)
	return out
}

// Keys returns all keys in sorted order.
func (s *Store) Keys() []string {
	return sortedKeys(s.Snapshot())
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
