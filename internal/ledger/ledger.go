// Package ledger keeps an in-memory journal of the side effects strategies
// perform, such as payments taken and notifications sent. The journal is a
// managed singleton shared by every strategy instance.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dejo1307/dispatchkit/internal/singleton"
)

// Ledger provides append-only storage of entries with JSONL export.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry

	byFamily map[string][]int // family -> indices into entries
	byKey    map[string][]int // family/key -> indices into entries
	now      func() time.Time
}

var manager = singleton.New("ledger", newLedger)

// Instance returns the live ledger, creating it on first use.
func Instance() *Ledger { return manager.Get() }

// Manager exposes the singleton manager for lifecycle inspection.
func Manager() *singleton.Manager[*Ledger] { return manager }

// Reset discards the live ledger. Tests only.
func Reset() error { return manager.Reset() }

func newLedger() *Ledger {
	return &Ledger{
		byFamily: make(map[string][]int),
		byKey:    make(map[string][]int),
		now:      time.Now,
	}
}

// Append records entries, filling in a missing ID and timestamp.
// It returns the stored entries.
func (l *Ledger) Append(ee ...Entry) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored := make([]Entry, 0, len(ee))
	for _, e := range ee {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.At.IsZero() {
			e.At = l.now().UTC()
		}
		idx := len(l.entries)
		l.entries = append(l.entries, e)
		l.byFamily[e.Family] = append(l.byFamily[e.Family], idx)
		l.byKey[indexKey(e.Family, e.Key)] = append(l.byKey[indexKey(e.Family, e.Key)], idx)
		stored = append(stored, e)
	}
	return stored
}

// All returns all entries in append order.
func (l *Ledger) All() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]Entry, len(l.entries))
	copy(result, l.entries)
	return result
}

// Count returns the number of entries.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// ByFamily returns all entries of the given family.
func (l *Ledger) ByFamily(family string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collectByIndex(l.byFamily[family])
}

// ByKey returns all entries produced by the strategy registered under key.
func (l *Ledger) ByKey(family, key string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.collectByIndex(l.byKey[indexKey(family, key)])
}

// Total sums the amounts of a family's entries.
func (l *Ledger) Total(family string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var sum float64
	for _, idx := range l.byFamily[family] {
		sum += l.entries[idx].Amount
	}
	return sum
}

// Clear removes all entries.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.byFamily = make(map[string][]int)
	l.byKey = make(map[string][]int)
}

// WriteJSONL writes all entries as JSONL to the given writer.
func (l *Ledger) WriteJSONL(w io.Writer) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, e := range l.entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encoding entry %q: %w", e.ID, err)
		}
	}
	return bw.Flush()
}

// ReadJSONL reads entries from a JSONL reader and appends them.
func (l *Ledger) ReadJSONL(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return fmt.Errorf("decoding entry: %w", err)
		}
		l.Append(e)
	}
	return scanner.Err()
}

func (l *Ledger) collectByIndex(indices []int) []Entry {
	result := make([]Entry, 0, len(indices))
	for _, idx := range indices {
		if idx < len(l.entries) {
			result = append(result, l.entries[idx])
		}
	}
	return result
}

func indexKey(family, key string) string {
	return family + "/" + key
}
