package singleton

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejo1307/dispatchkit/internal/errors"
)

type connection struct {
	id     int
	closed bool
}

func newCounterManager(opts ...Option[*connection]) *Manager[*connection] {
	var n int
	return New("connection", func() *connection {
		n++
		return &connection{id: n}
	}, opts...)
}

func TestManager_LazyConstruction(t *testing.T) {
	m := newCounterManager()
	assert.Equal(t, Uninitialized, m.State())
	assert.Equal(t, int64(0), m.Constructions())

	c := m.Get()
	require.NotNil(t, c)
	assert.Equal(t, Initialized, m.State())
	assert.Equal(t, int64(1), m.Constructions())
}

func TestManager_SequentialGetReturnsSameReference(t *testing.T) {
	m := newCounterManager()
	first := m.Get()
	for i := 0; i < 100; i++ {
		assert.Same(t, first, m.Get())
	}
	assert.Equal(t, int64(1), m.Constructions())
}

func TestManager_ConcurrentFirstAccessConstructsOnce(t *testing.T) {
	for run := 0; run < 50; run++ {
		var mu sync.Mutex
		built := 0
		m := New("shared", func() *connection {
			mu.Lock()
			built++
			mu.Unlock()
			return &connection{id: built}
		})

		const goroutines = 64
		results := make([]*connection, goroutines)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				results[i] = m.Get()
			}(i)
		}
		close(start)
		wg.Wait()

		require.Equal(t, 1, built, "run %d constructed %d instances", run, built)
		for _, r := range results {
			require.Same(t, results[0], r)
		}
	}
}

func TestManager_ResetRunsTeardownAndRebuilds(t *testing.T) {
	var tornDown *connection
	m := newCounterManager(WithTeardown(func(c *connection) error {
		c.closed = true
		tornDown = c
		return nil
	}))

	first := m.Get()
	require.NoError(t, m.Reset())
	assert.Equal(t, Uninitialized, m.State())
	assert.Same(t, first, tornDown)
	assert.True(t, first.closed)

	second := m.Get()
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, second.id)
	assert.Equal(t, int64(2), m.Constructions())
}

func TestManager_ResetWhenUninitialized(t *testing.T) {
	called := false
	m := newCounterManager(WithTeardown(func(*connection) error {
		called = true
		return nil
	}))
	require.NoError(t, m.Reset())
	assert.False(t, called)
}

func TestManager_TeardownError(t *testing.T) {
	m := newCounterManager(WithTeardown(func(*connection) error {
		return stderrors.New("socket busy")
	}))
	m.Get()

	err := m.Reset()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInternal))
	assert.Equal(t, Uninitialized, m.State())
}

func TestNew_NilConstructorPanics(t *testing.T) {
	assert.Panics(t, func() { New[*connection]("broken", nil) })
}

func TestGuard(t *testing.T) {
	g := NewGuard("settings")
	assert.False(t, g.Claimed())

	require.NoError(t, g.Claim())
	assert.True(t, g.Claimed())

	err := g.Claim()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrIllegalConstruction)

	g.Release()
	assert.NoError(t, g.Claim())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", Uninitialized.String())
	assert.Equal(t, "initialized", Initialized.String())
	assert.Equal(t, "state(7)", State(7).String())
}
