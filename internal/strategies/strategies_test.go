package strategies

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejo1307/dispatchkit/internal/capability"
	"github.com/dejo1307/dispatchkit/internal/errors"
	"github.com/dejo1307/dispatchkit/internal/registry"
)

type sample struct {
	Name  string  `validate:"required"`
	Score float64 `validate:"gte=0,lte=10"`
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("fam", "key", sample{Name: "a", Score: 5}))

	err := Validate("fam", "key", sample{Score: 11})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))
	assert.Contains(t, err.Error(), "Name failed required")
	assert.Contains(t, err.Error(), "Score failed lte=10")
	assert.Contains(t, err.Error(), "fam/key")
}

func TestValidate_NonStruct(t *testing.T) {
	err := Validate("fam", "key", 42)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRequest))
}

func TestValidateVar(t *testing.T) {
	assert.NoError(t, ValidateVar("notify", "email", "recipient", "a@b.co", "email"))
	err := ValidateVar("notify", "email", "recipient", "nope", "email")
	assert.ErrorIs(t, err, errors.ErrInvalidRequest)
}

func TestRegister(t *testing.T) {
	type echo = capability.Executor[string, string]
	mk := func() echo {
		return capability.ExecutorFunc[string, string](func(_ context.Context, s string) (string, error) { return s, nil })
	}
	reg := registry.New[string, echo]()

	defs := []Definition[echo]{{Key: "a", Doc: "first", Factory: mk}, {Key: "b", Factory: mk}}
	require.NoError(t, Register(reg, defs))
	assert.Equal(t, []string{"a", "b"}, reg.Keys())
	assert.Equal(t, "first", reg.Entries()[0].Doc)

	assert.ErrorIs(t, Register(reg, defs[:1]), errors.ErrDuplicateKey)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, Round2(1.2349))
	assert.Equal(t, 1.24, Round2(1.235001))
	assert.Equal(t, 0.0, Round2(0))
}
