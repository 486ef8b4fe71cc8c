package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejo1307/dispatchkit/internal/engine"
	"github.com/dejo1307/dispatchkit/internal/errors"
	"github.com/dejo1307/dispatchkit/internal/ledger"
	"github.com/dejo1307/dispatchkit/internal/settings"
	"github.com/dejo1307/dispatchkit/internal/strategies/bonus"
	"github.com/dejo1307/dispatchkit/internal/strategies/payment"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	require.NoError(t, settings.Reset())
	require.NoError(t, ledger.Reset())
	t.Cleanup(func() {
		_ = settings.Reset()
		_ = ledger.Reset()
	})

	// Point at a config file that does not exist so defaults apply.
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestPayCommand(t *testing.T) {
	out, err := run(t, "", "pay", "card", "--amount", "100")
	require.NoError(t, err)

	var r payment.Receipt
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, "Amount paid via Credit Card: Rs.100", r.Message)
	assert.Equal(t, 102.0, r.Total)
}

func TestPayCommand_UnknownMethod(t *testing.T) {
	_, err := run(t, "", "pay", "paypal", "--amount", "1")
	assert.ErrorIs(t, err, errors.ErrUnknownKey)
}

func TestPayCommand_MissingAmount(t *testing.T) {
	_, err := run(t, "", "pay", "upi")
	assert.ErrorContains(t, err, "amount")
}

func TestBonusCommand(t *testing.T) {
	out, err := run(t, "", "bonus", "hr", "--name", "Dev", "--salary", "1000")
	require.NoError(t, err)

	var a bonus.Award
	require.NoError(t, json.Unmarshal([]byte(out), &a))
	assert.Equal(t, 180.0, a.Bonus)
}

func TestNotifyCommand(t *testing.T) {
	out, err := run(t, "", "notify", "email", "--to", "a@example.com", "--body", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, `"channel": "email"`)
}

func TestListCommand(t *testing.T) {
	out, err := run(t, "", "list")
	require.NoError(t, err)

	var infos []engine.StrategyInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	assert.Len(t, infos, 10)
}

func TestPayBatchCommand(t *testing.T) {
	input := `{"method":"upi","amount":10}
{"method":"paypal","amount":5}
{"method":"netbanking","amount":20,"reference":"r1"}
`
	out, err := run(t, input, "pay-batch", "-")
	assert.ErrorContains(t, err, "1 of 3 payments failed")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)

	var first, second, third batchResult
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &third))

	assert.Equal(t, "upi", first.Method)
	require.NotNil(t, first.Receipt)
	assert.Contains(t, second.Error, "UNKNOWN_KEY")
	require.NotNil(t, third.Receipt)
	assert.Equal(t, 30.0, third.Receipt.Total)
}

func TestPayBatchCommand_BadInput(t *testing.T) {
	_, err := run(t, "{oops", "pay-batch", "-")
	assert.ErrorContains(t, err, "decoding batch line 1")
}

func TestConfigFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("strategies:\n  payment: [upi]\nsettings:\n  payment.currency: USD\n"), 0o644))

	out, err := run(t, "", "--config", path, "pay", "upi", "--amount", "3")
	require.NoError(t, err)
	assert.Contains(t, out, `"currency": "USD"`)

	_, err = run(t, "", "--config", path, "pay", "card", "--amount", "3")
	assert.ErrorIs(t, err, errors.ErrUnknownKey)

	_, err = run(t, "", "--config", filepath.Join(dir, "missing.yaml"), "list")
	assert.ErrorContains(t, err, "reading config")
}
