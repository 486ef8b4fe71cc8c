package server

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dejo1307/dispatchkit/internal/engine"
	"github.com/dejo1307/dispatchkit/internal/ledger"
	"github.com/dejo1307/dispatchkit/internal/logging"
	"github.com/dejo1307/dispatchkit/internal/settings"
	"github.com/dejo1307/dispatchkit/internal/strategies/payment"
)

// --- helpers ---

func newTestServer(t *testing.T) *Server {
	t.Helper()
	if err := settings.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := ledger.Reset(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = settings.Reset()
		_ = ledger.Reset()
	})

	eng, err := engine.New(nil, engine.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if err := eng.RegisterBuiltins(); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	eng.Seal()
	return New(eng, "test", logging.Discard())
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) != 1 {
		t.Fatalf("expected one content item, got %+v", res)
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected *mcp.TextContent, got %T", res.Content[0])
	}
	return tc.Text
}

func readResource(t *testing.T, fn func(context.Context, *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error), uri string) string {
	t.Helper()
	res, err := fn(context.Background(), &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: uri}})
	if err != nil {
		t.Fatalf("read %s: %v", uri, err)
	}
	if len(res.Contents) != 1 {
		t.Fatalf("expected one content, got %d", len(res.Contents))
	}
	return res.Contents[0].Text
}

// --- tools ---

func TestPayTool(t *testing.T) {
	s := newTestServer(t)

	res, _, err := s.handlePay(context.Background(), nil, payArgs{Method: "upi", Amount: 250})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}

	var receipt payment.Receipt
	if err := json.Unmarshal([]byte(resultText(t, res)), &receipt); err != nil {
		t.Fatalf("decoding receipt: %v", err)
	}
	if receipt.Message != "Amount paid via UPI: Rs.250" {
		t.Errorf("Message = %q", receipt.Message)
	}
}

func TestPayTool_UnknownMethod(t *testing.T) {
	s := newTestServer(t)

	res, _, err := s.handlePay(context.Background(), nil, payArgs{Method: "paypal", Amount: 1})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("expected IsError")
	}
	if text := resultText(t, res); !strings.Contains(text, "UNKNOWN_KEY") {
		t.Errorf("expected error code in text, got %q", text)
	}
}

func TestNotifyTool(t *testing.T) {
	s := newTestServer(t)

	res, _, _ := s.handleNotify(context.Background(), nil, notifyArgs{Channel: "sms", Recipient: "+919876543210", Body: "hi"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, res))
	}
	if !strings.Contains(resultText(t, res), `"channel": "sms"`) {
		t.Errorf("delivery missing channel: %s", resultText(t, res))
	}

	res, _, _ = s.handleNotify(context.Background(), nil, notifyArgs{Channel: "sms", Recipient: "not-a-number", Body: "hi"})
	if !res.IsError || !strings.Contains(resultText(t, res), "INVALID_REQUEST") {
		t.Errorf("expected INVALID_REQUEST, got %s", resultText(t, res))
	}
}

func TestComputeBonusTool(t *testing.T) {
	s := newTestServer(t)

	res, _, _ := s.handleBonus(context.Background(), nil, bonusArgs{Role: "tester", Name: "Kiran", Salary: 2000})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, res))
	}
	if !strings.Contains(resultText(t, res), `"bonus": 300`) {
		t.Errorf("unexpected award: %s", resultText(t, res))
	}
}

func TestListStrategiesTool(t *testing.T) {
	s := newTestServer(t)

	res, _, _ := s.handleList(context.Background(), nil, listArgs{})
	var all []engine.StrategyInfo
	if err := json.Unmarshal([]byte(resultText(t, res)), &all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 10 {
		t.Errorf("got %d strategies, want 10", len(all))
	}

	res, _, _ = s.handleList(context.Background(), nil, listArgs{Family: "Payment"})
	var pay []engine.StrategyInfo
	if err := json.Unmarshal([]byte(resultText(t, res)), &pay); err != nil {
		t.Fatal(err)
	}
	if len(pay) != 3 {
		t.Errorf("got %d payment strategies, want 3", len(pay))
	}

	res, _, _ = s.handleList(context.Background(), nil, listArgs{Family: "shipping"})
	if !res.IsError {
		t.Error("expected error for unknown family")
	}
}

func TestSettingsTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, _, _ := s.handleGetSetting(ctx, nil, getSettingArgs{Key: settings.KeyCurrency})
	if got := resultText(t, res); got != "INR" {
		t.Errorf("currency = %q, want INR", got)
	}

	res, _, _ = s.handleSetSetting(ctx, nil, setSettingArgs{Key: settings.KeyCardFeePercent, Value: "3"})
	if res.IsError {
		t.Fatalf("set failed: %s", resultText(t, res))
	}
	if v, _ := settings.Instance().Get(settings.KeyCardFeePercent); v != "3" {
		t.Errorf("store not updated, got %q", v)
	}

	res, _, _ = s.handlePay(ctx, nil, payArgs{Method: "card", Amount: 100})
	if !strings.Contains(resultText(t, res), `"fee": 3`) {
		t.Errorf("new fee not applied: %s", resultText(t, res))
	}

	res, _, _ = s.handleSetSetting(ctx, nil, setSettingArgs{Key: "", Value: "x"})
	if !res.IsError {
		t.Error("expected error for empty key")
	}

	res, _, _ = s.handleGetSetting(ctx, nil, getSettingArgs{Key: "no.such.key"})
	if !res.IsError {
		t.Error("expected error for missing key")
	}
}

// --- resources ---

func TestLedgerResource(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	if text := readResource(t, s.readLedger, LedgerURI); text != "" {
		t.Errorf("expected empty ledger, got %q", text)
	}

	s.handlePay(ctx, nil, payArgs{Method: "upi", Amount: 1})
	s.handlePay(ctx, nil, payArgs{Method: "netbanking", Amount: 2})

	text := readResource(t, s.readLedger, LedgerURI)
	if lines := strings.Count(text, "\n"); lines != 2 {
		t.Errorf("ledger has %d lines, want 2", lines)
	}
}

func TestSettingsResource(t *testing.T) {
	s := newTestServer(t)

	var values map[string]string
	if err := json.Unmarshal([]byte(readResource(t, s.readSettings, SettingsURI)), &values); err != nil {
		t.Fatal(err)
	}
	if values[settings.KeyNotifySender] != "dispatchkit" {
		t.Errorf("sender = %q", values[settings.KeyNotifySender])
	}
}

func TestErrorResult(t *testing.T) {
	res := errorResult("boom")
	if !res.IsError {
		t.Error("expected IsError")
	}
	if resultText(t, res) != "boom" {
		t.Errorf("text = %q", resultText(t, res))
	}
}
