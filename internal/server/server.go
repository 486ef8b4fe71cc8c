package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dejo1307/dispatchkit/internal/engine"
	"github.com/dejo1307/dispatchkit/internal/logging"
	"github.com/dejo1307/dispatchkit/internal/strategies/bonus"
	"github.com/dejo1307/dispatchkit/internal/strategies/notify"
	"github.com/dejo1307/dispatchkit/internal/strategies/payment"
)

// Resource URIs.
const (
	LedgerURI   = "dispatch://ledger"
	SettingsURI = "dispatch://settings"
)

// Server wraps the MCP server and connects it to the dispatch engine.
type Server struct {
	mcp *mcp.Server
	eng *engine.Engine
	log *slog.Logger
}

// New creates a new MCP server wired to the given engine.
func New(eng *engine.Engine, version string, logger *slog.Logger) *Server {
	s := &Server{
		eng: eng,
		log: logging.Component(logger, "server"),
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "dispatchkit",
		Version: version,
	}, nil)

	s.registerResources()
	s.registerTools()
	return s
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("starting MCP server on stdio transport")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// registerResources adds MCP resources for the ledger and settings.
func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		URI:         LedgerURI,
		Name:        "Dispatch Ledger",
		Description: "Every payment and notification performed so far, in JSONL format",
		MIMEType:    "application/jsonl",
	}, s.readLedger)

	s.mcp.AddResource(&mcp.Resource{
		URI:         SettingsURI,
		Name:        "Settings",
		Description: "Current values of the shared settings store",
		MIMEType:    "application/json",
	}, s.readSettings)
}

func (s *Server) readLedger(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	var buf bytes.Buffer
	if err := s.eng.Ledger().WriteJSONL(&buf); err != nil {
		return nil, fmt.Errorf("encoding ledger: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: req.Params.URI, Text: buf.String(), MIMEType: "application/jsonl"},
		},
	}, nil
}

func (s *Server) readSettings(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(s.eng.Settings().Snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: req.Params.URI, Text: string(data), MIMEType: "application/json"},
		},
	}, nil
}

// payArgs are the arguments for the pay tool.
type payArgs struct {
	Method    string  `json:"method" jsonschema:"required,Payment method: upi, card or netbanking"`
	Amount    float64 `json:"amount" jsonschema:"required,Amount to pay, must be positive"`
	Currency  string  `json:"currency,omitempty" jsonschema:"Three-letter currency code. Defaults to the payment.currency setting"`
	Reference string  `json:"reference,omitempty" jsonschema:"Free-form reference recorded in the ledger"`
}

// notifyArgs are the arguments for the notify tool.
type notifyArgs struct {
	Channel   string `json:"channel" jsonschema:"required,Notification channel: email, sms or whatsapp"`
	Recipient string `json:"recipient" jsonschema:"required,Email address or E.164 phone number"`
	Body      string `json:"body" jsonschema:"required,Message text"`
}

// bonusArgs are the arguments for the compute_bonus tool.
type bonusArgs struct {
	Role   string  `json:"role" jsonschema:"required,Employee role: developer, manager, tester or hr"`
	Name   string  `json:"name" jsonschema:"required,Employee name"`
	Salary float64 `json:"salary" jsonschema:"required,Annual salary, must be positive"`
}

// listArgs are the arguments for the list_strategies tool.
type listArgs struct {
	Family string `json:"family,omitempty" jsonschema:"Filter by family: payment, notify or bonus"`
}

// getSettingArgs are the arguments for the get_setting tool.
type getSettingArgs struct {
	Key string `json:"key" jsonschema:"required,Setting key, e.g. payment.card.fee_percent"`
}

// setSettingArgs are the arguments for the set_setting tool.
type setSettingArgs struct {
	Key   string `json:"key" jsonschema:"required,Setting key"`
	Value string `json:"value" jsonschema:"required,New value"`
}

// registerTools adds MCP tools for dispatching strategies and managing settings.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "pay",
		Description: "Take a payment with the named method. Returns the receipt as JSON and records it in the ledger.",
	}, s.handlePay)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "notify",
		Description: "Send a notification over the named channel. Returns the delivery as JSON.",
	}, s.handleNotify)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "compute_bonus",
		Description: "Compute an employee bonus with the calculator for the given role.",
	}, s.handleBonus)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_strategies",
		Description: "List registered strategies, optionally filtered by family.",
	}, s.handleList)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_setting",
		Description: "Read a value from the shared settings store.",
	}, s.handleGetSetting)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "set_setting",
		Description: "Write a value to the shared settings store. The change applies to every later dispatch.",
	}, s.handleSetSetting)
}

func (s *Server) handlePay(ctx context.Context, _ *mcp.CallToolRequest, args payArgs) (*mcp.CallToolResult, any, error) {
	receipt, err := s.eng.Pay(ctx, args.Method, payment.Request{
		Amount:    args.Amount,
		Currency:  args.Currency,
		Reference: args.Reference,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("payment failed: %v", err)), nil, nil
	}
	return jsonResult(receipt), nil, nil
}

func (s *Server) handleNotify(ctx context.Context, _ *mcp.CallToolRequest, args notifyArgs) (*mcp.CallToolResult, any, error) {
	delivery, err := s.eng.Notify(ctx, args.Channel, notify.Message{
		Recipient: args.Recipient,
		Body:      args.Body,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("notification failed: %v", err)), nil, nil
	}
	return jsonResult(delivery), nil, nil
}

func (s *Server) handleBonus(ctx context.Context, _ *mcp.CallToolRequest, args bonusArgs) (*mcp.CallToolResult, any, error) {
	award, err := s.eng.Bonus(ctx, args.Role, bonus.Employee{Name: args.Name, Salary: args.Salary})
	if err != nil {
		return errorResult(fmt.Sprintf("bonus computation failed: %v", err)), nil, nil
	}
	return jsonResult(award), nil, nil
}

func (s *Server) handleList(_ context.Context, _ *mcp.CallToolRequest, args listArgs) (*mcp.CallToolResult, any, error) {
	all := s.eng.Strategies()
	if args.Family == "" {
		return jsonResult(all), nil, nil
	}

	var filtered []engine.StrategyInfo
	for _, info := range all {
		if strings.EqualFold(info.Family, args.Family) {
			filtered = append(filtered, info)
		}
	}
	if len(filtered) == 0 {
		return errorResult(fmt.Sprintf("No strategies registered for family %q", args.Family)), nil, nil
	}
	return jsonResult(filtered), nil, nil
}

func (s *Server) handleGetSetting(_ context.Context, _ *mcp.CallToolRequest, args getSettingArgs) (*mcp.CallToolResult, any, error) {
	if args.Key == "" {
		return errorResult("key is required"), nil, nil
	}
	v, ok := s.eng.Settings().Get(args.Key)
	if !ok {
		return errorResult(fmt.Sprintf("setting %q is not set", args.Key)), nil, nil
	}
	return textResult(v), nil, nil
}

func (s *Server) handleSetSetting(_ context.Context, _ *mcp.CallToolRequest, args setSettingArgs) (*mcp.CallToolResult, any, error) {
	if err := s.eng.Settings().Set(args.Key, args.Value); err != nil {
		return errorResult(fmt.Sprintf("set failed: %v", err)), nil, nil
	}
	s.log.Info("setting changed", "key", args.Key)
	return textResult(fmt.Sprintf("%s = %s", args.Key, args.Value)), nil, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return textResult(string(data))
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}
