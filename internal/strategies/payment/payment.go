// Package payment implements the payment strategy family: interchangeable
// methods that take an amount and produce a receipt.
//
// Every method records the settled payment in the ledger. Fees and the
// default currency come from the settings store at execution time, so a
// change made with settings.Instance().Set applies to the next payment.
package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dejo1307/dispatchkit/internal/capability"
	"github.com/dejo1307/dispatchkit/internal/ledger"
	"github.com/dejo1307/dispatchkit/internal/settings"
	"github.com/dejo1307/dispatchkit/internal/strategies"
)

// Method keys.
const (
	UPI        = "upi"
	Card       = "card"
	NetBanking = "netbanking"
)

// Request is the payment payload.
type Request struct {
	Amount    float64 `json:"amount" validate:"gt=0"`
	Currency  string  `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Reference string  `json:"reference,omitempty" validate:"max=128"`
}

// Receipt is the result of a settled payment.
type Receipt struct {
	ID       string  `json:"id"`
	Method   string  `json:"method"`
	Amount   float64 `json:"amount"`
	Fee      float64 `json:"fee"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
	Message  string  `json:"message"`
}

// Processor is the capability every payment method implements.
type Processor = capability.Executor[Request, Receipt]

// feeFunc computes the fee for amount from the live settings.
type feeFunc func(s *settings.Store, amount float64) (float64, error)

type method struct {
	res   strategies.Resources
	key   string
	label string
	doc   string
	fee   feeFunc
}

// Execute validates req, computes the fee, records the payment in the ledger
// and returns the receipt.
func (m *method) Execute(ctx context.Context, req Request) (Receipt, error) {
	if err := strategies.Validate(ledger.FamilyPayment, m.key, req); err != nil {
		return Receipt{}, err
	}
	if err := strategies.RequireFinite(ledger.FamilyPayment, m.key, "amount", req.Amount); err != nil {
		return Receipt{}, err
	}
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	store := m.res.Settings.Get()
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = store.String(settings.KeyCurrency, "INR")
	}

	fee, err := m.fee(store, req.Amount)
	if err != nil {
		return Receipt{}, err
	}
	fee = strategies.Round2(fee)
	total := strategies.Round2(req.Amount + fee)
	if err := strategies.RequireFinite(ledger.FamilyPayment, m.key, "fee", fee); err != nil {
		return Receipt{}, err
	}
	if err := strategies.RequireFinite(ledger.FamilyPayment, m.key, "total", total); err != nil {
		return Receipt{}, err
	}

	r := Receipt{
		ID:       uuid.NewString(),
		Method:   m.key,
		Amount:   req.Amount,
		Fee:      fee,
		Total:    total,
		Currency: currency,
	}
	r.Message = fmt.Sprintf("Amount paid via %s: %s%s", m.label, symbol(currency), formatAmount(req.Amount))

	m.res.Ledger.Get().Append(ledger.Entry{
		ID:       r.ID,
		Family:   ledger.FamilyPayment,
		Key:      m.key,
		Summary:  r.Message,
		Amount:   r.Total,
		Currency: currency,
		Props: map[string]any{
			"fee":       fee,
			"reference": req.Reference,
		},
	})
	return r, nil
}

// Describe implements capability.Describer.
func (m *method) Describe() string { return m.doc }

func noFee(*settings.Store, float64) (float64, error) { return 0, nil }

func percentFee(key string, def float64) feeFunc {
	return func(s *settings.Store, amount float64) (float64, error) {
		pct, err := s.Float(key, def)
		if err != nil {
			return 0, err
		}
		return amount * pct / 100, nil
	}
}

func flatFee(key string, def float64) feeFunc {
	return func(s *settings.Store, _ float64) (float64, error) {
		return s.Float(key, def)
	}
}

// Definitions returns the built-in payment methods bound to res.
func Definitions(res strategies.Resources) []strategies.Definition[Processor] {
	methods := []*method{
		{key: UPI, label: "UPI", doc: "Unified Payments Interface, no fee", fee: noFee},
		{key: Card, label: "Credit Card", doc: "Credit card, percentage fee from " + settings.KeyCardFeePercent,
			fee: percentFee(settings.KeyCardFeePercent, 2)},
		{key: NetBanking, label: "Net Banking", doc: "Net banking, flat fee from " + settings.KeyNetBankingFlatFee,
			fee: flatFee(settings.KeyNetBankingFlatFee, 10)},
	}

	defs := make([]strategies.Definition[Processor], 0, len(methods))
	for _, m := range methods {
		tmpl := *m
		tmpl.res = res
		defs = append(defs, strategies.Definition[Processor]{
			Key: tmpl.key,
			Doc: tmpl.doc,
			Factory: func() Processor {
				fresh := tmpl
				return &fresh
			},
		})
	}
	return defs
}

func symbol(currency string) string {
	if currency == "INR" {
		return "Rs."
	}
	return currency + " "
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
