package ledger

import "time"

// Entry records one side effect performed by a strategy.
type Entry struct {
	ID string `json:"id"`
	// Family is the strategy family, e.g. "payment" or "notify".
	Family string `json:"family"`
	// Key is the discriminator the strategy was registered under.
	Key      string    `json:"key"`
	Summary  string    `json:"summary"`
	Amount   float64   `json:"amount,omitempty"`
	Currency string    `json:"currency,omitempty"`
	At       time.Time `json:"at"`
	// Props holds family-specific details.
	Props map[string]any `json:"props,omitempty"`
}

// Family constants.
const (
	FamilyPayment = "payment"
	FamilyNotify  = "notify"
	FamilyBonus   = "bonus"
)
