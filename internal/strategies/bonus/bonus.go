// Package bonus implements the bonus calculator family: one strategy per
// employee role, each applying that role's rate to a salary.
package bonus

import (
	"context"
	"fmt"
	"math"

	"github.com/dejo1307/dispatchkit/internal/capability"
	"github.com/dejo1307/dispatchkit/internal/errors"
	"github.com/dejo1307/dispatchkit/internal/ledger"
	"github.com/dejo1307/dispatchkit/internal/settings"
	"github.com/dejo1307/dispatchkit/internal/strategies"
)

// Role keys.
const (
	Developer = "developer"
	Manager   = "manager"
	Tester    = "tester"
	HR        = "hr"
)

// Employee is the bonus payload.
type Employee struct {
	Name   string  `json:"name" validate:"required"`
	Salary float64 `json:"salary" validate:"gt=0"`
}

// Award is the computed bonus.
type Award struct {
	Role   string  `json:"role"`
	Name   string  `json:"name"`
	Salary float64 `json:"salary"`
	Rate   float64 `json:"rate"`
	Bonus  float64 `json:"bonus"`
}

// Calculator is the capability every role implements.
type Calculator = capability.Executor[Employee, Award]

type calculator struct {
	res         strategies.Resources
	role        string
	defaultRate float64
}

// Execute computes the bonus for e. It has no side effects.
func (c *calculator) Execute(_ context.Context, e Employee) (Award, error) {
	if err := strategies.Validate(ledger.FamilyBonus, c.role, e); err != nil {
		return Award{}, err
	}

	key := settings.BonusRateKey(c.role)
	rate, err := c.res.Settings.Get().Float(key, c.defaultRate)
	if err != nil {
		return Award{}, err
	}
	if rate < 0 || math.IsNaN(rate) {
		return Award{}, errors.NewWithContext(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("bonus/%s: %s must be a non-negative number", c.role, key),
			map[string]any{"key": key, "value": rate})
	}

	amount := strategies.Round2(e.Salary * rate)
	if err := strategies.RequireFinite(ledger.FamilyBonus, c.role, "bonus", amount); err != nil {
		return Award{}, err
	}

	return Award{
		Role:   c.role,
		Name:   e.Name,
		Salary: e.Salary,
		Rate:   rate,
		Bonus:  amount,
	}, nil
}

// Describe implements capability.Describer.
func (c *calculator) Describe() string {
	return fmt.Sprintf("%s bonus, rate from %s (default %g)", c.role, settings.BonusRateKey(c.role), c.defaultRate)
}

// DefaultRates maps each built-in role to its fallback rate.
var DefaultRates = map[string]float64{
	Developer: 0.20,
	Manager:   0.30,
	Tester:    0.15,
	HR:        0.18,
}

// Definitions returns the built-in role calculators bound to res.
func Definitions(res strategies.Resources) []strategies.Definition[Calculator] {
	roles := []string{Developer, Manager, Tester, HR}
	defs := make([]strategies.Definition[Calculator], 0, len(roles))
	for _, role := range roles {
		c := calculator{res: res, role: role, defaultRate: DefaultRates[role]}
		defs = append(defs, strategies.Definition[Calculator]{
			Key: role,
			Doc: c.Describe(),
			Factory: func() Calculator {
				fresh := c
				return &fresh
			},
		})
	}
	return defs
}
