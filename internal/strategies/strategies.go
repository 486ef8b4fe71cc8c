// Package strategies holds what the concrete strategy families share: the
// managed resources they read at execution time, payload validation, and the
// Definition type used to register them.
package strategies

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dejo1307/dispatchkit/internal/errors"
	"github.com/dejo1307/dispatchkit/internal/ledger"
	"github.com/dejo1307/dispatchkit/internal/registry"
	"github.com/dejo1307/dispatchkit/internal/settings"
	"github.com/dejo1307/dispatchkit/internal/singleton"
)

// Resources gives strategies access to the process-wide managed resources.
// Strategies resolve the live instance on every call and never keep copies.
type Resources struct {
	Settings *singleton.Manager[*settings.Store]
	Ledger   *singleton.Manager[*ledger.Ledger]
}

// DefaultResources returns the process-wide settings and ledger managers.
func DefaultResources() Resources {
	return Resources{
		Settings: settings.Manager(),
		Ledger:   ledger.Manager(),
	}
}

// Definition is one strategy ready to be registered.
type Definition[T any] struct {
	Key     string
	Doc     string
	Factory registry.Factory[T]
}

// Register adds every definition to reg.
func Register[T any](reg *registry.Registry[string, T], defs []Definition[T]) error {
	for _, d := range defs {
		if err := reg.Register(d.Key, d.Factory, registry.WithDoc(d.Doc)); err != nil {
			return err
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks payload against its `validate` struct tags and reports
// failures as INVALID_REQUEST.
func Validate(family, key string, payload any) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(errors.ErrCodeInvalidRequest, fmt.Sprintf("%s/%s: invalid payload", family, key), err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, describe(fe))
	}
	return errors.NewWithContext(errors.ErrCodeInvalidRequest,
		fmt.Sprintf("%s/%s: invalid payload: %s", family, key, strings.Join(fields, "; ")),
		map[string]any{"family": family, "key": key})
}

// ValidateVar checks a single value against tag.
func ValidateVar(family, key, field string, value any, tag string) error {
	if err := validate.Var(value, tag); err != nil {
		return errors.NewWithContext(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("%s/%s: %s must satisfy %q", family, key, field, tag),
			map[string]any{"family": family, "key": key, "field": field})
	}
	return nil
}

func describe(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
	return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
}

// RequireFinite reports INVALID_REQUEST when v is NaN or infinite.
func RequireFinite(family, key, field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.NewWithContext(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("%s/%s: %s is not a finite number", family, key, field),
			map[string]any{"family": family, "key": key, "field": field})
	}
	return nil
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
