// Package errors provides the structured error taxonomy shared by the
// registry, singleton managers, dispatcher and strategies.
//
// Every error carries an ErrorCode so callers can branch on the kind of
// failure without string matching:
//
//	_, err := reg.Create("paypal")
//	if errors.HasCode(err, errors.ErrCodeUnknownKey) {
//	    // not registered
//	}
//
// The exported sentinels (ErrUnknownKey, ErrDuplicateKey, ...) match any
// StructuredError with the same code through the standard errors.Is.
package errors
