// Package registry maps discriminators to factories so callers can ask for
// "which" object without knowing "how" it is built.
//
// A registry is populated once at composition time and read afterwards:
//
//	payments := registry.New[string, payment.Processor](
//	    registry.WithName[string]("payment"),
//	    registry.WithNormalizer(registry.FoldCase),
//	)
//	payments.MustRegister("upi", func() payment.Processor { return payment.NewUPI(res) })
//	payments.Seal()
//
//	p, err := payments.Create("upi")
//
// Register fails with DUPLICATE_KEY for an existing key and the first
// registration stays in place. Create fails with UNKNOWN_KEY for keys that
// were never registered or have been unregistered, and with
// CONTRACT_VIOLATION when a factory produces nil. Callers only ever see the
// created values, never the factories.
package registry
