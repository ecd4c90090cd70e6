package dnsprobe

import "errors"

// Sentinel errors for probe operations.
var (
	ErrNoResolver   = errors.New("dnsprobe: no resolver configured")
	ErrLookupFailed = errors.New("dnsprobe: dns lookup failed")
)
