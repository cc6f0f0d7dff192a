package engine

import "errors"

var (
	// ErrTenantRequired rejects any operation without an explicit tenant.
	// There is no fallback tenant; substituting one would let operations
	// cross tenant boundaries silently.
	ErrTenantRequired = errors.New("engine: tenant id required")

	// ErrInvalidIntent covers a missing entity key or unknown operation kind.
	ErrInvalidIntent = errors.New("engine: invalid operation intent")

	// ErrInvalidPayload rejects a malformed payload at intake, before any
	// intent is recorded or index call made.
	ErrInvalidPayload = errors.New("engine: invalid payload")

	// ErrUnknownToken means no operation with that token exists for the
	// tenant. A token minted for another tenant is indistinguishable from a
	// missing one on purpose: lookups never cross the tenant filter.
	ErrUnknownToken = errors.New("engine: unknown token")
)
