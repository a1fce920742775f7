package licensing

import "errors"

// Expected, recoverable-by-caller conditions. The presentation layer maps
// these onto transport status codes; unexpected storage failures propagate
// unchanged and must not be confused with them.
var (
	// ErrUnknownPool is returned when no license pool exists for a
	// (tenant, product) pair.
	ErrUnknownPool = errors.New("no license pool for tenant/product")
	// ErrUnknownGrant is returned when a grant id does not exist.
	ErrUnknownGrant = errors.New("grant not found")
	// ErrCapacityExceeded is returned when every matching pool is at its
	// effective capacity. Retryable by caller policy, never retried here.
	ErrCapacityExceeded = errors.New("license capacity exceeded")
	// ErrAlreadyReturned is returned on a duplicate return of the same grant.
	ErrAlreadyReturned = errors.New("grant already returned")
	// ErrInvalidConfiguration is returned when a provisioning request fails
	// pool invariant validation.
	ErrInvalidConfiguration = errors.New("invalid pool configuration")
	// ErrUnknownTenant is returned when a tenant id does not resolve.
	ErrUnknownTenant = errors.New("tenant not found")
	// ErrUnknownVendor is returned when a vendor id does not resolve.
	ErrUnknownVendor = errors.New("vendor not found")
)
