package leverage

import "errors"

// Domain errors surfaced by the leverage calculations and the routing layer.
// They are sentinel values so callers can match them with errors.Is after
// wrapping with fmt.Errorf("...: %w", err).
var (
	// ErrInvalidPosition means equity <= 0. The position cannot be managed
	// and no leverage change may be computed for it.
	ErrInvalidPosition = errors.New("invalid position: equity must be positive")

	// ErrInvalidTarget means the requested target leverage is below the
	// minimum loop leverage. Rejected before any network call.
	ErrInvalidTarget = errors.New("invalid target: leverage below minimum")

	// ErrNoDirectVenueRoute means the quote resolved through a venue other
	// than the single allowed on-chain venue, or through a cross-chain path.
	ErrNoDirectVenueRoute = errors.New("no direct venue route available")

	// ErrNoRouteFound means the reverse search exhausted without any usable
	// candidate.
	ErrNoRouteFound = errors.New("no route found for the requested amount")
)
