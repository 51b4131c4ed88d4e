package routing

import (
	"fmt"

	"github.com/Amber-Finance/amber-strategy-engine/strategy/leverage"
)

// Venue is the classification of a quote's execution venue.
type Venue string

const (
	// VenueDuality is the only venue loop swaps are allowed to execute on.
	VenueDuality Venue = "duality"
	// VenueUnknown marks any quote touching a different or additional venue.
	VenueUnknown Venue = "unknown"
)

// RequiredVenueName is the oracle identifier of the allowed venue.
const RequiredVenueName = "neutron-duality"

/*
AnalyzeVenues classifies a normalized quote by execution venue.

The policy is strict: the quote is allowed only when the venue set is
non-empty and every referenced venue is RequiredVenueName. A quote that
mentions any other venue anywhere (top-level list or per-operation) is
rejected regardless of ordering, so the classification cannot flip with
response field order. The discovered venue names are returned for
diagnostics.
*/
func AnalyzeVenues(q *QuoteResponse) (Venue, []string) {
	names := make([]string, 0, len(q.Venues))
	for _, v := range q.Venues {
		names = append(names, v.Name)
	}
	if len(names) == 0 {
		return VenueUnknown, names
	}
	for _, name := range names {
		if name != RequiredVenueName {
			return VenueUnknown, names
		}
	}
	return VenueDuality, names
}

// RequireDirectVenue rejects quotes that do not execute exclusively on the
// allowed venue. Cross-venue and cross-chain routes must never be silently
// accepted, so the discovered venue set is logged before the error surfaces.
func RequireDirectVenue(q *QuoteResponse) error {
	venue, names := AnalyzeVenues(q)
	if venue == VenueDuality {
		return nil
	}
	log.Warn().
		Strs("venues", names).
		Str("required", RequiredVenueName).
		Msg("Quote rejected: disallowed venue set")
	return fmt.Errorf("%w: venues %v", leverage.ErrNoDirectVenueRoute, names)
}

// ExtractSwapOperations returns the per-hop swap operations of a quote.
// Only the first top-level operation is inspected; see
// NormalizeQuoteResponse for why deeper operations are ignored.
func ExtractSwapOperations(q *QuoteResponse) []SwapOperation {
	return q.Operations
}
