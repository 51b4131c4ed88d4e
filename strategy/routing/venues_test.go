package routing

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/zeebo/assert"

	"github.com/Amber-Finance/amber-strategy-engine/strategy/leverage"
)

func TestAnalyzeVenuesStrictPolicy(t *testing.T) {
	// Only the allowed venue, everywhere: accepted.
	q := &QuoteResponse{Venues: []SwapVenue{{Name: RequiredVenueName}}}
	venue, names := AnalyzeVenues(q)
	assert.Equal(t, VenueDuality, venue)
	assert.Equal(t, 1, len(names))

	// Any foreign venue anywhere poisons the whole quote.
	q = &QuoteResponse{Venues: []SwapVenue{
		{Name: RequiredVenueName},
		{Name: "osmosis-poolmanager"},
	}}
	venue, _ = AnalyzeVenues(q)
	assert.Equal(t, VenueUnknown, venue)

	// Ordering must not matter.
	q = &QuoteResponse{Venues: []SwapVenue{
		{Name: "osmosis-poolmanager"},
		{Name: RequiredVenueName},
	}}
	venue, _ = AnalyzeVenues(q)
	assert.Equal(t, VenueUnknown, venue)

	// No venues at all is not a pass.
	venue, _ = AnalyzeVenues(&QuoteResponse{})
	assert.Equal(t, VenueUnknown, venue)
}

func TestRequireDirectVenue(t *testing.T) {
	q := &QuoteResponse{Venues: []SwapVenue{{Name: RequiredVenueName}}}
	assert.NoError(t, RequireDirectVenue(q))

	q = &QuoteResponse{Venues: []SwapVenue{{Name: "astroport"}}}
	err := RequireDirectVenue(q)
	assert.True(t, errors.Is(err, leverage.ErrNoDirectVenueRoute))
}

func TestVenuePolicyStableAcrossFieldCasing(t *testing.T) {
	// The same mixed-venue route must classify identically whether the
	// oracle speaks snake_case or camelCase.
	snake := `{
		"amount_out": "1",
		"swap_venues": [{"name": "neutron-duality"}],
		"operations": [
			{"swap": {"swap_in": {"swap_venue": {"name": "osmosis-poolmanager"}}}}
		]
	}`
	camel := `{
		"amountOut": "1",
		"swapVenues": [{"name": "neutron-duality"}],
		"operations": [
			{"swap": {"swapIn": {"swapVenue": {"name": "osmosis-poolmanager"}}}}
		]
	}`

	qs, err := NormalizeQuoteResponse(json.RawMessage(snake))
	assert.NoError(t, err)
	qc, err := NormalizeQuoteResponse(json.RawMessage(camel))
	assert.NoError(t, err)

	vs, _ := AnalyzeVenues(qs)
	vc, _ := AnalyzeVenues(qc)
	assert.Equal(t, VenueUnknown, vs)
	assert.Equal(t, vs, vc)

	assert.Error(t, RequireDirectVenue(qs))
	assert.Error(t, RequireDirectVenue(qc))
}

func TestExtractSwapOperations(t *testing.T) {
	q, err := NormalizeQuoteResponse(json.RawMessage(snakeQuote))
	assert.NoError(t, err)
	ops := ExtractSwapOperations(q)
	assert.Equal(t, 1, len(ops))
	assert.Equal(t, "42", ops[0].Pool)
}
