package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcutil/bech32"

	"github.com/Amber-Finance/amber-strategy-engine/strategy/engine"
	"github.com/Amber-Finance/amber-strategy-engine/strategy/leverage"
	"github.com/Amber-Finance/amber-strategy-engine/strategy/models"
)

// Handlers implements the strategy API endpoints.
type Handlers struct {
	planner       *engine.Planner
	sessions      *engine.Sessions
	snapshots     engine.SnapshotSource
	addressPrefix string
}

// NewHandlers wires the API handlers. addressPrefix is the expected bech32
// prefix of account addresses, e.g. "neutron".
func NewHandlers(planner *engine.Planner, sessions *engine.Sessions, snapshots engine.SnapshotSource, addressPrefix string) *Handlers {
	return &Handlers{
		planner:       planner,
		sessions:      sessions,
		snapshots:     snapshots,
		addressPrefix: addressPrefix,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		Logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// Plan handles POST /v1/strategy/plan
func (h *Handlers) Plan(w http.ResponseWriter, r *http.Request) {
	var req models.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if _, err := h.validateAddress(req.Address); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid address: %v", err))
		return
	}

	resp, err := h.planner.BuildPlan(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, leverage.ErrInvalidPosition),
			errors.Is(err, leverage.ErrInvalidTarget):
			status = http.StatusBadRequest
		case errors.Is(err, leverage.ErrNoRouteFound),
			errors.Is(err, leverage.ErrNoDirectVenueRoute):
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Validate handles POST /v1/strategy/validate
func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	resp, err := h.planner.Validate(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// SessionTarget handles POST /v1/session/target. The target is recorded on
// the position's machine; the plan is computed asynchronously once the
// debounce window elapses and is readable via SessionState.
func (h *Handlers) SessionTarget(w http.ResponseWriter, r *http.Request) {
	var req models.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if _, err := h.validateAddress(req.Address); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid address: %v", err))
		return
	}

	m := h.sessions.Get(req.Address, req.AccountID)
	m.SetTarget(req)

	writeJSON(w, http.StatusAccepted, models.SessionStateResponse{State: m.State().String()})
}

// SessionState handles GET /v1/session/state?address=...&account_id=...
func (h *Handlers) SessionState(w http.ResponseWriter, r *http.Request) {
	m, ok := h.sessions.Lookup(r.URL.Query().Get("address"), r.URL.Query().Get("account_id"))
	if !ok {
		writeError(w, http.StatusNotFound, "no session for this position")
		return
	}

	resp := models.SessionStateResponse{
		State: m.State().String(),
		Plan:  m.Plan(),
	}
	if err := m.Err(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// SessionSubmit handles POST /v1/session/submit. Only a computed,
// successful plan can be handed off for broadcast.
func (h *Handlers) SessionSubmit(w http.ResponseWriter, r *http.Request) {
	var ref models.SessionRef
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	m, ok := h.sessions.Lookup(ref.Address, ref.AccountID)
	if !ok {
		writeError(w, http.StatusNotFound, "no session for this position")
		return
	}
	plan, err := m.Submit()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// SessionResolve handles POST /v1/session/resolve, reporting the broadcast
// outcome back to the machine. A failed broadcast keeps the plan available
// for resubmission.
func (h *Handlers) SessionResolve(w http.ResponseWriter, r *http.Request) {
	var req models.SessionResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	m, ok := h.sessions.Lookup(req.Address, req.AccountID)
	if !ok {
		writeError(w, http.StatusNotFound, "no session for this position")
		return
	}

	var broadcastErr error
	if req.Error != "" {
		broadcastErr = errors.New(req.Error)
	}
	m.Resolve(broadcastErr)

	writeJSON(w, http.StatusOK, models.SessionStateResponse{State: m.State().String()})
}

// Markets handles GET /v1/markets
func (h *Handlers) Markets(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Current()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	resp := models.MarketsResponse{
		Markets:   make([]models.MarketInfo, 0, len(snap.Assets)),
		FetchedAt: snap.FetchedAt.UTC().Format(time.RFC3339),
	}
	for _, a := range snap.Assets {
		resp.Markets = append(resp.Markets, models.MarketInfo{
			Denom:                a.Denom,
			Symbol:               a.Symbol,
			Price:                a.Price.String(),
			MaxLoanToValue:       a.MaxLoanToValue.String(),
			LiquidationThreshold: a.LiquidationThreshold.String(),
			BorrowRate:           a.BorrowRate.String(),
			SupplyRate:           a.SupplyRate.String(),
			MaxLeverage:          h.planner.MaxLeverage(a.MaxLoanToValue).String(),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ready reports readiness once the first market snapshot has been fetched.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if _, err := h.snapshots.Current(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "market data not yet available")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// validateAddress validates that an address is a valid bech32 address with
// the configured prefix. Returns the prefix if valid.
func (h *Handlers) validateAddress(address string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("address is empty")
	}

	// Check minimum length (prefix + "1" + data + checksum)
	if len(address) < 10 {
		return "", fmt.Errorf("address too short (minimum 10 characters)")
	}

	// Check for separator
	sepIdx := strings.LastIndex(address, "1")
	if sepIdx < 1 {
		return "", fmt.Errorf("missing bech32 separator '1'")
	}

	prefix := address[:sepIdx]
	if prefix == "" {
		return "", fmt.Errorf("empty bech32 prefix")
	}

	// Try to decode as bech32 - this validates the checksum
	decodedPrefix, data, err := bech32.Decode(address)
	if err != nil {
		return "", fmt.Errorf("invalid bech32 address (checksum failed): %w", err)
	}
	if decodedPrefix != prefix {
		return "", fmt.Errorf("bech32 prefix mismatch")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty address data")
	}

	if h.addressPrefix != "" && decodedPrefix != h.addressPrefix {
		return "", fmt.Errorf("expected %s address, got prefix %s", h.addressPrefix, decodedPrefix)
	}

	return decodedPrefix, nil
}
