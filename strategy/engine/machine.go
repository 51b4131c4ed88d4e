package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Amber-Finance/amber-strategy-engine/strategy/models"
)

// State is the quote lifecycle phase of one position.
type State int

const (
	// StateIdle - no computation pending; a plan or error may be held from
	// the last cycle.
	StateIdle State = iota
	// StateDebouncing - input changed recently, waiting for it to settle.
	StateDebouncing
	// StateComputing - the debounce elapsed and a plan is being built.
	StateComputing
	// StateComputed - a fresh plan is held and ready to submit.
	StateComputed
	// StateSubmitting - the held plan was handed off for broadcast.
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDebouncing:
		return "debouncing"
	case StateComputing:
		return "computing"
	case StateComputed:
		return "computed"
	case StateSubmitting:
		return "submitting"
	default:
		return "unknown"
	}
}

// DefaultDebounce is how long input must stay unchanged before a plan is
// computed. Slider-style input emits many intermediate values; quoting each
// one would hammer the routing oracle for plans nobody submits.
const DefaultDebounce = 2 * time.Second

// Machine sequences plan computation for a single position. Every input
// change invalidates whatever was in flight: results are tagged with the
// token current at computation start and discarded if the token has moved
// on by delivery time, so a held plan always reflects the latest input.
type Machine struct {
	planner        *Planner
	debounce       time.Duration
	computeTimeout time.Duration

	mu    sync.Mutex
	state State
	token uint64
	timer *time.Timer
	input models.PlanRequest
	plan  *models.PlanResponse
	err   error
}

// NewMachine creates a machine in StateIdle.
func NewMachine(planner *Planner, debounce time.Duration) *Machine {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Machine{
		planner:        planner,
		debounce:       debounce,
		computeTimeout: 30 * time.Second,
	}
}

// SetTarget records a new input and restarts the debounce window. Any held
// plan and any in-flight computation become stale immediately.
func (m *Machine) SetTarget(req models.PlanRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token++
	m.input = req
	m.plan = nil
	m.err = nil
	m.state = StateDebouncing

	token := m.token
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.debounce, func() {
		m.debounceElapsed(token)
	})
}

func (m *Machine) debounceElapsed(token uint64) {
	m.mu.Lock()
	if token != m.token || m.state != StateDebouncing {
		m.mu.Unlock()
		return
	}
	m.state = StateComputing
	req := m.input
	timeout := m.computeTimeout
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	plan, err := m.planner.BuildPlan(ctx, req)
	m.deliver(token, plan, err)
}

// deliver applies a computation result unless the input moved on while it
// was in flight.
func (m *Machine) deliver(token uint64, plan *models.PlanResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token != m.token {
		log.Debug().Uint64("token", token).Uint64("current", m.token).Msg("Discarding stale plan")
		return
	}

	m.state = StateIdle
	if err != nil {
		m.err = err
		log.Warn().Err(err).Msg("Plan computation failed")
		return
	}
	m.plan = plan
	m.state = StateComputed
}

// Submit transitions a held plan into StateSubmitting and returns it. Only
// valid in StateComputed; submitting a failed or stale cycle is an error.
func (m *Machine) Submit() (*models.PlanResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateComputed {
		return nil, fmt.Errorf("cannot submit in state %s", m.state)
	}
	if m.plan == nil || !m.plan.Success {
		return nil, fmt.Errorf("no valid plan to submit")
	}
	m.state = StateSubmitting
	return m.plan, nil
}

// Resolve completes a submission cycle. A successful broadcast returns the
// machine to idle and drops the consumed plan; a failed one keeps the plan
// and returns to StateComputed with the broadcast error recorded, so the
// client can retry the same plan. A no-op outside StateSubmitting so late
// broadcast callbacks are harmless.
func (m *Machine) Resolve(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateSubmitting {
		return
	}
	if err != nil {
		m.err = err
		m.state = StateComputed
		log.Warn().Err(err).Msg("Broadcast failed, keeping computed plan")
		return
	}
	m.state = StateIdle
	m.plan = nil
	m.err = nil
}

// State returns the current lifecycle phase.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Plan returns the held plan, or nil outside StateComputed/StateSubmitting.
func (m *Machine) Plan() *models.PlanResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plan
}

// Err returns the failure of the last completed cycle, if any.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Stop cancels any pending debounce timer.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.token++
}
