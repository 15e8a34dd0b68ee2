package manager

import (
	"sync"
	"time"

	"github.com/vrachnos/steer/internal/model"
	"github.com/vrachnos/steer/internal/rule"
)

// Instance is one running strategy with its compiled rule and runtime
// counters. Only the manager mutates it.
type Instance struct {
	lock sync.RWMutex

	strategy model.Strategy
	rule     *rule.CompiledRule

	status        model.StrategyStatus
	executions    int
	errors        int
	lastExecution time.Time
	// active holds the unexpired signals of the strategy, newest last.
	active []model.TradingSignal
	// queued marks a pending execution queue slot. One slot per
	// strategy at a time keeps executions of the same id serial.
	queued bool
}

// State is the persisted part of an instance, restored across restarts.
type State struct {
	Status        model.StrategyStatus `json:"status"`
	Executions    int                  `json:"executions"`
	Errors        int                  `json:"errors"`
	LastExecution time.Time            `json:"last_execution"`
}

// Info is a read-only snapshot of an instance for callers.
type Info struct {
	Strategy      model.Strategy       `json:"strategy"`
	Status        model.StrategyStatus `json:"status"`
	Executions    int                  `json:"executions"`
	Errors        int                  `json:"errors"`
	ErrorRate     float64              `json:"error_rate"`
	LastExecution time.Time            `json:"last_execution"`
	ActiveSignals int                  `json:"active_signals"`
}

func newInstance(strategy model.Strategy, r *rule.CompiledRule) *Instance {
	return &Instance{
		strategy: strategy,
		rule:     r,
		status:   model.StrategyLoaded,
	}
}

func (i *Instance) Status() model.StrategyStatus {
	i.lock.RLock()
	defer i.lock.RUnlock()
	return i.status
}

func (i *Instance) setStatus(status model.StrategyStatus) {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.status = status
}

// tryEnqueue claims the instance's single queue slot.
func (i *Instance) tryEnqueue() bool {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.queued || i.status != model.StrategyActive {
		return false
	}
	i.queued = true
	return true
}

func (i *Instance) release() {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.queued = false
}

// recordExecution updates the counters after one pipeline run.
func (i *Instance) recordExecution(ok bool, at time.Time) {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.executions++
	if !ok {
		i.errors++
	}
	i.lastExecution = at
}

// errorRate is errors over executions, 0 before the first run.
func (i *Instance) errorRate() float64 {
	i.lock.RLock()
	defer i.lock.RUnlock()
	if i.executions == 0 {
		return 0
	}
	return float64(i.errors) / float64(i.executions)
}

// addSignals appends the signals, evicting the oldest beyond max.
func (i *Instance) addSignals(signals []model.TradingSignal, max int) {
	if len(signals) == 0 {
		return
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	i.active = append(i.active, signals...)
	if max > 0 && len(i.active) > max {
		i.active = i.active[len(i.active)-max:]
	}
}

// drainSignals empties the active list, dropping already expired
// signals, and returns the rest.
func (i *Instance) drainSignals(now time.Time) []model.TradingSignal {
	i.lock.Lock()
	defer i.lock.Unlock()
	var live []model.TradingSignal
	for _, s := range i.active {
		if s.IsValid(now) {
			live = append(live, s)
		}
	}
	i.active = nil
	return live
}

// prune drops expired signals from the active list.
func (i *Instance) prune(now time.Time) {
	i.lock.Lock()
	defer i.lock.Unlock()
	live := i.active[:0]
	for _, s := range i.active {
		if s.IsValid(now) {
			live = append(live, s)
		}
	}
	i.active = live
}

func (i *Instance) info() Info {
	i.lock.RLock()
	defer i.lock.RUnlock()
	rate := 0.0
	if i.executions > 0 {
		rate = float64(i.errors) / float64(i.executions)
	}
	return Info{
		Strategy:      i.strategy,
		Status:        i.status,
		Executions:    i.executions,
		Errors:        i.errors,
		ErrorRate:     rate,
		LastExecution: i.lastExecution,
		ActiveSignals: len(i.active),
	}
}

func (i *Instance) state() State {
	i.lock.RLock()
	defer i.lock.RUnlock()
	return State{
		Status:        i.status,
		Executions:    i.executions,
		Errors:        i.errors,
		LastExecution: i.lastExecution,
	}
}

// restore re-applies persisted counters. Runtime statuses collapse back
// to loaded, a restart never resumes scheduling on its own.
func (i *Instance) restore(s State) {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.executions = s.Executions
	i.errors = s.Errors
	i.lastExecution = s.LastExecution
	if s.Status == model.StrategyStopped || s.Status == model.StrategyError {
		i.status = s.Status
	}
}
