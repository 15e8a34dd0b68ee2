// Package manager schedules strategies and routes their signals through
// allocation and risk gating towards execution.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vrachnos/steer/internal/allocate"
	"github.com/vrachnos/steer/internal/api"
	"github.com/vrachnos/steer/internal/evaluate"
	"github.com/vrachnos/steer/internal/metrics"
	"github.com/vrachnos/steer/internal/model"
	"github.com/vrachnos/steer/internal/risk"
	"github.com/vrachnos/steer/internal/rule"
	"github.com/vrachnos/steer/internal/signal"
	"github.com/vrachnos/steer/internal/storage"
)

var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrNotActive       = errors.New("strategy not active")
	ErrCeiling         = errors.New("concurrency ceiling reached")
	ErrRiskRejected    = errors.New("strategy risk unacceptable")
)

const stateDir = "strategies"

// Config tunes the orchestration loops.
type Config struct {
	// MaxConcurrent caps the number of active strategy instances.
	MaxConcurrent int `json:"max_concurrent"`
	// QueueSize bounds the execution queue. Puts block when full.
	QueueSize int `json:"queue_size"`
	// SignalQueueSize bounds the signal queue. Puts block when full.
	SignalQueueSize int `json:"signal_queue_size"`
	// BatchSize is the number of strategies one scheduler pass picks up.
	BatchSize int `json:"batch_size"`
	// PollTimeout bounds how long a scheduler pass waits for work.
	PollTimeout time.Duration `json:"poll_timeout"`
	// ExecTimeout is the hard budget for one full strategy execution.
	ExecTimeout time.Duration `json:"exec_timeout"`
	// HealthInterval is the period of the health check loop.
	HealthInterval time.Duration `json:"health_interval"`
	// ErrorRateThreshold auto-pauses an instance above this error rate.
	ErrorRateThreshold float64 `json:"error_rate_threshold"`
	// MaxActiveSignals bounds the per-instance active signal list.
	MaxActiveSignals int `json:"max_active_signals"`

	Evaluator evaluate.Config `json:"evaluator"`
	Generator signal.Config   `json:"generator"`
	Allocator allocate.Config `json:"allocator"`
	Limits    risk.Limits     `json:"limits"`
}

// NewConfig returns the default orchestration settings.
func NewConfig() Config {
	return Config{
		MaxConcurrent:      10,
		QueueSize:          100,
		SignalQueueSize:    256,
		BatchSize:          8,
		PollTimeout:        200 * time.Millisecond,
		ExecTimeout:        30 * time.Second,
		HealthInterval:     30 * time.Second,
		ErrorRateThreshold: 0.1,
		MaxActiveSignals:   16,
		Evaluator:          evaluate.NewConfig(),
		Generator:          signal.NewConfig(),
		Allocator:          allocate.NewConfig(),
		Limits:             risk.NewLimits(),
	}
}

// Manager owns the strategy registry and the decision pipeline wiring.
type Manager struct {
	cfg Config

	evaluator *evaluate.Evaluator
	generator *signal.Generator
	allocator *allocate.Allocator
	risk      *risk.Manager

	market    api.MarketData
	portfolio api.Portfolio
	execution api.Execution
	breaker   *gobreaker.CircuitBreaker
	store     storage.Persistence

	lock      sync.RWMutex
	instances map[string]*Instance

	execQueue   chan string
	signalQueue chan model.TradingSignal
	sem         *semaphore.Weighted

	now    func() time.Time
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires the pipeline components behind one manager.
// The store may be nil, instance state is then not persisted.
func New(cfg Config, market api.MarketData, portfolio api.Portfolio, execution api.Execution, indicators api.IndicatorService, store storage.Persistence) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.SignalQueueSize <= 0 {
		cfg.SignalQueueSize = 256
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 8
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 200 * time.Millisecond
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = 30 * time.Second
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 30 * time.Second
	}
	if cfg.ErrorRateThreshold <= 0 {
		cfg.ErrorRateThreshold = 0.1
	}
	if cfg.MaxActiveSignals <= 0 {
		cfg.MaxActiveSignals = 16
	}
	if store == nil {
		store = storage.NewVoidStorage()
	}
	riskManager := risk.New(cfg.Limits, nil)
	return &Manager{
		cfg:       cfg,
		evaluator: evaluate.New(cfg.Evaluator, indicators),
		generator: signal.New(cfg.Generator, market),
		allocator: allocate.New(cfg.Allocator, riskManager.History()),
		risk:      riskManager,
		market:    market,
		portfolio: portfolio,
		execution: execution,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "execution",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		store:       store,
		instances:   make(map[string]*Instance),
		execQueue:   make(chan string, cfg.QueueSize),
		signalQueue: make(chan model.TradingSignal, cfg.SignalQueueSize),
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		now:         time.Now,
	}
}

// WithClock overrides the manager clock, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Run starts the scheduling, signal and health loops.
func (m *Manager) Run(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(3)
	go m.schedule(ctx)
	go m.route(ctx)
	go m.health(ctx)
	log.Info().
		Int("max_concurrent", m.cfg.MaxConcurrent).
		Int("queue_size", m.cfg.QueueSize).
		Msg("manager running")
}

// Shutdown stops the loops, waits for in-flight executions and persists
// all instance state.
func (m *Manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.lock.RLock()
	defer m.lock.RUnlock()
	for id, instance := range m.instances {
		m.persist(id, instance)
	}
	log.Info().Msg("manager stopped")
}

// LoadStrategy compiles the strategy rules and registers an instance.
// Previously persisted counters are restored on a best effort basis.
func (m *Manager) LoadStrategy(strategy model.Strategy) error {
	compiled, err := rule.Compile(strategy.Rules, strategy.ID)
	if err != nil {
		return fmt.Errorf("load %s: %w", strategy.ID, err)
	}
	instance := newInstance(strategy, compiled)
	var persisted State
	if err := m.store.Load(storage.Key{Dir: stateDir, Label: strategy.ID}, &persisted); err == nil {
		instance.restore(persisted)
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.instances[strategy.ID]; ok {
		return fmt.Errorf("load %s: already loaded", strategy.ID)
	}
	m.instances[strategy.ID] = instance
	log.Info().
		Str("strategy", strategy.ID).
		Str("symbol", strategy.Symbol).
		Dur("interval", strategy.Interval).
		Msg("strategy loaded")
	return nil
}

// StartStrategy activates the instance and schedules its first run.
// It is refused at the concurrency ceiling and on unacceptable risk.
func (m *Manager) StartStrategy(ctx context.Context, id string) error {
	instance, err := m.instance(id)
	if err != nil {
		return err
	}
	if m.activeCount() >= m.cfg.MaxConcurrent {
		return fmt.Errorf("start %s: %w", id, ErrCeiling)
	}
	state, err := m.portfolio.State(ctx)
	if err != nil {
		return fmt.Errorf("start %s: portfolio state: %w", id, err)
	}
	assessment := m.risk.AssessStrategy(instance.strategy, state)
	if !assessment.Acceptable {
		return fmt.Errorf("start %s: %w: %s", id, ErrRiskRejected, assessment.Reason)
	}
	instance.setStatus(model.StrategyActive)
	m.persist(id, instance)
	m.enqueue(ctx, instance, id)
	log.Info().Str("strategy", id).Msg("strategy started")
	return nil
}

// StopStrategy stops the instance. Pending queue entries become no-ops,
// critical active signals are resolved through allocation and risk
// before the rest is discarded.
func (m *Manager) StopStrategy(ctx context.Context, id string) error {
	instance, err := m.instance(id)
	if err != nil {
		return err
	}
	instance.setStatus(model.StrategyStopped)
	for _, s := range instance.drainSignals(m.now()) {
		if s.Type == model.StopLoss || s.Type == model.TakeProfit {
			m.routeSignal(ctx, s)
			continue
		}
		log.Debug().Str("signal", s.ID).Str("strategy", id).Msg("discarding signal on stop")
	}
	m.persist(id, instance)
	log.Info().Str("strategy", id).Msg("strategy stopped")
	return nil
}

// PauseStrategy suspends scheduling without losing instance state.
func (m *Manager) PauseStrategy(id string) error {
	instance, err := m.instance(id)
	if err != nil {
		return err
	}
	if instance.Status() != model.StrategyActive {
		return fmt.Errorf("pause %s: %w", id, ErrNotActive)
	}
	instance.setStatus(model.StrategyPaused)
	m.persist(id, instance)
	log.Info().Str("strategy", id).Msg("strategy paused")
	return nil
}

// ResumeStrategy reactivates a paused instance and reschedules it.
func (m *Manager) ResumeStrategy(ctx context.Context, id string) error {
	instance, err := m.instance(id)
	if err != nil {
		return err
	}
	if instance.Status() != model.StrategyPaused {
		return fmt.Errorf("resume %s: not paused", id)
	}
	instance.setStatus(model.StrategyActive)
	m.persist(id, instance)
	m.enqueue(ctx, instance, id)
	log.Info().Str("strategy", id).Msg("strategy resumed")
	return nil
}

// RemoveStrategy stops and unregisters the instance.
func (m *Manager) RemoveStrategy(ctx context.Context, id string) error {
	if err := m.StopStrategy(ctx, id); err != nil {
		return err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.instances, id)
	return nil
}

// ExecuteStrategy runs the full pipeline for one strategy immediately
// and returns the generated signals. Counters are updated either way.
func (m *Manager) ExecuteStrategy(ctx context.Context, id string) ([]model.TradingSignal, error) {
	instance, err := m.instance(id)
	if err != nil {
		return nil, err
	}
	signals, err := m.pipeline(ctx, instance)
	at := m.now()
	instance.recordExecution(err == nil, at)
	if err != nil {
		metrics.Observer.IncrementExecutions(id, instance.strategy.Symbol, "failed")
		log.Warn().Err(err).Str("strategy", id).Msg("strategy execution failed")
		return nil, err
	}
	metrics.Observer.IncrementExecutions(id, instance.strategy.Symbol, "ok")
	instance.prune(at)
	instance.addSignals(signals, m.cfg.MaxActiveSignals)
	return signals, nil
}

// GetStrategyInfo returns a read-only snapshot of the instance.
func (m *Manager) GetStrategyInfo(id string) (Info, error) {
	instance, err := m.instance(id)
	if err != nil {
		return Info{}, err
	}
	return instance.info(), nil
}

// Status summarises the manager for operators.
type Status struct {
	Strategies  int `json:"strategies"`
	Active      int `json:"active"`
	Paused      int `json:"paused"`
	QueueDepth  int `json:"queue_depth"`
	SignalDepth int `json:"signal_depth"`
}

// GetManagerStatus reports registry and queue occupancy.
func (m *Manager) GetManagerStatus() Status {
	m.lock.RLock()
	defer m.lock.RUnlock()
	status := Status{
		Strategies:  len(m.instances),
		QueueDepth:  len(m.execQueue),
		SignalDepth: len(m.signalQueue),
	}
	for _, instance := range m.instances {
		switch instance.Status() {
		case model.StrategyActive:
			status.Active++
		case model.StrategyPaused:
			status.Paused++
		}
	}
	return status
}

// pipeline is one full Evaluate then Generate pass under the execution
// budget. Signal routing happens separately off the signal queue.
func (m *Manager) pipeline(ctx context.Context, instance *Instance) ([]model.TradingSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ExecTimeout)
	defer cancel()

	strategy := instance.strategy
	state, err := m.portfolio.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio state: %w", err)
	}
	snapshot, err := m.market.Snapshot(ctx, strategy.Symbol, strategy.Interval.String())
	if err != nil {
		return nil, fmt.Errorf("market snapshot: %w", err)
	}
	if price := snapshot.Price(); price > 0 {
		m.risk.History().Push(strategy.Symbol, price)
	}

	result := m.evaluator.Evaluate(ctx, instance.rule, model.EvaluationContext{
		StrategyID: strategy.ID,
		Symbol:     strategy.Symbol,
		Timestamp:  m.now(),
		Market:     snapshot,
		Portfolio:  state,
	})
	if result.Status == model.EvaluationFailed || result.Status == model.EvaluationTimeout {
		return nil, fmt.Errorf("evaluation %s: %v", result.Status, result.Errors)
	}
	return m.generator.Generate(ctx, result, strategy.Risk, state)
}

// enqueue claims the instance's queue slot and blocks until the
// execution queue accepts the id.
func (m *Manager) enqueue(ctx context.Context, instance *Instance, id string) {
	if !instance.tryEnqueue() {
		return
	}
	select {
	case m.execQueue <- id:
	case <-ctx.Done():
		instance.release()
	}
}

// schedule drains the execution queue in batches and runs each batch
// concurrently under the semaphore.
func (m *Manager) schedule(ctx context.Context) {
	defer m.wg.Done()
	for {
		batch := m.nextBatch(ctx)
		if ctx.Err() != nil {
			return
		}
		if len(batch) == 0 {
			continue
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, id := range batch {
			id := id
			g.Go(func() error {
				if err := m.sem.Acquire(gctx, 1); err != nil {
					return nil
				}
				defer m.sem.Release(1)
				m.runScheduled(gctx, id)
				return nil
			})
		}
		g.Wait()
	}
}

// nextBatch collects up to BatchSize ids, waiting at most PollTimeout
// for the first one.
func (m *Manager) nextBatch(ctx context.Context) []string {
	timer := time.NewTimer(m.cfg.PollTimeout)
	defer timer.Stop()
	var batch []string
	select {
	case id := <-m.execQueue:
		batch = append(batch, id)
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}
	for len(batch) < m.cfg.BatchSize {
		select {
		case id := <-m.execQueue:
			batch = append(batch, id)
		default:
			return batch
		}
	}
	return batch
}

// runScheduled executes one dequeued strategy and requeues it after its
// interval while it stays active.
func (m *Manager) runScheduled(ctx context.Context, id string) {
	instance, err := m.instance(id)
	if err != nil {
		return
	}
	instance.release()
	if instance.Status() != model.StrategyActive {
		// stopped or paused while queued
		return
	}
	signals, err := m.ExecuteStrategy(ctx, id)
	if err == nil {
		for _, s := range signals {
			select {
			case m.signalQueue <- s:
			case <-ctx.Done():
				return
			}
		}
	}
	interval := instance.strategy.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	time.AfterFunc(interval, func() {
		if ctx.Err() != nil {
			return
		}
		if instance.Status() == model.StrategyActive {
			m.enqueue(ctx, instance, id)
		}
	})
}

// route drains the signal queue through allocation, risk and execution.
func (m *Manager) route(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case s := <-m.signalQueue:
			m.routeSignal(ctx, s)
		case <-ctx.Done():
			return
		}
	}
}

// routeSignal executes one signal if both the allocator and the risk
// manager approve it. Rejections are logged, not retried.
func (m *Manager) routeSignal(ctx context.Context, s model.TradingSignal) {
	state, err := m.portfolio.State(ctx)
	if err != nil {
		log.Warn().Err(err).Str("signal", s.ID).Msg("portfolio state unavailable, signal dropped")
		return
	}
	allocation := m.allocator.Allocate(s, state)
	if !allocation.Approved() {
		log.Info().
			Str("signal", s.ID).
			Str("strategy", s.StrategyID).
			Str("reason", allocation.Reason).
			Msg("allocation rejected")
		return
	}
	assessment := m.risk.AssessSignal(s, state)
	if !assessment.Acceptable {
		log.Info().
			Str("signal", s.ID).
			Str("strategy", s.StrategyID).
			Str("reason", assessment.Reason).
			Msg("risk rejected")
		return
	}
	report, err := m.execute(ctx, s)
	if err != nil {
		metrics.Observer.IncrementExecutions(s.StrategyID, s.Symbol, "error")
		log.Warn().Err(err).Str("signal", s.ID).Msg("signal execution failed")
		return
	}
	log.Info().
		Str("signal", s.ID).
		Str("strategy", s.StrategyID).
		Str("order", report.OrderID).
		Str("amount", allocation.Amount.String()).
		Str("fill", report.FillPrice.String()).
		Msg("signal executed")
}

// execute routes the signal to the broker behind the circuit breaker.
func (m *Manager) execute(ctx context.Context, s model.TradingSignal) (api.ExecutionReport, error) {
	out, err := m.breaker.Execute(func() (interface{}, error) {
		report, err := m.execution.ExecuteSignal(ctx, s)
		if err != nil {
			return report, err
		}
		if !report.Success {
			return report, fmt.Errorf("broker: %s", report.Error)
		}
		return report, nil
	})
	if err != nil {
		return api.ExecutionReport{}, err
	}
	return out.(api.ExecutionReport), nil
}

// health periodically pauses instances whose error rate crosses the
// configured threshold. Auto-pause is reversible through resume.
func (m *Manager) health(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.checkHealth()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) checkHealth() {
	m.lock.RLock()
	instances := make(map[string]*Instance, len(m.instances))
	for id, instance := range m.instances {
		instances[id] = instance
	}
	m.lock.RUnlock()
	for id, instance := range instances {
		if instance.Status() != model.StrategyActive {
			continue
		}
		rate := instance.errorRate()
		if rate > m.cfg.ErrorRateThreshold {
			instance.setStatus(model.StrategyPaused)
			m.persist(id, instance)
			log.Warn().
				Str("strategy", id).
				Float64("error_rate", rate).
				Float64("threshold", m.cfg.ErrorRateThreshold).
				Msg("strategy auto-paused on error rate")
		}
	}
}

func (m *Manager) instance(id string) (*Instance, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	instance, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, id)
	}
	return instance, nil
}

func (m *Manager) activeCount() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	n := 0
	for _, instance := range m.instances {
		if instance.Status() == model.StrategyActive {
			n++
		}
	}
	return n
}

func (m *Manager) persist(id string, instance *Instance) {
	if err := m.store.Store(storage.Key{Dir: stateDir, Label: id}, instance.state()); err != nil {
		log.Warn().Err(err).Str("strategy", id).Msg("could not persist instance state")
	}
}
