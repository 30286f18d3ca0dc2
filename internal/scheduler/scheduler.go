// Package scheduler runs cron-scheduled event sources and maintenance jobs.
//
// Each registration carries a standard 5-field cron expression. A single
// ticking loop evaluates due registrations and launches each run in its own
// goroutine. A registration never runs concurrently with itself: if a run is
// still in flight when the next fire time arrives, the new run is dropped and
// the schedule advances.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"herald/internal/events"
	"herald/internal/types"
)

// Sink consumes the events a scheduled source produces. The pipeline service
// satisfies it.
type Sink interface {
	Ingest(ctx context.Context, event *types.Event) (*types.IngestReceipt, error)
}

// JobFunc is the body of a maintenance registration.
type JobFunc func(ctx context.Context) error

// JobStatus is a point-in-time snapshot of one registration.
type JobStatus struct {
	ID       string     `json:"id"`
	Spec     string     `json:"spec"`
	Running  bool       `json:"running"`
	NextRun  time.Time  `json:"next_run"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
	RunCount int64      `json:"run_count"`
}

// registration is one scheduled unit of work.
type registration struct {
	id       string
	spec     string
	schedule cron.Schedule
	run      JobFunc

	// running gates concurrent executions of the same registration.
	running atomic.Bool

	mu       sync.Mutex
	nextRun  time.Time
	lastRun  time.Time
	lastErr  string
	runCount int64
}

// Config holds the dependencies for creating a Scheduler.
type Config struct {
	Sink     Sink
	Tick     time.Duration
	Location *time.Location
	Logger   types.Logger
}

// Scheduler owns the cron registrations and the ticking loop that fires them.
type Scheduler struct {
	sink   Sink
	tick   time.Duration
	loc    *time.Location
	logger types.Logger
	clock  types.Clock
	parser cron.Parser

	mu    sync.Mutex
	regs  map[string]*registration
	order []string
}

// New creates a Scheduler. Tick defaults to one minute, Location to UTC.
func New(cfg Config) *Scheduler {
	tick := cfg.Tick
	if tick <= 0 {
		tick = time.Minute
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Scheduler{
		sink:   cfg.Sink,
		tick:   tick,
		loc:    loc,
		logger: logger,
		clock:  types.RealClock{},
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		regs:   make(map[string]*registration),
	}
}

// SetClock replaces the clock. Used by tests.
func (s *Scheduler) SetClock(clock types.Clock) {
	s.clock = clock
}

// RegisterSource schedules an event source. Every run produces the source's
// events and ingests each one through the sink; one failed event does not
// stop the rest of the batch.
func (s *Scheduler) RegisterSource(id, spec string, source events.EventSource) error {
	return s.register(id, spec, func(ctx context.Context) error {
		dicts, err := source.Produce(ctx, events.TriggerContext{})
		if err != nil {
			return fmt.Errorf("producing events: %w", err)
		}

		var failed int
		for _, data := range dicts {
			event := &types.Event{
				Type:   types.EventScheduled,
				Source: source.ID(),
				Data:   data,
			}
			if _, err := s.sink.Ingest(ctx, event); err != nil {
				failed++
				s.logger.Error("scheduled event ingestion failed",
					"source", source.ID(),
					"error", err,
				)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d events failed ingestion", failed, len(dicts))
		}
		return nil
	})
}

// RegisterJob schedules a plain maintenance function.
func (s *Scheduler) RegisterJob(id, spec string, fn JobFunc) error {
	return s.register(id, spec, fn)
}

func (s *Scheduler) register(id, spec string, fn JobFunc) error {
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return types.NewAppError(types.ErrCodeConfigInvalidCron,
			fmt.Sprintf("invalid cron expression %q for %s", spec, id), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.regs[id]; exists {
		return types.NewAppError(types.ErrCodeConfigDuplicateDefinition,
			fmt.Sprintf("scheduler registration %s already exists", id), nil)
	}

	reg := &registration{
		id:       id,
		spec:     spec,
		schedule: schedule,
		run:      fn,
		nextRun:  schedule.Next(s.clock.Now().In(s.loc)),
	}
	s.regs[id] = reg
	s.order = append(s.order, id)

	s.logger.Info("scheduler registration added",
		"id", id,
		"spec", spec,
		"next_run", reg.nextRun.Format(time.RFC3339),
	)
	return nil
}

// Run drives the ticking loop until the context is canceled. In-flight runs
// are waited for before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.fireDue(ctx, &wg)
		}
	}
}

// fireDue launches every due registration that is not already running. A
// registration whose previous run is still in flight has its fire coalesced:
// the schedule advances and the overlapping run is dropped.
func (s *Scheduler) fireDue(ctx context.Context, wg *sync.WaitGroup) {
	now := s.clock.Now().In(s.loc)

	s.mu.Lock()
	due := make([]*registration, 0, len(s.order))
	for _, id := range s.order {
		reg := s.regs[id]
		reg.mu.Lock()
		if !reg.nextRun.After(now) {
			reg.nextRun = reg.schedule.Next(now)
			due = append(due, reg)
		}
		reg.mu.Unlock()
	}
	s.mu.Unlock()

	for _, reg := range due {
		if !reg.running.CompareAndSwap(false, true) {
			s.logger.Warn("scheduled run still in flight, dropping overlap",
				"id", reg.id,
			)
			continue
		}

		wg.Add(1)
		go func(reg *registration) {
			defer wg.Done()
			defer reg.running.Store(false)
			s.execute(ctx, reg, now)
		}(reg)
	}
}

func (s *Scheduler) execute(ctx context.Context, reg *registration, firedAt time.Time) {
	err := reg.run(ctx)

	reg.mu.Lock()
	reg.lastRun = firedAt
	reg.runCount++
	if err != nil {
		reg.lastErr = err.Error()
	} else {
		reg.lastErr = ""
	}
	reg.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled run failed",
			"id", reg.id,
			"error", err,
		)
		return
	}
	s.logger.Info("scheduled run complete", "id", reg.id)
}

// Trigger runs a registration immediately, outside its schedule. It returns
// a not-found error for unknown ids and reports whether the run was started
// or dropped because one is already in flight.
func (s *Scheduler) Trigger(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	reg, ok := s.regs[id]
	s.mu.Unlock()
	if !ok {
		return false, types.NewAppError(types.ErrCodeNotFoundDefinition,
			fmt.Sprintf("scheduler registration %s not found", id), nil)
	}

	if !reg.running.CompareAndSwap(false, true) {
		return false, nil
	}
	defer reg.running.Store(false)

	s.execute(ctx, reg, s.clock.Now().In(s.loc))
	return true, nil
}

// Status returns a snapshot of every registration in registration order.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	regs := make([]*registration, 0, len(ids))
	for _, id := range ids {
		regs = append(regs, s.regs[id])
	}
	s.mu.Unlock()

	out := make([]JobStatus, 0, len(regs))
	for _, reg := range regs {
		reg.mu.Lock()
		st := JobStatus{
			ID:       reg.id,
			Spec:     reg.spec,
			Running:  reg.running.Load(),
			NextRun:  reg.nextRun,
			LastErr:  reg.lastErr,
			RunCount: reg.runCount,
		}
		if !reg.lastRun.IsZero() {
			last := reg.lastRun
			st.LastRun = &last
		}
		reg.mu.Unlock()
		out = append(out, st)
	}
	return out
}

// Registrations returns the registered ids, sorted.
func (s *Scheduler) Registrations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	sort.Strings(ids)
	return ids
}
