// Package service wires the training engine: catalog, input queue, engine
// worker, event feed, evaluation store and the simulated world.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/okian/jumptrain/internal/adapters/channel"
	eventqueue "github.com/okian/jumptrain/internal/adapters/mq/queue"
	workerpool "github.com/okian/jumptrain/internal/adapters/mq/worker"
	"github.com/okian/jumptrain/internal/adapters/repository"
	"github.com/okian/jumptrain/internal/adapters/sensor"
	"github.com/okian/jumptrain/internal/adapters/sim"
	"github.com/okian/jumptrain/internal/domain/catalog"
	"github.com/okian/jumptrain/internal/domain/dedupe"
	"github.com/okian/jumptrain/internal/domain/model"
	"github.com/okian/jumptrain/internal/domain/orchestrator"
	"github.com/okian/jumptrain/pkg/logger"
	"github.com/okian/jumptrain/pkg/metrics"
)

const stopTimeout = 5 * time.Second

// ErrNotStarted is returned by reads before Start.
var ErrNotStarted = errors.New("service not started")

// Service owns every runtime component of one training station.
type Service struct {
	mu sync.RWMutex

	catalog  *catalog.Static
	deduper  dedupe.Deduper
	queue    eventqueue.Queue
	feed     *channel.Feed
	store    repository.Store
	db       *gorm.DB
	world    *sim.World
	engine   *orchestrator.Orchestrator
	worker   *workerpool.EngineWorker
	cancel   context.CancelFunc
	routines sync.WaitGroup

	queueSize     int
	dedupeSize    int
	backlog       int
	tickInterval  time.Duration
	jumpType      string
	participant   string
	storeDriver   string
	storeDSN      string
	simulate      bool
	simStep       time.Duration
	forceExitStep string

	started bool
	logger  logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCatalog sets the curriculum; the built-in scenario is used otherwise.
func WithCatalog(c *catalog.Static) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

// WithJumpType keeps only timelines for jumpType.
func WithJumpType(jumpType string) Option {
	return func(s *Service) {
		s.jumpType = jumpType
	}
}

// WithParticipant sets the participant the records belong to.
func WithParticipant(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.participant = id
		}
	}
}

// WithQueueSize sets the input queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many command ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithEventBacklog sets how many outbound events are kept.
func WithEventBacklog(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.backlog = n
		}
	}
}

// WithTickInterval sets the engine's idle tick.
func WithTickInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithStore selects the evaluation store driver (memory, sqlite, postgres).
func WithStore(driver, dsn string) Option {
	return func(s *Service) {
		if driver != "" {
			s.storeDriver = driver
		}
		s.storeDSN = dsn
	}
}

// WithSimulation runs the simulated world on its own: the aircraft flies,
// stage actions complete and the simulated sensor reports the descent.
// Without it the world waits for POST /signals.
func WithSimulation(enabled bool, step time.Duration) Option {
	return func(s *Service) {
		s.simulate = enabled
		if step > 0 {
			s.simStep = step
		}
	}
}

// WithForceExitStep sets the step name ForceExit is allowed on.
func WithForceExitStep(step string) Option {
	return func(s *Service) {
		if step != "" {
			s.forceExitStep = step
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service. Nothing runs until Start.
func New(opts ...Option) *Service {
	s := &Service{
		queueSize:     1024,
		dedupeSize:    4096,
		backlog:       1024,
		tickInterval:  50 * time.Millisecond,
		participant:   "participant",
		storeDriver:   "memory",
		simStep:       500 * time.Millisecond,
		forceExitStep: "GoJump",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the engine and starts the worker, the world and the sensor.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	cat := s.catalog
	if cat == nil {
		def, err := catalog.Default()
		if err != nil {
			return fmt.Errorf("load built-in catalog: %w", err)
		}
		cat = def
	}
	if s.jumpType != "" {
		cat = cat.Filter(s.jumpType)
	}

	store, db, err := openStore(s.storeDriver, s.storeDSN)
	if err != nil {
		return err
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.feed = channel.NewFeed(channel.WithBacklog(s.backlog), channel.WithLogger(s.logger.Named("channel")))

	worldOpts := []sim.Option{sim.WithStep(s.simStep), sim.WithLogger(s.logger.Named("world"))}
	var device *sim.Device
	if s.simulate {
		device = sim.NewDevice(s.simStep)
		worldOpts = append(worldOpts, sim.WithDevice(device))
	} else {
		worldOpts = append(worldOpts, sim.WithManual())
	}
	s.world = sim.NewWorld(s.queue, cat.Route(), worldOpts...)

	gates := orchestrator.DefaultGates()
	gates[model.ForceExit] = orchestrator.Gate{StepName: s.forceExitStep}
	engine, err := orchestrator.New(cat, s.world, s.world, s.world,
		orchestrator.WithEmitter(s.feed),
		orchestrator.WithStore(store),
		orchestrator.WithParticipant(s.participant),
		orchestrator.WithGates(gates),
		orchestrator.WithLogger(s.logger.Named("engine")),
	)
	if err != nil {
		if db != nil {
			_ = repository.Close(db)
		}
		return fmt.Errorf("build engine: %w", err)
	}
	s.engine, s.store, s.db, s.catalog = engine, store, db, cat

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.worker = workerpool.NewEngineWorker(s.queue, engine,
		workerpool.WithTickInterval(s.tickInterval), workerpool.WithLogger(s.logger))
	s.spawn(func() { s.worker.Run(runCtx) })
	if s.simulate {
		s.spawn(func() { s.world.Run(runCtx) })
		poller := sensor.NewPoller(device, s.queue,
			sensor.WithReconnectInterval(s.simStep), sensor.WithLogger(s.logger.Named("sensor")))
		s.spawn(func() { _ = poller.Run(runCtx) })
	}

	s.started = true
	s.logger.Info(ctx, "training service started",
		logger.String("catalog", cat.Name()),
		logger.Int("procedures", cat.Len()),
		logger.String("session", engine.Status().SessionID),
		logger.String("store", s.storeDriver),
		logger.Bool("simulate", s.simulate),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

func (s *Service) spawn(fn func()) {
	s.routines.Add(1)
	go func() {
		defer s.routines.Done()
		fn()
	}()
}

// Stop stops the worker and the world and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping training service...")

	shutdownCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := s.worker.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "engine worker shutdown", logger.Error(err))
	}
	s.cancel()
	s.routines.Wait()
	s.world.Close()
	_ = s.queue.Close()
	if s.db != nil {
		if err := repository.Close(s.db); err != nil {
			s.logger.Warn(ctx, "close store", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "training service stopped")
}

func openStore(driver, dsn string) (repository.Store, *gorm.DB, error) {
	if driver == "memory" {
		return repository.NewMemoryStore(), nil, nil
	}
	db, err := repository.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	return repository.NewGormStore(db), db, nil
}

// SeenAndRecord implements dedupe.Deduper.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	return s.deduper.SeenAndRecord(ctx, id)
}

// Unrecord implements dedupe.Deduper.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size implements dedupe.Deduper.
func (s *Service) Size() int64 {
	return s.deduper.Size()
}

// Enqueue hands an input to the engine thread.
func (s *Service) Enqueue(ctx context.Context, in model.Input) bool {
	if s.queue == nil {
		return false
	}
	return s.queue.Enqueue(ctx, in)
}

// Status returns the engine snapshot, or the zero Status before Start.
func (s *Service) Status() orchestrator.Status {
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()
	if engine == nil {
		return orchestrator.Status{}
	}
	return engine.Status()
}

// Events returns backlog events after seq.
func (s *Service) Events(after uint64, limit int) []model.Event {
	if s.feed == nil {
		return nil
	}
	return s.feed.Since(after, limit)
}

// Subscribe streams new events until cancel is called.
func (s *Service) Subscribe() (<-chan model.Event, func()) {
	return s.feed.Subscribe()
}

// World returns the simulated world state.
func (s *Service) World() sim.Snapshot {
	return s.world.Snapshot()
}

// Evaluations lists stored records merged with the live session's records.
// Records of the live session always come from the engine.
func (s *Service) Evaluations(ctx context.Context, q repository.Query) ([]model.EvaluationRecord, error) {
	if s.store == nil {
		return nil, ErrNotStarted
	}
	stored, err := s.store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	st := s.Status()
	live := st.SessionID != "" &&
		(q.SessionID == "" || q.SessionID == st.SessionID) &&
		(q.ParticipantID == "" || q.ParticipantID == st.ParticipantID)
	if !live {
		return stored, nil
	}

	out := slices.DeleteFunc(stored, func(r model.EvaluationRecord) bool { return r.SessionID == st.SessionID })
	out = append(out, st.Records...)
	if limit := q.Limit; limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetStats returns queue and session statistics.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	st := s.Status()
	stats := map[string]any{
		"started":      started,
		"session_id":   st.SessionID,
		"state":        string(st.State),
		"record_count": len(st.Records),
	}
	if s.queue != nil {
		n := s.queue.Len(ctx)
		stats["queue_length"] = n
		metrics.UpdateQueueSize(n)
	}
	if s.deduper != nil {
		stats["dedupe_size"] = s.deduper.Size()
	}
	if s.feed != nil {
		stats["last_event_seq"] = s.feed.Last()
	}
	if s.store != nil {
		if n, err := s.store.Sessions(ctx); err == nil {
			stats["stored_sessions"] = n
		}
	}
	return stats
}
