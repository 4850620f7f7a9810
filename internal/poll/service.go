package poll

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"quakebot/internal/dispatch"
	"quakebot/internal/eventbus"
	"quakebot/internal/metrics"
	logx "quakebot/pkg/logx"
)

// Runner is the work one tick performs. *dispatch.Engine satisfies it.
type Runner interface {
	RunCycle(ctx context.Context) (dispatch.Report, error)
}

type Service struct {
	mu  sync.Mutex
	cfg Config

	log     logx.Logger
	runner  Runner
	bus     eventbus.Bus
	metrics *metrics.Metrics

	parser  cron.Parser
	c       *cron.Cron
	entryID cron.EntryID

	baseCtx context.Context
	cancel  context.CancelFunc

	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64
}

func New(cfg Config, runner Runner, log logx.Logger, bus eventbus.Bus, m *metrics.Metrics) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg.withDefaults(),
		log:     log,
		runner:  runner,
		bus:     bus,
		metrics: m,
		parser:  newParser(),
	}
}

// newParser accepts both 5-field and 6-field (with seconds) cron specs plus
// descriptors like "@every 60s".
func newParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// ValidateSchedule checks schedule syntax without touching any scheduler
// state. Empty means "use the default" and is always valid.
func ValidateSchedule(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := newParser().Parse(expr)
	return err
}

// Start registers the schedule and kicks one immediate cycle so a restart
// doesn't sit silent until the first tick.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)

	s.c = cron.New(cron.WithParser(s.parser))
	id, err := s.c.AddFunc(s.cfg.Schedule, s.tick)
	if err != nil {
		s.c = nil
		s.cancel()
		return err
	}
	s.entryID = id
	s.c.Start()
	s.log.Info("poll scheduler started",
		logx.String("schedule", s.cfg.Schedule),
		logx.Duration("cycle_timeout", s.cfg.CycleTimeout))

	go s.tick()
	return nil
}

// Stop halts the schedule and aborts any in-flight cycle. An interrupted
// delivery is redelivered on a later cycle, so cutting it short is safe.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("poll scheduler stopped",
		logx.Uint64("runs", s.runs.Load()),
		logx.Uint64("skipped_ticks", s.skipped.Load()))
}

// Apply swaps the schedule and timeout at runtime. An invalid schedule is
// rejected and the old one stays in effect.
func (s *Service) Apply(cfg Config) error {
	cfg = cfg.withDefaults()

	if _, err := s.parser.Parse(cfg.Schedule); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reschedule := s.c != nil && cfg.Schedule != s.cfg.Schedule
	s.cfg = cfg
	if !reschedule {
		return nil
	}

	s.c.Remove(s.entryID)
	id, err := s.c.AddFunc(cfg.Schedule, s.tick)
	if err != nil {
		return err
	}
	s.entryID = id
	s.log.Info("poll schedule changed", logx.String("schedule", cfg.Schedule))
	return nil
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Schedule:     s.cfg.Schedule,
		CycleTimeout: s.cfg.CycleTimeout,
	}
	if s.c != nil {
		snap.NextRun = s.c.Entry(s.entryID).Next
	}
	s.mu.Unlock()

	snap.Running = s.running.Load()
	snap.Runs = s.runs.Load()
	snap.SkippedTicks = s.skipped.Load()
	return snap
}

func (s *Service) tick() {
	if !s.running.CompareAndSwap(false, true) {
		n := s.skipped.Add(1)
		s.metrics.CycleSkipped()
		s.log.Warn("previous cycle still running, tick skipped", logx.Uint64("skipped_total", n))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{
				Type: eventbus.TypeCycleSkipped,
				Data: SkippedTick{At: time.Now(), Skipped: n},
			})
		}
		return
	}
	defer s.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("cycle panicked", logx.Any("panic", r))
		}
	}()

	s.runs.Add(1)

	s.mu.Lock()
	base := s.baseCtx
	timeout := s.cfg.CycleTimeout
	s.mu.Unlock()
	if base == nil {
		base = context.Background()
	}

	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	if _, err := s.runner.RunCycle(ctx); err != nil {
		s.log.Error("cycle failed", logx.Err(err))
	}
}
