package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"quakebot/internal/delivery"
	"quakebot/internal/dispatch"
	"quakebot/internal/eventbus"
	"quakebot/internal/feed"
	"quakebot/internal/metrics"
	"quakebot/internal/ops"
	"quakebot/internal/poll"
	"quakebot/internal/render"
	"quakebot/internal/storage"
	kit "quakebot/internal/transport"
	telegram "quakebot/internal/transport/telegram/adapter"
	logx "quakebot/pkg/logx"
	"quakebot/pkg/tgui"
)

type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	feed     *feed.Client
	renderer *render.Renderer
	deliver  *delivery.Service
	engine   *dispatch.Engine
	poll     *poll.Service
	ops      *ops.Service
	metrics  *metrics.Metrics

	cmdm *CommandManager

	serv *Services

	updates chan kit.Update
}

// configApplied is the bus payload published after a hot reload took effect.
type configApplied struct {
	Sections []string `json:"sections"`
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogxConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	acfg, err := mapAdapterConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(acfg, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	fcfg, err := mapFeedConfig(cfg)
	if err != nil {
		return nil, err
	}
	feedClient := feed.NewClient(fcfg)

	rcfg, err := mapRenderConfig(cfg)
	if err != nil {
		return nil, err
	}
	renderer := render.New(rcfg, logSvc.Logger().With(logx.String("comp", "render")))

	dcfg, err := mapDeliveryConfig(cfg)
	if err != nil {
		return nil, err
	}
	deliver := delivery.New(dcfg, ad, logSvc.Logger().With(logx.String("comp", "delivery")))

	engine, err := dispatch.New(dispatch.Deps{
		Log:     logSvc.Logger().With(logx.String("comp", "dispatch")),
		Feed:    feedClient,
		Store:   store,
		Render:  renderer,
		Deliver: deliver,
		Bus:     bus,
		Metrics: m,
	})
	if err != nil {
		return nil, err
	}

	pcfg, err := mapPollConfig(cfg)
	if err != nil {
		return nil, err
	}
	pollSvc := poll.New(pcfg, engine, logSvc.Logger().With(logx.String("comp", "poll")), bus, m)

	startedAt := time.Now()

	ocfg, err := mapOpsConfig(cfg)
	if err != nil {
		return nil, err
	}
	opsSvc := ops.New(ocfg, ops.Sources{
		StartedAt: startedAt,
		Dispatch:  engine,
		Poll:      pollSvc,
		Delivery:  deliver,
		Store:     store,
		Bus:       bus,
		Metrics:   reg,
	}, logSvc.Logger().With(logx.String("comp", "ops")))

	serv := &Services{
		Store:              store,
		Dispatch:           engine,
		Poll:               pollSvc,
		StartedAt:          startedAt,
		Prompts:            tgui.NewTokenStore(),
		RuntimeSupervisors: NewSupervisorRegistry(),
	}

	cmdm := NewCommandManager(logSvc.Logger().With(logx.String("comp", "commands")),
		ad, cfgm, serv, cfg.Telegram.OwnerUserIDs)
	cmdm.SetRegistry(CommandRegistry())

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		feed:     feedClient,
		renderer: renderer,
		deliver:  deliver,
		engine:   engine,
		poll:     pollSvc,
		ops:      opsSvc,
		metrics:  m,
		cmdm:     cmdm,
		serv:     serv,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	if a.serv != nil {
		a.serv.AppSupervisor = a.sup
		if a.serv.RuntimeSupervisors == nil {
			a.serv.RuntimeSupervisors = NewSupervisorRegistry()
		}
	}

	// Transactional config reload: everything the mappers would reject at
	// startup is rejected before commit/publish, so a bad edit never reaches
	// running components.
	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(func(c context.Context, cfg *Config) error {
			if _, err := mapAdapterConfig(cfg); err != nil {
				return err
			}
			if _, err := mapStorageConfig(cfg); err != nil {
				return err
			}
			if _, err := mapFeedConfig(cfg); err != nil {
				return err
			}
			if _, err := mapPollConfig(cfg); err != nil {
				return err
			}
			if _, err := mapDeliveryConfig(cfg); err != nil {
				return err
			}
			if _, err := mapRenderConfig(cfg); err != nil {
				return err
			}
			if _, err := mapOpsConfig(cfg); err != nil {
				return err
			}
			return nil
		})
	}

	a.seedSubscribers(a.sup.Context(), a.cfgm.Get())

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	// Expose adapter supervisor for operational visibility.
	if a.serv != nil {
		if sp, ok := a.adapter.(interface{ Supervisor() *Supervisor }); ok {
			if sup := sp.Supervisor(); sup != nil {
				a.serv.RuntimeSupervisors.Set("telegram.adapter", sup)
			}
		}
	}

	if err := a.poll.Start(a.sup.Context()); err != nil {
		return err
	}

	if a.ops != nil && a.ops.Enabled() {
		a.ops.Start(a.sup.Context())
		if a.serv != nil {
			if sup := a.ops.Supervisor(); sup != nil {
				a.serv.RuntimeSupervisors.Set("ops", sup)
			}
		}
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	// Optional: log events for observability/debug (components can also subscribe themselves).
	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					// Debug-level so the per-minute cycle traffic stays quiet.
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		// Track last applied config to generate a safe diff summary.
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := SummarizeConfigChange(lastApplied, newCfg)
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Debug("config change summary", fields...)
				} else {
					a.log.Debug("config reload received, but no effective changes detected")
				}
				prev := lastApplied
				lastApplied = newCfg

				a.applyReload(c, prev, newCfg, sections)

				if a.bus != nil && len(sections) > 0 {
					a.bus.Publish(eventbus.Event{
						Type: eventbus.TypeConfigApplied,
						Data: configApplied{Sections: sections},
					})
				}

				// Keep the final log line concise (details are in debug logs).
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyReload pushes a committed config into the running components. Sections
// that cannot change without a restart only warn; the validator already
// guaranteed every mapper below succeeds.
func (a *App) applyReload(ctx context.Context, prev, cfg *Config, sections []string) {
	changed := func(name string) bool {
		for _, s := range sections {
			if s == name {
				return true
			}
		}
		return false
	}

	if changed("storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if changed("feed") {
		a.log.Warn("feed config changed; restart required for changes to take effect")
	}
	if prev != nil && prev.Telegram.Token != cfg.Telegram.Token {
		a.log.Warn("telegram token changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLogxConfig(cfg))

	// Owner list used for AccessOwnerOnly checks.
	a.cmdm.SetOwners(cfg.Telegram.OwnerUserIDs)

	if dcfg, err := mapDeliveryConfig(cfg); err != nil {
		a.log.Warn("invalid delivery config; keeping previous", logx.Err(err))
	} else {
		a.deliver.Apply(dcfg)
	}

	if rcfg, err := mapRenderConfig(cfg); err != nil {
		a.log.Warn("invalid render config; keeping previous", logx.Err(err))
	} else {
		a.renderer.Apply(rcfg)
	}

	if pcfg, err := mapPollConfig(cfg); err != nil {
		a.log.Warn("invalid poll config; keeping previous", logx.Err(err))
	} else if err := a.poll.Apply(pcfg); err != nil {
		a.log.Warn("poll reschedule failed; keeping previous", logx.Err(err))
	}

	if a.ops != nil {
		if ocfg, err := mapOpsConfig(cfg); err != nil {
			a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
		} else {
			a.ops.Reconfigure(ctx, ocfg)
			if a.serv != nil {
				if sup := a.ops.Supervisor(); sup != nil {
					a.serv.RuntimeSupervisors.Set("ops", sup)
				} else {
					a.serv.RuntimeSupervisors.Delete("ops")
				}
			}
		}
	}

	if changed("subscribers") {
		a.seedSubscribers(ctx, cfg)
	}
}

// seedSubscribers applies config-declared subscribers to the registry.
// GetOrCreate keeps it idempotent; fields a seed states explicitly win over
// stored values so the config stays authoritative for pinned entries.
func (a *App) seedSubscribers(ctx context.Context, cfg *Config) {
	if a.store == nil || cfg == nil || len(cfg.Subscribers) == 0 {
		return
	}
	subs := a.store.Subscribers()
	for _, seed := range cfg.Subscribers {
		id := strings.TrimSpace(seed.ID)
		if id == "" {
			continue
		}
		if _, err := subs.GetOrCreate(ctx, id); err != nil {
			a.log.Warn("subscriber seed failed", logx.String("id", id), logx.Err(err))
			continue
		}
		if seed.MinSeverity != nil {
			if err := subs.SetThreshold(ctx, id, *seed.MinSeverity); err != nil {
				a.log.Warn("subscriber seed threshold rejected", logx.String("id", id), logx.Err(err))
			}
		}
		if seed.ChatID != 0 {
			if err := subs.BindTarget(ctx, id, seed.ChatID, seed.ThreadID); err != nil {
				a.log.Warn("subscriber seed bind failed", logx.String("id", id), logx.Err(err))
			}
		}
	}
	a.log.Info("subscribers seeded", logx.Int("count", len(cfg.Subscribers)))
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.String("err", err.Error()))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly. If it doesn't, log a leak signal.
			elapsed := time.Since(start)
			a.log.Warn(
				"stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.String("err", stepCtx.Err().Error()),
				logx.Duration("elapsed", elapsed),
			)
			// Leak logging: observe when/if the step eventually finishes.
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.String("err", err.Error()), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Stop the cycle producer first so nothing new enters the pipeline, then
	// the surfaces, then the transport, then persistence.
	step("poll", 2*time.Second, func(c context.Context) error { a.poll.Stop(c); return nil })
	step("ops", 2*time.Second, func(c context.Context) error {
		if a.ops != nil {
			a.ops.Stop(c)
		}
		return nil
	})
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, command dispatcher, etc.)
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
