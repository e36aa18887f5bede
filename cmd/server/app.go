package main

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/banking/audit-risk-service/internal/config"
	"github.com/banking/audit-risk-service/internal/events"
	"github.com/banking/audit-risk-service/internal/lock"
	"github.com/banking/audit-risk-service/internal/pkg/logger"
	"github.com/banking/audit-risk-service/internal/recalc"
	"github.com/banking/audit-risk-service/internal/repository/memory"
	"github.com/banking/audit-risk-service/internal/repository/postgres"
	"github.com/banking/audit-risk-service/internal/scoring"
	"github.com/banking/audit-risk-service/internal/telemetry"
	transport "github.com/banking/audit-risk-service/internal/transport/http"
)

// app holds every wired dependency of one process
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *prometheus.Registry
	weights  *scoring.WeightConfig
	engine   *recalc.Engine
	health   transport.HealthCheck

	srcMu  sync.RWMutex
	source scoring.WeightSource

	closers []func(context.Context) error
}

// loadApp reads configuration and builds the application. Config file
// changes feed the weight snapshot when scoring.watch is set.
func loadApp(ctx context.Context, opts *rootOptions) (*app, error) {
	a := &app{}

	cfg, err := config.LoadAndWatch(opts.configPath, a.onConfigChange)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load configuration")
	}
	if opts.debug {
		cfg.Logging.Debug = true
	}
	a.cfg = cfg

	log, err := logger.New(serviceName, cfg.Telemetry.Environment, cfg.Logging.Debug)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create logger")
	}
	a.log = log
	a.closers = append(a.closers, func(context.Context) error {
		_ = log.Sync()
		return nil
	})

	if err := a.build(ctx); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	// 1. Telemetry
	shutdown, err := telemetry.InitTracing(ctx, &cfg.Telemetry)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, shutdown)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(a.registry)

	// 2. Storage
	var store recalc.AreaStore
	var dbSource scoring.WeightStore
	switch cfg.Storage.Backend {
	case "postgres":
		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(&cfg.Database, log); err != nil {
				return err
			}
		}
		pool, err := postgres.Connect(ctx, &cfg.Database, log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func(context.Context) error {
			pool.Close()
			return nil
		})
		pg := postgres.NewStore(pool, log)
		store = pg
		a.health = pg.Ping
		dbSource = pg
	case "memory", "":
		mem := memory.New()
		store = mem
		dbSource = mem
		log.Warn("Using in-memory storage; state is lost on restart")
	default:
		return goerr.New("unknown storage backend", goerr.V("backend", cfg.Storage.Backend))
	}

	// 3. Weights
	var source scoring.WeightSource = scoring.NewConfigSource(&cfg.Scoring)
	if cfg.Scoring.WeightSource == "database" {
		// an empty weight table starts from the configured values
		seeded, err := scoring.SeedWeights(ctx, dbSource, scoring.EntriesFromConfig(&cfg.Scoring))
		if err != nil {
			return err
		}
		if seeded {
			log.Info("Seeded weight store from configuration", logger.StringField("source", dbSource.Name()))
		}
		source = dbSource
	}
	weights := scoring.NewWeightConfig(log, scoring.WithObserver(metrics))
	if _, err := weights.Reload(ctx, source); err != nil {
		return err
	}
	a.srcMu.Lock()
	a.weights, a.source = weights, source
	a.srcMu.Unlock()

	// 4. Area lock
	var locker recalc.Locker
	if cfg.Redis.Enabled {
		rl, err := lock.NewRedisFromConfig(&cfg.Redis, log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func(context.Context) error { return rl.Close() })
		locker = rl
	} else {
		locker = lock.NewLocal()
	}

	// 5. Events
	var publisher recalc.Publisher = events.Nop{}
	if cfg.Kafka.Enabled {
		kp, err := events.NewKafkaPublisher(&cfg.Kafka, log)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func(context.Context) error { return kp.Close() })
		publisher = kp
	}

	a.engine = recalc.NewEngine(store, locker, a.weights, scoring.NewPriorityPolicy(&cfg.Priority), &cfg.Batch, log,
		recalc.WithPublisher(publisher),
		recalc.WithMetrics(metrics),
	)
	return nil
}

// onConfigChange installs new weights from a rewritten config file
func (a *app) onConfigChange(next *config.Config, err error) {
	a.srcMu.Lock()
	weights := a.weights
	if weights == nil {
		a.srcMu.Unlock()
		return
	}
	if err != nil {
		a.srcMu.Unlock()
		a.log.Warn("Failed to re-read configuration", logger.ErrorField(err))
		return
	}
	if !a.cfg.Scoring.Watch || a.cfg.Scoring.WeightSource == "database" {
		a.srcMu.Unlock()
		return
	}
	src := scoring.NewConfigSource(&next.Scoring)
	a.source = src
	a.srcMu.Unlock()

	if _, err := weights.Reload(context.Background(), src); err != nil {
		a.log.Warn("Failed to reload weights from configuration", logger.ErrorField(err))
	}
}

// reloadWeights re-reads the active weight source
func (a *app) reloadWeights(ctx context.Context) ([]scoring.Warning, error) {
	a.srcMu.RLock()
	src := a.source
	a.srcMu.RUnlock()
	return a.weights.Reload(ctx, src)
}

// Close releases resources in reverse order of acquisition
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && a.log != nil {
			a.log.Warn("Shutdown step failed", logger.ErrorField(err))
		}
	}
	a.closers = nil
}
