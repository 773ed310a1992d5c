// Package app wires the engine's collaborators from configuration. Both the
// HTTP server and playoutctl start from here.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/playout/internal/clock"
	"github.com/Nixie-Tech-LLC/playout/internal/config"
	"github.com/Nixie-Tech-LLC/playout/internal/db"
	"github.com/Nixie-Tech-LLC/playout/internal/lock"
	"github.com/Nixie-Tech-LLC/playout/internal/metrics"
	"github.com/Nixie-Tech-LLC/playout/internal/notify"
	"github.com/Nixie-Tech-LLC/playout/internal/policy"
	"github.com/Nixie-Tech-LLC/playout/internal/redis"
	"github.com/Nixie-Tech-LLC/playout/internal/rotation"
	"github.com/Nixie-Tech-LLC/playout/internal/scheduler"
	"github.com/Nixie-Tech-LLC/playout/internal/storage"
)

type App struct {
	Engine   *config.Engine
	Store    db.Store
	Clock    clock.Clock
	Policies *policy.Reloader
	Builder  *scheduler.Builder
	Assigner *rotation.Assigner
	Exporter *storage.Exporter
	Metrics  *metrics.Collector
	Registry *prometheus.Registry

	closers []func()
}

// Deps are the already-built collaborators Assemble wires together. Nil
// fields fall back to in-process defaults.
type Deps struct {
	Store      db.Store
	Engine     *config.Engine
	EnginePath string
	Clock      clock.Clock
	Locker     lock.Locker
	Notifier   scheduler.Notifier
	Storage    storage.Storage
	Logger     *zerolog.Logger
}

func Assemble(ctx context.Context, d Deps) (*App, error) {
	if d.Store == nil {
		return nil, fmt.Errorf("app: store is required")
	}
	if d.Engine == nil {
		e, err := config.LoadEngine(d.EnginePath)
		if err != nil {
			return nil, err
		}
		d.Engine = e
	}
	if d.Clock == nil {
		d.Clock = clock.NewReal()
	}
	if d.Locker == nil {
		d.Locker = lock.NewLocal()
	}
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Storage == nil {
		d.Storage = storage.NewLocalStorage("./exports")
	}
	logger := log.Logger
	if d.Logger != nil {
		logger = *d.Logger
	}

	reloader, err := policy.NewReloader(ctx, d.Engine.PolicyLoader(d.EnginePath, d.Store))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	seed := d.Engine.RotationSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &App{
		Engine:   d.Engine,
		Store:    d.Store,
		Clock:    d.Clock,
		Policies: reloader,
		Builder: scheduler.NewBuilder(d.Store, reloader, d.Clock, d.Engine.Scheduler(),
			scheduler.WithLocker(d.Locker),
			scheduler.WithNotifier(d.Notifier),
			scheduler.WithMetrics(collector),
			scheduler.WithLogger(logger),
		),
		Assigner: rotation.NewAssigner(d.Store, rotation.NewSeeded(seed),
			rotation.WithMetrics(collector),
			rotation.WithBackoff(d.Engine.Scheduler().Backoff),
			rotation.WithLogger(logger),
		),
		Exporter: storage.NewExporter(d.Store, d.Storage),
		Metrics:  collector,
		Registry: reg,
	}, nil
}

// Open connects the database and the optional Redis, MQTT and Spaces
// backends named by cfg, then assembles the engine.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	opts := db.DefaultOptions()
	opts.StatementTimeout = cfg.StatementTimeout
	conn, err := db.Open(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		return nil, err
	}
	closers := []func(){func() { _ = conn.Close() }}
	fail := func(err error) (*App, error) {
		runClosers(closers)
		return nil, err
	}

	deps := Deps{
		Store:      db.NewStore(conn),
		EnginePath: cfg.EngineConfigPath,
	}

	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(cfg.RedisAddress, cfg.RedisUsername, cfg.RedisPassword)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("redis: %w", err))
		}
		closers = append(closers, func() { _ = rdb.Close() })
		deps.Locker = redis.NewBuildLock(rdb)
		log.Info().Str("address", cfg.RedisAddress).Msg("using redis build lock")
	}

	if cfg.MQTTBrokerURL != "" {
		client, err := notify.Connect(cfg.MQTTBrokerURL, cfg.MQTTClientID)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { client.Disconnect(250) })
		deps.Notifier = notify.NewPublisher(client)
	}

	st, err := initStorage(cfg)
	if err != nil {
		return fail(err)
	}
	deps.Storage = st

	a, err := Assemble(ctx, deps)
	if err != nil {
		return fail(err)
	}
	a.closers = closers
	return a, nil
}

// initStorage selects the configured export backend
func initStorage(cfg *config.Config) (storage.Storage, error) {
	if cfg.UseSpaces {
		s := cfg.Spaces
		spaces, err := storage.NewSpacesStorage(s.Endpoint, s.Region, s.Bucket, s.CDNURL, s.AccessKey, s.SecretKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Spaces storage: %w", err)
		}
		log.Info().Str("bucket", s.Bucket).Msg("exporting schedules to Spaces")
		return spaces, nil
	}
	log.Info().Str("dir", cfg.ExportDir).Msg("exporting schedules to local storage")
	return storage.NewLocalStorage(cfg.ExportDir), nil
}

// Migrate applies the SQL migrations and returns.
func Migrate(ctx context.Context, cfg *config.Config) error {
	opts := db.DefaultOptions()
	opts.StatementTimeout = 0
	conn, err := db.Open(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		return err
	}
	defer conn.Close()
	return db.RunMigrations(ctx, conn, cfg.MigrationsPath)
}

func (a *App) Close() {
	runClosers(a.closers)
	a.closers = nil
}

func runClosers(fns []func()) {
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// SetupLogging switches zerolog to a console writer in development.
func SetupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Development() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
