// Package app assembles the guardrail engine and its collaborators from
// process configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"

	"guardrail/internal/account"
	"guardrail/internal/guardrail"
	guardrailmetrics "guardrail/internal/guardrail/metrics"
	"guardrail/internal/minor"
	"guardrail/internal/minor/delivery"
	minormetrics "guardrail/internal/minor/metrics"
	minormemory "guardrail/internal/minor/store/memory"
	minorpostgres "guardrail/internal/minor/store/postgres"
	"guardrail/internal/overdraft"
	overdraftmetrics "guardrail/internal/overdraft/metrics"
	overdraftmemory "guardrail/internal/overdraft/store/memory"
	overdraftpostgres "guardrail/internal/overdraft/store/postgres"
	"guardrail/internal/platform/config"
	"guardrail/internal/platform/kafka"
	"guardrail/internal/platform/postgres"
	"guardrail/internal/platform/redis"
	"guardrail/internal/policy"
	"guardrail/internal/usage"
	usagemetrics "guardrail/internal/usage/metrics"
	usagememory "guardrail/internal/usage/store/memory"
	usagepostgres "guardrail/internal/usage/store/postgres"
	usageredis "guardrail/internal/usage/store/redis"
	audit "guardrail/pkg/platform/audit"
	"guardrail/pkg/platform/audit/publishers/compliance"
	auditmemory "guardrail/pkg/platform/audit/store/memory"
	auditpostgres "guardrail/pkg/platform/audit/store/postgres"
	"guardrail/pkg/platform/circuit"
)

// App holds everything a process starts, serves and shuts down.
type App struct {
	Engine     *guardrail.Engine
	Tracker    *usage.Tracker
	Workflow   *overdraft.Workflow
	Notifier   *minor.Notifier
	Dispatcher *minor.Dispatcher
	Trail      *compliance.Publisher
	Policies   *policy.Registry

	db    *sql.DB
	redis *redis.Client
	kafka *kgo.Client
}

// Close releases the connections opened by Build.
func (a *App) Close() {
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// collectors register with the default Prometheus registry, which accepts
// each metric name once per process.
type collectors struct {
	engine     *guardrailmetrics.Metrics
	usage      *usagemetrics.Metrics
	overdraft  *overdraftmetrics.Metrics
	minor      *minormetrics.Metrics
	compliance *compliance.Metrics
}

var processCollectors = sync.OnceValue(func() collectors {
	return collectors{
		engine:     guardrailmetrics.New(),
		usage:      usagemetrics.New(),
		overdraft:  overdraftmetrics.New(),
		minor:      minormetrics.New(),
		compliance: compliance.NewMetrics(),
	}
})

// Health pings the backends that can go away under a running process.
func (a *App) Health(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// stores groups the persistence chosen by config.Backend.
type stores struct {
	accounts      guardrail.Accounts
	usage         usage.Store
	overdrafts    overdraft.Store
	notifications minor.Store
	audit         audit.Store
	tx            overdraft.TxRunner
}

// Build opens the configured backends and wires the engine. The caller
// owns the returned App and must Close it.
func Build(ctx context.Context, cfg config.Server, log *slog.Logger) (*App, error) {
	a := &App{}
	m := processCollectors()
	st, err := a.openStores(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	registry, err := LoadPolicies(cfg.PolicyDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Policies = registry
	current, _ := registry.Current()
	log.InfoContext(ctx, "policy loaded",
		"version", current.Version,
		"hash", current.Hash(),
		"versions", registry.Versions(),
	)

	chain, err := audit.NewChain([]byte(cfg.AuditChainKey))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Trail, err = compliance.New(st.audit, chain,
		compliance.WithLogger(log),
		compliance.WithMetrics(m.compliance),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Tracker, err = usage.New(st.usage,
		usage.WithLogger(log),
		usage.WithMetrics(m.usage),
		usage.WithAuditor(a.Trail),
		usage.WithReserveTimeout(cfg.ReserveTimeout),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	deliverer, err := a.openDeliverer(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Dispatcher, err = minor.NewDispatcher(st.notifications, deliverer, a.Trail,
		minor.WithDispatcherLogger(log),
		minor.WithDispatcherMetrics(m.minor),
		minor.WithQueueSize(cfg.NotificationQueueSize),
		minor.WithBreaker(circuit.New("minor-notifications", circuit.WithFailureThreshold(5))),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Notifier, err = minor.NewNotifier(st.notifications, a.Trail, a.Dispatcher,
		minor.WithLogger(log),
		minor.WithMetrics(m.minor),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Workflow, err = overdraft.New(st.overdrafts, a.Tracker, a.Trail,
		overdraft.WithLogger(log),
		overdraft.WithMetrics(m.overdraft),
		overdraft.WithTxRunner(st.tx),
		overdraft.WithDenialHook(guardrail.DenialNotifier(st.accounts, a.Notifier, log)),
		overdraft.WithAlertHook(guardrail.AlertNotifier(st.accounts, a.Notifier, log)),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Engine, err = guardrail.New(st.accounts, registry, a.Tracker, a.Workflow, a.Notifier, a.Trail,
		guardrail.WithLogger(log),
		guardrail.WithMetrics(m.engine),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStores(ctx context.Context, cfg config.Server, log *slog.Logger) (stores, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		log.WarnContext(ctx, "using in-memory stores; state is lost on restart")
		return stores{
			accounts:      account.NewInMemory(),
			usage:         usagememory.New(),
			overdrafts:    overdraftmemory.New(),
			notifications: minormemory.New(),
			audit:         auditmemory.NewInMemoryStore(),
		}, nil
	case config.BackendPostgres, config.BackendRedis:
	default:
		return stores{}, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	db, err := postgres.Open(ctx, postgres.Config{DSN: cfg.PostgresDSN, MaxOpenConns: 25, MaxIdleConns: 5})
	if err != nil {
		return stores{}, err
	}
	a.db = db
	if err := postgres.Migrate(ctx, db,
		account.Schema,
		usagepostgres.Schema,
		overdraftpostgres.Schema,
		minorpostgres.Schema,
		auditpostgres.Schema,
	); err != nil {
		return stores{}, err
	}

	st := stores{
		accounts:      account.NewPostgres(db),
		usage:         usagepostgres.New(db),
		overdrafts:    overdraftpostgres.New(db),
		notifications: minorpostgres.New(db),
		audit:         auditpostgres.New(db),
		tx:            postgres.NewTxRunner(db),
	}
	if cfg.Backend == config.BackendRedis {
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return stores{}, err
		}
		if client == nil {
			return stores{}, fmt.Errorf("redis backend requires GUARDRAIL_REDIS_URL")
		}
		a.redis = client
		st.usage = usageredis.New(client.Client)
	}
	log.InfoContext(ctx, "stores opened", "backend", cfg.Backend)
	return st, nil
}

func (a *App) openDeliverer(ctx context.Context, cfg config.Server, log *slog.Logger) (minor.Deliverer, error) {
	client, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if client == nil {
		log.InfoContext(ctx, "no kafka brokers configured; notifications are logged")
		return delivery.NewLog(log), nil
	}
	a.kafka = client
	if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.NotificationTopic, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
		return nil, err
	}
	return delivery.NewKafka(client, cfg.Kafka.NotificationTopic)
}

// LoadPolicies reads every table in dir, or publishes the built-in table
// when dir is empty.
func LoadPolicies(dir string) (*policy.Registry, error) {
	if dir != "" {
		return policy.LoadDir(dir)
	}
	reg := policy.NewRegistry()
	if err := reg.Publish(policy.DefaultTable()); err != nil {
		return nil, err
	}
	return reg, nil
}
