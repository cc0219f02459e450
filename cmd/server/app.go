package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	balancehandler "ghostpass/internal/balance/handler"
	"ghostpass/internal/balance/notify"
	balanceservice "ghostpass/internal/balance/service"
	balancestore "ghostpass/internal/balance/store"
	disclosurehandler "ghostpass/internal/disclosure/handler"
	"ghostpass/internal/disclosure/view"
	"ghostpass/internal/nonce"
	"ghostpass/internal/platform/config"
	"ghostpass/internal/platform/database"
	"ghostpass/internal/platform/health"
	"ghostpass/internal/platform/kafka/producer"
	platformmetrics "ghostpass/internal/platform/metrics"
	"ghostpass/internal/platform/redis"
	"ghostpass/internal/platform/tracer"
	profilehandler "ghostpass/internal/profile/handler"
	profileservice "ghostpass/internal/profile/service"
	profilestore "ghostpass/internal/profile/store"
	shifthandler "ghostpass/internal/shift/handler"
	shiftmetrics "ghostpass/internal/shift/metrics"
	shiftservice "ghostpass/internal/shift/service"
	shiftstore "ghostpass/internal/shift/store"
	"ghostpass/internal/terminal"
	terminalhandler "ghostpass/internal/terminal/handler"
	tokenhandler "ghostpass/internal/token/handler"
	tokenmetrics "ghostpass/internal/token/metrics"
	"ghostpass/internal/token/models"
	tokenservice "ghostpass/internal/token/service"
	"ghostpass/internal/token/signer"
	httptransport "ghostpass/internal/transport/http"
	"ghostpass/internal/verify"
	verifymetrics "ghostpass/internal/verify/metrics"
	"ghostpass/migrations"
	id "ghostpass/pkg/domain"
	"ghostpass/pkg/platform/audit"
	auditmetrics "ghostpass/pkg/platform/audit/metrics"
	"ghostpass/pkg/platform/audit/publisher"
	"ghostpass/pkg/platform/audit/publishers/ops"
	auditmemory "ghostpass/pkg/platform/audit/store/memory"
	auditpostgres "ghostpass/pkg/platform/audit/store/postgres"
	"ghostpass/pkg/platform/middleware/metadata"
	"ghostpass/pkg/platform/middleware/request"
	"ghostpass/pkg/platform/middleware/stationauth"
)

const statsInterval = 15 * time.Second

// infra holds the optional external connections. Nil members fall back to
// in-process stores.
type infra struct {
	db       *database.Pool
	redis    *redis.Client
	producer *producer.Producer
}

// stores is the persistence layer picked for this process.
type stores struct {
	audit    audit.Store
	balances balanceservice.Store
	broker   notify.Broker
	epochs   signer.EpochStore
	nonces   nonce.Store
	profiles profileservice.Store
	shifts   shiftservice.Store
}

type app struct {
	router   http.Handler
	infra    infra
	shutdown []func()
}

// buildApp connects the configured backends and assembles every service.
// It never starts background work; see run.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{}

	a.infra, err = connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	st := a.infra.stores(logger)

	auditOpts := []publisher.Option{
		publisher.WithLogger(logger),
		publisher.WithMetrics(auditmetrics.New()),
		publisher.WithRetry(cfg.Audit.RetryAttempts, cfg.Audit.RetryBackoff),
	}
	if a.infra.producer != nil {
		exporter := ops.New(a.infra.producer, cfg.Kafka.ShiftTopic,
			ops.WithLogger(logger),
			ops.WithMetrics(ops.NewMetrics()),
		)
		auditOpts = append(auditOpts, publisher.WithSink(exporter))
		a.shutdown = append(a.shutdown, exporter.Close)
	}
	auditor := publisher.New(st.audit, auditOpts...)

	sealer, err := signer.New([]byte(cfg.Token.SigningSecret), st.epochs)
	if err != nil {
		return nil, fmt.Errorf("init signer: %w", err)
	}

	ttl := models.TTLPolicy{Standard: cfg.Token.StandardTTL, Master: cfg.Token.MasterTTL}
	tr := tracer.NewOTel()

	balances := balanceservice.New(st.balances, st.broker, cfg.Token.LockThreshold,
		balanceservice.WithLogger(logger),
	)
	profiles := profileservice.New(st.profiles, profileservice.WithLogger(logger))
	minter := tokenservice.New(balances, sealer, ttl,
		tokenservice.WithLogger(logger),
		tokenservice.WithTracer(tr),
		tokenservice.WithMetrics(tokenmetrics.New()),
		tokenservice.WithRotationLead(cfg.Token.RotationLead),
	)
	views := view.New([]byte(cfg.View.Secret), cfg.View.TTL, sealer, profiles, auditor,
		view.WithLogger(logger),
	)
	engine := verify.New(sealer, st.nonces, profiles, auditor, cfg.Policy, verify.Config{
		TTL:           ttl,
		SkewTolerance: cfg.Verify.ClockSkewTolerance,
		Budget:        cfg.Verify.Budget,
	},
		verify.WithLogger(logger),
		verify.WithTracer(tr),
		verify.WithMetrics(verifymetrics.New()),
	)
	shifts := shiftservice.New(st.shifts, auditor,
		shiftservice.WithLogger(logger),
		shiftservice.WithMetrics(shiftmetrics.New()),
	)
	terminals := terminal.New(shifts, engine, auditor, terminal.WithLogger(logger))

	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return nil, err
	}

	a.router = httptransport.NewRouter(httptransport.Deps{
		Tokens:      tokenhandler.New(minter, logger),
		Views:       disclosurehandler.New(views, logger),
		Balances:    balancehandler.New(balances, logger),
		Profiles:    profilehandler.New(profiles, logger),
		Shifts:      shifthandler.New(shifts, logger),
		Terminals:   terminalhandler.New(terminals, logger),
		Health:      a.health(cfg),
		StationKeys: stationKeys(cfg.StationKeys),
		AdminToken:  cfg.AdminToken,
		Proxies:     metadata.NewMiddleware(proxies),
		Metrics:     request.NewMetrics(),
	}, logger)

	return a, nil
}

func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (infra, error) {
	var in infra

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		return in, fmt.Errorf("connect database: %w", err)
	}
	in.db = pool
	if pool != nil {
		if err := pool.Migrate(ctx, migrations.FS); err != nil {
			in.close()
			return in, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("postgres connected")
	}

	rc, err := redis.New(cfg.Redis)
	if err != nil {
		in.close()
		return in, fmt.Errorf("connect redis: %w", err)
	}
	in.redis = rc
	if rc != nil {
		logger.Info("redis connected")
	}

	if cfg.Kafka.Brokers != "" {
		p, err := producer.New(producer.DefaultConfig(cfg.Kafka.Brokers), logger)
		if err != nil {
			in.close()
			return in, fmt.Errorf("connect kafka: %w", err)
		}
		in.producer = p
		logger.Info("kafka producer ready", "topic", cfg.Kafka.ShiftTopic)
	}

	if cfg.IsProduction() && (in.db == nil || in.redis == nil) {
		in.close()
		return in, errors.New("production requires DATABASE_URL and REDIS_URL")
	}
	return in, nil
}

func (in infra) stores(logger *slog.Logger) stores {
	st := stores{
		audit:    auditmemory.New(),
		balances: balancestore.NewInMemory(),
		broker:   notify.NewMemory(),
		epochs:   signer.NewInMemoryEpochs(),
		nonces:   nonce.NewInMemory(),
		profiles: profilestore.NewInMemory(),
		shifts:   shiftstore.NewInMemory(),
	}
	if in.db != nil {
		st.audit = auditpostgres.New(in.db.DB())
		st.profiles = profilestore.NewPostgres(in.db.DB())
		st.shifts = shiftstore.NewPostgres(in.db.DB())
	}
	if in.redis != nil {
		st.balances = balancestore.NewRedis(in.redis.Client)
		st.broker = notify.NewRedis(in.redis.Client, logger)
		st.epochs = signer.NewRedisEpochs(in.redis.Client)
		st.nonces = nonce.NewRedis(in.redis.Client)
	}
	return st
}

func (in infra) close() {
	if in.producer != nil {
		_ = in.producer.Close() //nolint:errcheck // shutdown path
	}
	if in.redis != nil {
		_ = in.redis.Close() //nolint:errcheck // shutdown path
	}
	if in.db != nil {
		_ = in.db.Close() //nolint:errcheck // shutdown path
	}
}

func (a *app) health(cfg *config.Config) *health.Handler {
	h := health.New(cfg.Environment)
	if a.infra.db != nil {
		h.RegisterCheck("postgres", a.infra.db.Health)
	}
	if a.infra.redis != nil {
		h.RegisterCheck("redis", a.infra.redis.Health)
	}
	if a.infra.producer != nil {
		h.RegisterCheck("kafka", a.infra.producer.Health)
	}
	return h
}

// background starts the stats pollers. They stop when ctx is done.
func (a *app) background(ctx context.Context) {
	if a.infra.db != nil {
		go platformmetrics.RunDBStats(ctx, statsInterval, a.infra.db.Stats)
	}
	if a.infra.redis != nil {
		go a.infra.redis.RunPoolStats(ctx, statsInterval)
	}
}

// close drains exporters before dropping connections.
func (a *app) close() {
	for _, fn := range a.shutdown {
		fn()
	}
	a.infra.close()
}

func stationKeys(raw map[string]string) stationauth.KeyHashes {
	if len(raw) == 0 {
		return nil
	}
	keys := make(stationauth.KeyHashes, len(raw))
	for station, hash := range raw {
		keys[id.StationID(station)] = hash
	}
	return keys
}
