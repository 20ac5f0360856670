package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/twmb/franz-go/pkg/kgo"

	tokenhandler "instahelp/internal/captoken/handler"
	tokenservice "instahelp/internal/captoken/service"
	tokenstore "instahelp/internal/captoken/store"
	devicehandler "instahelp/internal/device/handler"
	deviceservice "instahelp/internal/device/service"
	devicestore "instahelp/internal/device/store"
	"instahelp/internal/directory"
	dirstore "instahelp/internal/directory/store"
	"instahelp/internal/emergency"
	emergencyhandler "instahelp/internal/emergency/handler"
	"instahelp/internal/envelope"
	governancehandler "instahelp/internal/governance/handler"
	governanceservice "instahelp/internal/governance/service"
	governancestore "instahelp/internal/governance/store"
	jwttoken "instahelp/internal/jwt_token"
	"instahelp/internal/notify"
	patienthandler "instahelp/internal/patient/handler"
	patientservice "instahelp/internal/patient/service"
	patientstore "instahelp/internal/patient/store"
	"instahelp/internal/platform/config"
	"instahelp/internal/platform/httpserver"
	"instahelp/internal/platform/logger"
	"instahelp/internal/platform/metrics"
	platformredis "instahelp/internal/platform/redis"
	"instahelp/internal/platform/tracing"
	"instahelp/internal/ratelimit"
	ratelimitstore "instahelp/internal/ratelimit/store"
	httptransport "instahelp/internal/transport/http"
	"instahelp/migrations"
	"instahelp/pkg/platform/audit"
	"instahelp/pkg/platform/audit/publisher"
	auditkafka "instahelp/pkg/platform/audit/store/kafka"
	auditmemory "instahelp/pkg/platform/audit/store/memory"
	auditpostgres "instahelp/pkg/platform/audit/store/postgres"
)

const devDeviceSecret = "dev-device-secret-change-in-production"

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// infra holds the optional backing services; nil fields fall back to
// in-process implementations.
type infra struct {
	db    *sql.DB
	redis *platformredis.Client
	kafka *kgo.Client
}

func (i *infra) close() {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		_ = shutdownTracing(context.Background())
	}()

	deps, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.close()

	m := metrics.New()
	auditPublisher := buildAuditPublisher(cfg, deps, m, log)
	defer auditPublisher.Close()

	cipher, err := loadCipher(cfg, log)
	if err != nil {
		return err
	}
	jwtService := jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)

	var (
		patientStore   patientservice.Store      = patientstore.NewInMemory()
		tokenStore     tokenservice.Store        = tokenstore.NewInMemory()
		changeStore    governanceservice.Store   = governancestore.NewInMemory()
		deviceStore    deviceservice.Store       = devicestore.NewInMemory()
		directoryStore directory.Store           = dirstore.NewInMemory()
		replayGuard    deviceservice.ReplayGuard = devicestore.NewMemoryReplayGuard()
		rateStore      ratelimit.Store           = ratelimitstore.NewInMemory()
		governanceOpts                           = []governanceservice.Option{}
		notifier       notify.Notifier           = notify.NewLogNotifier(log)
		readiness                                = map[string]httptransport.ReadinessCheck{}
	)
	if deps.db != nil {
		patientStore = patientstore.NewPostgres(deps.db)
		tokenStore = tokenstore.NewPostgres(deps.db)
		changeStore = governancestore.NewPostgres(deps.db)
		deviceStore = devicestore.NewPostgres(deps.db)
		directoryStore = dirstore.NewPostgres(deps.db)
		governanceOpts = append(governanceOpts, governanceservice.WithStoreTx(newGovernancePostgresTx(deps.db, cfg.Governor.LockTimeout)))
		readiness["database"] = deps.db.PingContext
	} else {
		governanceOpts = append(governanceOpts, governanceservice.WithStoreTx(governanceservice.NewShardedTx(changeStore, cfg.Governor.LockTimeout)))
	}
	if deps.redis != nil {
		replayGuard = devicestore.NewRedisReplayGuard(deps.redis.Client)
		rateStore = ratelimitstore.NewRedis(deps.redis.Client)
		readiness["redis"] = deps.redis.Ready
	}
	if deps.kafka != nil {
		notifier = notify.NewKafkaNotifier(deps.kafka, cfg.Kafka.NotifyTopic)
		readiness["kafka"] = deps.kafka.Ping
	}

	broker := tokenservice.New(tokenStore,
		tokenservice.WithLogger(log),
		tokenservice.WithAuditPublisher(auditPublisher),
		tokenservice.WithMetrics(m),
		tokenservice.WithTTL(cfg.Tokens.TTL),
		tokenservice.WithFrontendURL(cfg.FrontendURL),
	)
	dir := directory.New(directoryStore)
	patients := patientservice.New(patientStore, cipher, broker, dir,
		patientservice.WithLogger(log),
		patientservice.WithAuditPublisher(auditPublisher),
	)
	governor := governanceservice.New(changeStore, patients, dir, notifier, append(governanceOpts,
		governanceservice.WithLogger(log),
		governanceservice.WithAuditPublisher(auditPublisher),
		governanceservice.WithMetrics(m),
		governanceservice.WithNotifyLimits(cfg.Notify.Timeout, cfg.Notify.Concurrency),
	)...)
	devices := deviceservice.New(deviceStore, replayGuard, patients, deviceSecret(cfg, log),
		deviceservice.WithLogger(log),
		deviceservice.WithAuditPublisher(auditPublisher),
		deviceservice.WithMetrics(m),
		deviceservice.WithAuthMode(cfg.Device.AuthMode),
		deviceservice.WithReplayWindow(cfg.Device.ReplayWindow),
	)
	views := emergency.New(broker, patients,
		emergency.WithLogger(log),
		emergency.WithAuditPublisher(auditPublisher),
		emergency.WithMetrics(m),
	)

	deviceHTTP := devicehandler.New(devices, log)
	limiter := ratelimit.NewLimiter(rateStore,
		ratelimit.WithLogger(log),
		ratelimit.WithFallback(ratelimitstore.NewInMemory()),
	)
	router := httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Metrics:        m,
		Validator:      jwttoken.NewJWTServiceAdapter(jwtService),
		RequestTimeout: cfg.RequestTimeout,
		RateLimit:      ratelimit.NewMiddleware(limiter, log, ratelimit.WithDisabled(cfg.RateLimit.Disabled)),
		Limits: httptransport.Limits{
			Device:    ratelimit.Limit{Requests: cfg.RateLimit.DeviceRequests, Window: cfg.RateLimit.DeviceWindow},
			Emergency: ratelimit.Limit{Requests: cfg.RateLimit.EmergencyRequests, Window: cfg.RateLimit.EmergencyWindow},
		},
		Telemetry: deviceHTTP,
		Emergency: emergencyhandler.New(views, log),
		Protected: []httptransport.Registrar{
			patienthandler.New(patients, broker, log),
			governancehandler.New(governor, log),
			tokenhandler.New(broker, patients, log),
			deviceHTTP,
		},
		Ready: readiness,
	})

	srv := httpserver.New(cfg.Addr, router, cfg.RequestTimeout)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting instahelp", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func connect(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	deps := &infra{}

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		deps.db = db
		if err := db.PingContext(ctx); err != nil {
			deps.close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		if err := migrations.Apply(ctx, db); err != nil {
			deps.close()
			return nil, err
		}
	} else {
		log.Warn("no database configured, using in-memory stores")
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		deps.close()
		return nil, err
	}
	deps.redis = redisClient

	if len(cfg.Kafka.Brokers) > 0 {
		client, err := auditkafka.NewClient(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			deps.close()
			return nil, fmt.Errorf("connect kafka: %w", err)
		}
		deps.kafka = client
		for _, topic := range []string{cfg.Kafka.Topic, cfg.Kafka.NotifyTopic} {
			if err := auditkafka.EnsureTopic(ctx, client, topic, cfg.Kafka.Partitions, cfg.Kafka.Replicas); err != nil {
				log.Warn("failed to ensure kafka topic", "topic", topic, "error", err)
			}
		}
	}
	return deps, nil
}

func buildAuditPublisher(cfg config.Server, deps *infra, m *metrics.Metrics, log *slog.Logger) *publisher.Publisher {
	var store audit.Store = auditmemory.NewInMemoryStore()
	if deps.db != nil {
		store = auditpostgres.New(deps.db)
	}
	opts := []publisher.Option{
		publisher.WithLogger(log),
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithAppendTimeout(cfg.Audit.AppendTimeout),
		publisher.WithDroppedCounter(m.AuditDropped),
	}
	if deps.kafka != nil {
		opts = append(opts, publisher.WithMirror("audit-kafka", auditkafka.NewSink(deps.kafka, cfg.Kafka.Topic)))
	}
	return publisher.NewPublisher(store, opts...)
}

// loadCipher reads the master key pair. Outside production a missing pair
// is replaced by an ephemeral key, so encrypted data does not survive a
// restart.
func loadCipher(cfg config.Server, log *slog.Logger) (*envelope.Cipher, error) {
	if cfg.Crypto.PrivatePath != "" || cfg.Crypto.PublicPath != "" {
		cipher, err := envelope.LoadFromFiles(cfg.Crypto.PrivatePath, cfg.Crypto.PublicPath)
		if err != nil {
			return nil, fmt.Errorf("load master key: %w", err)
		}
		return cipher, nil
	}
	log.Warn("no master key configured, generating an ephemeral key pair")
	key, err := envelope.GenerateMasterKey(envelope.MinMasterKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	return envelope.New(envelope.WithPrivateKey(key)), nil
}

func deviceSecret(cfg config.Server, log *slog.Logger) []byte {
	if cfg.Device.HMACSecret != "" {
		return []byte(cfg.Device.HMACSecret)
	}
	log.Warn("no device HMAC secret configured, using the development secret")
	return []byte(devDeviceSecret)
}
