package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/absmach/supermq/pkg/prometheus"
	"github.com/absmach/supermq/pkg/server"
	httpserver "github.com/absmach/supermq/pkg/server/http"
	"github.com/caarlos0/env/v11"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	smqjaeger "github.com/absmach/supermq/pkg/jaeger"

	"github.com/fedloop/fedloop/coordinator"
	"github.com/fedloop/fedloop/coordinator/api"
	"github.com/fedloop/fedloop/coordinator/middleware"
	"github.com/fedloop/fedloop/pkg/aggregate"
	"github.com/fedloop/fedloop/pkg/cron"
	"github.com/fedloop/fedloop/pkg/drift"
	"github.com/fedloop/fedloop/pkg/mqtt"
	"github.com/fedloop/fedloop/pkg/registry"
	"github.com/fedloop/fedloop/pkg/storage"
	"github.com/fedloop/fedloop/scheduler"
	"github.com/fedloop/fedloop/session"
)

const (
	svcName       = "coordinator"
	defHTTPPort   = "7070"
	envPrefixHTTP = "COORDINATOR_HTTP_"
	pathEnv       = ".env"
)

type envConfig struct {
	LogLevel      string        `env:"COORDINATOR_LOG_LEVEL"       envDefault:"info"`
	InstanceID    string        `env:"COORDINATOR_INSTANCE_ID"`
	Cluster       string        `env:"COORDINATOR_CLUSTER"         envDefault:"default"`
	CheckpointDir string        `env:"COORDINATOR_CHECKPOINT_DIR"  envDefault:"./checkpoints"`
	MQTTAddress   string        `env:"COORDINATOR_MQTT_ADDRESS"    envDefault:"tcp://localhost:1883"`
	MQTTQoS       uint8         `env:"COORDINATOR_MQTT_QOS"        envDefault:"2"`
	MQTTTimeout   time.Duration `env:"COORDINATOR_MQTT_TIMEOUT"    envDefault:"30s"`
	MQTTUsername  string        `env:"COORDINATOR_MQTT_USERNAME"`
	MQTTPassword  string        `env:"COORDINATOR_MQTT_PASSWORD"`

	RegistryURL      string        `env:"COORDINATOR_REGISTRY_URL"`
	RegistryTimeout  time.Duration `env:"COORDINATOR_REGISTRY_TIMEOUT"  envDefault:"30s"`
	RegistryAttempts uint64        `env:"COORDINATOR_REGISTRY_ATTEMPTS" envDefault:"5"`

	DriftStatistic  string  `env:"COORDINATOR_DRIFT_STATISTIC"   envDefault:"psi"`
	DriftReduction  string  `env:"COORDINATOR_DRIFT_REDUCTION"   envDefault:"mean"`
	DriftThreshold  float64 `env:"COORDINATOR_DRIFT_THRESHOLD"   envDefault:"0.5"`
	DriftMinSamples int     `env:"COORDINATOR_DRIFT_MIN_SAMPLES" envDefault:"30"`

	Cooldown     time.Duration `env:"COORDINATOR_RETRAIN_COOLDOWN" envDefault:"30m"`
	CronSchedule string        `env:"COORDINATOR_CRON_SCHEDULE"`
	Timezone     string        `env:"COORDINATOR_TIMEZONE"         envDefault:"UTC"`

	ScheduledRounds     int `env:"COORDINATOR_SCHEDULED_ROUNDS"      envDefault:"10"`
	ScheduledMinClients int `env:"COORDINATOR_SCHEDULED_MIN_CLIENTS" envDefault:"2"`
	ScheduledSchema     int `env:"COORDINATOR_SCHEDULED_SCHEMA"      envDefault:"1024"`

	OTELURL    url.URL `env:"COORDINATOR_OTEL_URL"`
	TraceRatio float64 `env:"COORDINATOR_TRACE_RATIO" envDefault:"0"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	var tp trace.TracerProvider
	switch {
	case cfg.OTELURL == (url.URL{}):
		tp = noop.NewTracerProvider()
	default:
		sdktp, err := smqjaeger.NewProvider(ctx, svcName, cfg.OTELURL, "", cfg.TraceRatio)
		if err != nil {
			logger.Error("failed to initialize opentelemetry", slog.String("error", err.Error()))

			return
		}
		defer func() {
			if err := sdktp.Shutdown(ctx); err != nil {
				logger.Error("error shutting down tracer provider", slog.Any("error", err))
			}
		}()
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	mqttPubSub, err := mqtt.NewPubSub(cfg.MQTTAddress, cfg.MQTTQoS, svcName, cfg.MQTTUsername, cfg.MQTTPassword, cfg.Cluster, cfg.MQTTTimeout, logger)
	if err != nil {
		logger.Error("failed to initialize mqtt pubsub", slog.String("error", err.Error()))

		return
	}

	monitor, err := drift.NewMonitor(drift.Config{
		Statistic:  cfg.DriftStatistic,
		Reduction:  cfg.DriftReduction,
		Threshold:  cfg.DriftThreshold,
		MinSamples: cfg.DriftMinSamples,
	})
	if err != nil {
		logger.Error("failed to initialize drift monitor", slog.String("error", err.Error()))

		return
	}

	var reg registry.Registry
	switch cfg.RegistryURL {
	case "":
		reg = registry.NewInMemoryRegistry()
	default:
		reg = registry.NewHTTPRegistry(cfg.RegistryURL, cfg.RegistryTimeout)
	}
	reg = registry.NewRetrying(reg, cfg.RegistryAttempts)

	checkpoints, err := coordinator.NewCheckpointStore(cfg.CheckpointDir)
	if err != nil {
		logger.Error("failed to initialize checkpoint store", slog.String("error", err.Error()))

		return
	}

	telemetry := &coordinator.Telemetry{
		RoundsCompleted: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: svcName,
			Subsystem: "sessions",
			Name:      "rounds_completed_total",
			Help:      "Number of closed rounds.",
		}, []string{"cluster"}),
		SessionOutcomes: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: svcName,
			Subsystem: "sessions",
			Name:      "outcomes_total",
			Help:      "Terminal session outcomes.",
		}, []string{"outcome"}),
		DriftScore: kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
			Namespace: svcName,
			Subsystem: "drift",
			Name:      "score",
			Help:      "Observed drift scores.",
		}, []string{}),
	}

	svc := coordinator.NewService(
		storage.NewSessionRepository(storage.NewInMemoryStorage()),
		storage.NewNodeRepository(storage.NewInMemoryStorage()),
		aggregate.NewFedAvg(),
		monitor,
		reg,
		checkpoints,
		mqttPubSub,
		telemetry,
		logger,
	)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, svc)

	if err := svc.Subscribe(ctx); err != nil {
		logger.Error("failed to subscribe to coordinator topics", slog.String("error", err.Error()))

		return
	}

	schedOpts := []scheduler.Option{
		scheduler.WithCooldown(cfg.Cooldown),
		scheduler.WithDriftThreshold(cfg.DriftThreshold),
	}
	if cfg.CronSchedule != "" {
		schedule, err := cron.ParseCronExpression(cfg.CronSchedule)
		if err != nil {
			logger.Error("failed to parse cron schedule", slog.String("error", err.Error()))

			return
		}
		schedOpts = append(schedOpts, scheduler.WithSchedule(schedule, cfg.Timezone, session.Config{
			Cluster:     cfg.Cluster,
			NumRounds:   cfg.ScheduledRounds,
			MinClients:  cfg.ScheduledMinClients,
			ModelSchema: cfg.ScheduledSchema,
		}))
	}
	sched := scheduler.New(svc, logger, schedOpts...)

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	hs := httpserver.NewServer(ctx, cancel, svcName, httpServerConfig, api.MakeHandler(svc, sched, logger, cfg.InstanceID), logger)

	g.Go(func() error {
		return hs.Start()
	})

	g.Go(func() error {
		return sched.Start(ctx)
	})

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, svcName, hs)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}
