package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"checkin/internal/audit"
	checkinHandler "checkin/internal/checkin/handler"
	checkinMetrics "checkin/internal/checkin/metrics"
	checkinService "checkin/internal/checkin/service"
	"checkin/internal/checkin/store/idempotency"
	gateHandler "checkin/internal/gate/handler"
	gateMetrics "checkin/internal/gate/metrics"
	gateService "checkin/internal/gate/service"
	gateStore "checkin/internal/gate/store"
	httpapi "checkin/internal/http"
	"checkin/internal/platform/config"
	"checkin/internal/platform/httpserver"
	"checkin/internal/platform/logger"
	"checkin/internal/platform/metrics"
	"checkin/internal/platform/postgres"
	platformRedis "checkin/internal/platform/redis"
	"checkin/internal/platform/tracing"
	reportHandler "checkin/internal/report/handler"
	reportMetrics "checkin/internal/report/metrics"
	reportService "checkin/internal/report/service"
	"checkin/internal/roster/models"
	rosterStore "checkin/internal/roster/store"
)

const (
	serviceName          = "checkin"
	auditTopicPartitions = 3
	idempotencySweep     = time.Minute
)

// candidateStore is what the server needs from the roster: the ledger's
// lookups and writes plus the full scan behind reports.
type candidateStore interface {
	checkinService.CandidateStore
	reportService.Lister
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, serviceName, cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	cutoff, ok := models.ParseSlotDate(cfg.ReportCutoff)
	if !ok {
		return fmt.Errorf("REPORT_CUTOFF %q is not a dd/mm/yyyy date", cfg.ReportCutoff)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checks := map[string]httpapi.HealthCheck{}

	db, err := postgres.Open(ctx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	var candidates candidateStore
	if db != nil {
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		candidates = rosterStore.NewPostgres(db)
		checks["postgres"] = db.PingContext
		log.Info("using postgres candidate store")
	} else {
		mem := rosterStore.NewInMemory()
		if cfg.Database.RosterCSV == "" {
			log.Warn("DATABASE_URL and ROSTER_CSV not set, in-memory roster is empty")
		} else {
			n, err := rosterStore.SeedFromCSV(ctx, mem, cfg.Database.RosterCSV)
			if err != nil {
				return fmt.Errorf("seed roster: %w", err)
			}
			log.Info("using in-memory candidate store", "roster_csv", cfg.Database.RosterCSV, "candidates", n)
		}
		candidates = mem
	}

	redisClient, err := platformRedis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = redisClient.Health
	}

	g, ctx := errgroup.WithContext(ctx)

	sink, closeSink, err := newAuditSink(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer closeSink()
	if ks, ok := sink.(*audit.KafkaSink); ok {
		checks["kafka"] = ks.Ping
	}
	publisher, err := audit.NewPublisher(sink,
		audit.WithBuffer(cfg.Kafka.AuditBuffer),
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}
	// The publisher outlives the signal context so events from requests still
	// in flight during shutdown are delivered.
	publishCtx, stopPublishing := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPublishing()
	g.Go(func() error { return publisher.Run(publishCtx) })

	gm := gateMetrics.New(reg)
	var gateBackend gateService.Store
	if redisClient != nil {
		gateBackend = gateStore.NewResilient(
			gateStore.NewRedis(redisClient, gateStore.DefaultKey),
			gateStore.WithLogger(log),
			gateStore.WithMetrics(gm),
		)
	} else {
		gateBackend = gateStore.NewMemory(true)
	}
	gate, err := gateService.New(gateBackend,
		gateService.WithLogger(log),
		gateService.WithMetrics(gm),
		gateService.WithAuditPublisher(publisher),
	)
	if err != nil {
		return err
	}

	var tokens checkinService.IdempotencyStore
	if redisClient != nil {
		tokens = idempotency.NewRedis(redisClient)
	} else {
		mem := idempotency.NewInMemory()
		g.Go(func() error { return mem.RunSweeper(ctx, idempotencySweep) })
		tokens = mem
	}

	checkins, err := checkinService.New(candidates, gate,
		checkinService.WithLogger(log),
		checkinService.WithMetrics(checkinMetrics.New(reg)),
		checkinService.WithAuditPublisher(publisher),
		checkinService.WithIdempotency(tokens, cfg.IdempotencyTTL),
	)
	if err != nil {
		return err
	}

	reports, err := reportService.New(candidates,
		reportService.WithLogger(log),
		reportService.WithMetrics(reportMetrics.New(reg)),
		reportService.WithCutoff(cutoff),
	)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.Config{
		Logger:     log,
		Metrics:    metrics.New(reg),
		Gatherer:   reg,
		CORSOrigin: cfg.CORSOrigin,
		Checks:     checks,
	},
		checkinHandler.New(checkins, log),
		gateHandler.New(gate, log),
		reportHandler.New(reports, log),
	)
	srv := httpserver.New(cfg.Addr, router)

	g.Go(func() error {
		log.Info("check-in service listening", "addr", cfg.Addr, "report_cutoff", cutoff.Label())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		return shutdownInOrder(cfg.ShutdownTimeout, srv.Shutdown, stopPublishing)
	})

	return g.Wait()
}

// shutdownInOrder stops serving within timeout, then runs each follow-up
// (for example draining the audit publisher) regardless of the outcome.
func shutdownInOrder(timeout time.Duration, stopServing func(context.Context) error, then ...func()) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := stopServing(ctx)
	for _, fn := range then {
		fn()
	}
	return err
}

// newAuditSink returns the Kafka sink when brokers are configured and the
// in-memory sink otherwise.
func newAuditSink(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) (audit.Sink, func(), error) {
	if len(cfg.Brokers) == 0 {
		log.Warn("KAFKA_BROKERS not set, audit events kept in memory")
		return audit.NewMemorySink(), func() {}, nil
	}
	sink, err := audit.NewKafkaSink(cfg.Brokers, cfg.AuditTopic)
	if err != nil {
		return nil, nil, fmt.Errorf("audit sink: %w", err)
	}
	topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sink.EnsureTopic(topicCtx, auditTopicPartitions, 1); err != nil {
		log.Warn("could not ensure audit topic", "topic", cfg.AuditTopic, "error", err)
	}
	return sink, sink.Close, nil
}
