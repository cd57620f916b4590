package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/slok/taskbroker/internal/api"
	"github.com/slok/taskbroker/internal/app/dispute"
	"github.com/slok/taskbroker/internal/app/lifecycle"
	"github.com/slok/taskbroker/internal/app/payment"
	"github.com/slok/taskbroker/internal/app/query"
	"github.com/slok/taskbroker/internal/app/sweep"
	"github.com/slok/taskbroker/internal/kv"
	kvmemory "github.com/slok/taskbroker/internal/kv/memory"
	kvredis "github.com/slok/taskbroker/internal/kv/redis"
	"github.com/slok/taskbroker/internal/log"
	metricsprometheus "github.com/slok/taskbroker/internal/metrics/prometheus"
	"github.com/slok/taskbroker/internal/notify"
	"github.com/slok/taskbroker/internal/notify/logsink"
	"github.com/slok/taskbroker/internal/notify/webhooksink"
)

const (
	kvMemory = "memory"
	kvRedis  = "redis"
)

type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
	gateway *gatewayFlags

	listenAddress        string
	metricsListenAddress string
	kv                   string
	redisURL             string
	notifyWebhookURL     string
	sweepSchedule        string
	webhookSecret        string
	allowedOrigins       []string
	shutdownTimeout      time.Duration
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Run the broker API, the timeout sweeper and the notification dispatcher.")
	c.Cmd.Flag("listen-address", "Address the API listens on.").Default(":8080").StringVar(&c.listenAddress)
	c.Cmd.Flag("metrics-listen-address", "Address the Prometheus metrics are served on.").Default(":8081").StringVar(&c.metricsListenAddress)
	c.Cmd.Flag("kv", "Key-value store used to deduplicate webhooks.").Default(kvMemory).EnumVar(&c.kv, kvMemory, kvRedis)
	c.Cmd.Flag("redis-address", "Redis URL (redis://host:port/db) when the redis key-value store is used.").Default("redis://localhost:6379/0").StringVar(&c.redisURL)
	c.Cmd.Flag("notify-webhook-url", "URL notification events are POSTed to, disabled when empty.").StringVar(&c.notifyWebhookURL)
	c.Cmd.Flag("sweep-schedule", "Cron schedule of the dispute timeout sweeper.").Default("@every 5m").StringVar(&c.sweepSchedule)
	c.Cmd.Flag("webhook-secret", "Secret of the gateway webhook signatures, the check is disabled when empty.").Envar("TASKBROKER_WEBHOOK_SECRET").StringVar(&c.webhookSecret)
	c.Cmd.Flag("cors-allowed-origin", "Allowed CORS origin, can be repeated.").StringsVar(&c.allowedOrigins)
	c.Cmd.Flag("shutdown-timeout", "Time to wait for in flight requests on shutdown.").Default("15s").DurationVar(&c.shutdownTimeout)
	c.gateway = registerGatewayFlags(c.Cmd, gatewayFake)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	platform, err := c.rootCmd.PlatformConfig(ctx)
	if err != nil {
		return err
	}

	repo, err := c.rootCmd.Repository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metricsprometheus.NewRecorder(reg)

	dedupe, closeKV, err := c.newKV(ctx, logger)
	if err != nil {
		return err
	}
	defer closeKV()

	gw, err := c.gateway.build(platform, logger)
	if err != nil {
		return err
	}

	sinks := []notify.Sink{logsink.NewSink(logger)}
	if c.notifyWebhookURL != "" {
		s, err := webhooksink.NewSink(webhooksink.SinkConfig{
			URL:        c.notifyWebhookURL,
			MaxRetries: 3,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("could not create webhook sink: %w", err)
		}
		sinks = append(sinks, s)
	}
	dispatcher, err := notify.NewDispatcher(notify.DispatcherConfig{
		Sinks:   sinks,
		Metrics: recorder,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("could not create dispatcher: %w", err)
	}

	payments, err := payment.NewService(payment.ServiceConfig{
		Repository: repo,
		Gateway:    gw,
		Dedupe:     dedupe,
		Publisher:  dispatcher,
		Metrics:    recorder,
		Platform:   platform,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create payment service: %w", err)
	}

	tasks, err := lifecycle.NewService(lifecycle.ServiceConfig{
		Repository: repo,
		Payments:   payments,
		Publisher:  dispatcher,
		Metrics:    recorder,
		Platform:   platform,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create lifecycle service: %w", err)
	}

	disputes, err := dispute.NewService(dispute.ServiceConfig{
		Repository: repo,
		Payments:   payments,
		Publisher:  dispatcher,
		Metrics:    recorder,
		Platform:   platform,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create dispute service: %w", err)
	}

	queries, err := query.NewService(query.ServiceConfig{Repository: repo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create query service: %w", err)
	}

	sweeper, err := sweep.NewService(sweep.ServiceConfig{
		Repository: repo,
		Disputer:   tasks,
		Timeout:    platform.DisputeTimeout,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create sweep service: %w", err)
	}

	handler, err := api.NewHandler(api.HandlerConfig{
		Tasks:          tasks,
		Payments:       payments,
		Disputes:       disputes,
		Queries:        queries,
		WebhookSecret:  c.webhookSecret,
		AllowedOrigins: c.allowedOrigins,
		Metrics:        recorder,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("could not create api handler: %w", err)
	}
	if c.webhookSecret == "" {
		logger.Warningf("Gateway webhook signature check is disabled")
	}

	var g run.Group

	// Context cancellation (signals are handled by main).
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				<-ctx.Done()
				return nil
			},
			func(_ error) { cancel() },
		)
	}

	// API server.
	{
		server := &http.Server{Addr: c.listenAddress, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
		g.Add(
			func() error {
				logger.Infof("API listening on %s", c.listenAddress)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("api server failed: %w", err)
				}
				return nil
			},
			func(_ error) { c.shutdown(server, logger) },
		)
	}

	// Metrics server.
	{
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: c.metricsListenAddress, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Add(
			func() error {
				logger.Infof("Metrics listening on %s", c.metricsListenAddress)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("metrics server failed: %w", err)
				}
				return nil
			},
			func(_ error) { c.shutdown(server, logger) },
		)
	}

	// Notification dispatcher.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error { return dispatcher.Run(ctx) },
			func(_ error) { cancel() },
		)
	}

	// Dispute timeout sweeper.
	{
		ctx, cancel := context.WithCancel(ctx)
		scheduler := cron.New()
		_, err := scheduler.AddFunc(c.sweepSchedule, func() {
			n, err := sweeper.Run(ctx)
			if err != nil {
				logger.Errorf("Dispute timeout sweep failed: %s", err)
			}
			if n > 0 {
				logger.Infof("Dispute timeout sweep raised %d disputes", n)
			}
		})
		if err != nil {
			cancel()
			return fmt.Errorf("invalid sweep schedule %q: %w", c.sweepSchedule, err)
		}

		g.Add(
			func() error {
				scheduler.Start()
				<-ctx.Done()
				return nil
			},
			func(_ error) {
				cancel()
				<-scheduler.Stop().Done()
			},
		)
	}

	return g.Run()
}

func (c ServeCommand) newKV(ctx context.Context, logger log.Logger) (kv.Store, func(), error) {
	if c.kv != kvRedis {
		return kvmemory.NewStore(nil), func() {}, nil
	}

	cli, err := kvredis.NewClient(ctx, c.redisURL)
	if err != nil {
		return nil, nil, err
	}
	store, err := kvredis.NewStore(kvredis.StoreConfig{Client: cli, KeyPrefix: "taskbroker:", Logger: logger})
	if err != nil {
		_ = cli.Close()
		return nil, nil, fmt.Errorf("could not create redis store: %w", err)
	}

	return store, func() { _ = cli.Close() }, nil
}

func (c ServeCommand) shutdown(server *http.Server, logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Could not shut down server %s: %s", server.Addr, err)
	}
}
