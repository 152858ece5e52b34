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

	"golang.org/x/sync/errgroup"

	cfhttp "github.com/Strob0t/forgetop/internal/adapter/http"
	"github.com/Strob0t/forgetop/internal/adapter/kvsummary"
	cfnats "github.com/Strob0t/forgetop/internal/adapter/nats"
	"github.com/Strob0t/forgetop/internal/adapter/natskv"
	cfotel "github.com/Strob0t/forgetop/internal/adapter/otel"
	"github.com/Strob0t/forgetop/internal/adapter/ristretto"
	"github.com/Strob0t/forgetop/internal/adapter/tiered"
	"github.com/Strob0t/forgetop/internal/adapter/ws"
	"github.com/Strob0t/forgetop/internal/config"
	"github.com/Strob0t/forgetop/internal/domain/cost"
	"github.com/Strob0t/forgetop/internal/domain/project"
	"github.com/Strob0t/forgetop/internal/logger"
	"github.com/Strob0t/forgetop/internal/port/control"
	"github.com/Strob0t/forgetop/internal/port/feed"
	"github.com/Strob0t/forgetop/internal/port/summary"
	"github.com/Strob0t/forgetop/internal/resilience"
	"github.com/Strob0t/forgetop/internal/service"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "ctl" {
		if err := runCtl(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		fmt.Fprintln(os.Stderr, "forgetop:", err)
		os.Exit(1)
	}
}

// transport is the platform link: one value usually serves all three roles.
type transport struct {
	feed  feed.Feed
	sink  control.Sink
	acks  control.AckSource
	queue *cfnats.Queue
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer closeLog.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"feed", cfg.Feed.Transport,
		"optimistic_controls", cfg.Dashboard.OptimisticControls,
		"budget", cfg.Budget.Amount,
		"period", cfg.Budget.Period,
		"http_addr", cfg.Server.Addr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownOtel, err := cfotel.Init(ctx, cfg.Telemetry, cfg.Logging.Service, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			log.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	tr, err := connectTransport(ctx, cfg, log)
	if err != nil {
		return err
	}
	if tr.queue != nil {
		defer func() { _ = tr.queue.Drain() }()
	}

	summaryQueue := tr.queue
	if summaryQueue == nil && cfg.NATS.URL != "" {
		q, err := cfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			log.Warn("summaries unavailable, estimating from agents", "error", err)
		} else {
			summaryQueue = q
			defer func() { _ = q.Close() }()
		}
	}
	source, stopSummaries := summarySource(ctx, cfg, summaryQueue, log)
	defer stopSummaries()

	// --- Services ---

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	breaker.OnStateChange(func(from, to resilience.State) {
		log.Warn("control breaker state changed", "from", from.String(), "to", to.String())
	})
	sink := resilience.NewGuardedSink(tr.sink, breaker, 5*time.Second)

	hub := ws.NewHub(log)
	defer hub.Close()

	registry := service.NewAgentRegistry(sink, service.RegistryConfig{
		Optimistic:     cfg.Dashboard.OptimisticControls,
		Strict:         cfg.Feed.Strict,
		ControlTimeout: cfg.Dashboard.ControlTimeout,
	}, log)
	registry.SetMetrics(metrics)
	registry.SetBroadcaster(hub)

	catalog := service.NewProjectCatalog(log)
	catalog.Actions().SetProjects(projects(cfg.Projects))

	policy, err := cost.ParsePolicy(cfg.Dashboard.CostPolicy)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	dash := service.NewDashboard(registry,
		service.NewViewState(service.DefaultView(pageSize(cfg.Dashboard.PageSize))),
		catalog,
		service.NewSummaryService(source, log),
		service.DashboardConfig{
			Budget:          cfg.Budget.Amount,
			Period:          cost.Period(cfg.Budget.Period),
			Policy:          policy,
			AgentBudget:     cfg.Dashboard.AgentBudget,
			Threshold:       cfg.Quality.Threshold,
			RefreshInterval: cfg.Dashboard.RefreshInterval,
		},
		log,
	)
	hub.SetGreeting(func() (ws.Message, error) {
		return ws.NewMessage(ws.EventSnapshot, dash.AgentPage())
	})

	// --- Run ---

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dash.Run(gctx, tr.feed, tr.acks)
	})

	if cfg.Server.Addr != "" {
		limiter := cfhttp.NewControlLimiter(cfg.Server.ControlRate, cfg.Server.ControlBurst)
		handlers := &cfhttp.Handlers{Dashboard: dash, Hub: hub, Limiter: limiter}
		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           cfhttp.NewRouter(handlers, log, cfg.Logging.Service),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		g.Go(func() error {
			log.Info("starting server", "addr", cfg.Server.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					limiter.Forget(time.Minute)
				}
			}
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if r := newRenderer(dash, os.Stdout); r != nil {
		g.Go(func() error { return r.Run(gctx, cfg.Dashboard.RefreshInterval) })
	}

	err = g.Wait()
	log.Info("shutting down")
	return err
}

func connectTransport(ctx context.Context, cfg *config.Config, log *slog.Logger) (transport, error) {
	switch cfg.Feed.Transport {
	case "nats":
		q, err := cfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return transport{}, fmt.Errorf("nats: %w", err)
		}
		a := cfnats.NewAgents(q)
		return transport{feed: a, sink: a, acks: a, queue: q}, nil
	default:
		c := ws.NewClient(ws.ClientConfig{
			URL:          cfg.Feed.WSURL,
			ReconnectMin: cfg.Feed.ReconnectMin,
			ReconnectMax: cfg.Feed.ReconnectMax,
		}, log)
		return transport{feed: c, sink: c, acks: c}, nil
	}
}

// summarySource reads published summaries from the NATS KV bucket through an
// in-process cache. Without NATS the dashboard derives summaries from the
// agents it sees.
func summarySource(ctx context.Context, cfg *config.Config, q *cfnats.Queue, log *slog.Logger) (summary.Source, func()) {
	if q == nil {
		return nil, func() {}
	}

	kv, err := q.KeyValue(ctx, cfg.NATS.SummaryBucket, 0)
	if err != nil {
		log.Warn("summaries unavailable, estimating from agents", "bucket", cfg.NATS.SummaryBucket, "error", err)
		return nil, func() {}
	}
	remote := natskv.New(kv)

	local, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		log.Warn("summary cache disabled", "error", err)
		return kvsummary.New(remote), func() {}
	}

	c := tiered.New(local, remote, cfg.Cache.L1Expire)
	stopWatch, err := remote.Watch(ctx, func(key string) {
		if err := c.Invalidate(ctx, key); err != nil {
			log.Debug("summary invalidate", "key", key, "error", err)
		}
	})
	if err != nil {
		log.Warn("summary watch disabled, relying on cache expiry", "error", err)
		stopWatch = func() {}
	}
	return kvsummary.New(c), func() {
		stopWatch()
		local.Close()
	}
}

func projects(in []config.Project) []project.Project {
	out := make([]project.Project, 0, len(in))
	for _, p := range in {
		out = append(out, project.Project{ID: p.ID, Name: p.Name, Path: p.Path, Provider: p.Provider})
	}
	return out
}
