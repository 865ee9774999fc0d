// Command cycledlist runs the EODHD-backed cycled list: a single named
// workflow of market-data sync jobs, repeated cycle after cycle, with its
// status and controls exposed over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/marketsync/cycledlist/catalogue"
	"github.com/marketsync/cycledlist/config"
	"github.com/marketsync/cycledlist/cycle"
	"github.com/marketsync/cycledlist/executor"
	"github.com/marketsync/cycledlist/internal/httpapi"
	"github.com/marketsync/cycledlist/jobstore"
	"github.com/marketsync/cycledlist/observability"
	"github.com/marketsync/cycledlist/provider"
	"github.com/marketsync/cycledlist/workflow"
)

func main() {
	var (
		configFile    = flag.String("config", "", "Path to a JSON config file (optional — defaults apply without one)")
		name          = flag.String("name", "", "Name of the cycled list (overrides config)")
		storeName     = flag.String("store", "", "jobstore backend: memory, postgres, redis (overrides config)")
		addr          = flag.String("addr", "", "HTTP listen address (overrides config)")
		maxCycles     = flag.Int("max-cycles", -1, "Stop after this many cycles; -1 keeps the config value")
		cycleInterval = flag.String("cycle-interval", "", "Delay between cycles, e.g. 15m (overrides config)")
		verbose       = flag.Bool("verbose", false, "Enable debug logging (overrides config)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.Merge(&config.Config{
		Name:          *name,
		StoreName:     *storeName,
		Addr:          *addr,
		CycleInterval: *cycleInterval,
	})
	if *maxCycles >= 0 {
		cfg.MaxCycles = *maxCycles
	}
	if *verbose {
		cfg.Verbose = true
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatalf("build store: %v", err)
	}
	jobstore.RegisterStore(cfg.StoreName, store)

	// controller is assigned below, once cycle.New returns; the breaker's
	// quota callbacks close over the variable rather than a value so they
	// can reach it despite the catalogue needing to exist first.
	var controller *cycle.Controller

	breakerClient := provider.NewBreakerClient(newDemoProviderClient(), provider.BreakerConfig{
		Tag:              cfg.QuotaTag,
		ConsecutiveTrips: 3,
		OpenTimeout:      time.Minute,
		OnQuotaExceeded: func(tag string) {
			if controller != nil {
				controller.ReportQuotaExceeded(tag)
			}
		},
		OnQuotaCleared: func(tag string) {
			if controller != nil {
				controller.ReportQuotaOk()
			}
		},
	})

	cat := catalogue.New()
	if err := registerJobs(cat, breakerClient); err != nil {
		log.Fatalf("register jobs: %v", err)
	}

	def := workflow.Definition{
		Steps: []workflow.Step{
			{Name: "fetch_daily_prices", FunctionName: "fetch_daily_prices"},
			{Name: "fetch_dividends", FunctionName: "fetch_dividends", ParallelGroup: "corporate_actions"},
			{Name: "fetch_splits", FunctionName: "fetch_splits", ParallelGroup: "corporate_actions"},
			{Name: "reconcile_symbols", FunctionName: "reconcile_symbols"},
		},
	}

	var cycles *int
	if cfg.MaxCycles > 0 {
		cycles = &cfg.MaxCycles
	}

	backoffBase, backoffMax := cfg.RetryBackoffBounds()
	cycleInt := cfg.CycleIntervalDuration()

	promObserver, err := observability.GetObserver("prometheus")
	if err != nil {
		log.Fatalf("get prometheus observer: %v", err)
	}
	observer := observability.NewMultiObserver(observability.NewSlogObserver(logger), promObserver)

	controller, err = cycle.New(cycle.Config{
		Name:          cfg.Name,
		Definition:    def,
		MaxCycles:     cycles,
		CycleInterval: cycleInt,
		StoreName:     cfg.StoreName,
		ExecutorOpts: executor.Options{
			MaxRetries:   cfg.Retry.MaxRetries,
			RetryBackoff: executor.ExponentialBackoff(backoffBase, backoffMax),
			QuotaTag:     cfg.QuotaTag,
		},
	}, cat, cycle.WithStore(store), cycle.WithObserver(observer))
	if err != nil {
		log.Fatalf("new controller: %v", err)
	}

	if err := controller.Start(ctx); err != nil {
		log.Fatalf("start controller: %v", err)
	}

	srv := &httpapi.Server{
		Controller:      controller,
		Store:           store,
		Definition:      def,
		CycleIntervalMS: cycleInt.Milliseconds(),
	}

	httpServer := &http.Server{Addr: cfg.Addr, Handler: srv.Router()}
	go func() {
		logger.Info("cycledlist listening", "addr", cfg.Addr, "name", cfg.Name)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	controller.Stop("process shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
}

func buildStore(ctx context.Context, cfg config.Config) (jobstore.Store, error) {
	switch cfg.StoreName {
	case "memory", "":
		return jobstore.NewMemoryStore(), nil
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres_url is required for store=postgres")
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return jobstore.NewPostgresStore(pool), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return jobstore.NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.StoreName)
	}
}

// registerJobs wires the EODHD-backed job catalogue. Every job function
// closes over client and does nothing but shape its calls and classify its
// errors — the orchestrator above never knows client exists.
func registerJobs(cat *catalogue.Catalogue, client provider.Client) error {
	jobs := []catalogue.Entry{
		{
			Name:              "fetch_daily_prices",
			Description:       "Pulls end-of-day OHLCV bars for the tracked symbol universe.",
			Category:          "market-data",
			Scope:             "daily",
			Priority:          1,
			EstimatedDuration: "2m",
			DataSource:        "EODHD",
			Tags:              []string{"prices", "eod"},
			CronExpression:    "0 22 * * 1-5",
			Timezone:          "America/New_York",
			Function:          fetchDailyPrices(client),
		},
		{
			Name:              "fetch_dividends",
			Description:       "Pulls dividend declarations for the tracked symbol universe.",
			Category:          "corporate-actions",
			Scope:             "daily",
			Priority:          2,
			EstimatedDuration: "1m",
			DataSource:        "EODHD",
			Tags:              []string{"dividends"},
			Function:          fetchDividends(client),
		},
		{
			Name:              "fetch_splits",
			Description:       "Pulls stock split announcements for the tracked symbol universe.",
			Category:          "corporate-actions",
			Scope:             "daily",
			Priority:          2,
			EstimatedDuration: "1m",
			DataSource:        "EODHD",
			Tags:              []string{"splits"},
			Function:          fetchSplits(client),
		},
		{
			Name:              "reconcile_symbols",
			Description:       "Reconciles the local symbol universe against the provider's listing.",
			Category:          "maintenance",
			Scope:             "daily",
			Priority:          3,
			EstimatedDuration: "30s",
			Dependencies:      []string{"fetch_daily_prices"},
			Function:          reconcileSymbols(client),
		},
	}
	for _, j := range jobs {
		if err := cat.Register(j); err != nil {
			return err
		}
	}
	return nil
}

func fetchDailyPrices(client provider.Client) catalogue.Function {
	return func(ctx context.Context, progress catalogue.ProgressSink) (any, error) {
		resp, err := client.Call(ctx, "/eod-bulk-last-day", map[string]any{"fmt": "json"})
		if err != nil {
			return nil, err
		}
		progress(1.0)
		return resp, nil
	}
}

func fetchDividends(client provider.Client) catalogue.Function {
	return func(ctx context.Context, progress catalogue.ProgressSink) (any, error) {
		resp, err := client.Call(ctx, "/div", nil)
		if err != nil {
			return nil, err
		}
		progress(1.0)
		return resp, nil
	}
}

func fetchSplits(client provider.Client) catalogue.Function {
	return func(ctx context.Context, progress catalogue.ProgressSink) (any, error) {
		resp, err := client.Call(ctx, "/splits", nil)
		if err != nil {
			return nil, err
		}
		progress(1.0)
		return resp, nil
	}
}

func reconcileSymbols(client provider.Client) catalogue.Function {
	return func(ctx context.Context, progress catalogue.ProgressSink) (any, error) {
		resp, err := client.Call(ctx, "/exchange-symbol-list/US", nil)
		if err != nil {
			return nil, err
		}
		progress(1.0)
		return resp, nil
	}
}
