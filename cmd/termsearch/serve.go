package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/termsearch/internal/server"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/termsearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/termsearch/pkg/redis"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [port]",
		Short: fmt.Sprintf("Serve queries over TCP on 127.0.0.1 (default port %d)", config.DefaultPort),
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				port, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid port number: %s", args[0])
				}
				a.cfg.Server.Port = port
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store := segment.NewStore(cfg.Index)
	exec := executor.New(nil)

	var (
		queryCache  *cache.QueryCache
		redisClient *pkgredis.Client
	)
	if cfg.Redis.Enabled {
		var err error
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis, m)
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 10000)
		collector.Start(ctx)
		defer collector.Close()
	}

	srv := server.New(cfg.Server, store, exec, queryCache, collector, m)

	// Everything that can fail is built before the group starts.
	var watcher *server.Watcher
	if cfg.Server.Watch {
		var err error
		watcher, err = server.NewWatcher(store, exec, queryCache, m)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	if cfg.Metrics.Enabled {
		checker := health.NewChecker()
		checker.Register("server", func(context.Context) health.ComponentHealth {
			st := srv.State()
			switch st {
			case server.StateAccepting, server.StateServing:
				return health.ComponentHealth{Status: health.StatusUp, Message: st.String()}
			default:
				return health.ComponentHealth{Status: health.StatusDown, Message: st.String()}
			}
		})
		checker.Register("index", func(context.Context) health.ComponentHealth {
			snap := exec.Snapshot()
			if snap == nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: "no snapshot loaded"}
			}
			return health.ComponentHealth{
				Status: health.StatusUp,
				Details: map[string]any{
					"version":   exec.Version(),
					"terms":     snap.TermCount(),
					"documents": snap.DocCount(),
				},
			}
		})
		checker.Register("cache", func(ctx context.Context) health.ComponentHealth {
			if redisClient == nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
			}
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			hits, misses := queryCache.Stats()
			return health.ComponentHealth{Status: health.StatusUp, Details: map[string]int64{"hits": hits, "misses": misses}}
		})
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.Port, reg, checker.Routes())
		})
	}

	if watcher != nil {
		g.Go(func() error {
			select {
			case <-srv.Ready():
			case <-gctx.Done():
				return nil
			}
			return watcher.Run(gctx)
		})
	}

	return g.Wait()
}
