package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/affect-triage/internal/api"
	"github.com/danielpatrickdp/affect-triage/internal/audit"
	"github.com/danielpatrickdp/affect-triage/internal/config"
	"github.com/danielpatrickdp/affect-triage/internal/engine"
	"github.com/danielpatrickdp/affect-triage/internal/graph"
	"github.com/danielpatrickdp/affect-triage/internal/metrics"
	"github.com/danielpatrickdp/affect-triage/internal/rpc"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine over HTTP and gRPC",
	Long: `Start the triage engine with its HTTP API (turns, graph, health,
metrics) and gRPC service. The graph file is watched and hot reloaded;
sessions keep the graph they started with.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sink, closeSinks, err := openSinks(ctx, cfg.Audit, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	g, err := config.GraphOrDefault(cfg.GraphPath)
	if err != nil {
		return err
	}
	eng := engine.New(cfg.Engine, g,
		engine.WithLogger(logger),
		engine.WithMetrics(m),
		engine.WithAuditSink(sink),
	)

	if cfg.Reload.Enabled && cfg.GraphPath != "" {
		w, err := config.NewGraphWatcher(cfg.GraphPath, cfg.Reload.Debounce,
			func(g *graph.StateGraph) {
				eng.SwapGraph(g)
				m.ObserveGraphReload("ok")
			},
			func(err error) {
				logger.Error("graph reload rejected", zap.Error(err))
				m.ObserveGraphReload("rejected")
			},
			logger)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = w.Stop() }()
	}

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.New(api.Config{
			Engine:         eng,
			Logger:         logger,
			MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}
	grpcSrv, health := rpc.NewGRPCServer(rpc.NewServer(eng, logger))

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	grp.Go(func() error {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	grp.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		health.Shutdown()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		grpcSrv.GracefulStop()
		return httpSrv.Shutdown(sctx)
	})

	logger.Info("triage engine ready",
		zap.String("graph_version", g.Version()),
		zap.Duration("turn_timeout", cfg.Engine.TurnTimeout))
	return grp.Wait()
}

// openSinks assembles the configured audit sinks. The returned func closes
// the ones that hold resources.
func openSinks(ctx context.Context, cfg config.AuditConfig, logger *zap.Logger) (audit.Sink, func(), error) {
	var (
		sinks   []audit.Sink
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	if cfg.SQLitePath != "" {
		store, err := audit.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, store)
		closers = append(closers, store.Close)
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			// The stream is best effort; the sink reports failures per record.
			logger.Warn("redis unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		sinks = append(sinks, audit.NewRedisStreamSink(client, cfg.RedisStream, cfg.RedisMaxLen))
		closers = append(closers, client.Close)
	}
	if cfg.Log {
		sinks = append(sinks, audit.NewLogSink(logger.Named("audit")))
	}
	return audit.NewMulti(sinks...), closeAll, nil
}
