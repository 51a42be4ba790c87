package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/cost"
	"github.com/sells-group/research-brief/internal/monitoring"
	"github.com/sells-group/research-brief/internal/server"
	"github.com/sells-group/research-brief/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the research brief HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		// Background alert checker over the metrics registry.
		calc := cost.NewCalculator(cost.FromConfig(cfg.Pricing))
		collector := monitoring.NewCollector(env.Monitor, calc)
		alerter := monitoring.NewAlerter(cfg.Monitoring)
		checker := monitoring.NewChecker(collector, alerter, cfg.Monitoring)
		go checker.Run(ctx)

		go expireSearchCache(ctx, env.Store)

		srv := server.New(cfg, env.Orchestrator, env.Monitor, env.Store, env.Tracer)
		return srv.ListenAndServe(ctx)
	},
}

// expireSearchCache drops expired cache rows on the cache TTL cadence.
func expireSearchCache(ctx context.Context, st store.Store) {
	interval := cfg.Pipeline.CacheTTL()
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.DeleteExpiredSearches(ctx)
			if err != nil {
				zap.L().Warn("expire search cache failed", zap.Error(err))
				continue
			}
			if n > 0 {
				zap.L().Info("expired cached searches", zap.Int("deleted", n))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
