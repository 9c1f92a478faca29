// Binary admin serves the manual-intervention HTTP API and the websocket
// session status feed.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ritbot-go/internal/admin"
	"ritbot-go/internal/config"
	"ritbot-go/internal/exchange"
	"ritbot-go/internal/execution"
	"ritbot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	envFile := flag.String("env", ".env", "optional dotenv file with exchange credentials")
	flag.Parse()

	log := util.NewLogger("info")
	cfg, err := config.LoadWithEnv(*configPath, *envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate("admin"); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	log = util.ForStrategy(util.NewLogger(cfg.App.LogLevel), "admin", util.NewRunID())

	gw := exchange.NewClient(cfg.Exchange.Host, cfg.Exchange.Port, cfg.Exchange.Username, cfg.Exchange.Password,
		exchange.WithTimeout(config.Millis(cfg.Exchange.TimeoutMs)))
	exec := execution.NewExecutor(gw, log,
		execution.WithPace(config.Millis(cfg.LT3.PaceMs)),
		execution.WithBackoff(cfg.Retry.Backoff()),
	)
	srv := admin.NewServer(exec, log,
		admin.WithDefaultBatchSize(cfg.Admin.DefaultBatchSize),
		admin.WithStatusInterval(config.Millis(cfg.Admin.StatusEveryMs)),
	)

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	httpSrv := &http.Server{Addr: cfg.Admin.Addr, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		log.Info().Str("addr", cfg.Admin.Addr).Msg("admin up")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return srv.RunStatusFeed(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 3*time.Second)
		defer stop()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("admin stopped")
	}
	log.Info().Msg("shutting down")
}
