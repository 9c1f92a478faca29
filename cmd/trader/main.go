// Binary trader runs one strategy loop against the case exchange, or against
// an in-process paper exchange seeded from a scenario file.
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

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ritbot-go/internal/config"
	"ritbot-go/internal/exchange"
	"ritbot-go/internal/execution"
	"ritbot-go/internal/metrics"
	"ritbot-go/internal/paper"
	"ritbot-go/internal/session"
	"ritbot-go/internal/strategy"
	"ritbot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	envFile := flag.String("env", ".env", "optional dotenv file with exchange credentials")
	mode := flag.String("mode", "", "strategy to run (lt3, sor, var); defaults to app.mode")
	scenario := flag.String("paper", "", "run against a paper exchange seeded from this scenario file")
	paperAddr := flag.String("paper-addr", "", "also serve the paper exchange REST API on this address")
	tickEvery := flag.Duration("tick", time.Second, "paper clock interval")
	flag.Parse()

	bootLog := util.NewLogger("info")
	cfg, err := config.LoadWithEnv(*configPath, *envFile)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("load config")
	}
	if *mode == "" {
		*mode = cfg.App.Mode
	}
	if *scenario != "" {
		err = cfg.ValidateStrategy(*mode)
	} else {
		err = cfg.Validate(*mode)
	}
	if err != nil {
		bootLog.Fatal().Err(err).Str("mode", *mode).Msg("invalid config")
	}

	runID := util.NewRunID()
	log := util.ForStrategy(util.NewLogger(cfg.App.LogLevel), *mode, runID)

	metricsSrv := metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	var gw exchange.Gateway
	if *scenario != "" {
		x, err := loadPaper(*scenario)
		if err != nil {
			log.Fatal().Err(err).Str("scenario", *scenario).Msg("load scenario")
		}
		g.Go(func() error { return x.Run(ctx, *tickEvery) })
		if *paperAddr != "" {
			serveHTTP(ctx, g, log, *paperAddr, paper.NewHandler(x, cfg.Exchange.Username, cfg.Exchange.Password))
		}
		gw = x
		log.Info().Str("scenario", *scenario).Dur("tick", *tickEvery).Msg("paper exchange up")
	} else {
		gw = exchange.NewClient(cfg.Exchange.Host, cfg.Exchange.Port, cfg.Exchange.Username, cfg.Exchange.Password,
			exchange.WithTimeout(config.Millis(cfg.Exchange.TimeoutMs)))
	}

	opts := []execution.Option{
		execution.WithPace(config.Millis(cfg.LT3.PaceMs)),
		execution.WithBackoff(cfg.Retry.Backoff()),
		execution.WithPriceOffsets(cfg.LT3.PriceOffsets),
		execution.WithConfirm(cfg.LT3.ConfirmAttempts, config.Millis(cfg.LT3.ConfirmDelayMs)),
	}
	ledger := paper.NewLedger(256)
	recorders := fanout{ledger}
	if path := cfg.Journal.FillsPath; path != "" {
		rec, err := paper.NewJSONLRecorder(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("open fill journal")
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Error().Err(err).Msg("close fill journal")
			}
		}()
		recorders = append(recorders, rec)
	}
	opts = append(opts, execution.WithRecorder(recorders))
	exec := execution.NewExecutor(gw, log, opts...)

	runner, err := strategy.Build(*mode, strategy.Deps{Config: cfg, Executor: exec, Shared: session.NewShared(), Log: log})
	if err != nil {
		log.Fatal().Err(err).Msg("build strategy")
	}
	g.Go(func() error { return runner.Run(ctx) })

	log.Info().Str("strategy", runner.Name()).Msg("trader started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("trader stopped")
	}
	if w, ok := runner.(interface{ Wait() }); ok {
		w.Wait()
	}

	for ticker, tt := range ledger.Totals() {
		log.Info().Str("ticker", ticker).Int("orders", tt.Orders).Int("bought", tt.Bought).Int("sold", tt.Sold).Int("net", tt.Net).Msg("session orders")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 3*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info().Msg("shutting down")
}

// fanout sends each fill to every recorder.
type fanout []execution.FillRecorder

func (f fanout) Record(fill execution.Fill) {
	for _, r := range f {
		r.Record(fill)
	}
}

func loadPaper(path string) (*paper.Exchange, error) {
	sc, err := paper.LoadScenario(path)
	if err != nil {
		return nil, err
	}
	return sc.Build(), nil
}

func serveHTTP(ctx context.Context, g *errgroup.Group, log zerolog.Logger, addr string, h http.Handler) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("paper REST up")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
