package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gregtusar/updown/api"
	"github.com/gregtusar/updown/internal/config"
	"github.com/gregtusar/updown/pkg/binance"
	"github.com/gregtusar/updown/pkg/metrics"
	"github.com/gregtusar/updown/pkg/models"
	"github.com/gregtusar/updown/pkg/oracle"
	"github.com/gregtusar/updown/pkg/polymarket"
	"github.com/gregtusar/updown/pkg/tracker"
	"github.com/gregtusar/updown/pkg/trader"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	dryRun  bool
	logger  *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "updown-trader",
		Short: "Hourly BTC up/down trading agent",
		Long:  `Trades the hourly Bitcoin up or down market when the candle-based probability beats the market price`,
		Run:   runTrader,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "place paper orders instead of live ones")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runTrader(cmd *cobra.Command, args []string) {
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if dryRun {
		cfg.Polymarket.DryRun = true
	}
	configureLogger(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	discovery, err := polymarket.NewDiscovery(cfg.Polymarket.GammaURL, cfg.Polymarket.Timezone, cfg.Polymarket.SearchLimit, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create market discovery")
	}

	var (
		placer  trader.OrderPlacer
		checker trader.BalanceChecker
	)
	if cfg.Polymarket.DryRun {
		logger.Warn("Dry run: orders will not be sent to the exchange")
		placer = polymarket.NewPaperPlacer(logger)
		checker = &polymarket.PaperWallet{Balances: models.Balances{USDC: cfg.Polymarket.PaperBalance, Gas: 1}}
	} else {
		auth := polymarket.NewAPIKeyAuthenticator(cfg.Polymarket.Address, cfg.Polymarket.APIKey, cfg.Polymarket.APISecret, cfg.Polymarket.Passphrase)
		clob := polymarket.NewClient(cfg.Polymarket.CLOBURL, cfg.Polymarket.APIKey, auth, logger)
		placer = clob
		checker = polymarket.NewBalanceChecker(clob, cfg.Polymarket.RPCURL)
	}

	klines := binance.NewKlineStream(cfg.Binance.URL, cfg.Binance.Symbol, cfg.Binance.Interval, cfg.Trading.ReconnectDelay, logger)
	klines.Client().OnReconnect(func() { recorder.RecordReconnect("binance") })
	books := polymarket.NewMarketStream(cfg.Polymarket.WSURL, nil, cfg.Trading.ReconnectDelay, logger)
	books.Client().OnReconnect(func() { recorder.RecordReconnect("polymarket") })

	updown := trader.New(trader.Deps{
		Oracle:   oracle.New(cfg.Trading.HistorySize, logger),
		Tracker:  tracker.New(logger),
		Placer:   placer,
		Balances: trader.NewBalanceMonitor(checker, cfg.Polymarket.Address, cfg.Trading.MinBalance, cfg.Trading.BalanceBuffer, logger),
		Finder:   discovery,
		Candles:  klines,
		Books:    books,
		Metrics:  recorder,
	}, trader.Config{
		Threshold:       cfg.Trading.Threshold,
		Cooldown:        cfg.Trading.Cooldown(),
		PollInterval:    cfg.Trading.PollInterval,
		BalanceInterval: cfg.Trading.BalanceInterval,
		Executor: trader.ExecutorConfig{
			TradeAmount:      cfg.Trading.TradeAmount,
			TakeProfitAmount: cfg.Trading.TakeProfit,
			StopLossAmount:   cfg.Trading.StopLoss,
		},
	}, logger)

	if err := updown.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start trader")
	}

	apiServer := api.NewServer(updown, registry, cfg.Server.JWTSecret, logger, strconv.Itoa(cfg.Server.Port))
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.WithFields(logrus.Fields{
		"threshold":    cfg.Trading.Threshold,
		"trade_amount": cfg.Trading.TradeAmount,
		"dry_run":      cfg.Polymarket.DryRun,
	}).Info("Up/down trader is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		logger.Info("Received shutdown signal")
	case <-updown.Done():
		logger.Info("Trader loop exited")
	}

	updown.Stop()
	updown.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shut down API server")
	}
	cancel()

	logger.Info("Up/down trader stopped")
}

func configureLogger(cfg config.LoggingConfig) {
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logger.WithError(err).Error("Failed to open log file, logging to stdout only")
			return
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, f))
	}
}
