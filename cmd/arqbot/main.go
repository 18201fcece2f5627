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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arqma/arqbot/internal/bot"
	"github.com/arqma/arqbot/internal/config"
	"github.com/arqma/arqbot/internal/discord"
	"github.com/arqma/arqbot/internal/fetch"
	"github.com/arqma/arqbot/internal/handler"
	"github.com/arqma/arqbot/internal/middleware"
	"github.com/arqma/arqbot/internal/reply"
	"github.com/arqma/arqbot/internal/stats"
	"github.com/arqma/arqbot/internal/telegram"
)

func main() {
	root := &cobra.Command{
		Use:          "arqbot",
		Short:        "Arqma stats bot for Telegram and Discord",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	config.RegisterFlags(root.PersistentFlags())

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram and Discord bots and the ops HTTP server",
		RunE:  runServe,
	}
	root.AddCommand(serveCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Run one aggregation and print the rendered reply",
	}
	statsCmd.PersistentFlags().String("platform", "telegram", "reply style to render (telegram, discord)")
	statsCmd.AddCommand(
		&cobra.Command{
			Use:   "network",
			Short: "Print network, emission and price stats",
			Args:  cobra.NoArgs,
			RunE:  runStats,
		},
		&cobra.Command{
			Use:   "pools",
			Short: "Print mining pools by hashrate",
			Args:  cobra.NoArgs,
			RunE:  runStats,
		},
	)
	root.AddCommand(statsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type app struct {
	cfg      config.Config
	logger   *slog.Logger
	stats    *stats.Aggregator
	composer *reply.Composer
	router   *bot.Router
}

func setup(cmd *cobra.Command, logOut *os.File) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(logOut, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	content, err := reply.LoadContent(cfg.ContentFile)
	if err != nil {
		return nil, err
	}

	f := fetch.NewHTTP(logger, fetch.WithTimeout(cfg.HTTPTimeout), fetch.WithUserAgent(cfg.UserAgent))
	var opts []stats.Option
	if cfg.PoolsBrowser {
		opts = append(opts, stats.WithPageFetcher(fetch.NewBrowser(logger)))
	}
	agg := stats.NewAggregator(f, stats.Endpoints{
		PoolsPage:   cfg.PoolsPageURL,
		PoolsData:   cfg.PoolsDataURL,
		NetworkInfo: cfg.NetworkInfoURL,
		Emission:    cfg.EmissionURL,
		Price:       cfg.PriceURL,
	}, logger, opts...)

	composer := reply.New(reply.Coin{Name: cfg.CoinName, Ticker: cfg.CoinTicker, Exchange: cfg.Exchange}, content)

	return &app{
		cfg:      cfg,
		logger:   logger,
		stats:    agg,
		composer: composer,
		router:   bot.NewRouter(agg, composer, logger),
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, os.Stdout)
	if err != nil {
		return err
	}
	cfg, logger := a.cfg, a.logger
	cfg.ResolveTokens(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status := bot.NewStatus()
	g, gctx := errgroup.WithContext(ctx)

	// A platform that fails to start is logged and left disabled; the other
	// platform and the ops server keep running.
	if cfg.TelegramToken != "" {
		tg := telegram.NewBot(cfg.TelegramToken, a.router, logger, telegram.WithStatus(status))
		g.Go(func() error {
			if err := tg.Run(gctx); err != nil {
				logger.Error("telegram bot disabled", "error", err)
			}
			return nil
		})
	} else {
		logger.Warn("telegram token not configured, telegram bot disabled")
	}

	if cfg.DiscordToken != "" {
		dc := discord.New(cfg.DiscordToken, a.router, logger, discord.WithStatus(status))
		g.Go(func() error {
			if err := dc.Run(gctx); err != nil {
				logger.Error("discord bot disabled", "error", err)
			}
			return nil
		})
	} else {
		logger.Warn("discord token not configured, discord bot disabled")
	}

	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(status))

	r.Route("/api", func(r chi.Router) {
		r.Get("/network", handler.Network(a.stats, logger))
		r.Get("/pools", handler.Pools(a.stats, logger))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.HTTPTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runStats(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, os.Stderr)
	if err != nil {
		return err
	}

	platform := bot.Telegram
	name, _ := cmd.Flags().GetString("platform")
	switch name {
	case "telegram":
	case "discord":
		platform = bot.Discord
	default:
		return fmt.Errorf("unknown platform %q", name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		text   string
		aggErr error
	)
	switch cmd.Name() {
	case "network":
		ns, err := a.stats.FetchNetwork(ctx)
		text, aggErr = a.composer.Network(platform.Style, ns, err), err
	case "pools":
		pools, err := a.stats.FetchPools(ctx)
		text, aggErr = a.composer.Pools(platform.Style, pools, err), err
	}

	fmt.Fprintln(cmd.OutOrStdout(), text)
	return aggErr
}

func newLogger(out *os.File, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})), nil
}
