package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"opinion-trader/internal/book"
	"opinion-trader/internal/cfg"
	"opinion-trader/internal/daemon"
	"opinion-trader/internal/exchange/opinion"
	"opinion-trader/internal/maker"
	"opinion-trader/internal/metrics"
	"opinion-trader/internal/plan"
	"opinion-trader/internal/proxy"
	"opinion-trader/internal/run"
	"opinion-trader/internal/storage"
)

func main() {
	_ = godotenv.Load()

	s, err := cfg.LoadSettings()
	if err != nil {
		log.Fatal().Err(err).Msg("settings load failed")
	}

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "status":
			cmdStatus(s)
			return
		case "stop":
			cmdStop(s)
			return
		}
	}

	var (
		strategyPath = flag.String("strategy", "strategy.yaml", "strategy config file")
		mode         = flag.String("mode", "maker", "maker | layered (one-shot ladder)")
		side         = flag.String("side", "sell", "layered mode: buy | sell")
		total        = flag.Float64("total", 0, "layered mode: dollars (buy) or shares (sell) per account")
	)
	flag.Parse()

	mc, err := cfg.LoadMakerConfig(*strategyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("strategy load failed")
	}

	m := metrics.New()

	accounts := loadAccounts(s, m)
	if len(accounts) == 0 {
		log.Fatal().Msg("no usable accounts")
	}

	if err := daemon.WritePid(s.PidFile); err != nil {
		log.Fatal().Err(err).Msg("pid file")
	}
	defer daemon.Remove(s.PidFile)

	startMetricsServer(s.MetricsPort)

	var store *storage.Store
	if s.DataPath != "" {
		store, err = storage.Open(s.DataPath)
		if err != nil {
			log.Fatal().Err(err).Msg("storage open failed")
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared live book: one websocket stream serves every account's engine,
	// each keeping its own REST poller as the staleness fallback.
	var live *book.Live
	if s.FeedURL != "" && *mode == "maker" {
		feedClient := opinion.NewREST(accounts[0].APIKey, accounts[0].ProxyWallet, s.APIBase, s.RESTTimeout)
		live = book.NewLive(book.NewGateway(feedClient, book.DefaultDepthLevels), book.DefaultDepthLevels)
		startBookFeed(ctx, s.FeedURL, mc.TokenID, live)
	}

	units := make([]run.Unit, 0, len(accounts))
	for _, acct := range accounts {
		client := opinion.NewREST(acct.APIKey, acct.ProxyWallet, s.APIBase, s.RESTTimeout)
		switch *mode {
		case "maker":
			eng := maker.New(acct, mc, client, m)
			if store != nil {
				eng.SetStore(store)
			}
			if live != nil {
				eng.SetBookSource(live)
			}
			units = append(units, run.Unit{Remark: acct.Remark, Run: eng.Run})
		case "layered":
			units = append(units, layeredUnit(acct, mc, client, *side, *total))
		default:
			log.Fatal().Str("mode", *mode).Msg("unknown mode")
		}
	}

	coord := run.NewCoordinator(units)
	log.Info().Int("accounts", len(units)).Str("mode", *mode).Msg("starting")
	results := coord.Run(ctx)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Info().Int("finished", len(results)-failed).Int("failed", failed).Msg("all units done")
	if failed > 0 {
		os.Exit(1)
	}
}

// loadAccounts reads the account file or directory, resolves missing proxy
// wallets through the cache, and drops accounts that ended up unusable.
func loadAccounts(s cfg.Settings, m *metrics.Metrics) []cfg.Account {
	cache, err := proxy.OpenCache(s.ProxyCachePath)
	if err != nil {
		log.Fatal().Err(err).Msg("proxy cache load failed")
	}
	resolver := proxy.NewResolver(s.ProfileBase, s.ChainID, cache, s.ResolveTimeout)
	resolver.OnLookup(m.ProxyLookups.Inc)

	// The resolver's request timeout bounds each lookup; a batch-wide
	// deadline would starve the accounts at the end of a large file.
	ctx := context.Background()

	info, err := os.Stat(s.AccountsPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", s.AccountsPath).Msg("accounts path")
	}
	var accounts []cfg.Account
	if info.IsDir() {
		accounts, err = cfg.LoadAccountsDir(ctx, s.AccountsPath, resolver)
	} else {
		accounts, err = cfg.LoadAccounts(ctx, s.AccountsPath, resolver)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("account load failed")
	}

	usable := accounts[:0]
	for _, a := range accounts {
		if a.ResolveErr != nil {
			log.Warn().Err(a.ResolveErr).Str("account", a.Remark).Msg("skipped, no proxy wallet")
			continue
		}
		usable = append(usable, a)
	}
	log.Info().Int("loaded", len(accounts)).Int("usable", len(usable)).Msg("accounts ready")
	return usable
}

// layeredUnit is a one-shot ladder for one account: build the plan from the
// live book and the layered config, place every level, report the summary.
func layeredUnit(acct cfg.Account, mc cfg.MakerConfig, client opinion.Client, side string, total float64) run.Unit {
	return run.Unit{
		Remark: acct.Remark,
		Run: func(ctx context.Context) error {
			if total <= 0 {
				return fmt.Errorf("layered mode needs -total > 0")
			}
			ordSide := opinion.Sell
			if side == "buy" {
				ordSide = opinion.Buy
			}

			gw := book.NewGateway(client, book.DefaultDepthLevels)
			snap, err := gw.Snapshot(ctx, mc.TokenID)
			if err != nil {
				return fmt.Errorf("orderbook: %w", err)
			}

			p, err := plan.Build(plan.Request{
				Side:         ordSide,
				PriceMode:    plan.ModeLevels,
				Distribution: plan.Distribution(mc.LayeredSell.Distribution),
				Levels:       mc.LayeredSell.PriceLevels,
				Book:         &snap,
				Weights:      mc.LayeredSell.CustomRatios,
			})
			if err != nil {
				return err
			}

			sum := plan.Execute(ctx, client, mc.MarketID, mc.TokenID, p, total)
			log.Info().
				Str("account", acct.Remark).
				Int("succeeded", sum.Succeeded).
				Int("failed", sum.Failed).
				Msg("ladder placed")
			if sum.Succeeded == 0 && sum.Failed > 0 {
				return fmt.Errorf("every level failed")
			}
			return nil
		},
	}
}

func startBookFeed(ctx context.Context, url, tokenID string, live *book.Live) {
	updates := make(chan opinion.BookUpdate, 64)
	errs := make(chan error, 8)
	feed := opinion.NewFeed(url)
	go func() {
		if err := feed.Stream(ctx, []string{tokenID}, updates, errs); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("book feed stopped")
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-updates:
				live.Apply(u)
			case <-errs:
			}
		}
	}()
	log.Info().Str("url", url).Msg("book feed started")
}

func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	log.Info().Int("port", port).Msg("metrics server listening")
}

func cmdStatus(s cfg.Settings) {
	pid, running, err := daemon.Status(s.PidFile)
	if err != nil {
		log.Fatal().Err(err).Msg("status")
	}
	if running {
		fmt.Printf("running (pid %d)\n", pid)
	} else {
		fmt.Println("not running")
	}
}

func cmdStop(s cfg.Settings) {
	if err := daemon.Stop(s.PidFile); err != nil {
		log.Fatal().Err(err).Msg("stop")
	}
	fmt.Println("stop signal sent")
}
