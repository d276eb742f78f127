package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"optionsagent/internal/analysis/indicator"
	"optionsagent/internal/analysis/voltrack"
	"optionsagent/internal/config"
	"optionsagent/internal/gateway/polygon"
	"optionsagent/internal/jobs"
	"optionsagent/internal/logger"
	"optionsagent/internal/market"
	"optionsagent/internal/report"
	"optionsagent/internal/scanner"
	"optionsagent/internal/store"
	"optionsagent/internal/strategy"
	httptransport "optionsagent/internal/transport/http"
)

const usage = `usage: agent <command> [flags]

commands:
  serve     run the HTTP API with cron jobs
  collect   collect one IV/HV sample for the watchlist
  scan      scan the watchlist for unusual options activity
  iv        print the IV dashboard
  analyze   full analysis + strategy recommendation for one ticker
`

func main() {
	// .env 仅用于本机开发，缺失不算错误
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfgPath := fs.String("config", "config.toml", "TOML 配置文件路径")
	tickersFlag := fs.String("tickers", "", "逗号分隔的标的列表，默认取 watchlist")
	riskFlag := fs.String("risk", "", "conservative / moderate / aggressive")
	fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)
	if *riskFlag != "" {
		cfg.RiskLevel = *riskFlag
	}
	tickers := cfg.Watchlist
	if *tickersFlag != "" {
		tickers = splitList(*tickersFlag)
	}

	app, err := newApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}
	defer app.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "serve":
		err = app.serve(ctx)
	case "collect":
		err = app.collect(ctx, tickers)
	case "scan":
		err = app.scan(ctx, tickers)
	case "iv":
		err = app.ivDashboard(ctx, tickers)
	case "analyze":
		err = app.analyze(ctx, fs.Args())
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

// app 持有所有子命令共享的依赖。
type app struct {
	cfg     *config.Config
	source  market.Source
	ivStore store.IVStore
	tracker *voltrack.Tracker
	scanner *scanner.Scanner
}

func newApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	ivStore, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		source:  polygon.NewClient(cfg.Polygon),
		ivStore: ivStore,
		tracker: voltrack.New(ivStore),
		scanner: scanner.New(cfg.Scanner),
	}, nil
}

func (a *app) close() {
	if err := a.ivStore.Close(); err != nil {
		logger.Warnf("[main] close store: %v", err)
	}
	if err := a.source.Close(); err != nil {
		logger.Warnf("[main] close source: %v", err)
	}
}

func (a *app) serve(ctx context.Context) error {
	hub := httptransport.NewAlertHub()
	srv := httptransport.NewServer(a.cfg, a.source, a.tracker, a.scanner, a.ivStore, hub)

	if a.cfg.Collector.Enabled {
		sched := jobs.NewScheduler(ctx, a.cfg, a.source, a.tracker, a.scanner, hub)
		if err := sched.RegisterAll(); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}
	return srv.Run(ctx)
}

func (a *app) collect(ctx context.Context, tickers []string) error {
	for _, ticker := range tickers {
		sample, err := a.source.FetchVolatilitySample(ctx, ticker)
		if err != nil {
			logger.Errorf("[main] collect %s: %v", ticker, err)
			continue
		}
		if err := a.tracker.Record(ctx, *sample); err != nil {
			return err
		}
		logger.Infof("[main] collected %s date=%s close=%.2f", ticker, sample.Date, sample.ClosePrice)
	}
	return a.ivDashboard(ctx, tickers)
}

func (a *app) scan(ctx context.Context, tickers []string) error {
	window := market.ExpirationWindow{MinDTE: 3, MaxDTE: 60}
	alerts := a.scanner.ScanBatch(ctx, a.source, tickers, window)
	report.RenderAlerts(os.Stdout, []scanner.Result{{Alerts: alerts}})
	return nil
}

func (a *app) ivDashboard(ctx context.Context, tickers []string) error {
	rows := a.tracker.Dashboard(ctx, tickers)
	report.RenderIVDashboard(os.Stdout, rows)
	return nil
}

func (a *app) analyze(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: agent analyze [flags] TICKER")
	}
	ticker := strings.ToUpper(args[0])

	bars, err := a.source.FetchPriceSeries(ctx, ticker, a.cfg.Analysis.PriceHistoryDays)
	if err != nil {
		return err
	}
	technical, err := indicator.ComputeProfile(ticker, bars)
	if err != nil {
		return err
	}
	report.RenderTechnical(os.Stdout, technical)

	ivProfile, err := a.tracker.Profile(ctx, ticker, a.cfg.Analysis.IVLookbackDays)
	if err != nil {
		return err
	}
	if ivProfile.Message != "" {
		fmt.Println(ivProfile.Message)
	}

	recs := strategy.Recommend(strategy.Params{
		Ticker:       ticker,
		Price:        technical.CurrentPrice,
		Trend:        technical.Signal,
		IVPercentile: ivProfile.IVPercentile,
		DTE:          a.cfg.Analysis.DefaultDTE,
		RiskLevel:    a.cfg.RiskLevel,
		AccountSize:  a.cfg.AccountSize,
		ATR:          technical.ATR,
	})
	report.RenderStrategies(os.Stdout, recs)
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
