package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/alert"
	"main/internal/bus"
	"main/internal/feed"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/perf"
	"main/internal/report"
	"main/internal/risk"
	"main/internal/runner"
	"main/internal/schema"
	"main/internal/signal"
	"main/internal/sink"
	"main/internal/state"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	envOverride := flag.String("env", "", "Override environment (backtest|paper|live)")
	csvOverride := flag.String("csv", "", "Override backtest CSV path")
	reportDir := flag.String("report-dir", "", "Override report output directory")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (enables profiling)")
	flag.Parse()

	ops.Bootstrap()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *envOverride != "" {
		env, ok := schema.ParseEnvironment(*envOverride)
		if !ok {
			log.Fatalf("unknown environment: %q", *envOverride)
		}
		loaded.Environment = env
	}
	if *csvOverride != "" {
		loaded.Feed.CSVPath = *csvOverride
	}
	if *reportDir != "" {
		loaded.Report.CSVDir = *reportDir
	}

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "trader",
			ServerAddress:   *pyroscopeAddr,
			Tags:            map[string]string{"env": loaded.Environment.String()},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() { _ = profiler.Stop() }()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sys.Shutdown()
		logs.Info("shutdown signal received")
		cancel()
	}()

	if err := run(ctx, loaded); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}

func run(ctx context.Context, loaded ops.Loaded) error {
	notifier := buildNotifier(loaded)
	engine, err := signal.NewSMACross(loaded.Strategy)
	if err != nil {
		return err
	}

	book := state.NewBook()
	portfolio := state.NewPortfolio()
	riskEngine := risk.NewEngine(loaded.Risk, notifier)
	monitor, err := perf.NewMonitor(loaded.Perf, book, riskEngine)
	if err != nil {
		return err
	}

	fills := bus.NewFillQueue(1024)
	source, orderSink, err := buildIO(ctx, loaded, fills)
	if err != nil {
		return err
	}
	defer source.Close()

	instance, err := runner.New(runner.Config{
		Environment:     loaded.Environment,
		Symbol:          loaded.Strategy.Symbol,
		ShutdownTimeout: loaded.ShutdownTimeout,
	}, runner.Deps{
		Signal:    engine,
		Risk:      riskEngine,
		Sink:      orderSink,
		Fills:     fills,
		Book:      book,
		Portfolio: portfolio,
		Monitor:   monitor,
		Metrics:   obs.NewMetrics(),
	})
	if err != nil {
		return err
	}

	logs.Infof("starting: env=%s symbol=%s sma=%d",
		loaded.Environment, loaded.Strategy.Symbol, loaded.Strategy.Period)

	result, err := instance.Run(ctx, source)
	if err != nil {
		return err
	}
	return export(loaded, result, monitor)
}

func buildNotifier(loaded ops.Loaded) alert.Notifier {
	if loaded.TelegramToken != "" && loaded.Alert.TelegramChatID != 0 {
		notifier, err := alert.NewTelegramNotifier(loaded.TelegramToken, loaded.Alert.TelegramChatID)
		if err != nil {
			logs.Errorf("telegram notifier unavailable, falling back to log: %v", err)
			return alert.LogNotifier{}
		}
		return notifier
	}
	return alert.LogNotifier{}
}

func buildIO(ctx context.Context, loaded ops.Loaded, fills *bus.FillQueue) (feed.Source, sink.Sink, error) {
	switch loaded.Environment {
	case schema.EnvBacktest:
		source, err := feed.NewReplay(loaded.Strategy.Symbol, loaded.Feed.CSVPath)
		if err != nil {
			return nil, nil, err
		}
		return source, sink.NewSim(sink.SimConfig{FeeRate: loaded.Sink.FeeRate}, fills), nil

	case schema.EnvPaper:
		source, err := feed.NewSynth(feed.SynthConfig{
			Symbol:     loaded.Strategy.Symbol,
			Seed:       loaded.Feed.Seed,
			BasePrice:  loaded.Feed.BasePrice,
			Volatility: loaded.Feed.Volatility,
			Count:      loaded.Feed.Bars,
			StartTs:    time.Now().UnixMilli(),
		})
		if err != nil {
			return nil, nil, err
		}
		return source, sink.NewSim(sink.SimConfig{FeeRate: loaded.Sink.FeeRate}, fills), nil

	case schema.EnvLive:
		source, err := feed.NewLive(ctx, loaded.Strategy.Symbol, loaded.Feed.Interval)
		if err != nil {
			return nil, nil, err
		}
		logs.Warnf("no broker transport configured, live orders run dry")
		gateway := sink.NewGateway(sink.GatewayConfig{
			Session:           loaded.Sink.Session,
			ResendOnReconnect: true,
		}, sink.DryRunTransport{}, fills)
		return source, gateway, nil

	default:
		return nil, nil, fmt.Errorf("unsupported environment: %s", loaded.Environment)
	}
}

func export(loaded ops.Loaded, result runner.FinalReport, monitor *perf.Monitor) error {
	logs.Infof("final: equity=%s drawdown=%s sharpe=%v trades=%d wins=%d losses=%d unresolved=%d",
		result.Snapshot.Equity, result.Snapshot.Drawdown,
		sharpeText(result.Snapshot), result.Snapshot.TradeCount,
		result.Snapshot.WinCount, result.Snapshot.LossCount, result.Unresolved)

	if dir := loaded.Report.CSVDir; dir != "" {
		if path, err := report.WriteTrades(dir, result.Trades); err != nil {
			logs.Errorf("write trades csv failed: %v", err)
		} else {
			logs.Infof("trades written: %s", path)
		}
		if path, err := report.WriteSnapshots(dir, monitor.History()); err != nil {
			logs.Errorf("write snapshots csv failed: %v", err)
		} else {
			logs.Infof("snapshots written: %s", path)
		}
	}

	if dsn := loaded.Report.PostgresDSN; dsn != "" {
		runID := fmt.Sprintf("%s-%d", loaded.Environment, time.Now().Unix())
		store, err := report.NewStore(dsn, runID)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.SaveTrades(result.Trades); err != nil {
			return err
		}
		if err := store.SaveSnapshots(monitor.History()); err != nil {
			return err
		}
		logs.Infof("results persisted: run=%s", runID)
	}
	return nil
}

func sharpeText(snap schema.PerformanceSnapshot) string {
	if !snap.SharpeDefined {
		return "undefined"
	}
	return fmt.Sprintf("%.4f", snap.Sharpe)
}
