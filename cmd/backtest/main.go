package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/argo-backtest/internal/datasource"
	"github.com/rxtech-lab/argo-backtest/internal/engine"
	"github.com/rxtech-lab/argo-backtest/internal/logger"
	"github.com/rxtech-lab/argo-backtest/internal/strategy"
	"github.com/rxtech-lab/argo-backtest/internal/types"
)

func runAction(ctx context.Context, cmd *cli.Command) error {
	level := zapcore.InfoLevel
	if cmd.Bool("verbose") {
		level = zapcore.DebugLevel
	}
	log, err := logger.NewLogger(level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	config, err := engine.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	files, err := filepath.Glob(cmd.String("data"))
	if err != nil {
		return fmt.Errorf("invalid data glob: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no data files match %s", cmd.String("data"))
	}

	sources := make([]datasource.EventSource, 0, len(files))
	for _, file := range files {
		sources = append(sources, datasource.NewCSVSource(file))
	}
	source := datasource.NewMergeSource(sources...)

	strat, err := strategy.New(config.Strategy)
	if err != nil {
		return err
	}

	store, err := engine.NewResultStore(log)
	if err != nil {
		return err
	}
	defer store.Cleanup()

	backtest, err := engine.NewBacktest(config, strat, store, log)
	if err != nil {
		return err
	}

	count, err := source.Count(nil, nil)
	if err != nil {
		return err
	}

	bar := progressbar.Default(int64(count), "backtesting")
	backtest.SetProgress(func(processed int) {
		_ = bar.Set(processed)
	})

	// Stop between bars on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := backtest.Run(ctx, source)
	if err != nil {
		return err
	}
	_ = bar.Finish()

	output := cmd.String("output")
	if err := os.MkdirAll(output, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := store.Write(output); err != nil {
		return err
	}

	if err := types.WriteRunSummary(filepath.Join(output, "summary.yaml"), result.Summary); err != nil {
		return err
	}

	diagnostics, err := yaml.Marshal(result.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}
	if err := os.WriteFile(filepath.Join(output, "diagnostics.yaml"), diagnostics, 0644); err != nil {
		return fmt.Errorf("failed to write diagnostics: %w", err)
	}

	log.Info("backtest complete",
		zap.String("output", output),
		zap.Float64("final_equity", result.Summary.FinalEquity),
		zap.Float64("total_return_pct", result.Summary.TotalReturnPct),
		zap.Float64("max_drawdown_pct", result.Summary.MaxDrawdownPct),
		zap.Int("trades", result.Summary.TotalTrades))

	return nil
}

func schemaAction(ctx context.Context, cmd *cli.Command) error {
	schema, err := json.MarshalIndent(engine.ConfigSchema(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	fmt.Println(string(schema))

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Run a trading strategy against historical market data",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the YAML run configuration",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Glob of CSV bar files, one per symbol",
				Value:   "./data/*.csv",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Directory for the run results",
				Value:   "./results",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log at debug level",
			},
		},
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the run configuration",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
