package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/quant/canary"
	"github.com/rustyeddy/quant/config"
	"github.com/rustyeddy/quant/execution"
	"github.com/rustyeddy/quant/feed"
	"github.com/rustyeddy/quant/journal"
	"github.com/rustyeddy/quant/pipeline"
	"github.com/rustyeddy/quant/pkg/logger"
	"github.com/rustyeddy/quant/pkg/metrics"
	"github.com/rustyeddy/quant/regime"
	"github.com/rustyeddy/quant/risk"
	"github.com/rustyeddy/quant/router"
	"github.com/rustyeddy/quant/strategies"
)

var replayCmd = &cobra.Command{
	Use:   "replay <ticks.csv>",
	Short: "Replay a tick dataset through the decision pipeline",
	Long: `Replay runs a canonical tick CSV through the full chain: regime
filter, policy router, sizer, canary gate, and execution router. Each
sized trade is closed at the symbol's next tick so the learning loops
see realized outcomes.

Example:
  quant replay ticks.csv --config quant.yaml --state canary`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var (
	replayConfigPath string
	replayFrom       string
	replayTo         string
	replayState      string
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayConfigPath, "config", "c", "", "path to YAML config (defaults apply when empty)")
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "start of replay window (RFC3339)")
	replayCmd.Flags().StringVar(&replayTo, "to", "", "end of replay window (RFC3339, exclusive)")
	replayCmd.Flags().StringVar(&replayState, "state", "disabled", "starting canary state (disabled|canary|partial|live)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(replayConfigPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	from, to, err := parseWindow(replayFrom, replayTo)
	if err != nil {
		return err
	}
	state, err := parseState(replayState)
	if err != nil {
		return err
	}

	f, err := feed.NewCSVFeed(args[0], from, to)
	if err != nil {
		return fmt.Errorf("open ticks: %w", err)
	}

	var rec *metrics.Recorder
	if cfg.Metrics.Enabled {
		rec = metrics.New(prometheus.DefaultRegisterer)
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Listen, nil); err != nil {
				log.Error().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	p, j, err := buildPipeline(cfg, state, rec, log)
	if err != nil {
		f.Close()
		return err
	}
	defer j.Close()

	runner := &pipeline.Runner{Pipeline: p, Feed: f}
	sum, err := runner.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Replay complete\n")
	fmt.Printf("  Ticks:      %d\n", sum.Ticks)
	fmt.Printf("  Decisions:  %d\n", sum.Decisions)
	fmt.Printf("  Trades:     %d (%d wins / %d losses)\n", sum.Trades, sum.Wins, sum.Losses)
	fmt.Printf("  Halts:      %d\n", sum.Halts)
	fmt.Printf("  Canary:     %s (weight %.2f)\n", sum.FinalState, sum.FinalState.Weight())
	if !sum.Start.IsZero() {
		fmt.Printf("  Window:     %s .. %s\n", sum.Start.Format(time.RFC3339), sum.End.Format(time.RFC3339))
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(path)
}

func parseWindow(from, to string) (time.Time, time.Time, error) {
	var f, t time.Time
	var err error
	if from != "" {
		if f, err = time.Parse(time.RFC3339, from); err != nil {
			return f, t, fmt.Errorf("bad --from: %w", err)
		}
	}
	if to != "" {
		if t, err = time.Parse(time.RFC3339, to); err != nil {
			return f, t, fmt.Errorf("bad --to: %w", err)
		}
	}
	return f, t, nil
}

func parseState(s string) (canary.State, error) {
	switch s {
	case "disabled":
		return canary.StateDisabled, nil
	case "canary":
		return canary.StateCanary, nil
	case "partial":
		return canary.StatePartial, nil
	case "live":
		return canary.StateLive, nil
	default:
		return canary.StateDisabled, fmt.Errorf("unknown canary state %q", s)
	}
}

func buildPipeline(cfg *config.Config, state canary.State, rec *metrics.Recorder, log zerolog.Logger) (*pipeline.Pipeline, journal.Journal, error) {
	model := regime.DefaultModel()
	if cfg.Model.Path != "" {
		var err error
		if model, err = regime.LoadModel(cfg.Model.Path); err != nil {
			return nil, nil, err
		}
	}

	catalog, err := strategies.NewCatalog(strategies.Noop{}, strategies.Breakout{}, strategies.Reversion{})
	if err != nil {
		return nil, nil, err
	}

	kind := router.KindBeta
	if cfg.Router.Posterior == "normal" {
		kind = router.KindNormal
	}
	rt, err := router.New(catalog, log,
		router.WithKind(kind),
		router.WithExploration(cfg.Router.Exploration),
		router.WithLearningRate(cfg.Router.LearningRate),
	)
	if err != nil {
		return nil, nil, err
	}

	var j journal.Journal
	switch cfg.Journal.Type {
	case "sqlite":
		if j, err = journal.NewSQLite(cfg.Journal.DBPath); err != nil {
			return nil, nil, err
		}
	case "csv":
		if j, err = journal.NewCSV(cfg.Journal.Dir); err != nil {
			return nil, nil, err
		}
	default:
		j = journal.Nop{}
	}

	corr := risk.NewCorrelationTracker(100)
	p, err := pipeline.New(pipeline.Deps{
		Model:        model,
		Router:       rt,
		Sizer:        risk.NewSizer(cfg.Risk, corr, log),
		Correlations: corr,
		Execution:    execution.NewRouter(cfg.Execution),
		Canary:       canary.NewAt(cfg.Canary, state, log),
		Portfolio:    risk.NewPortfolio(cfg.Account.Value),
		Journal:      j,
		Metrics:      rec,
		Log:          log,
	})
	if err != nil {
		j.Close()
		return nil, nil, err
	}
	return p, j, nil
}
