package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/yourusername/quantlink-statarb/pkg/attention"
	"github.com/yourusername/quantlink-statarb/pkg/cointegration"
	"github.com/yourusername/quantlink-statarb/pkg/config"
	"github.com/yourusername/quantlink-statarb/pkg/datagen"
	"github.com/yourusername/quantlink-statarb/pkg/logger"
	"github.com/yourusername/quantlink-statarb/pkg/metrics"
	"github.com/yourusername/quantlink-statarb/pkg/portfolio"
	"github.com/yourusername/quantlink-statarb/pkg/publish"
	"github.com/yourusername/quantlink-statarb/pkg/risk"
	"github.com/yourusername/quantlink-statarb/pkg/signal"
)

type runOptions struct {
	root *rootOptions

	samples     int
	seed        int64
	correlation float64
	dataPath    string
	natsURL     string
	metricsAddr string
	rate        float64
	printEvery  int
	jsonOutput  bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{root: root}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay price data through the pair trackers",
		Long: `Replay generated or CSV price data through one tracker per configured pair.

With --data the directory must hold <symbol1>_<symbol2>.csv for every pair.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRun(ctx, cmd, opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.samples, "samples", "n", 0, "Generated samples per pair (overrides config)")
	f.Int64Var(&opts.seed, "seed", 0, "Random seed (overrides config)")
	f.Float64Var(&opts.correlation, "correlation", 0, "Generated leg correlation (overrides config)")
	f.StringVar(&opts.dataPath, "data", "", "CSV directory; switches the data source to csv")
	f.StringVar(&opts.natsURL, "nats-url", "", "Publish signals to this NATS server")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.Float64Var(&opts.rate, "rate", 0, "Replay rate in batches per second (0 = as fast as possible)")
	f.IntVar(&opts.printEvery, "print-every", 100, "Print signals every N batches (0 disables)")
	f.BoolVar(&opts.jsonOutput, "json", false, "Print the final summary as JSON")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// applyOverrides 命令行参数覆盖配置文件
func applyOverrides(cmd *cobra.Command, cfg *config.Config, opts *runOptions) error {
	f := cmd.Flags()
	if opts.root.logLevel != "" {
		cfg.Logging.Level = opts.root.logLevel
	}
	if opts.root.logFormat != "" {
		cfg.Logging.Format = opts.root.logFormat
	}
	if f.Changed("samples") {
		cfg.Data.Samples = opts.samples
	}
	if f.Changed("seed") {
		cfg.Data.Seed = opts.seed
	}
	if f.Changed("correlation") {
		cfg.Data.Correlation = opts.correlation
	}
	if opts.dataPath != "" {
		cfg.Data.Source = "csv"
		cfg.Data.Path = opts.dataPath
	}
	if opts.natsURL != "" {
		cfg.NATS.Enabled = true
		cfg.NATS.URL = opts.natsURL
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = opts.metricsAddr
	}
	return cfg.Validate()
}

func runRun(ctx context.Context, cmd *cobra.Command, opts *runOptions) error {
	cfg, err := loadConfig(opts.root.configFile)
	if err != nil {
		return err
	}
	if err := applyOverrides(cmd, cfg, opts); err != nil {
		return err
	}

	log, closer, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(reg, cfg.Metrics.Namespace)
	observers := signal.Observers{recorder}

	if cfg.Metrics.Enabled {
		srv := startMetricsServer(cfg.Metrics.Addr, reg, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var publisher *publish.Publisher
	if cfg.NATS.Enabled {
		conn, err := publish.Connect(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer conn.Drain()
		publisher = publish.NewPublisher(conn, cfg.NATS.SubjectPrefix, log)
		observers = append(observers, publisher)
		log.Info().Str("url", cfg.NATS.URL).Str("prefix", cfg.NATS.SubjectPrefix).Msg("publishing signals to NATS")
	}

	pm := portfolio.NewManager(
		portfolio.Config{
			CorrelationEvery: cfg.Portfolio.CorrelationEvery,
			ApplyHeat:        cfg.Portfolio.ApplyHeat,
		},
		portfolio.WithLogger(log),
		portfolio.WithHeatRecorder(recorder),
	)
	for _, p := range cfg.Pairs {
		_, err := pm.AddPair(p.Name(), p.Tracker,
			signal.WithObserver(observers),
			signal.WithScorer(attention.NewTemporalScorer(attention.DefaultDim)),
		)
		if err != nil {
			return err
		}
	}

	series, err := loadSeries(cfg)
	if err != nil {
		return err
	}

	var limiter *rate.Limiter
	if opts.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.rate), 1)
	}

	out := cmd.OutOrStdout()
	start := time.Now()
	err = replay(ctx, pm, series, limiter, func(k int, signals map[string]signal.PairSignal) {
		if opts.printEvery > 0 && k%opts.printEvery == 0 {
			printSignals(out, k, signals)
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		recorder.RecordError("replay")
		return err
	}

	st := pm.GetStats()
	ev := log.Info().
		Int64("batches", st.Batches).
		Int64("ticks", st.Ticks).
		Int64("rejected", st.Rejected).
		Int64("vetoes", st.Vetoes).
		Dur("elapsed", time.Since(start))
	if publisher != nil {
		published, failed := publisher.Stats()
		ev = ev.Int64("published", published).Int64("publish_failed", failed)
	}
	ev.Msg("replay finished")

	return printSummary(out, pm, opts.jsonOutput)
}

// loadSeries 为每个价差对准备行情序列
func loadSeries(cfg *config.Config) (map[string][]datagen.Row, error) {
	series := make(map[string][]datagen.Row, len(cfg.Pairs))

	for i, p := range cfg.Pairs {
		switch cfg.Data.Source {
		case "csv":
			path := filepath.Join(cfg.Data.Path, p.Symbol1+"_"+p.Symbol2+".csv")
			f, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("pair %s: %w", p.Name(), err)
			}
			rows, _, err := datagen.ReadCSV(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("pair %s: %w", p.Name(), err)
			}
			series[p.Name()] = rows
		default:
			opts := datagen.DefaultOptions(cfg.Data.Samples, cfg.Data.Correlation, cfg.Data.Seed+int64(i))
			series[p.Name()] = datagen.Correlated(opts)
		}
	}
	return series, nil
}

// replay 按行号逐批推进所有价差对
func replay(ctx context.Context, pm *portfolio.Manager, series map[string][]datagen.Row, limiter *rate.Limiter, onBatch func(k int, signals map[string]signal.PairSignal)) error {
	n := 0
	for _, rows := range series {
		if len(rows) > n {
			n = len(rows)
		}
	}

	for k := 0; k < n; k++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		batch := make(map[string]signal.Tick, len(series))
		for name, rows := range series {
			if k < len(rows) {
				batch[name] = rows[k].Tick()
			}
		}

		signals, err := pm.Process(ctx, batch)
		if err != nil {
			return err
		}
		if onBatch != nil {
			onBatch(k, signals)
		}
	}
	return nil
}

func printSignals(w io.Writer, k int, signals map[string]signal.PairSignal) {
	names := make([]string, 0, len(signals))
	for name := range signals {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := signals[name]
		veto := ""
		if s.Vetoed {
			veto = " (vetoed)"
		}
		fmt.Fprintf(w, "[%5d] %-12s %-5s z=%7.3f entry=%5.2f exit=%5.2f regime=%-6s size=%10.2f hedge=%5.2f%s\n",
			k, name, s.Signal, s.ZScore, s.EntryThreshold, s.ExitThreshold, s.Regime, s.PositionSize, s.HedgeRatio, veto)
	}
}

// pairSummary 运行结束时单个价差对的汇总
type pairSummary struct {
	Pair          string               `json:"pair"`
	TrackerID     string               `json:"tracker_id"`
	Stats         signal.Stats         `json:"stats"`
	Regime        string               `json:"regime"`
	Confidence    float64              `json:"regime_confidence"`
	Cointegration cointegration.Report `json:"cointegration"`
	Risk          risk.Snapshot        `json:"risk"`
}

type summary struct {
	Portfolio   portfolio.Stats `json:"portfolio"`
	Pairs       []pairSummary   `json:"pairs"`
	Correlation [][]float64     `json:"correlation,omitempty"`
	Order       []string        `json:"correlation_order,omitempty"`
}

func buildSummary(pm *portfolio.Manager) summary {
	s := summary{Portfolio: pm.GetStats()}
	for _, name := range pm.Pairs() {
		t, ok := pm.Tracker(name)
		if !ok {
			continue
		}
		r, conf := t.Regime()
		s.Pairs = append(s.Pairs, pairSummary{
			Pair:          name,
			TrackerID:     t.ID().String(),
			Stats:         t.Stats(),
			Regime:        r.String(),
			Confidence:    conf,
			Cointegration: t.Cointegration(),
			Risk:          t.RiskSnapshot(),
		})
	}
	if cm := pm.GetCorrelationMatrix(); cm != nil {
		s.Correlation = cm.Matrix.Rows()
		s.Order = cm.Pairs
	}
	return s
}

func printSummary(w io.Writer, pm *portfolio.Manager, asJSON bool) error {
	s := buildSummary(pm)

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PAIR\tPOSITION\tZ\tHEDGE\tHALF-LIFE\tREGIME\tTRADES\tRETURN\tSHARPE\tMAX-DD\tEG\tJOHANSEN\tFRACTIONAL")
	for _, p := range s.Pairs {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.3f\t%.1f\t%s (%.2f)\t%d\t%.4f\t%.2f\t%.4f\t%.3f\t%.3f\t%.3f\n",
			p.Pair, p.Stats.Position, p.Stats.ZScore, p.Stats.HedgeRatio, p.Stats.HalfLife,
			p.Regime, p.Confidence,
			p.Stats.ClosedTrades, p.Stats.RealizedReturn, p.Risk.SharpeRatio, p.Risk.MaxDrawdown,
			p.Cointegration.EngleGranger, p.Cointegration.Johansen, p.Cointegration.Fractional)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nbatches=%d ticks=%d rejected=%d vetoes=%d active=%d heat=%.3f\n",
		s.Portfolio.Batches, s.Portfolio.Ticks, s.Portfolio.Rejected, s.Portfolio.Vetoes,
		s.Portfolio.NumActive, s.Portfolio.Heat)
	return nil
}

func startMetricsServer(addr string, reg *prometheus.Registry, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}
