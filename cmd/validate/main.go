package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/braintumor/benchmark"
	"github.com/nvr-ai/braintumor/config"
	"github.com/nvr-ai/braintumor/inference"
	"github.com/nvr-ai/braintumor/models/model"
	"github.com/nvr-ai/braintumor/util"
	"github.com/nvr-ai/braintumor/zlog"
)

// options holds the command line flags.
type options struct {
	configPath  string
	dataDir     string
	output      string
	maxSizeMB   float64
	iterations  int
	warmup      int
	concurrency int
	thresholds  benchmark.Thresholds
	timeout     time.Duration
}

// report is written to -output as JSON.
type report struct {
	ModelPath   string                        `json:"model_path"`
	SizeMB      float64                       `json:"size_mb"`
	Evaluation  *benchmark.Evaluation         `json:"evaluation,omitempty"`
	Performance *benchmark.PerformanceMetrics `json:"performance,omitempty"`
	Passed      bool                          `json:"passed"`
	Failures    []string                      `json:"failures,omitempty"`
}

type step struct {
	name string
	run  func(ctx context.Context) (string, error)
}

func main() {
	var opts options
	opts.thresholds = benchmark.DefaultThresholds()
	flag.StringVar(&opts.configPath, "config", "", "Path to the TOML configuration file")
	flag.StringVar(&opts.dataDir, "data", "", "Labelled dataset root with one directory per class")
	flag.StringVar(&opts.output, "output", "", "Write the JSON report to this file")
	flag.Float64Var(&opts.maxSizeMB, "max-size-mb", 500, "Maximum model artifact size")
	flag.IntVar(&opts.iterations, "iterations", 100, "Benchmark iterations")
	flag.IntVar(&opts.warmup, "warmup", 5, "Benchmark warmup runs")
	flag.IntVar(&opts.concurrency, "concurrency", 1, "Concurrent benchmark workers")
	flag.Float64Var(&opts.thresholds.MinAccuracy, "min-accuracy", opts.thresholds.MinAccuracy, "Minimum accuracy")
	flag.Float64Var(&opts.thresholds.MinPrecision, "min-precision", opts.thresholds.MinPrecision, "Minimum macro precision")
	flag.Float64Var(&opts.thresholds.MinRecall, "min-recall", opts.thresholds.MinRecall, "Minimum macro recall")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Minute, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		zlog.Fatal("loading configuration", zap.Error(err))
	}
	if err := zlog.Init(zlog.Options{Level: "warn", Format: "console"}); err != nil {
		zlog.Fatal("initializing logger", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	if !validate(ctx, cfg, opts, color.Output) {
		os.Exit(1)
	}
}

// validate runs every step, prints a summary to out and reports whether all passed.
func validate(ctx context.Context, cfg *config.Config, opts options, out io.Writer) bool {
	rep := &report{ModelPath: cfg.ModelConfig.Path}
	fake := cfg.Backend == string(model.ModelNameFake)
	found := false
	var engine *inference.Engine
	defer func() {
		if engine != nil {
			engine.Close()
		}
	}()

	steps := []step{
		{name: "Model Exists", run: func(context.Context) (string, error) {
			if fake {
				return "fake backend has no artifact", nil
			}
			info, err := os.Stat(cfg.ModelConfig.Path)
			if err != nil {
				return "", err
			}
			found = true
			rep.SizeMB = float64(info.Size()) / (1 << 20)
			return fmt.Sprintf("found %s", cfg.ModelConfig.Path), nil
		}},
		{name: "Model Size", run: func(context.Context) (string, error) {
			if fake {
				return "fake backend has no artifact", nil
			}
			if !found {
				return "", errors.New("model artifact not found")
			}
			if rep.SizeMB > opts.maxSizeMB {
				return "", errors.Errorf("%.2f MB exceeds %.0f MB", rep.SizeMB, opts.maxSizeMB)
			}
			return fmt.Sprintf("%.2f MB", rep.SizeMB), nil
		}},
		{name: "Model Loadable", run: func(ctx context.Context) (string, error) {
			var err error
			engine, err = inference.ModelLoader(cfg.ModelArgs())(ctx)
			if err != nil {
				return "", err
			}
			o := engine.Model().Options()
			return fmt.Sprintf("%s backend on %s, version %s", o.Name, o.Device, o.Version), nil
		}},
		{name: "Model Performance", run: func(ctx context.Context) (string, error) {
			if opts.dataDir == "" {
				return "no -data given, skipped", nil
			}
			if engine == nil {
				return "", errors.New("model not loaded")
			}
			files, err := util.LoadLabelledImageFiles(opts.dataDir, engine.Classes())
			if err != nil {
				return "", err
			}
			ev, err := benchmark.Evaluate(ctx, engine, files, engine.Classes())
			if err != nil {
				return "", err
			}
			rep.Evaluation = ev
			summary := fmt.Sprintf("accuracy %.4f, precision %.4f, recall %.4f over %d images",
				ev.Accuracy, ev.Precision, ev.Recall, ev.Total)
			if failures := ev.Check(opts.thresholds); len(failures) > 0 {
				return "", errors.Errorf("%s: %v", summary, failures)
			}
			return summary, nil
		}},
		{name: "Latency", run: func(ctx context.Context) (string, error) {
			if engine == nil {
				return "", errors.New("model not loaded")
			}
			inputs, err := benchmarkInputs(opts.dataDir)
			if err != nil {
				return "", err
			}
			m, err := benchmark.Run(ctx, engine, inputs, benchmark.Scenario{
				Name:        "validate",
				Iterations:  opts.iterations,
				WarmupRuns:  opts.warmup,
				Concurrency: opts.concurrency,
			})
			if err != nil {
				return "", err
			}
			rep.Performance = m
			return fmt.Sprintf("p50 %.2f ms, p95 %.2f ms, %.1f predictions/s",
				m.Latency.P50, m.Latency.P95, m.PredictionsPerSecond), nil
		}},
	}

	pass := color.New(color.FgGreen, color.Bold).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()
	for _, s := range steps {
		msg, err := s.run(ctx)
		if err != nil {
			rep.Failures = append(rep.Failures, fmt.Sprintf("%s: %v", s.name, err))
			fmt.Fprintf(out, "%s %s: %v\n", fail("FAIL"), s.name, err)
			continue
		}
		fmt.Fprintf(out, "%s %s: %s\n", pass("PASS"), s.name, msg)
	}
	rep.Passed = len(rep.Failures) == 0

	if opts.output != "" {
		if err := writeReport(opts.output, rep); err != nil {
			fmt.Fprintf(out, "%s writing report: %v\n", fail("FAIL"), err)
			return false
		}
	}
	if rep.Passed {
		fmt.Fprintln(out, "All validations passed, model is ready for deployment.")
	} else {
		fmt.Fprintf(out, "%d validation(s) failed.\n", len(rep.Failures))
	}
	return rep.Passed
}

// benchmarkInputs uses the dataset images when available and a generated scan otherwise.
func benchmarkInputs(dataDir string) ([][]byte, error) {
	if dataDir != "" {
		files, err := util.LoadLabelledImageFiles(dataDir, nil)
		if err == nil {
			inputs := make([][]byte, len(files))
			for i, f := range files {
				inputs[i] = f.Data
			}
			return inputs, nil
		}
	}
	img, err := grayJPEG(model.DefaultImageSize)
	if err != nil {
		return nil, err
	}
	return [][]byte{img}, nil
}

func writeReport(path string, rep *report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
