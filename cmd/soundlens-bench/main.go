package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/straja-ai/soundlens/internal/app"
	"github.com/straja-ai/soundlens/internal/config"
	"github.com/straja-ai/soundlens/internal/redact"
	"github.com/straja-ai/soundlens/internal/pipeline"
)

func main() {
	cfgPath := flag.String("config", "", "path to config yaml (required)")
	audioPath := flag.String("audio", "", "audio file to classify (required)")
	n := flag.Int("n", 50, "number of iterations")
	flag.Parse()

	if *cfgPath == "" || *audioPath == "" {
		redact.Fatalf("config and audio flags are required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		redact.Fatalf("load config: %v", err)
	}
	data, err := os.ReadFile(*audioPath)
	if err != nil {
		redact.Fatalf("read audio: %v", err)
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, app.Options{SkipEvents: true})
	if err != nil {
		redact.Fatalf("build pipeline: %v", err)
	}
	defer a.Close(ctx)

	up := pipeline.Upload{Filename: filepath.Base(*audioPath), Data: data}

	// Warmup
	var last *pipeline.Outcome
	for i := 0; i < 3; i++ {
		if last, err = a.Pipeline.Run(ctx, up); err != nil {
			redact.Fatalf("warmup run failed: %v", err)
		}
	}

	if *n <= 0 {
		*n = 1
	}

	var totals, inference []time.Duration
	for i := 0; i < *n; i++ {
		out, err := a.Pipeline.Run(ctx, up)
		if err != nil {
			redact.Fatalf("run failed: %v", err)
		}
		totals = append(totals, out.Latency.Total)
		inference = append(inference, out.Latency.Inference)
	}

	avg, p50, p95 := stats(totals)
	iavg, _, ip95 := stats(inference)

	fmt.Printf("bench: n=%d avg_ms=%.2f p50_ms=%.2f p95_ms=%.2f infer_avg_ms=%.2f infer_p95_ms=%.2f label=%s backend=%s\n",
		len(totals),
		avg,
		p50,
		p95,
		iavg,
		ip95,
		last.Result.Label,
		cfg.Model.Backend,
	)
}

func stats(durations []time.Duration) (avg, p50, p95 float64) {
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var total time.Duration
	for _, d := range durations {
		total += d
	}
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }

	avg = float64(total.Microseconds()) / 1000.0 / float64(len(durations))
	p50 = ms(durations[len(durations)/2])
	p95 = ms(durations[int(float64(len(durations))*0.95)])
	return avg, p50, p95
}
