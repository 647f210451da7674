package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/straja-ai/soundlens/internal/app"
	"github.com/straja-ai/soundlens/internal/artifact"
	"github.com/straja-ai/soundlens/internal/config"
	"github.com/straja-ai/soundlens/internal/redact"
)

func main() {
	cfgPath := flag.String("config", "soundlens.yaml", "path to config yaml")
	verify := flag.Bool("verify", false, "only verify installed files, do not download")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		redact.Fatalf("load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		redact.Fatalf("invalid config: %v", err)
	}

	src := app.ArtifactSource(cfg.Model.Source)
	if len(src.Files) == 0 {
		redact.Fatalf("model.source.files is empty; nothing to fetch")
	}

	if *verify {
		if err := artifact.Verify(cfg.Model.Dir, src.Files); err != nil {
			redact.Fatalf("verify: %v", err)
		}
		fmt.Printf("verified %d file(s) in %s\n", len(src.Files), cfg.Model.Dir)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := mpb.NewWithContext(ctx, mpb.WithWidth(64))
	dir, err := app.FetchModel(ctx, cfg, barProgress(p))
	p.Wait()
	if err != nil {
		redact.Fatalf("fetch: %v", err)
	}
	fmt.Printf("model files ready in %s\n", dir)
}

// bar adapts an mpb bar to artifact.Progress.
type bar struct {
	b *mpb.Bar
}

func (b *bar) Write(p []byte) (int, error) {
	b.b.IncrBy(len(p))
	return len(p), nil
}

func (b *bar) Finish() {
	if b.b.Current() > 0 {
		b.b.SetTotal(-1, true)
	} else {
		b.b.Abort(false)
	}
}

func barProgress(p *mpb.Progress) artifact.ProgressFunc {
	return func(name string, total int64) artifact.Progress {
		if total < 0 {
			total = 0
		}
		b := p.AddBar(total,
			mpb.PrependDecorators(
				decor.Name(name+" "),
				decor.CountersKibiByte("% .1f / % .1f"),
			),
			mpb.AppendDecorators(
				decor.Percentage(),
				decor.AverageETA(decor.ET_STYLE_GO),
			),
		)
		return &bar{b: b}
	}
}
