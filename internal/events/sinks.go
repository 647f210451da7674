package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/straja-ai/soundlens/internal/config"
)

// NewSinks builds the configured sinks. On error, sinks opened so far are closed.
func NewSinks(cfgs []config.SinkConfig) ([]Sink, error) {
	var sinks []Sink
	fail := func(err error) ([]Sink, error) {
		for _, s := range sinks {
			_ = s.Close(context.Background())
		}
		return nil, err
	}
	for i, c := range cfgs {
		switch strings.ToLower(strings.TrimSpace(c.Type)) {
		case "stdout":
			sinks = append(sinks, NewStdoutSink(nil))
		case "file_jsonl":
			s, err := NewFileSink(c.Path)
			if err != nil {
				return fail(fmt.Errorf("events sink %d: %w", i, err))
			}
			sinks = append(sinks, s)
		case "webhook":
			s, err := NewWebhookSink(c.URL, c.Headers, c.Timeout)
			if err != nil {
				return fail(fmt.Errorf("events sink %d: %w", i, err))
			}
			sinks = append(sinks, s)
		default:
			return fail(fmt.Errorf("events sink %d: unknown type %q", i, c.Type))
		}
	}
	return sinks, nil
}
