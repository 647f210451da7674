// Package content maps a predicted label to the media shown next to the
// classification result.
package content

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/straja-ai/soundlens/internal/redact"
)

// PerKind is the number of images, videos and texts in every bundle.
const PerKind = 3

const (
	fallbackImage = "https://via.placeholder.com/300"
	fallbackVideo = "https://www.youtube.com/watch?v=3JZ_D3ELwOQ"
	fallbackText  = "Default text"
)

// Bundle is the media attached to one label.
type Bundle struct {
	Images []string `yaml:"images" json:"images"`
	Videos []string `yaml:"videos" json:"videos"`
	Texts  []string `yaml:"texts" json:"texts"`
}

// Validate checks that every list has exactly PerKind non-empty entries.
func (b Bundle) Validate() error {
	for _, kind := range []struct {
		name  string
		items []string
	}{{"images", b.Images}, {"videos", b.Videos}, {"texts", b.Texts}} {
		if len(kind.items) != PerKind {
			return fmt.Errorf("%s: expected %d entries, got %d", kind.name, PerKind, len(kind.items))
		}
		for i, v := range kind.items {
			if strings.TrimSpace(v) == "" {
				return fmt.Errorf("%s[%d] is empty", kind.name, i)
			}
		}
	}
	return nil
}

func (b Bundle) clone() Bundle {
	return Bundle{
		Images: append([]string(nil), b.Images...),
		Videos: append([]string(nil), b.Videos...),
		Texts:  append([]string(nil), b.Texts...),
	}
}

// Fallback is the placeholder bundle served for labels without content.
func Fallback() Bundle {
	return Bundle{
		Images: repeat(fallbackImage),
		Videos: repeat(fallbackVideo),
		Texts:  repeat(fallbackText),
	}
}

func repeat(s string) []string {
	out := make([]string, PerKind)
	for i := range out {
		out[i] = s
	}
	return out
}

// Table maps labels to bundles.
type Table map[string]Bundle

type tableFile struct {
	Labels map[string]Bundle `yaml:"labels"`
}

// LoadTable reads a YAML file of the form
//
//	labels:
//	  <label>:
//	    images: [...]
//	    videos: [...]
//	    texts: [...]
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content table: %w", err)
	}
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse content table: %w", err)
	}
	if len(tf.Labels) == 0 {
		return nil, errors.New("content table has no labels")
	}
	t := make(Table, len(tf.Labels))
	for label, b := range tf.Labels {
		label = strings.TrimSpace(label)
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("content for %q: %w", label, err)
		}
		t[label] = b
	}
	return t, nil
}

// Validate reports every difference between the table keys and the labels
// the classifier can produce.
func (t Table) Validate(labels []string) error {
	known := make(map[string]bool, len(labels))
	var missing []string
	for _, l := range labels {
		known[l] = true
		if _, ok := t[l]; !ok {
			missing = append(missing, l)
		}
	}
	var extra []string
	for l := range t {
		if !known[l] {
			extra = append(extra, l)
		}
	}
	sort.Strings(extra)

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "no content for labels "+strings.Join(missing, ", "))
	}
	if len(extra) > 0 {
		problems = append(problems, "content for unknown labels "+strings.Join(extra, ", "))
	}
	for _, l := range labels {
		if b, ok := t[l]; ok {
			if err := b.Validate(); err != nil {
				problems = append(problems, fmt.Sprintf("content for %q: %v", l, err))
			}
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Resolver answers which bundle belongs to a label.
type Resolver struct {
	table      Table
	fallback   Bundle
	fallbacks  atomic.Int64
	onFallback func(label string)
}

// NewResolver serves bundles from table. onFallback, if set, runs every time
// an unmapped label is resolved.
func NewResolver(table Table, onFallback func(label string)) *Resolver {
	cp := make(Table, len(table))
	for k, v := range table {
		cp[k] = v.clone()
	}
	return &Resolver{table: cp, fallback: Fallback(), onFallback: onFallback}
}

// Resolve returns the label's bundle and true, or the fallback bundle and
// false when the label has no content.
func (r *Resolver) Resolve(label string) (Bundle, bool) {
	if b, ok := r.table[label]; ok {
		return b.clone(), true
	}
	r.fallbacks.Add(1)
	redact.Logf("content: no bundle for label %q, serving placeholders", label)
	if r.onFallback != nil {
		r.onFallback(label)
	}
	return r.fallback.clone(), false
}

// Fallbacks reports how many times Resolve served the fallback bundle.
func (r *Resolver) Fallbacks() int64 { return r.fallbacks.Load() }

// EmbedURL turns a YouTube watch or short link into its embeddable player
// URL. Other URLs are returned unchanged.
func EmbedURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch host {
	case "youtube.com", "m.youtube.com":
		if u.Path == "/watch" {
			if id := u.Query().Get("v"); id != "" {
				return "https://www.youtube.com/embed/" + url.PathEscape(id)
			}
		}
	case "youtu.be":
		if id := strings.Trim(u.Path, "/"); id != "" {
			return "https://www.youtube.com/embed/" + url.PathEscape(id)
		}
	}
	return raw
}
