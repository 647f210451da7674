package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var labels = []string{"calm", "energetic", "game"}

func TestResolveMappedLabel(t *testing.T) {
	r := NewResolver(DemoTable(labels), nil)
	b, ok := r.Resolve("game")
	if !ok {
		t.Fatalf("expected game to be mapped")
	}
	if b.Texts[0] != "Ping-dong" {
		t.Fatalf("unexpected bundle %+v", b)
	}
	if r.Fallbacks() != 0 {
		t.Fatalf("mapped label must not count as fallback")
	}
}

func TestResolveFallbackOnlyWhenUnmapped(t *testing.T) {
	var seen []string
	r := NewResolver(DemoTable(labels), func(l string) { seen = append(seen, l) })

	for _, l := range labels {
		if _, ok := r.Resolve(l); !ok {
			t.Fatalf("label %q should be mapped", l)
		}
	}

	b, ok := r.Resolve("unknown")
	if ok {
		t.Fatalf("unknown label should fall back")
	}
	if len(b.Images) != 3 || len(b.Videos) != 3 || len(b.Texts) != 3 {
		t.Fatalf("fallback must hold three of each, got %+v", b)
	}
	for i := 0; i < 3; i++ {
		if b.Images[i] != fallbackImage || b.Videos[i] != fallbackVideo || b.Texts[i] != fallbackText {
			t.Fatalf("fallback entry %d not a placeholder: %+v", i, b)
		}
	}
	if r.Fallbacks() != 1 || len(seen) != 1 || seen[0] != "unknown" {
		t.Fatalf("fallback not reported: count=%d seen=%v", r.Fallbacks(), seen)
	}
}

func TestResolveReturnsCopies(t *testing.T) {
	r := NewResolver(DemoTable(labels), nil)
	b, _ := r.Resolve("calm")
	b.Images[0] = "mutated"
	again, _ := r.Resolve("calm")
	if again.Images[0] == "mutated" {
		t.Fatalf("resolver leaked its table")
	}
}

func TestDemoTableAssignsFirstThreeLabels(t *testing.T) {
	table := DemoTable([]string{"a", "b", "c", "d"})
	if len(table) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(table))
	}
	if _, ok := table["d"]; ok {
		t.Fatalf("fourth label should stay unmapped")
	}
	for l, b := range table {
		if err := b.Validate(); err != nil {
			t.Fatalf("demo bundle %s invalid: %v", l, err)
		}
	}
}

func TestTableValidateDetectsDivergence(t *testing.T) {
	table := DemoTable(labels)
	if err := table.Validate(labels); err != nil {
		t.Fatalf("expected aligned table, got %v", err)
	}

	err := table.Validate([]string{"calm", "energetic", "noise"})
	if err == nil {
		t.Fatalf("expected divergence error")
	}
	if !strings.Contains(err.Error(), "noise") || !strings.Contains(err.Error(), "game") {
		t.Fatalf("error should name both sides, got %v", err)
	}
}

func TestBundleValidateCounts(t *testing.T) {
	b := Fallback()
	b.Videos = b.Videos[:2]
	if err := b.Validate(); err == nil {
		t.Fatalf("expected error for two videos")
	}
	b = Fallback()
	b.Texts[1] = " "
	if err := b.Validate(); err == nil {
		t.Fatalf("expected error for blank text")
	}
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.yaml")
	doc := `labels:
  calm:
    images: [a.png, b.png, c.png]
    videos:
      - https://youtu.be/abc
      - https://youtu.be/def
      - https://youtu.be/ghi
    texts: [one, two, three]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := table["calm"].Images[2]; got != "c.png" {
		t.Fatalf("unexpected image %q", got)
	}
}

func TestLoadTableRejectsShortBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.yaml")
	doc := "labels:\n  calm:\n    images: [a]\n    videos: [v, v, v]\n    texts: [t, t, t]\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadTable(path); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestEmbedURL(t *testing.T) {
	cases := map[string]string{
		"https://www.youtube.com/watch?v=3JZ_D3ELwOQ": "https://www.youtube.com/embed/3JZ_D3ELwOQ",
		"https://youtube.com/watch?v=abc&t=10":        "https://www.youtube.com/embed/abc",
		"https://youtu.be/xyz":                        "https://www.youtube.com/embed/xyz",
		"https://example.com/video.mp4":               "https://example.com/video.mp4",
	}
	for in, want := range cases {
		if got := EmbedURL(in); got != want {
			t.Fatalf("EmbedURL(%q) = %q, want %q", in, got, want)
		}
	}
}
