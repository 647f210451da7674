package redact

import (
	"strings"
	"testing"
)

func TestStringRedaction(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		disallow []string
		require  []string
	}{
		{
			name:     "bearer header",
			input:    "Authorization: Bearer sk-secret-123",
			disallow: []string{"sk-secret-123"},
			require:  []string{"[REDACTED]"},
		},
		{
			name:     "drive download url",
			input:    "fetching https://drive.google.com/uc?export=download&id=1xaPgoHahhdzLaIi652ySl_7Sw_Kcut9X",
			disallow: []string{"1xaPgoHahhdzLaIi652ySl_7Sw_Kcut9X", "export=download"},
			require:  []string{"https://drive.google.com/uc"},
		},
		{
			name:     "artifact id field",
			input:    "artifact_id=1xaPgoHahhdzLaIi652ySl_7Sw path=model.onnx",
			disallow: []string{"1xaPgoHahhdzLaIi652ySl_7Sw"},
			require:  []string{"artifact_id=[REDACTED]", "path=model.onnx"},
		},
		{
			name:     "webhook secret header",
			input:    "headers X-Webhook-Secret: abcdef123456",
			disallow: []string{"abcdef123456"},
			require:  []string{"[REDACTED]"},
		},
		{
			name:     "mixed token",
			input:    "Bearer abc key=supersecret token=anotherone hook=https://hooks.example.test/events/base/",
			disallow: []string{"abc", "supersecret", "anotherone", "events/base/"},
			require:  []string{"[REDACTED]", "https://hooks.example.test/[REDACTED_PATH]"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := String(tc.input)
			for _, bad := range tc.disallow {
				if bad != "" && contains(out, bad) {
					t.Fatalf("output still contains %q: %s", bad, out)
				}
			}
			for _, want := range tc.require {
				if want == "" {
					continue
				}
				if !contains(out, want) {
					t.Fatalf("output missing required substring %q: %s", want, out)
				}
			}
		})
	}
}

func TestSprintfMasksDownloadErrors(t *testing.T) {
	err := `download model.onnx: Get "https://drive.google.com/uc?export=download&id=1xaPgoHahhdzLaIiQ": dial tcp: lookup drive.google.com: no such host`
	out := Sprintf("startup failed: %v", err)
	if strings.Contains(out, "1xaPgoHahhdzLaIiQ") || strings.Contains(out, "export=download") {
		t.Fatalf("download error leaked the artifact url: %s", out)
	}
	if !strings.Contains(out, "drive.google.com") || !strings.Contains(out, "no such host") {
		t.Fatalf("expected host and cause to survive redaction: %s", out)
	}
}

func TestIDKeepsShortPrefix(t *testing.T) {
	if got := ID("1xaPgoHahhdzLaIi"); got != "1xaP…" {
		t.Fatalf("unexpected id prefix %q", got)
	}
	if got := ID("abc"); got != "[REDACTED]" {
		t.Fatalf("short ids should be fully redacted, got %q", got)
	}
}

func contains(s, sub string) bool {
	return s != "" && sub != "" && strings.Contains(s, sub)
}
