package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/straja-ai/soundlens/internal/classifier"
	"github.com/straja-ai/soundlens/internal/content"
	"github.com/straja-ai/soundlens/internal/pipeline"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	return r
}

func sampleOutcome(t *testing.T) *pipeline.Outcome {
	t.Helper()
	res, err := classifier.NewResult([]string{"calm", "energetic", "game"}, []float64{0.125, 0.5, 0.375})
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	return &pipeline.Outcome{
		RequestID: "req-123",
		PNG:       []byte{0x89, 'P', 'N', 'G'},
		Result:    res,
		Content:   content.DemoTable([]string{"calm", "energetic", "game"})["energetic"],
	}
}

func TestIndexRendersFormAndError(t *testing.T) {
	r := newRenderer(t)
	rr := httptest.NewRecorder()
	r.Index(rr, http.StatusUnsupportedMediaType, IndexPage{Formats: []string{"wav", "mp3"}, Error: "unsupported <format>"})

	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `accept=".wav,.mp3"`) || !strings.Contains(body, `name="audio"`) {
		t.Fatalf("form missing accept list or field: %s", body)
	}
	if !strings.Contains(body, "unsupported &lt;format&gt;") {
		t.Fatalf("error message should be escaped and shown")
	}
	if got := rr.Header().Get(RobotsTagHeader); got != RobotsTagValue {
		t.Fatalf("expected %s header %q, got %q", RobotsTagHeader, RobotsTagValue, got)
	}
}

func TestResultPageBarsAndMedia(t *testing.T) {
	page := NewResultPage(sampleOutcome(t), []string{"wav"})
	if page.Label != "energetic" || len(page.Bars) != 3 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Bars[1].Width != "50.00%" || page.Bars[1].Value != "0.5000" || !page.Bars[1].Predicted {
		t.Fatalf("unexpected bar %+v", page.Bars[1])
	}
	if page.Bars[0].Value != "0.1250" || page.Bars[0].Predicted {
		t.Fatalf("unexpected bar %+v", page.Bars[0])
	}
	if len(page.Images) != 3 || page.Images[0].Caption != "Image: energetic" {
		t.Fatalf("unexpected images %+v", page.Images)
	}
	if page.Videos[0].URL != "https://www.youtube.com/embed/2Vv-BfVoq4g" || page.Videos[0].Caption != "YouTube: energetic" {
		t.Fatalf("unexpected video %+v", page.Videos[0])
	}
	if !strings.HasPrefix(string(page.Spectrogram), "data:image/png;base64,") {
		t.Fatalf("unexpected spectrogram src %q", page.Spectrogram)
	}
}

func TestResultRenders(t *testing.T) {
	r := newRenderer(t)
	rr := httptest.NewRecorder()
	out := sampleOutcome(t)
	out.Fallback = true
	r.Result(rr, NewResultPage(out, []string{"wav"}))

	body := rr.Body.String()
	for _, want := range []string{
		"Predicted label: <strong>energetic</strong>",
		"width: 50.00%",
		"0.3750",
		"https://www.youtube.com/embed/3JZ_D3ELwOQ",
		"Label 2 related first text",
		"data:image/png;base64,",
		"showing placeholders",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("result page missing %q", want)
		}
	}
}

func TestAboutRendersTableAndBanner(t *testing.T) {
	r := newRenderer(t)
	rr := httptest.NewRecorder()
	r.About(rr, AboutPage{Rows: []AboutRow{{Name: "Sample rate", Value: "22050 Hz"}}, Labels: []string{"calm", "game"}})
	body := rr.Body.String()
	if !strings.Contains(body, `class="banner"`) || !strings.Contains(body, "<td>22050 Hz</td>") || !strings.Contains(body, "<td>1</td>") {
		t.Fatalf("about page incomplete: %s", body)
	}
	if !strings.Contains(body, "<code>calm</code>, <code>game</code>") {
		t.Fatalf("labels missing from about page")
	}
}

func TestStaticHandlerServesStylesheet(t *testing.T) {
	rr := httptest.NewRecorder()
	StaticHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), ".banner") {
		t.Fatalf("unexpected stylesheet body")
	}
	if got := rr.Header().Get(RobotsTagHeader); got != RobotsTagValue {
		t.Fatalf("expected %s header %q for static, got %q", RobotsTagHeader, RobotsTagValue, got)
	}
}
