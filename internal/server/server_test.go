package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/straja-ai/soundlens/internal/audio/audiotest"
	"github.com/straja-ai/soundlens/internal/classifier"
	"github.com/straja-ai/soundlens/internal/config"
	"github.com/straja-ai/soundlens/internal/content"
	"github.com/straja-ai/soundlens/internal/pipeline"
	"github.com/straja-ai/soundlens/internal/spectrogram"
	"github.com/straja-ai/soundlens/internal/web"
)

var testLabels = []string{"calm", "energetic", "game"}

func baseTestConfig() *config.Config {
	cfg, err := config.Load("does-not-exist.yaml")
	if err != nil {
		panic(err)
	}
	cfg.Model.Backend = "mock"
	cfg.Spectrogram.Size = 64
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, fake *classifier.Fake) *Server {
	t.Helper()
	if cfg == nil {
		cfg = baseTestConfig()
	}
	if fake == nil {
		var err error
		if fake, err = classifier.NewFake(testLabels); err != nil {
			t.Fatalf("fake: %v", err)
		}
	}
	gen, err := spectrogram.New(spectrogram.Config{
		SampleRate: cfg.Spectrogram.SampleRate,
		NFFT:       cfg.Spectrogram.NFFT,
		HopLength:  cfg.Spectrogram.HopLength,
		NumMels:    cfg.Spectrogram.NumMels,
		FMin:       cfg.Spectrogram.FMin,
		FMax:       cfg.Spectrogram.FMax,
		TopDB:      cfg.Spectrogram.TopDB,
		Size:       cfg.Spectrogram.Size,
	})
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	p, err := pipeline.New(pipeline.Deps{
		Formats:    cfg.Audio.Formats,
		Generator:  gen,
		Classifier: fake,
		Resolver:   content.NewResolver(content.DemoTable(testLabels), nil),
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	s, err := New(cfg, Deps{Pipeline: p})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return s
}

func uploadRequest(t *testing.T, path, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("audio", filename)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = fw.Write(data)
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func toneWAV(t *testing.T) []byte {
	return audiotest.WAV(t, audiotest.Sine(440, 22050, 22050, 0.5), 22050, 1)
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestClassifyFormRendersResult(t *testing.T) {
	fake, _ := classifier.NewFake(testLabels)
	fake.SetScores(0.2, 0.7, 0.1)
	s := newTestServer(t, nil, fake)

	rr := serve(s, uploadRequest(t, "/classify", "clip.wav", toneWAV(t)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	for _, want := range []string{"<strong>energetic</strong>", "width: 70.00%", "0.7000", "0.2000", "data:image/png;base64,"} {
		if !strings.Contains(body, want) {
			t.Fatalf("result page missing %q", want)
		}
	}
	if got := rr.Header().Get(web.RobotsTagHeader); got != web.RobotsTagValue {
		t.Fatalf("missing robots header, got %q", got)
	}
}

func TestClassifyFormErrors(t *testing.T) {
	s := newTestServer(t, nil, nil)
	wav := toneWAV(t)
	cases := []struct {
		name     string
		filename string
		data     []byte
		status   int
		message  string
	}{
		{"unsupported extension", "notes.txt", []byte("hi"), http.StatusUnsupportedMediaType, "Unsupported audio format"},
		{"malformed wav", "clip.wav", []byte("definitely not audio"), http.StatusBadRequest, "could not be decoded"},
		{"truncated wav", "clip.wav", wav[:len(wav)/2], http.StatusBadRequest, "could not be decoded"},
		{"missing file", "", nil, http.StatusBadRequest, "Choose an audio file"},
	}
	for _, tc := range cases {
		rr := serve(s, uploadRequest(t, "/classify", tc.filename, tc.data))
		if rr.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, rr.Code)
		}
		body := rr.Body.String()
		if !strings.Contains(body, tc.message) || !strings.Contains(body, `name="audio"`) {
			t.Fatalf("%s: expected form with message %q, got %s", tc.name, tc.message, body)
		}
	}
}

func TestClassifyRejectsOversizeUpload(t *testing.T) {
	cfg := baseTestConfig()
	cfg.Server.MaxUploadBytes = 1024
	s := newTestServer(t, cfg, nil)

	rr := serve(s, uploadRequest(t, "/api/classify", "clip.wav", toneWAV(t)))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestClassifyAPIReturnsJSON(t *testing.T) {
	fake, _ := classifier.NewFake(testLabels)
	fake.SetScores(1, 0, 0)
	s := newTestServer(t, nil, fake)

	rr := serve(s, uploadRequest(t, "/api/classify", "clip.wav", toneWAV(t)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp classifyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Label != "calm" || resp.Fallback || resp.RequestID == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resp.Probabilities) != 3 || resp.Probabilities[0].Prob != 1 {
		t.Fatalf("unexpected probabilities %+v", resp.Probabilities)
	}
	if len(resp.Content.Images) != 3 || len(resp.Content.Videos) != 3 || len(resp.Content.Texts) != 3 {
		t.Fatalf("unexpected content %+v", resp.Content)
	}
	png, err := base64.StdEncoding.DecodeString(resp.SpectrogramPNG)
	if err != nil || !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("spectrogram is not a base64 PNG: %v", err)
	}
}

func TestClassifyAPIErrorObject(t *testing.T) {
	fake, _ := classifier.NewFake(testLabels)
	fake.SetError(errTest)
	s := newTestServer(t, nil, fake)

	rr := serve(s, uploadRequest(t, "/api/classify", "clip.wav", toneWAV(t)))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Type != "inference_error" || body.Error.Message == "" {
		t.Fatalf("unexpected error body %+v", body)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/classify", strings.NewReader(`{"audio":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rr = serve(s, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart body, got %d", rr.Code)
	}
}

func TestStaticPages(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `accept=".wav,.mp3"`) {
		t.Fatalf("index not served: %d", rr.Code)
	}

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/about", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "22050 Hz") || !strings.Contains(rr.Body.String(), "<code>energetic</code>") {
		t.Fatalf("about not served: %d %s", rr.Code, rr.Body.String())
	}

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "ok" {
		t.Fatalf("unexpected health response %d %q", rr.Code, rr.Body.String())
	}

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/static/style.css", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("stylesheet not served: %d", rr.Code)
	}

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = serve(s, httptest.NewRequest(http.MethodGet, "/classify", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET /classify, got %d", rr.Code)
	}
}

func TestHandleRobots(t *testing.T) {
	rr := httptest.NewRecorder()
	handleRobots(rr, httptest.NewRequest(http.MethodGet, "/robots.txt", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/plain" {
		t.Fatalf("expected Content-Type text/plain, got %q", ct)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("expected Cache-Control no-store, got %q", cc)
	}
	if got := rr.Body.String(); got != robotsTxt {
		t.Fatalf("unexpected body, got %q", got)
	}
}

func TestNewRequiresPipeline(t *testing.T) {
	if _, err := New(baseTestConfig(), Deps{}); err == nil {
		t.Fatalf("expected error without pipeline")
	}
}

var errTest = testError("session crashed")

type testError string

func (e testError) Error() string { return string(e) }
