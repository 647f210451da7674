// Package server exposes the classification pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/straja-ai/soundlens/internal/config"
	"github.com/straja-ai/soundlens/internal/pipeline"
	"github.com/straja-ai/soundlens/internal/redact"
	"github.com/straja-ai/soundlens/internal/web"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in memory
// before spilling to temp files.
const multipartMemory = 8 << 20

// Deps are the collaborators injected into the server.
type Deps struct {
	Pipeline *pipeline.Pipeline
	// Pages defaults to the embedded templates.
	Pages *web.Renderer
	// About overrides the generated about page.
	About *web.AboutPage
}

// Server wraps the HTTP server components for SoundLens.
type Server struct {
	mux      *http.ServeMux
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	pages    *web.Renderer
	about    web.AboutPage
	formats  []string
	http     *http.Server
}

// New wires routes for cfg and deps.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: config is nil")
	}
	if deps.Pipeline == nil {
		return nil, errors.New("server: pipeline is required")
	}
	pages := deps.Pages
	if pages == nil {
		var err error
		if pages, err = web.NewRenderer(); err != nil {
			return nil, err
		}
	}

	s := &Server{
		mux:      http.NewServeMux(),
		cfg:      cfg,
		pipeline: deps.Pipeline,
		pages:    pages,
		formats:  deps.Pipeline.Formats(),
	}
	if len(s.formats) == 0 {
		s.formats = append([]string(nil), cfg.Audio.Formats...)
	}
	if deps.About != nil {
		s.about = *deps.About
	} else {
		s.about = aboutPage(cfg, deps.Pipeline.Labels(), s.formats)
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /classify", s.handleClassifyForm)
	s.mux.HandleFunc("POST /api/classify", s.handleClassifyAPI)
	s.mux.HandleFunc("GET /about", s.handleAbout)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /robots.txt", handleRobots)
	s.mux.Handle("GET /static/", web.StaticHandler())

	s.http = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	return s, nil
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start listens on addr (config addr when empty) until Shutdown.
func (s *Server) Start(addr string) error {
	if strings.TrimSpace(addr) != "" {
		s.http.Addr = addr
	}
	redact.Logf("SoundLens listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func aboutPage(cfg *config.Config, labels, formats []string) web.AboutPage {
	sp := cfg.Spectrogram
	rows := []web.AboutRow{
		{Name: "Accepted formats", Value: strings.ToUpper(strings.Join(formats, ", "))},
		{Name: "Sample rate", Value: fmt.Sprintf("%d Hz", sp.SampleRate)},
		{Name: "FFT window / hop", Value: fmt.Sprintf("%d / %d samples", sp.NFFT, sp.HopLength)},
		{Name: "Mel bands", Value: fmt.Sprintf("%d (%g to %g Hz)", sp.NumMels, sp.FMin, sp.FMax)},
		{Name: "Dynamic range", Value: fmt.Sprintf("%g dB below peak", sp.TopDB)},
		{Name: "Spectrogram image", Value: fmt.Sprintf("%d x %d px, magma colormap", sp.Size, sp.Size)},
		{Name: "Classifier input", Value: fmt.Sprintf("%d x %d RGB, %s", cfg.Model.InputSize, cfg.Model.InputSize, cfg.Model.InputType)},
		{Name: "Model backend", Value: cfg.Model.Backend},
	}
	if cfg.Audio.MaxSeconds > 0 {
		rows = append(rows, web.AboutRow{Name: "Max analysed length", Value: fmt.Sprintf("%g s", cfg.Audio.MaxSeconds)})
	}
	return web.AboutPage{Rows: rows, Labels: append([]string(nil), labels...)}
}
