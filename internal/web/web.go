// Package web renders the HTML pages of the demo.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
)

const (
	RobotsTagHeader = "X-Robots-Tag"
	RobotsTagValue  = "noindex, nofollow"
)

//go:embed templates/*.html static/*
var assets embed.FS

var pageNames = []string{"index", "result", "about"}

// Renderer executes the embedded page templates.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses every page together with the shared layout.
func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}
	r := &Renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(assets, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Index renders the upload form with status, typically 200 or an error status.
func (r *Renderer) Index(w http.ResponseWriter, status int, page IndexPage) {
	r.render(w, status, "index", page)
}

// Result renders a classification outcome.
func (r *Renderer) Result(w http.ResponseWriter, page ResultPage) {
	r.render(w, http.StatusOK, "result", page)
}

// About renders the static about page.
func (r *Renderer) About(w http.ResponseWriter, page AboutPage) {
	r.render(w, http.StatusOK, "about", page)
}

func (r *Renderer) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := r.pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set(RobotsTagHeader, RobotsTagValue)
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// StaticHandler serves the embedded stylesheet under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return WithRobots(http.StripPrefix("/static/", http.FileServer(http.FS(sub))))
}

// WithRobots asks crawlers not to index h's responses.
func WithRobots(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(RobotsTagHeader, RobotsTagValue)
		h.ServeHTTP(w, r)
	})
}
