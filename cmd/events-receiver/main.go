package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/straja-ai/soundlens/internal/events"
)

func main() {
	addr := flag.String("addr", ":8099", "listen address for events receiver")
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("/events", handleEvent)
	mux.HandleFunc("/", handleEvent)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("events receiver listening on %s (POST JSON to /events)...", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("receiver error: %v", err)
	}
}

func handleEvent(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()

	var ev events.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		log.Printf("received non-event payload: path=%s len=%d err=%v", r.URL.Path, len(body), err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	log.Printf("received event: path=%s request_id=%s outcome=%s", r.URL.Path, ev.RequestID, ev.Outcome)
	events.LogEvent(&ev)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, `{"status":"ok"}`)
}
