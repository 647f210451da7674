package artifact

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func sum(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

type quietProgress struct{}

func (quietProgress) Write(b []byte) (int, error) { return len(b), nil }
func (quietProgress) Finish()                     {}

func quiet(string, int64) Progress { return quietProgress{} }

func newStore(t *testing.T, files map[string][]byte) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		body, ok := files[r.URL.Query().Get("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestEnsureDownloadsAndVerifies(t *testing.T) {
	model := []byte("fake onnx bytes")
	labels := []byte(`["calm","energetic","game"]`)
	srv, hits := newStore(t, map[string][]byte{"model-id-123456": model, "labels-id-123456": labels})

	dir := filepath.Join(t.TempDir(), "model")
	src := Source{
		URLTemplate: srv.URL + "/uc?id={id}",
		Files: []File{
			{ID: "model-id-123456", Path: "model.onnx", SHA256: sum(model), Size: int64(len(model))},
			{ID: "labels-id-123456", Path: "labels.json"},
		},
	}
	got, err := Ensure(context.Background(), dir, src, Options{Progress: quiet})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if got != dir {
		t.Fatalf("expected %s, got %s", dir, got)
	}
	data, err := os.ReadFile(filepath.Join(dir, "model.onnx"))
	if err != nil || string(data) != string(model) {
		t.Fatalf("model not installed: %v", err)
	}

	state, err := LoadState(dir)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if len(state.Files) != 2 {
		t.Fatalf("expected 2 recorded files, got %d", len(state.Files))
	}
	rec, ok := state.lookup("labels.json")
	if !ok || rec.SHA256 != sum(labels) {
		t.Fatalf("labels not recorded with computed hash: %+v", rec)
	}

	before := atomic.LoadInt32(hits)
	if _, err := Ensure(context.Background(), dir, src, Options{Progress: quiet}); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if after := atomic.LoadInt32(hits); after != before {
		t.Fatalf("expected installed files to be reused, saw %d new requests", after-before)
	}
}

func TestEnsureRejectsBadChecksum(t *testing.T) {
	srv, _ := newStore(t, map[string][]byte{"model-id-123456": []byte("tampered")})
	dir := t.TempDir()
	src := Source{
		URLTemplate: srv.URL + "/uc?id={id}",
		Files:       []File{{ID: "model-id-123456", Path: "model.onnx", SHA256: sum([]byte("original"))}},
	}
	_, err := Ensure(context.Background(), dir, src, Options{Progress: quiet})
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "model.onnx")); !os.IsNotExist(statErr) {
		t.Fatalf("tampered file must not be installed")
	}
	if _, stateErr := LoadState(dir); !errors.Is(stateErr, ErrStateNotFound) {
		t.Fatalf("state must not be written on failure, got %v", stateErr)
	}
}

func TestEnsureRejectsSizeMismatch(t *testing.T) {
	srv, _ := newStore(t, map[string][]byte{"model-id-123456": []byte("short")})
	src := Source{
		URLTemplate: srv.URL + "/uc?id={id}",
		Files:       []File{{ID: "model-id-123456", Path: "model.onnx", Size: 100}},
	}
	if _, err := Ensure(context.Background(), t.TempDir(), src, Options{Progress: quiet}); !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}
}

func TestEnsureRejectsTraversal(t *testing.T) {
	src := Source{URLTemplate: "http://127.0.0.1:1/uc?id={id}", Files: []File{{ID: "x", Path: "../evil"}}}
	if _, err := Ensure(context.Background(), t.TempDir(), src, Options{Progress: quiet}); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
}

func TestEnsureRemoteErrorStatus(t *testing.T) {
	srv, _ := newStore(t, nil)
	src := Source{URLTemplate: srv.URL + "/uc?id={id}", Files: []File{{ID: "missing", Path: "model.onnx"}}}
	if _, err := Ensure(context.Background(), t.TempDir(), src, Options{Progress: quiet}); err == nil {
		t.Fatalf("expected error for 404")
	}
}

func TestEnsureRetriesDriveInterstitial(t *testing.T) {
	payload := []byte("weights")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("confirm") != "t" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html>virus scan warning</html>"))
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	src := Source{URLTemplate: srv.URL + "/uc?export=download&id={id}", Files: []File{{ID: "abc", Path: "model.onnx", SHA256: sum(payload)}}}
	if _, err := Ensure(context.Background(), dir, src, Options{Progress: quiet}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
}

func TestEnsureNoFilesIsNoop(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "absent")
	if _, err := Ensure(context.Background(), dir, Source{}, Options{}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("no files configured should not touch the dir")
	}
}

func TestVerifyDetectsTamperedFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "model.onnx"), []byte("changed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := Verify(dir, []File{{ID: "x", Path: "model.onnx", SHA256: sum([]byte("original"))}})
	if !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}
	if err := Verify(dir, []File{{ID: "x", Path: "model.onnx", SHA256: sum([]byte("changed"))}}); err != nil {
		t.Fatalf("expected verify ok, got %v", err)
	}
}

func TestResolvePath(t *testing.T) {
	for _, bad := range []string{"", "../evil", "/abs/path", "a/../../b", "."} {
		if _, err := resolvePath("/tmp/model", bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	got, err := resolvePath("/tmp/model", "lib/model.onnx")
	if err != nil {
		t.Fatalf("expected safe path, got %v", err)
	}
	if got != filepath.Join("/tmp/model", "lib", "model.onnx") {
		t.Fatalf("unexpected path %s", got)
	}
}

func TestSourceURLDefaultsToDrive(t *testing.T) {
	if got := (Source{}).URL("abc"); got != "https://drive.google.com/uc?export=download&id=abc" {
		t.Fatalf("unexpected url %s", got)
	}
}

func TestEnsureLogsMaskFileIDs(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	model := []byte("fake onnx bytes")
	id := "1xaPgoHahhdzLaIiSecretish"
	srv, _ := newStore(t, map[string][]byte{id: model})
	src := Source{
		URLTemplate: srv.URL + "/uc?id={id}",
		Files:       []File{{ID: id, Path: "model.onnx", SHA256: sum(model)}},
	}
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		if _, err := Ensure(context.Background(), dir, src, Options{}); err != nil {
			t.Fatalf("ensure: %v", err)
		}
	}

	out := buf.String()
	if !strings.Contains(out, "downloading model.onnx") || !strings.Contains(out, "reusing model.onnx") {
		t.Fatalf("expected download and reuse lines, got %s", out)
	}
	if strings.Contains(out, id) {
		t.Fatalf("log leaked the file id: %s", out)
	}
}
