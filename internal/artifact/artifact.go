// Package artifact fetches the classifier model files from a remote store,
// verifies them and installs them into the model directory.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/straja-ai/soundlens/internal/redact"
)

// DefaultURLTemplate downloads a publicly shared Google Drive file by ID.
const DefaultURLTemplate = "https://drive.google.com/uc?export=download&id={id}"

// ErrChecksum is returned when a downloaded or installed file does not match
// its expected size or sha256.
var ErrChecksum = errors.New("artifact checksum mismatch")

// File is one remote file and where it lives inside the model directory.
type File struct {
	ID     string
	Path   string
	SHA256 string
	Size   int64
}

// Source is a URL template with an {id} placeholder plus the files to fetch.
type Source struct {
	URLTemplate string
	Files       []File
}

// URL expands the template for one file ID.
func (s Source) URL(id string) string {
	tmpl := s.URLTemplate
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultURLTemplate
	}
	return strings.ReplaceAll(tmpl, "{id}", id)
}

// Options tune a fetch. Zero values are usable.
type Options struct {
	Client   *http.Client
	Timeout  time.Duration
	Progress ProgressFunc
}

// Ensure makes every file of src present and verified under dir and returns
// dir. Files that already match are reused; the rest are downloaded into a
// temporary directory, verified, and renamed into place.
func Ensure(ctx context.Context, dir string, src Source, opts Options) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", errors.New("artifact dir is empty")
	}
	if len(src.Files) == 0 {
		return dir, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.Progress == nil {
		opts.Progress = LogProgress
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	locals := make([]string, len(src.Files))
	for i, f := range src.Files {
		if strings.TrimSpace(f.ID) == "" {
			return "", fmt.Errorf("artifact file %d: id is empty", i)
		}
		local, err := resolvePath(dir, f.Path)
		if err != nil {
			return "", fmt.Errorf("artifact file %s: %w", f.Path, err)
		}
		locals[i] = local
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	state, err := LoadState(dir)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		redact.Logf("artifact: ignoring unreadable state in %s: %v", dir, err)
	}

	var missing []int
	for i, f := range src.Files {
		if installed(locals[i], f, state) {
			redact.Logf("artifact: reusing %s (file_id=%s)", f.Path, redact.ID(f.ID))
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return dir, nil
	}

	tmpDir, err := os.MkdirTemp(dir, ".fetch-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	staged := make(map[int]string, len(missing))
	for _, i := range missing {
		f := src.Files[i]
		tmpPath := filepath.Join(tmpDir, fmt.Sprintf("%d.part", i))
		redact.Logf("artifact: downloading %s (file_id=%s)", f.Path, redact.ID(f.ID))
		if err := download(ctx, client, src.URL(f.ID), tmpPath, f, opts.Progress); err != nil {
			return "", err
		}
		staged[i] = tmpPath
	}

	for _, i := range missing {
		f := src.Files[i]
		if err := os.MkdirAll(filepath.Dir(locals[i]), 0o755); err != nil {
			return "", fmt.Errorf("create dir for %s: %w", f.Path, err)
		}
		if err := os.Rename(staged[i], locals[i]); err != nil {
			return "", fmt.Errorf("install %s: %w", f.Path, err)
		}
		sum := f.SHA256
		if sum == "" {
			if sum, err = fileSHA256(locals[i]); err != nil {
				return "", fmt.Errorf("hash %s: %w", f.Path, err)
			}
		}
		size := f.Size
		if info, statErr := os.Stat(locals[i]); statErr == nil {
			size = info.Size()
		}
		state.record(InstalledFile{
			ID:          f.ID,
			Path:        filepath.ToSlash(filepath.Clean(f.Path)),
			SHA256:      strings.ToLower(sum),
			Size:        size,
			InstalledAt: time.Now().UTC(),
		})
	}

	if err := SaveState(dir, state); err != nil {
		return "", err
	}
	return dir, nil
}

// Verify checks that every file of src is present under dir with the
// expected size and sha256.
func Verify(dir string, files []File) error {
	for _, f := range files {
		local, err := resolvePath(dir, f.Path)
		if err != nil {
			return fmt.Errorf("resolve path %s: %w", f.Path, err)
		}
		if err := verifyFile(local, f); err != nil {
			return err
		}
	}
	return nil
}

func installed(local string, f File, state State) bool {
	if f.SHA256 != "" {
		return verifyFile(local, f) == nil
	}
	rec, ok := state.lookup(f.Path)
	if !ok || rec.ID != f.ID {
		return false
	}
	info, err := os.Stat(local)
	if err != nil {
		return false
	}
	return f.Size <= 0 || info.Size() == f.Size
}

func verifyFile(local string, f File) error {
	info, err := os.Stat(local)
	if err != nil {
		return fmt.Errorf("stat %s: %w", f.Path, err)
	}
	if f.Size > 0 && info.Size() != f.Size {
		return fmt.Errorf("%w: size of %s: expected %d got %d", ErrChecksum, f.Path, f.Size, info.Size())
	}
	if f.SHA256 == "" {
		return nil
	}
	sum, err := fileSHA256(local)
	if err != nil {
		return fmt.Errorf("hash %s: %w", f.Path, err)
	}
	if !strings.EqualFold(sum, f.SHA256) {
		return fmt.Errorf("%w: sha256 of %s: expected %s got %s", ErrChecksum, f.Path, f.SHA256, sum)
	}
	return nil
}

func fileSHA256(path string) (string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fh.Close()
	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// resolvePath joins rel onto base and rejects anything that escapes base.
func resolvePath(base, rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", errors.New("path is empty")
	}
	rel = filepath.FromSlash(rel)
	if filepath.IsAbs(rel) {
		return "", errors.New("absolute paths are not allowed")
	}
	clean := filepath.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New("path escapes the artifact dir")
	}
	return filepath.Join(base, clean), nil
}
