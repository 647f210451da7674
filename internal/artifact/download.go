package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/straja-ai/soundlens/internal/redact"
)

// Progress receives downloaded bytes through Write and is finished once the
// body has been consumed.
type Progress interface {
	io.Writer
	Finish()
}

// ProgressFunc creates a Progress for one file. total is -1 when unknown.
type ProgressFunc func(name string, total int64) Progress

func download(ctx context.Context, client *http.Client, remote, dst string, f File, progress ProgressFunc) error {
	resp, err := get(ctx, client, remote)
	if err != nil {
		return err
	}
	// Drive answers large files with an HTML interstitial; ask once more with
	// the confirmation flag set.
	if isHTML(resp) {
		resp.Body.Close()
		resp, err = get(ctx, client, withConfirm(remote))
		if err != nil {
			return err
		}
		if isHTML(resp) {
			resp.Body.Close()
			return fmt.Errorf("download %s: remote returned an HTML page instead of the file", f.Path)
		}
	}
	defer resp.Body.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create local file for %s: %w", f.Path, err)
	}

	total := f.Size
	if total <= 0 {
		total = resp.ContentLength
	}
	prog := progress(f.Path, total)
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, h), io.TeeReader(resp.Body, prog))
	closeErr := out.Close()
	prog.Finish()
	if err != nil {
		return fmt.Errorf("write file %s: %w", f.Path, err)
	}
	if closeErr != nil {
		return fmt.Errorf("close file %s: %w", f.Path, closeErr)
	}

	if f.Size > 0 && n != f.Size {
		return fmt.Errorf("%w: size of %s: expected %d got %d", ErrChecksum, f.Path, f.Size, n)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if f.SHA256 != "" && !strings.EqualFold(sum, f.SHA256) {
		return fmt.Errorf("%w: sha256 of %s: expected %s got %s", ErrChecksum, f.Path, f.SHA256, sum)
	}
	return nil
}

func get(ctx context.Context, client *http.Client, remote string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remote, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", redact.String(remote), err)
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		return nil, fmt.Errorf("download %s status: %s: %s", redact.String(remote), resp.Status, strings.TrimSpace(string(errBody)))
	}
	return resp, nil
}

func isHTML(resp *http.Response) bool {
	return strings.HasPrefix(strings.ToLower(resp.Header.Get("Content-Type")), "text/html")
}

func withConfirm(remote string) string {
	u, err := url.Parse(remote)
	if err != nil {
		return remote
	}
	q := u.Query()
	q.Set("confirm", "t")
	u.RawQuery = q.Encode()
	return u.String()
}

type progressLogger struct {
	name       string
	total      int64
	downloaded int64
	step       int64
	next       int64
	start      time.Time
}

// LogProgress logs roughly every 5% of a download.
func LogProgress(name string, total int64) Progress {
	step := total / 20
	if step <= 0 {
		step = 1 << 20 // 1MB steps for unknown/very small totals
	}
	return &progressLogger{
		name:  name,
		total: total,
		step:  step,
		next:  step,
		start: time.Now(),
	}
}

func (p *progressLogger) Write(b []byte) (int, error) {
	n := len(b)
	p.downloaded += int64(n)
	if p.downloaded >= p.next {
		percent := int64(0)
		if p.total > 0 {
			percent = p.downloaded * 100 / p.total
		}
		redact.Logf("artifact: download progress %s: %d/%d bytes (%d%%)", p.name, p.downloaded, p.total, percent)
		for p.next <= p.downloaded {
			p.next += p.step
		}
	}
	return n, nil
}

func (p *progressLogger) Finish() {
	duration := time.Since(p.start).Round(time.Millisecond)
	redact.Logf("artifact: download complete %s: %d bytes in %s", p.name, p.downloaded, duration)
}
