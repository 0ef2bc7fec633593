// Package models fetches and verifies the local model assets (tts voices)
// the daemon can use. Every model has a primary mirror and a fallback mirror;
// an unreachable primary switches automatically.
package models

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	probeTimeout    = 3 * time.Second
	downloadRetries = 3
)

// Spec names everything needed to fetch one model: where its files live on
// the primary and mirror hosts, and which files must exist afterwards.
type Spec struct {
	Name          string
	PrimaryBase   string
	MirrorBase    string
	RequiredFiles []string
}

// registry holds the models the daemon knows how to fetch.
var registry = map[string]Spec{
	"qwen3-tts": {
		Name:          "qwen3-tts",
		PrimaryBase:   "https://huggingface.co/Qwen/Qwen3-TTS/resolve/main",
		MirrorBase:    "https://modelscope.cn/models/Qwen/Qwen3-TTS/resolve/master",
		RequiredFiles: []string{"model.safetensors", "config.json", "tokenizer.json"},
	},
}

// Known lists the registered model names, sorted.
func Known() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Downloader fetches model files into a local directory tree, one
// subdirectory per model.
type Downloader struct {
	dir    string
	specs  map[string]Spec
	client *http.Client

	// retryDelay is swappable so tests do not sleep.
	retryDelay func(attempt int) time.Duration
}

// NewDownloader creates a downloader rooted at dir.
func NewDownloader(dir string) *Downloader {
	return &Downloader{
		dir:        dir,
		specs:      registry,
		client:     &http.Client{Timeout: 10 * time.Minute},
		retryDelay: func(attempt int) time.Duration { return time.Duration(attempt+1) * time.Second },
	}
}

// Dir reports the model directory for name.
func (d *Downloader) Dir(name string) string { return filepath.Join(d.dir, name) }

// Download fetches every required file of the named model. An already
// verified model is left alone. The primary host gets a short reachability
// probe first; when it does not answer, the mirror serves the whole download.
func (d *Downloader) Download(ctx context.Context, name string) error {
	spec, ok := d.specs[name]
	if !ok {
		return fmt.Errorf("models: unknown model %q", name)
	}

	if err := d.Verify(name); err == nil {
		log.Printf("[models] %s already downloaded", name)
		return nil
	}

	dir := d.Dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("models: %w", err)
	}

	base := spec.PrimaryBase
	if !d.reachable(ctx, spec.PrimaryBase) {
		log.Printf("[models] primary for %s unreachable, switching to mirror", name)
		base = spec.MirrorBase
	}

	for _, filename := range spec.RequiredFiles {
		if err := d.fetchFile(ctx, base+"/"+filename, filepath.Join(dir, filename)); err != nil {
			return fmt.Errorf("models: %s: %w", filename, err)
		}
	}

	if err := d.Verify(name); err != nil {
		return fmt.Errorf("models: download completed but verification failed: %w", err)
	}
	return nil
}

// Verify checks that every required file of the named model exists and is
// non-empty.
func (d *Downloader) Verify(name string) error {
	spec, ok := d.specs[name]
	if !ok {
		return fmt.Errorf("models: unknown model %q", name)
	}

	dir := d.Dir(name)
	for _, filename := range spec.RequiredFiles {
		info, err := os.Stat(filepath.Join(dir, filename))
		if err != nil {
			return fmt.Errorf("models: %s missing %s", name, filename)
		}
		if info.Size() == 0 {
			return fmt.Errorf("models: %s has empty %s", name, filename)
		}
	}
	return nil
}

// reachable probes the host behind rawURL. Any HTTP answer counts; only a
// dead host fails.
func (d *Downloader) reachable(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.Scheme+"://"+u.Host, nil)
	if err != nil {
		return false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func (d *Downloader) fetchFile(ctx context.Context, fileURL, dest string) error {
	var lastErr error
	for attempt := 0; attempt < downloadRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.retryDelay(attempt - 1)):
			}
		}
		if lastErr = d.fetchOnce(ctx, fileURL, dest); lastErr == nil {
			return nil
		}
		log.Printf("[models] fetch %s failed (attempt %d): %v", fileURL, attempt+1, lastErr)
	}
	return lastErr
}

func (d *Downloader) fetchOnce(ctx context.Context, fileURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}
