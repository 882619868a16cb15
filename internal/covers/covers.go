// Package covers implements the cover-art cache collaborator: resolving a
// track's cover URL to a locally cached file, tolerating fetch failures as
// transient rather than fatal (§6/§7 of the design notes).
package covers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/arung-agamani/denpa-radio/internal/audio"
)

// Cache resolves a cover art URL to a local file path, downloading and
// caching it on first use.
type Cache interface {
	AddFromURL(ctx context.Context, url string) (localPath string, err error)
}

// MemoryCache is an in-process Cache: it remembers URL-to-path resolutions
// for the life of the process and spools downloads under dir, named by a
// hash of their content so repeated covers across tracks dedup.
type MemoryCache struct {
	mu       sync.RWMutex
	dir      string
	client   *http.Client
	resolved map[string]string
}

func NewMemoryCache(dir string) (*MemoryCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, audio.IOErrorf(err, "covers: creating cache dir %s", dir)
	}
	return &MemoryCache{
		dir:      dir,
		client:   &http.Client{Timeout: 10 * time.Second},
		resolved: make(map[string]string),
	}, nil
}

// AddFromURL fetches url if it hasn't been resolved before and returns the
// local path it was cached to. Network and non-2xx failures are reported
// as audio.KindTransientCover errors: a caller may retry later without
// treating the failure as fatal to the track it belongs to.
func (c *MemoryCache) AddFromURL(ctx context.Context, url string) (string, error) {
	c.mu.RLock()
	if p, ok := c.resolved[url]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", audio.TransientCoverErrorf(err, "covers: building request for %s", url)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", audio.TransientCoverErrorf(err, "covers: fetching %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", audio.TransientCoverErrorf(fmt.Errorf("unexpected status %d", resp.StatusCode), "covers: fetching %s", url)
	}

	tmp, err := os.CreateTemp(c.dir, "cover-*.tmp")
	if err != nil {
		return "", audio.IOErrorf(err, "covers: creating temp file")
	}
	defer tmp.Close()

	sum := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, sum), resp.Body); err != nil {
		return "", audio.TransientCoverErrorf(err, "covers: downloading %s", url)
	}

	pk := hex.EncodeToString(sum.Sum(nil))
	final := filepath.Join(c.dir, pk+extensionFor(resp.Header.Get("Content-Type")))
	tmp.Close()
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", audio.IOErrorf(err, "covers: finalizing %s", url)
	}

	c.mu.Lock()
	c.resolved[url] = final
	c.mu.Unlock()
	return final, nil
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}
