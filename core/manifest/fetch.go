package manifest

import (
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/codexkit/folium/core/errors"
	"github.com/codexkit/folium/internal/cache"
	"github.com/codexkit/folium/internal/logging"
)

// maxManifestBytes bounds the manifest fetch; institutional manifests with
// hundreds of canvases stay well below this.
const maxManifestBytes = 32 << 20

// Loader fetches IIIF manifests. Each manifest is fetched at most once per
// session and shared by all consumers: concurrent requesters before
// resolution await the same in-flight fetch. With a cache directory set,
// fetched documents are also kept on disk, xz-compressed, and served from
// there across sessions.
type Loader struct {
	client   *http.Client
	cacheDir string
	memo     *cache.MemoCache[string, *Manifest]
}

// NewLoader creates a Loader. cacheDir may be empty to disable the disk
// cache; a nil client gets a default with a conservative timeout.
func NewLoader(client *http.Client, cacheDir string) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Loader{
		client:   client,
		cacheDir: cacheDir,
		memo:     cache.NewMemo[string, *Manifest](),
	}
}

// Get returns the manifest at url, from memory, disk, or the network, in
// that order. Failures are not memoized; a later Get retries.
func (l *Loader) Get(ctx context.Context, url string) (*Manifest, error) {
	return l.memo.Do(ctx, url, func(ctx context.Context) (*Manifest, error) {
		return l.load(ctx, url)
	})
}

func (l *Loader) load(ctx context.Context, url string) (*Manifest, error) {
	if data, ok := l.readDiskCache(url); ok {
		m, err := Parse(data)
		if err == nil {
			logging.ManifestFetch(url, "disk_cache", len(data))
			return m, nil
		}
		// A corrupt cache entry falls through to a fresh fetch.
		logging.Warn("discarding corrupt manifest cache entry", "url", url, "error", err)
	}

	data, err := l.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	m, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "manifest at %s", url)
	}

	l.writeDiskCache(url, data)
	logging.ManifestFetch(url, "network", len(data))
	return m, nil
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewFetch("manifest", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, errors.NewFetch("manifest", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errors.FetchError{Resource: "manifest", URL: url, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return nil, errors.NewFetch("manifest", url, err)
	}
	return data, nil
}

// cachePath derives a stable file name for a manifest URL.
func (l *Loader) cachePath(url string) string {
	sum := blake3.Sum256([]byte(url))
	return filepath.Join(l.cacheDir, hex.EncodeToString(sum[:16])+".json.xz")
}

func (l *Loader) readDiskCache(url string) ([]byte, bool) {
	if l.cacheDir == "" {
		return nil, false
	}

	f, err := os.Open(l.cachePath(url))
	if err != nil {
		return nil, false
	}
	defer f.Close()

	r, err := xz.NewReader(f)
	if err != nil {
		return nil, false
	}
	data, err := io.ReadAll(io.LimitReader(r, maxManifestBytes))
	if err != nil {
		return nil, false
	}
	return data, true
}

// writeDiskCache stores the raw manifest bytes compressed. Cache writes are
// best effort: a failure only costs a re-fetch next session.
func (l *Loader) writeDiskCache(url string, data []byte) {
	if l.cacheDir == "" {
		return
	}
	if err := os.MkdirAll(l.cacheDir, 0o755); err != nil {
		logging.Warn("manifest cache directory unavailable", "dir", l.cacheDir, "error", err)
		return
	}

	path := l.cachePath(url)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		logging.Warn("manifest cache write failed", "path", tmp, "error", err)
		return
	}

	w, err := xz.NewWriter(f)
	if err == nil {
		_, err = w.Write(data)
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		logging.Warn("manifest cache write failed", "path", path, "error", err)
	}
}
