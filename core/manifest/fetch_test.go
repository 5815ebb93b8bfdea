package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/codexkit/folium/core/errors"
)

func newManifestServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		switch r.URL.Path {
		case "/manifest.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(sampleManifest))
		case "/broken.json":
			_, _ = w.Write([]byte("{not json"))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestLoaderGet(t *testing.T) {
	var hits int32
	srv := newManifestServer(t, &hits)
	defer srv.Close()

	loader := NewLoader(srv.Client(), "")
	m, err := loader.Get(context.Background(), srv.URL+"/manifest.json")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(m.Canvases()) != 3 {
		t.Errorf("canvases = %d, want 3", len(m.Canvases()))
	}
}

func TestLoaderFetchesOncePerSession(t *testing.T) {
	var hits int32
	srv := newManifestServer(t, &hits)
	defer srv.Close()

	loader := NewLoader(srv.Client(), "")
	url := srv.URL + "/manifest.json"

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := loader.Get(context.Background(), url); err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := loader.Get(context.Background(), url); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
}

func TestLoaderHTTPErrorsSurface(t *testing.T) {
	var hits int32
	srv := newManifestServer(t, &hits)
	defer srv.Close()

	loader := NewLoader(srv.Client(), "")
	_, err := loader.Get(context.Background(), srv.URL+"/missing.json")
	if err == nil {
		t.Fatal("Get should fail for missing manifest")
	}
	if !errors.Is(err, errors.ErrNetwork) {
		t.Errorf("error = %v, want ErrNetwork", err)
	}

	var fetchErr *errors.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %T, want *FetchError", err)
	}
	if fetchErr.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", fetchErr.Status)
	}
}

func TestLoaderParseErrorNotMemoized(t *testing.T) {
	var hits int32
	srv := newManifestServer(t, &hits)
	defer srv.Close()

	loader := NewLoader(srv.Client(), "")
	url := srv.URL + "/broken.json"

	if _, err := loader.Get(context.Background(), url); err == nil {
		t.Fatal("Get should fail on malformed manifest")
	}
	if _, err := loader.Get(context.Background(), url); err == nil {
		t.Fatal("second Get should also fail")
	}

	// Failures retry fresh rather than serving a cached failure.
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("server hit %d times, want 2", n)
	}
}

func TestLoaderDiskCacheAcrossSessions(t *testing.T) {
	var hits int32
	srv := newManifestServer(t, &hits)
	defer srv.Close()

	cacheDir := t.TempDir()
	url := srv.URL + "/manifest.json"

	first := NewLoader(srv.Client(), cacheDir)
	if _, err := first.Get(context.Background(), url); err != nil {
		t.Fatalf("first session Get failed: %v", err)
	}

	// A new loader simulates a new session; it must be served from disk.
	second := NewLoader(srv.Client(), cacheDir)
	m, err := second.Get(context.Background(), url)
	if err != nil {
		t.Fatalf("second session Get failed: %v", err)
	}
	if len(m.Canvases()) != 3 {
		t.Errorf("canvases = %d, want 3", len(m.Canvases()))
	}

	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("server hit %d times, want 1 (second session should hit disk)", n)
	}
}

func TestLoaderDiskCacheDisabled(t *testing.T) {
	var hits int32
	srv := newManifestServer(t, &hits)
	defer srv.Close()

	url := srv.URL + "/manifest.json"
	for i := 0; i < 2; i++ {
		loader := NewLoader(srv.Client(), "")
		if _, err := loader.Get(context.Background(), url); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}

	// Without a cache directory each new session re-fetches.
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("server hit %d times, want 2", n)
	}
}
