// Package web serves the reading view and the annotation API.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"time"

	"github.com/codexkit/folium/core/annotation"
	"github.com/codexkit/folium/core/manifest"
	"github.com/codexkit/folium/internal/cache"
	"github.com/codexkit/folium/internal/logging"
	"github.com/codexkit/folium/internal/store"
)

//go:embed templates/*.html
var templatesFS embed.FS

// templateFuncs are the helpers available to the reading templates.
// Composed stanza markup is produced server-side by the compositor with
// escaped attributes, so it is safe to emit unescaped.
var templateFuncs = template.FuncMap{
	"safeHTML": func(s string) template.HTML { return template.HTML(s) },
}

// Config holds server configuration.
type Config struct {
	Port     int
	DBPath   string
	CacheDir string // manifest disk cache, empty disables
	TLS      TLSConfig
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// Server ties the store, manifest loader, and compositor together behind
// the HTTP mux.
type Server struct {
	cfg        Config
	store      *store.Store
	manifests  *manifest.Loader
	compositor *annotation.Compositor
	csrf       *csrfIssuer
	templates  *template.Template

	// readingCache holds rendered stanza payloads per siglum; writes to a
	// manuscript's annotations invalidate its entry.
	readingCache *cache.TTLCache[string, []StanzaView]
}

// NewServer builds a Server around an open store.
func NewServer(cfg Config, st *store.Store) (*Server, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &Server{
		cfg:          cfg,
		store:        st,
		manifests:    manifest.NewLoader(nil, cfg.CacheDir),
		compositor:   annotation.NewCompositor(),
		csrf:         newCSRFIssuer(30 * time.Minute),
		templates:    tmpl,
		readingCache: cache.NewTTL[string, []StanzaView](5 * time.Minute),
	}, nil
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/csrf", s.handleCSRFToken)
	mux.HandleFunc("/manuscripts", s.handleManuscripts)
	mux.HandleFunc("/manuscripts/", s.handleManuscript)
	mux.HandleFunc("/annotations", s.handleCreateAnnotation)
	mux.HandleFunc("/annotations/", s.handleAnnotationDetail)
	mux.HandleFunc("/manifest", s.handleManifest)
	mux.HandleFunc("/read/", s.handleReadingView)
	mux.HandleFunc("/sync", s.handleSync)

	return logging.CombinedMiddleware(securityHeaders(mux))
}

// Start opens the store and serves until the listener fails.
func Start(cfg Config) error {
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert or key file not specified")
		}
		if _, err := os.Stat(cfg.TLS.CertFile); err != nil {
			return fmt.Errorf("TLS cert file not found: %w", err)
		}
		if _, err := os.Stat(cfg.TLS.KeyFile); err != nil {
			return fmt.Errorf("TLS key file not found: %w", err)
		}
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	srv, err := NewServer(cfg, st)
	if err != nil {
		return err
	}

	protocol := "http"
	if cfg.TLS.Enabled {
		protocol = "https"
		logging.Info("TLS enabled", "cert_file", cfg.TLS.CertFile)
	} else {
		logging.Warn("TLS disabled - using plain HTTP",
			"recommendation", "consider using TLS or reverse proxy for production")
	}
	logging.ServerStartup("reading_view", protocol, cfg.Port,
		"db", cfg.DBPath, "manifest_cache", cfg.CacheDir)

	addr := fmt.Sprintf(":%d", cfg.Port)
	if cfg.TLS.Enabled {
		return http.ListenAndServeTLS(addr, cfg.TLS.CertFile, cfg.TLS.KeyFile, srv.Handler())
	}
	return http.ListenAndServe(addr, srv.Handler())
}

// securityHeaders sets the baseline response headers on every route.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
