package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/codexkit/folium/core/annotation"
	"github.com/codexkit/folium/core/errors"
	"github.com/codexkit/folium/core/manifest"
	"github.com/codexkit/folium/internal/logging"
)

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// StanzaView is one stanza of the reading view: composed markup plus the
// folio divider data the scroll-sync client hangs off each stanza.
type StanzaView struct {
	ID          int64  `json:"id"`
	Address     string `json:"address"`
	Folio       string `json:"folio,omitempty"`
	FolioBreak  bool   `json:"folio_break"`
	Translated  bool   `json:"translated,omitempty"`
	HTML        string `json:"html"`
	Annotations int    `json:"annotations"`
}

// ManuscriptView is the list entry for a manuscript.
type ManuscriptView struct {
	Siglum      string `json:"siglum"`
	Title       string `json:"title"`
	ManifestURL string `json:"manifest_url,omitempty"`
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: status < 400,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
	})
}

// respondStoreError maps domain errors onto HTTP statuses.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, errors.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	default:
		logging.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"name": "folium",
		"endpoints": []string{
			"GET /health",
			"GET /csrf",
			"GET /manuscripts",
			"GET /manuscripts/:siglum/stanzas",
			"GET /manuscripts/:siglum/folios/:folio/canvas",
			"GET /annotations/:type/:id",
			"POST /annotations",
			"GET /manifest?url=",
			"GET /read/:siglum",
			"WS /sync?siglum=",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	manuscripts, err := s.store.Manuscripts(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"manuscripts": len(manuscripts),
	})
}

func (s *Server) handleManuscripts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	manuscripts, err := s.store.Manuscripts(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	views := make([]ManuscriptView, len(manuscripts))
	for i, m := range manuscripts {
		views[i] = ManuscriptView{Siglum: m.Siglum, Title: m.Title, ManifestURL: m.ManifestURL}
	}
	respond(w, http.StatusOK, views)
}

// handleManuscript routes /manuscripts/:siglum/stanzas and
// /manuscripts/:siglum/folios/:folio/canvas.
func (s *Server) handleManuscript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/manuscripts/"), "/"), "/")
	switch {
	case len(parts) == 2 && parts[1] == "stanzas":
		s.serveStanzas(w, r, parts[0])
	case len(parts) == 4 && parts[1] == "folios" && parts[3] == "canvas":
		s.serveFolioCanvas(w, r, parts[0], parts[2])
	default:
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
	}
}

// serveStanzas returns the composed reading payload for a manuscript.
// ?translated=1 serves the translation rows instead of the transcription.
func (s *Server) serveStanzas(w http.ResponseWriter, r *http.Request, siglum string) {
	translated := r.URL.Query().Get("translated") == "1"
	views, err := s.stanzaViews(r, siglum, translated)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respond(w, http.StatusOK, views)
}

// stanzaViews composes (or serves cached) stanza markup for a manuscript.
func (s *Server) stanzaViews(r *http.Request, siglum string, translated bool) ([]StanzaView, error) {
	key := siglum
	if translated {
		key += "/translated"
	}
	if views, ok := s.readingCache.Get(key); ok {
		return views, nil
	}

	fetch := s.store.StanzasBySiglum
	if translated {
		fetch = s.store.TranslationsBySiglum
	}
	stanzas, err := fetch(r.Context(), siglum)
	if err != nil {
		return nil, err
	}

	views := make([]StanzaView, 0, len(stanzas))
	prevFolio := ""
	for _, st := range stanzas {
		anns, err := s.store.AnnotationsForStanza(r.Context(), st.ID)
		if err != nil {
			return nil, err
		}
		flat := make([]annotation.Annotation, len(anns))
		for i, a := range anns {
			flat[i] = a.Annotation
		}
		html, err := s.compositor.Compose(st.Body, flat)
		if err != nil {
			return nil, err
		}
		views = append(views, StanzaView{
			ID:          st.ID,
			Address:     st.Address(),
			Folio:       st.Folio,
			FolioBreak:  st.Folio != "" && st.Folio != prevFolio,
			Translated:  st.Translated,
			HTML:        html,
			Annotations: len(flat),
		})
		if st.Folio != "" {
			prevFolio = st.Folio
		}
	}

	s.readingCache.Set(key, views)
	return views, nil
}

// invalidateReadingCache drops both rendered dimensions for a manuscript.
func (s *Server) invalidateReadingCache(siglum string) {
	s.readingCache.Delete(siglum)
	s.readingCache.Delete(siglum + "/translated")
}

// serveFolioCanvas resolves a folio to its canvas index in the
// manuscript's manifest.
func (s *Server) serveFolioCanvas(w http.ResponseWriter, r *http.Request, siglum, folio string) {
	m, err := s.store.ManuscriptBySiglum(r.Context(), siglum)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if m.ManifestURL == "" {
		respondError(w, http.StatusNotFound, "NO_MANIFEST", "manuscript has no manifest")
		return
	}
	mf, err := s.manifests.Get(r.Context(), m.ManifestURL)
	if err != nil {
		respondError(w, http.StatusBadGateway, "MANIFEST_FETCH", err.Error())
		return
	}
	canvases := mf.Canvases()
	idx, ok := manifest.MatchFolio(folio, canvases)
	if !ok {
		respondError(w, http.StatusNotFound, "NO_CANVAS_MATCH", "no canvas matches folio "+folio)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"folio": folio,
		"index": idx,
		"page":  idx + 1,
		"id":    canvases[idx].ID,
		"label": canvases[idx].Label,
	})
}

// handleAnnotationDetail serves /annotations/:type/:id.
func (s *Server) handleAnnotationDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/annotations/"), "/"), "/")
	if len(parts) != 2 {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}
	typ := annotation.Type(parts[0])
	if !typ.IsValid() {
		respondError(w, http.StatusBadRequest, "INVALID_TYPE", "unknown annotation type "+parts[0])
		return
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ID", "annotation id must be numeric")
		return
	}
	detail, err := s.store.AnnotationDetail(r.Context(), typ, id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respond(w, http.StatusOK, detail)
}

// Annotation create form model_type values: the transcribed stanza text
// or its translation.
const (
	modelStanza           = "stanza"
	modelStanzaTranslated = "stanzatranslated"
)

// handleCreateAnnotation accepts a multipart (or urlencoded) form POST
// with fields model_type, stanza_id, selected_text, annotation,
// annotation_type, from_pos, to_pos and the optional manuscript_id,
// significance, variant_id, editor_initials, notes.
func (s *Server) handleCreateAnnotation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if !s.csrf.verify(csrfTokenFromRequest(r)) {
		logging.SecurityEvent("csrf_rejected", "web", "path", r.URL.Path)
		respondError(w, http.StatusForbidden, "CSRF", "missing or invalid CSRF token")
		return
	}

	modelType := r.PostFormValue("model_type")
	if modelType == "" {
		modelType = modelStanza
	}
	if modelType != modelStanza && modelType != modelStanzaTranslated {
		respondError(w, http.StatusBadRequest, "INVALID_MODEL", "model_type must be stanza or stanzatranslated")
		return
	}
	stanzaID, err := strconv.ParseInt(r.PostFormValue("stanza_id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_STANZA_ID", "stanza_id must be numeric")
		return
	}
	fromPos, err := strconv.Atoi(r.PostFormValue("from_pos"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_POSITION", "from_pos must be numeric")
		return
	}
	toPos, err := strconv.Atoi(r.PostFormValue("to_pos"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_POSITION", "to_pos must be numeric")
		return
	}
	significance := 0
	if v := r.PostFormValue("significance"); v != "" {
		significance, err = strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_SIGNIFICANCE", "significance must be numeric")
			return
		}
	}

	st, err := s.store.StanzaByID(r.Context(), stanzaID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if st.Translated != (modelType == modelStanzaTranslated) {
		respondError(w, http.StatusBadRequest, "MODEL_MISMATCH", "model_type does not match the addressed stanza")
		return
	}

	id, err := s.store.CreateAnnotation(r.Context(), st.ID, annotation.Annotation{
		Type:             annotation.Type(r.PostFormValue("annotation_type")),
		FromPos:          fromPos,
		ToPos:            toPos,
		SelectedText:     r.PostFormValue("selected_text"),
		Body:             r.PostFormValue("annotation"),
		ManuscriptSiglum: r.PostFormValue("manuscript_id"),
		Significance:     significance,
		VariantID:        r.PostFormValue("variant_id"),
		EditorInitials:   r.PostFormValue("editor_initials"),
		Notes:            r.PostFormValue("notes"),
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}

	// Rendered markup for this manuscript is stale now.
	if m, err := s.store.ManuscriptByID(r.Context(), st.ManuscriptID); err == nil {
		s.invalidateReadingCache(m.Siglum)
	}

	respond(w, http.StatusCreated, map[string]any{
		"id":         id,
		"type":       r.PostFormValue("annotation_type"),
		"model_type": modelType,
	})
}

// handleManifest proxies and caches an IIIF manifest fetch.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	url := r.URL.Query().Get("url")
	if url == "" {
		respondError(w, http.StatusBadRequest, "MISSING_URL", "url query parameter is required")
		return
	}
	m, err := s.manifests.Get(r.Context(), url)
	if err != nil {
		respondError(w, http.StatusBadGateway, "MANIFEST_FETCH", err.Error())
		return
	}
	respond(w, http.StatusOK, m)
}

// handleReadingView renders the HTML reading page for a manuscript.
func (s *Server) handleReadingView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	siglum := strings.Trim(strings.TrimPrefix(r.URL.Path, "/read/"), "/")
	if siglum == "" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}
	m, err := s.store.ManuscriptBySiglum(r.Context(), siglum)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	views, err := s.stanzaViews(r, siglum, false)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = s.templates.ExecuteTemplate(w, "reading.html", map[string]any{
		"Manuscript": ManuscriptView{Siglum: m.Siglum, Title: m.Title, ManifestURL: m.ManifestURL},
		"Stanzas":    views,
		"CSRFToken":  s.csrf.issue(),
	})
	if err != nil {
		logging.Error("template render failed", "error", err)
	}
}
