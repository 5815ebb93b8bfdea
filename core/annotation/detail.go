package annotation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codexkit/folium/core/errors"
	"github.com/codexkit/folium/internal/cache"
)

// Detail is the annotation detail payload shown in a reading-view popup.
// Variants carry the attesting manuscript, the line code of the annotated
// stanza, and supplementary notes.
type Detail struct {
	ID           string `json:"id"`
	Type         Type   `json:"annotation_type"`
	SelectedText string `json:"selected_text"`
	Body         string `json:"annotation"`

	Manuscript string `json:"manuscript,omitempty"`
	LineCode   string `json:"line_code,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type detailKey struct {
	typ Type
	id  string
}

// DetailLoader lazily fetches annotation detail payloads by (type, id) and
// memoizes them for the session, so repeated popups for the same annotation
// never re-fetch. A failed fetch is surfaced to the caller but not cached:
// re-opening the popup retries fresh.
type DetailLoader struct {
	baseURL string
	client  *http.Client
	memo    *cache.MemoCache[detailKey, *Detail]
}

// NewDetailLoader creates a loader fetching from baseURL (the record-store
// HTTP boundary). A nil client gets a default with a conservative timeout.
func NewDetailLoader(baseURL string, client *http.Client) *DetailLoader {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &DetailLoader{
		baseURL: baseURL,
		client:  client,
		memo:    cache.NewMemo[detailKey, *Detail](),
	}
}

// Get returns the detail for one annotation. The first call for a given
// (type, id) issues the network fetch; concurrent callers share it.
func (l *DetailLoader) Get(ctx context.Context, typ Type, id string) (*Detail, error) {
	if !typ.IsValid() {
		return nil, errors.NewValidation("annotation_type", fmt.Sprintf("unknown type %q", typ))
	}
	return l.memo.Do(ctx, detailKey{typ: typ, id: id}, func(ctx context.Context) (*Detail, error) {
		return l.fetch(ctx, typ, id)
	})
}

func (l *DetailLoader) fetch(ctx context.Context, typ Type, id string) (*Detail, error) {
	url := fmt.Sprintf("%s/annotations/%s/%s", l.baseURL, typ, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewFetch("annotation detail", url, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, errors.NewFetch("annotation detail", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.NewNotFound("annotation", fmt.Sprintf("%s/%s", typ, id))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errors.FetchError{Resource: "annotation detail", URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.NewFetch("annotation detail", url, err)
	}

	var detail Detail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, errors.NewFetch("annotation detail", url, err)
	}
	return &detail, nil
}
