// Package manifest provides the IIIF-style manifest model, folio-to-canvas
// matching, and a session-memoized manifest loader with an optional
// compressed disk cache.
package manifest

import (
	"encoding/json"

	"github.com/codexkit/folium/core/errors"
)

// Manifest is the subset of a IIIF presentation manifest the reading view
// needs: the ordered canvases of the first sequence, each carrying a label
// and optional metadata pairs.
type Manifest struct {
	// ID is the manifest URI.
	ID string `json:"@id,omitempty"`

	// Label is the human-readable manifest title.
	Label string `json:"label,omitempty"`

	// Sequences holds the page sequences; only Sequences[0] is consulted.
	Sequences []Sequence `json:"sequences"`
}

// Sequence is an ordered run of canvases.
type Sequence struct {
	Canvases []Canvas `json:"canvases"`
}

// Canvas describes one imaged page. Canvases are 0-indexed internally and
// addressed 1-based when commanding the viewer.
type Canvas struct {
	// ID is the canvas URI.
	ID string `json:"@id,omitempty"`

	// Label is the canvas label (e.g., "f. 12v").
	Label string `json:"label,omitempty"`

	// Metadata is the ordered name/value metadata of the canvas.
	Metadata []MetadataEntry `json:"metadata,omitempty"`
}

// MetadataEntry is one name/value metadata pair. IIIF documents write the
// name under "label"; some sources use "name". Values may be non-string
// JSON, in which case the entry decodes with an empty Value and is skipped
// by matching.
type MetadataEntry struct {
	Name  string
	Value string
}

type metadataEntryJSON struct {
	Label json.RawMessage `json:"label"`
	Name  json.RawMessage `json:"name"`
	Value json.RawMessage `json:"value"`
}

// UnmarshalJSON accepts both "label" and "name" keys and tolerates
// non-string values.
func (m *MetadataEntry) UnmarshalJSON(data []byte) error {
	var raw metadataEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	name := rawString(raw.Label)
	if name == "" {
		name = rawString(raw.Name)
	}
	m.Name = name
	m.Value = rawString(raw.Value)
	return nil
}

// MarshalJSON writes the IIIF form ("label"/"value").
func (m MetadataEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Label string `json:"label"`
		Value string `json:"value"`
	}{Label: m.Name, Value: m.Value})
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Parse decodes a IIIF manifest document.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "parsing manifest")
	}
	return &m, nil
}

// Canvases returns the canvases of the first sequence, or nil when the
// manifest has none.
func (m *Manifest) Canvases() []Canvas {
	if m == nil || len(m.Sequences) == 0 {
		return nil
	}
	return m.Sequences[0].Canvases
}
