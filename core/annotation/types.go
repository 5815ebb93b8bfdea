// Package annotation provides the annotation data model for critical-edition
// texts and the range compositor that injects annotation markers into
// transcribed stanza text at exact byte offsets.
package annotation

import (
	"fmt"

	"github.com/codexkit/folium/core/errors"
)

// Type represents the kind of an annotation.
type Type string

// Annotation type constants.
const (
	// TypeNote is an editorial note.
	TypeNote Type = "note"

	// TypeReference is a cross-reference to another passage.
	TypeReference Type = "reference"

	// TypeVariant is a textual variant attested in another manuscript.
	TypeVariant Type = "variant"
)

// validTypes is the set of valid annotation types.
var validTypes = map[Type]bool{
	TypeNote:      true,
	TypeReference: true,
	TypeVariant:   true,
}

// IsValid returns true if the annotation type is valid.
func (t Type) IsValid() bool {
	return validTypes[t]
}

// Significance bounds for textual variants.
const (
	SignificanceMin = 0
	SignificanceMax = 3
)

// Annotation is one editorial annotation anchored to a span of stanza text.
// Offsets address the unannotated source text of one stanza version, never
// previously-composed markup output. Annotations are immutable once created;
// multiple annotations may share or overlap ranges.
type Annotation struct {
	// ID is the unique identifier within its type.
	ID string `json:"id"`

	// Type is the annotation kind (note, reference, variant).
	Type Type `json:"annotation_type"`

	// FromPos is the byte offset where the annotated span starts.
	FromPos int `json:"from_pos"`

	// ToPos is the byte offset where the span ends (exclusive, > FromPos).
	ToPos int `json:"to_pos"`

	// SelectedText is the text the editor selected when anchoring. Kept for
	// re-anchoring annotations after the transcription changes.
	SelectedText string `json:"selected_text,omitempty"`

	// Body is the annotation content; for variants, the variant reading.
	Body string `json:"annotation,omitempty"`

	// ManuscriptSiglum identifies the attesting manuscript (variants only).
	ManuscriptSiglum string `json:"manuscript,omitempty"`

	// Significance grades a variant from 0 (orthographic) to 3 (substantive).
	Significance int `json:"significance,omitempty"`

	// VariantID is the editorial identifier assigned to a variant.
	VariantID string `json:"variant_id,omitempty"`

	// EditorInitials records who entered the annotation.
	EditorInitials string `json:"editor_initials,omitempty"`

	// Notes holds supplementary editorial notes (variants only).
	Notes string `json:"notes,omitempty"`
}

// Validate checks the data model invariants. Zero-width and inverted ranges
// are rejected here, before any annotation reaches the compositor or store.
func (a *Annotation) Validate() error {
	if !a.Type.IsValid() {
		return errors.NewValidation("annotation_type", fmt.Sprintf("unknown type %q", a.Type))
	}
	if a.FromPos < 0 {
		return errors.NewValidation("from_pos", "must be non-negative")
	}
	if a.ToPos <= a.FromPos {
		return errors.NewValidation("to_pos", "must be greater than from_pos")
	}
	if a.Significance < SignificanceMin || a.Significance > SignificanceMax {
		return errors.NewValidation("significance", fmt.Sprintf("must be between %d and %d", SignificanceMin, SignificanceMax))
	}
	return nil
}

// CSSClass returns the span class used in composed markup: variants are
// styled distinctly from notes and references.
func (a *Annotation) CSSClass() string {
	if a.Type == TypeVariant {
		return "textual-variant"
	}
	return "annotated-text"
}
