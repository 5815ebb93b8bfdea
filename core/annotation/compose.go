package annotation

import (
	"html"
	"sort"
	"strings"

	"github.com/codexkit/folium/core/errors"
)

// Compositor turns raw stanza text plus a set of annotations into span
// markup. Each annotation's covered substring is wrapped in an inert,
// inspectable marker carrying its id and type, while every other
// annotation's offsets stay valid relative to the original text even as
// markers are inserted.
//
// Overlapping ranges are tolerated without requiring well-nestedness: the
// later-processed annotation's marker lands inside the position where the
// earlier one's marker text now sits, so overlap produces nested-marker
// HTML, never re-opened prior output.
type Compositor struct {
	// AttrID and AttrType are the data attribute names carried by markers.
	AttrID   string
	AttrType string
}

// NewCompositor returns a Compositor emitting the reading-view span markers.
func NewCompositor() *Compositor {
	return &Compositor{
		AttrID:   "data-annotation-id",
		AttrType: "data-annotation-type",
	}
}

// insertion records one tag already injected into the growing result,
// keyed by its offset in the original text.
type insertion struct {
	pos    int
	length int
}

// Compose injects a marker for every annotation into text.
//
// The offset arithmetic is deliberately a sequential fold over annotations
// sorted by FromPos (stable, so ties keep insertion order — tie order
// determines nesting in the output and must be deterministic). Each
// annotation's original offsets are mapped through the ledger of tags
// inserted so far: an offset shifts only by the tags sitting at or before
// it, never by tags inserted further down the text. Open positions count
// tags at the same original offset (so a later annotation starting where
// an earlier one starts opens inside it); close positions count only
// strictly earlier tags (so a contained annotation closes before the
// enclosing marker's close tag). Tag boundaries therefore always fall
// between existing tags, never inside one.
//
// With disjoint ranges this guarantees each marker wraps exactly the same
// bytes as in the original text, no matter how many annotations were
// applied first; a contained range nests inside the earlier marker. An
// empty annotation list returns text unchanged.
func (c *Compositor) Compose(text string, annotations []Annotation) (string, error) {
	if len(annotations) == 0 {
		return text, nil
	}

	// Every range is validated against the original text before any
	// mutation, so a bad annotation fails the whole call instead of
	// corrupting part of the output.
	for i := range annotations {
		a := &annotations[i]
		if a.ToPos <= a.FromPos || a.FromPos < 0 {
			return "", &errors.RangeError{From: a.FromPos, To: a.ToPos, Length: len(text)}
		}
		if a.ToPos > len(text) {
			return "", &errors.RangeError{From: a.FromPos, To: a.ToPos, Length: len(text)}
		}
	}

	sorted := make([]Annotation, len(annotations))
	copy(sorted, annotations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].FromPos < sorted[j].FromPos
	})

	inserted := make([]insertion, 0, len(sorted)*2)
	shift := func(pos int, inclusive bool) int {
		total := 0
		for _, ins := range inserted {
			if ins.pos < pos || (inclusive && ins.pos == pos) {
				total += ins.length
			}
		}
		return total
	}

	result := text
	for i := range sorted {
		a := &sorted[i]
		open := c.openTag(a)
		const closeTag = "</span>"

		start := a.FromPos + shift(a.FromPos, true)
		inserted = append(inserted, insertion{pos: a.FromPos, length: len(open)})
		// end indexes the result as it will be once open is in place;
		// FromPos < ToPos, so the shift already counts this open tag.
		end := a.ToPos + shift(a.ToPos, false)
		inserted = append(inserted, insertion{pos: a.ToPos, length: len(closeTag)})

		var b strings.Builder
		b.Grow(len(result) + len(open) + len(closeTag))
		b.WriteString(result[:start])
		b.WriteString(open)
		b.WriteString(result[start : end-len(open)])
		b.WriteString(closeTag)
		b.WriteString(result[end-len(open):])
		result = b.String()
	}

	return result, nil
}

// openTag builds the marker's opening tag. Attribute values are escaped;
// the covered text itself is passed through untouched so the marked bytes
// stay identical to the source.
func (c *Compositor) openTag(a *Annotation) string {
	var b strings.Builder
	b.WriteString(`<span class="`)
	b.WriteString(a.CSSClass())
	b.WriteString(`" `)
	b.WriteString(c.AttrID)
	b.WriteString(`="`)
	b.WriteString(html.EscapeString(a.ID))
	b.WriteString(`" `)
	b.WriteString(c.AttrType)
	b.WriteString(`="`)
	b.WriteString(html.EscapeString(string(a.Type)))
	b.WriteString(`">`)
	return b.String()
}
