package manifest

import (
	"fmt"
	"regexp"
)

// folioQueryPattern extracts the folio number and optional recto/verso
// suffix from a folio identifier ("12v", "12", "f. 12", "folio 12").
var folioQueryPattern = regexp.MustCompile(`(?i)^\s*(?:folio\s*)?f?\.?\s*0*(\d+)\s*([rv])?\s*$`)

// MatchFolio finds the 0-based index of the manifest canvas best matching a
// folio identifier, scanning in a precision-first tier order:
//
//  1. "f.?<N><side>" against the canvas label — the IIIF-idiomatic form.
//  2. "<N><side>" against the label — a bare numeral with optional suffix.
//  3. "folio.?<N>" against the label.
//  4. The same three patterns, in the same order, against each canvas's
//     metadata values — tried only when no label matched at any tier.
//
// Within a tier the first (lowest-index) canvas wins. The boolean result is
// false when nothing matches: a normal outcome for folios without imaged
// pages, and callers must not move the viewer in that case.
func MatchFolio(folio string, canvases []Canvas) (int, bool) {
	patterns := folioPatterns(folio)
	if patterns == nil {
		return 0, false
	}

	for _, re := range patterns {
		for i := range canvases {
			if re.MatchString(canvases[i].Label) {
				return i, true
			}
		}
	}

	for _, re := range patterns {
		for i := range canvases {
			for _, md := range canvases[i].Metadata {
				if md.Value != "" && re.MatchString(md.Value) {
					return i, true
				}
			}
		}
	}

	return 0, false
}

// folioPatterns compiles the three tier patterns for one folio query, or
// nil when the query carries no folio number at all.
func folioPatterns(folio string) []*regexp.Regexp {
	m := folioQueryPattern.FindStringSubmatch(folio)
	if m == nil {
		return nil
	}
	number := m[1]
	side := m[2]

	// A query without a side matches any side; a query with one requires it.
	sideExpr := `[rv]?`
	if side != "" {
		sideExpr = side
	}

	// Labels may zero-pad the folio number ("f. 012v").
	numExpr := `0*` + number

	return []*regexp.Regexp{
		regexp.MustCompile(fmt.Sprintf(`(?i)\bf\.?\s*%s%s\b`, numExpr, sideExpr)),
		regexp.MustCompile(fmt.Sprintf(`(?i)\b%s%s\b`, numExpr, sideExpr)),
		regexp.MustCompile(fmt.Sprintf(`(?i)\bfolio\.?\s*%s\b`, numExpr)),
	}
}
