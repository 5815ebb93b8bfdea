// Package linecode provides the hierarchical line-addressing scheme for
// critical-edition texts. Every line of every stanza is addressed by a
// "Book.Stanza.Line" code (e.g., "01.01.04") that is stable, sortable,
// and round-trips through its canonical zero-padded string form.
package linecode

import (
	"fmt"
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/codexkit/folium/core/errors"
)

// DefaultWidth is the zero-padding width for each component in the
// canonical string form.
const DefaultWidth = 2

// LineCode addresses a single line within a book and stanza.
// All three components are positive integers.
type LineCode struct {
	// Book is the book number (1-indexed).
	Book int `json:"book"`

	// Stanza is the stanza number within the book (1-indexed).
	Stanza int `json:"stanza"`

	// Line is the line number within the stanza (1-indexed).
	Line int `json:"line"`
}

// Range is a contiguous span of lines, used for folio extents
// (e.g., "01.01.04-01.01.16").
type Range struct {
	Start LineCode `json:"start"`
	End   LineCode `json:"end"`
}

// codeGrammar is the participle grammar for line codes.
// Exactly three integer groups separated by ".". Components are captured
// as strings and converted explicitly: participle's int capture parses
// with base 0, which would reject canonical zero-padded forms like
// "01.01.08" as bad octal.
//
//nolint:govet // participle grammar tags are not standard struct tags
type codeGrammar struct {
	Book   string `@Int`
	Stanza string `"." @Int`
	Line   string `"." @Int`
}

// code converts the captured digit groups. The lexer guarantees digits,
// so conversion only fails on values that overflow int.
func (g codeGrammar) code(raw string) (LineCode, error) {
	var c LineCode
	for _, p := range []struct {
		dst *int
		src string
	}{{&c.Book, g.Book}, {&c.Stanza, g.Stanza}, {&c.Line, g.Line}} {
		n, err := strconv.Atoi(p.src)
		if err != nil {
			return LineCode{}, errors.NewFormat(raw, "component out of range")
		}
		*p.dst = n
	}
	return c, nil
}

//nolint:govet // participle grammar tags are not standard struct tags
type rangeGrammar struct {
	Start codeGrammar  `@@`
	End   *codeGrammar `( "-" @@ )?`
}

// codeLexer defines the lexer for line codes. There is no whitespace rule:
// embedded spaces are a lex error, which keeps the accepted language exactly
// the canonical form.
var codeLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `[.\-]`},
})

var codeParser = participle.MustBuild[codeGrammar](
	participle.Lexer(codeLexer),
)

var rangeParser = participle.MustBuild[rangeGrammar](
	participle.Lexer(codeLexer),
)

// Parse parses a canonical "BB.SS.LL" line code. Inputs with fewer or more
// than three numeric groups, non-numeric groups, non-positive components,
// or any surrounding whitespace fail with a FormatError; they are never
// silently coerced.
func Parse(raw string) (LineCode, error) {
	if raw == "" {
		return LineCode{}, errors.NewFormat(raw, "empty line code")
	}

	parsed, err := codeParser.ParseString("", raw)
	if err != nil {
		return LineCode{}, &errors.FormatError{
			Input:   raw,
			Message: "expected three dot-separated numbers",
			Err:     err,
		}
	}

	code, err := parsed.code(raw)
	if err != nil {
		return LineCode{}, err
	}
	if err := code.validate(raw); err != nil {
		return LineCode{}, err
	}
	return code, nil
}

// ParseRange parses either a single line code or a "start-end" range.
// A single code yields a Range whose Start and End are equal.
func ParseRange(raw string) (Range, error) {
	if raw == "" {
		return Range{}, errors.NewFormat(raw, "empty line code range")
	}

	parsed, err := rangeParser.ParseString("", raw)
	if err != nil {
		return Range{}, &errors.FormatError{
			Input:   raw,
			Message: "expected \"BB.SS.LL\" or \"BB.SS.LL-BB.SS.LL\"",
			Err:     err,
		}
	}

	start, err := parsed.Start.code(raw)
	if err != nil {
		return Range{}, err
	}
	if err := start.validate(raw); err != nil {
		return Range{}, err
	}

	end := start
	if parsed.End != nil {
		end, err = parsed.End.code(raw)
		if err != nil {
			return Range{}, err
		}
		if err := end.validate(raw); err != nil {
			return Range{}, err
		}
		if Compare(end, start) < 0 {
			return Range{}, errors.NewFormat(raw, "range end precedes range start")
		}
	}

	return Range{Start: start, End: end}, nil
}

func (c LineCode) validate(raw string) error {
	if c.Book <= 0 || c.Stanza <= 0 || c.Line <= 0 {
		return errors.NewFormat(raw, "components must be positive")
	}
	return nil
}

// Format returns the canonical string form with each component zero-padded
// to DefaultWidth. Format is the left inverse of Parse: for every valid
// code x, Parse(Format(x)) == x. Padding is a minimum width, so components
// above 99 are never truncated.
func (c LineCode) Format() string {
	return c.FormatWidth(DefaultWidth)
}

// FormatWidth formats with an explicit per-component padding width.
func (c LineCode) FormatWidth(width int) string {
	return fmt.Sprintf("%0*d.%0*d.%0*d", width, c.Book, width, c.Stanza, width, c.Line)
}

// String returns the canonical form.
func (c LineCode) String() string {
	return c.Format()
}

// Short returns the shortened display form: the last component only,
// zero-padded. The canonical value is kept for linking; Short is for
// line numbering in the margin of the reading view.
func (c LineCode) Short() string {
	return fmt.Sprintf("%0*d", DefaultWidth, c.Line)
}

// Numeric collapses the code into a single sortable integer (BBSSLL).
// Used by the record store for range-overlap queries. Only valid for
// components below 100.
func (c LineCode) Numeric() int {
	return c.Book*10000 + c.Stanza*100 + c.Line
}

// Compare implements the total order: book, then stanza, then line.
// It returns -1, 0, or 1.
func Compare(a, b LineCode) int {
	if c := cmpInt(a.Book, b.Book); c != 0 {
		return c
	}
	if c := cmpInt(a.Stanza, b.Stanza); c != 0 {
		return c
	}
	return cmpInt(a.Line, b.Line)
}

// Less reports whether a sorts strictly before b.
func Less(a, b LineCode) bool {
	return Compare(a, b) < 0
}

// Contains reports whether the code falls within the range, inclusive.
func (r Range) Contains(c LineCode) bool {
	return Compare(r.Start, c) <= 0 && Compare(c, r.End) <= 0
}

// Overlaps reports whether two ranges share at least one line.
func (r Range) Overlaps(other Range) bool {
	return Compare(r.Start, other.End) <= 0 && Compare(other.Start, r.End) <= 0
}

// String returns the canonical range form, collapsing single-line ranges.
func (r Range) String() string {
	if r.Start == r.End {
		return r.Start.Format()
	}
	return r.Start.Format() + "-" + r.End.Format()
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
