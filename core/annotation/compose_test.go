package annotation

import (
	"strings"
	"testing"

	"github.com/codexkit/folium/core/errors"
)

func TestComposeIdentityOnEmptyList(t *testing.T) {
	c := NewCompositor()
	text := "Nel mezzo del cammin di nostra vita"

	out, err := c.Compose(text, nil)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if out != text {
		t.Errorf("Compose(text, nil) = %q, want input unchanged", out)
	}

	out, err = c.Compose(text, []Annotation{})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if out != text {
		t.Errorf("Compose(text, []) = %q, want input unchanged", out)
	}
}

func TestComposeSingleAnnotation(t *testing.T) {
	c := NewCompositor()
	text := "abcdefghij"

	out, err := c.Compose(text, []Annotation{
		{ID: "1", Type: TypeNote, FromPos: 2, ToPos: 5},
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	want := `ab<span class="annotated-text" data-annotation-id="1" data-annotation-type="note">cde</span>fghij`
	if out != want {
		t.Errorf("Compose = %q, want %q", out, want)
	}
}

func TestComposeVariantClass(t *testing.T) {
	c := NewCompositor()

	out, err := c.Compose("word", []Annotation{
		{ID: "9", Type: TypeVariant, FromPos: 0, ToPos: 4},
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if !strings.Contains(out, `class="textual-variant"`) {
		t.Errorf("variant marker should use textual-variant class, got %q", out)
	}
}

// extractMarked returns the text inside the marker with the given id.
func extractMarked(t *testing.T, out, id string) string {
	t.Helper()
	open := `data-annotation-id="` + id + `"`
	i := strings.Index(out, open)
	if i < 0 {
		t.Fatalf("marker %s not found in %q", id, out)
	}
	rest := out[i:]
	start := strings.Index(rest, ">")
	if start < 0 {
		t.Fatalf("malformed marker in %q", out)
	}
	inner := rest[start+1:]
	end := strings.Index(inner, "</span>")
	if end < 0 {
		t.Fatalf("unclosed marker in %q", out)
	}
	return inner[:end]
}

func TestComposeDisjointRangesPreserved(t *testing.T) {
	// Two non-overlapping annotations over a 20-byte string: the bytes
	// inside the later marker must equal text[10:14] exactly, no matter
	// that the earlier marker was inserted first.
	c := NewCompositor()
	text := "0123456789abcdefghij"

	out, err := c.Compose(text, []Annotation{
		{ID: "A", Type: TypeNote, FromPos: 0, ToPos: 4},
		{ID: "B", Type: TypeReference, FromPos: 10, ToPos: 14},
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	if got := extractMarked(t, out, "A"); got != text[0:4] {
		t.Errorf("marker A wraps %q, want %q", got, text[0:4])
	}
	if got := extractMarked(t, out, "B"); got != text[10:14] {
		t.Errorf("marker B wraps %q, want %q", got, text[10:14])
	}
}

func TestComposeDisjointRegardlessOfInputOrder(t *testing.T) {
	// The input sequence is unsorted; sorting by FromPos must restore
	// correct offsets for every marker.
	c := NewCompositor()
	text := "the quick brown fox jumps over the lazy dog"

	out, err := c.Compose(text, []Annotation{
		{ID: "late", Type: TypeNote, FromPos: 35, ToPos: 39},       // "lazy"
		{ID: "early", Type: TypeVariant, FromPos: 4, ToPos: 9},     // "quick"
		{ID: "middle", Type: TypeReference, FromPos: 16, ToPos: 19}, // "fox"
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	if got := extractMarked(t, out, "early"); got != "quick" {
		t.Errorf("early marker wraps %q, want %q", got, "quick")
	}
	if got := extractMarked(t, out, "middle"); got != "fox" {
		t.Errorf("middle marker wraps %q, want %q", got, "fox")
	}
	if got := extractMarked(t, out, "late"); got != "lazy" {
		t.Errorf("late marker wraps %q, want %q", got, "lazy")
	}
}

func TestComposeOverlapNests(t *testing.T) {
	// An annotation contained in an earlier one ends up nested inside the
	// earlier marker, never as crossing markup.
	c := NewCompositor()
	text := "0123456789"

	out, err := c.Compose(text, []Annotation{
		{ID: "outer", Type: TypeNote, FromPos: 0, ToPos: 8},
		{ID: "inner", Type: TypeVariant, FromPos: 2, ToPos: 5},
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	if got := extractMarked(t, out, "inner"); got != "234" {
		t.Errorf("inner marker wraps %q, want %q", got, "234")
	}

	outerStart := strings.Index(out, `data-annotation-id="outer"`)
	innerStart := strings.Index(out, `data-annotation-id="inner"`)
	if innerStart < outerStart {
		t.Errorf("inner marker should open after outer marker: %q", out)
	}
	// The output must balance: two opens, two closes.
	if n := strings.Count(out, "<span"); n != 2 {
		t.Errorf("open tag count = %d, want 2", n)
	}
	if n := strings.Count(out, "</span>"); n != 2 {
		t.Errorf("close tag count = %d, want 2", n)
	}
}

func TestComposeIdenticalRangesNest(t *testing.T) {
	// Two annotations over the same span nest in insertion order, with
	// the later one's close tag inside the earlier marker.
	c := NewCompositor()
	text := "0123456789"

	out, err := c.Compose(text, []Annotation{
		{ID: "a", Type: TypeNote, FromPos: 2, ToPos: 5},
		{ID: "b", Type: TypeReference, FromPos: 2, ToPos: 5},
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	if got := extractMarked(t, out, "b"); got != "234" {
		t.Errorf("inner marker wraps %q, want %q", got, "234")
	}
	if !strings.Contains(out, "234</span></span>5") {
		t.Errorf("markers should close innermost-first: %q", out)
	}
}

func TestComposeSharedStartStableOrder(t *testing.T) {
	// Ties on FromPos keep insertion order, so nesting is deterministic.
	c := NewCompositor()
	text := "abcdef"
	anns := []Annotation{
		{ID: "first", Type: TypeNote, FromPos: 1, ToPos: 4},
		{ID: "second", Type: TypeReference, FromPos: 1, ToPos: 3},
	}

	out, err := c.Compose(text, anns)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	firstAt := strings.Index(out, `data-annotation-id="first"`)
	secondAt := strings.Index(out, `data-annotation-id="second"`)
	if firstAt < 0 || secondAt < 0 {
		t.Fatalf("missing markers in %q", out)
	}
	if secondAt < firstAt {
		t.Errorf("tie on FromPos must keep insertion order: %q", out)
	}
}

func TestComposeDeterministic(t *testing.T) {
	c := NewCompositor()
	text := "0123456789abcdefghij"
	anns := []Annotation{
		{ID: "1", Type: TypeNote, FromPos: 3, ToPos: 9},
		{ID: "2", Type: TypeVariant, FromPos: 0, ToPos: 5},
		{ID: "3", Type: TypeReference, FromPos: 12, ToPos: 18},
	}

	first, err := c.Compose(text, anns)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	second, err := c.Compose(text, anns)
	if err != nil {
		t.Fatalf("second Compose failed: %v", err)
	}
	if first != second {
		t.Errorf("Compose is not deterministic:\n%q\n%q", first, second)
	}
}

func TestComposeInputSliceUntouched(t *testing.T) {
	// Compose sorts a copy; the caller's slice keeps its order.
	c := NewCompositor()
	anns := []Annotation{
		{ID: "b", Type: TypeNote, FromPos: 5, ToPos: 7},
		{ID: "a", Type: TypeNote, FromPos: 0, ToPos: 2},
	}

	if _, err := c.Compose("0123456789", anns); err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if anns[0].ID != "b" || anns[1].ID != "a" {
		t.Error("Compose reordered the caller's annotation slice")
	}
}

func TestComposeRejectsBadRanges(t *testing.T) {
	c := NewCompositor()
	text := "0123456789"

	tests := []struct {
		name string
		ann  Annotation
	}{
		{
			name: "zero width",
			ann:  Annotation{ID: "1", Type: TypeNote, FromPos: 3, ToPos: 3},
		},
		{
			name: "inverted",
			ann:  Annotation{ID: "1", Type: TypeNote, FromPos: 5, ToPos: 2},
		},
		{
			name: "beyond text length",
			ann:  Annotation{ID: "1", Type: TypeNote, FromPos: 8, ToPos: 14},
		},
		{
			name: "negative start",
			ann:  Annotation{ID: "1", Type: TypeNote, FromPos: -1, ToPos: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compose(text, []Annotation{tt.ann})
			if err == nil {
				t.Fatal("Compose should reject the range")
			}
			var rangeErr *errors.RangeError
			if !errors.As(err, &rangeErr) {
				t.Errorf("error = %T, want *RangeError", err)
			}
		})
	}
}

func TestComposeRejectsBeforeMutating(t *testing.T) {
	// One bad annotation fails the whole call; no partial output.
	c := NewCompositor()
	text := "0123456789"

	_, err := c.Compose(text, []Annotation{
		{ID: "good", Type: TypeNote, FromPos: 0, ToPos: 2},
		{ID: "bad", Type: TypeNote, FromPos: 5, ToPos: 99},
	})
	if err == nil {
		t.Fatal("Compose should fail when any range is invalid")
	}
}

func TestComposeEscapesAttributeValues(t *testing.T) {
	c := NewCompositor()

	out, err := c.Compose("abc", []Annotation{
		{ID: `x"y`, Type: TypeNote, FromPos: 0, ToPos: 1},
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if strings.Contains(out, `id="x"y"`) {
		t.Errorf("attribute value not escaped: %q", out)
	}
	if !strings.Contains(out, "x&#34;y") {
		t.Errorf("expected escaped quote in %q", out)
	}
}
