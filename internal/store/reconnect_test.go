package store

import (
	"context"
	"testing"

	"github.com/codexkit/folium/core/annotation"
)

func TestReanchor(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		selected  string
		oldFrom   int
		wantFrom  int
		ambiguous bool
		found     bool
	}{
		{"unique occurrence", "alpha beta gamma", "beta", 0, 6, false, true},
		{"still in place", "alpha beta gamma", "alpha", 0, 0, false, true},
		{"gone", "alpha beta gamma", "delta", 0, 0, false, false},
		{"ambiguous picks closest before", "ba x ba y ba", "ba", 6, 5, true, true},
		{"ambiguous picks closest after", "ba x ba y ba", "ba", 9, 10, true, true},
		{"empty selection never matches", "alpha", "", 0, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, ambiguous, found := reanchor(tt.body, tt.selected, tt.oldFrom)
			if found != tt.found || ambiguous != tt.ambiguous || (found && from != tt.wantFrom) {
				t.Errorf("reanchor(%q, %q, %d) = (%d, %v, %v), want (%d, %v, %v)",
					tt.body, tt.selected, tt.oldFrom,
					from, ambiguous, found, tt.wantFrom, tt.ambiguous, tt.found)
			}
		})
	}
}

func TestReconnectAfterReimport(t *testing.T) {
	s := openTestStore(t)
	importTestDocument(t, s)
	ctx := context.Background()

	st, err := s.StanzaByAddress(ctx, "A", 1, 1)
	if err != nil {
		t.Fatalf("StanzaByAddress: %v", err)
	}
	// Body: "the quick brown fox\njumps over the lazy dog"
	mkAnn := func(from, to int, text string) int64 {
		t.Helper()
		id, err := s.CreateAnnotation(ctx, st.ID, annotation.Annotation{
			Type: annotation.TypeNote, FromPos: from, ToPos: to,
			SelectedText: text, Body: "note",
		})
		if err != nil {
			t.Fatalf("CreateAnnotation(%q): %v", text, err)
		}
		return id
	}
	shiftedID := mkAnn(26, 30, "over")  // shifts right after the edit below
	movedID := mkAnn(4, 9, "quick")     // likewise
	unmatchedID := mkAnn(16, 19, "fox") // disappears entirely

	doc := testDocument()
	doc.Stanzas[0].Lines[0].Text = "lo, the quick brown cat"
	if _, err := s.ImportDocument(ctx, Manuscript{Siglum: "A"}, doc); err != nil {
		t.Fatalf("re-import: %v", err)
	}

	report, err := s.Reconnect(ctx, "A", false)
	if err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if report.Checked != 3 || report.Moved != 2 || report.Unmatched != 1 {
		t.Fatalf("report = %+v, want 3 checked, 2 moved, 1 unmatched", report)
	}

	anns, err := s.AnnotationsForStanza(ctx, st.ID)
	if err != nil {
		t.Fatalf("AnnotationsForStanza: %v", err)
	}
	// The unmatched annotation is held back from composition.
	if len(anns) != 2 {
		t.Fatalf("got %d matched annotations, want 2", len(anns))
	}
	byID := map[int64]StoredAnnotation{}
	for _, a := range anns {
		byID[a.RowID] = a
	}
	if _, ok := byID[unmatchedID]; ok {
		t.Error("unmatched annotation still served for composition")
	}
	// New body: "lo, the quick brown cat\njumps over the lazy dog"
	if a := byID[movedID]; a.FromPos != 8 || a.ToPos != 13 {
		t.Errorf("moved annotation at [%d,%d), want [8,13)", a.FromPos, a.ToPos)
	}
	if a := byID[shiftedID]; a.FromPos != 30 || a.ToPos != 34 {
		t.Errorf("shifted annotation at [%d,%d), want [30,34)", a.FromPos, a.ToPos)
	}
}

func TestReconnectSkipsUndriftedStanza(t *testing.T) {
	s := openTestStore(t)
	importTestDocument(t, s)
	ctx := context.Background()

	st, err := s.StanzaByAddress(ctx, "A", 1, 1)
	if err != nil {
		t.Fatalf("StanzaByAddress: %v", err)
	}
	id, err := s.CreateAnnotation(ctx, st.ID, annotation.Annotation{
		Type: annotation.TypeNote, FromPos: 16, ToPos: 19,
		SelectedText: "fox", Body: "note",
	})
	if err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}
	// Skew the stored offsets without touching the anchor hash. As long as
	// the stanza text has not changed, Reconnect must trust the hash and
	// leave them alone rather than re-searching.
	if _, err := s.db.ExecContext(ctx,
		`UPDATE annotations SET from_pos = 2, to_pos = 5 WHERE id = ?`, id); err != nil {
		t.Fatalf("skewing offsets: %v", err)
	}

	report, err := s.Reconnect(ctx, "A", false)
	if err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if report.Checked != 1 || report.Intact != 1 || report.Moved != 0 {
		t.Fatalf("report = %+v, want 1 checked, 1 intact", report)
	}
	anns, err := s.AnnotationsForStanza(ctx, st.ID)
	if err != nil {
		t.Fatalf("AnnotationsForStanza: %v", err)
	}
	if len(anns) != 1 || anns[0].FromPos != 2 || anns[0].ToPos != 5 {
		t.Fatalf("undrifted stanza was re-searched: %+v", anns)
	}

	// Once the body actually changes the hash no longer matches and the
	// search runs again, snapping the annotation back onto its text.
	doc := testDocument()
	doc.Stanzas[0].Lines[0].Text = "lo, the quick brown fox"
	if _, err := s.ImportDocument(ctx, Manuscript{Siglum: "A"}, doc); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	report, err = s.Reconnect(ctx, "A", false)
	if err != nil {
		t.Fatalf("Reconnect after re-import: %v", err)
	}
	if report.Moved != 1 {
		t.Fatalf("report = %+v, want 1 moved", report)
	}
	anns, err = s.AnnotationsForStanza(ctx, st.ID)
	if err != nil {
		t.Fatalf("AnnotationsForStanza: %v", err)
	}
	if len(anns) != 1 || anns[0].FromPos != 20 || anns[0].ToPos != 23 {
		t.Fatalf("annotation not re-anchored after drift: %+v", anns)
	}
}

func TestReconnectDryRunWritesNothing(t *testing.T) {
	s := openTestStore(t)
	importTestDocument(t, s)
	ctx := context.Background()

	st, err := s.StanzaByAddress(ctx, "A", 1, 1)
	if err != nil {
		t.Fatalf("StanzaByAddress: %v", err)
	}
	id, err := s.CreateAnnotation(ctx, st.ID, annotation.Annotation{
		Type: annotation.TypeNote, FromPos: 16, ToPos: 19,
		SelectedText: "fox", Body: "note",
	})
	if err != nil {
		t.Fatalf("CreateAnnotation: %v", err)
	}

	doc := testDocument()
	doc.Stanzas[0].Lines[0].Text = "the quick brown cat"
	if _, err := s.ImportDocument(ctx, Manuscript{Siglum: "A"}, doc); err != nil {
		t.Fatalf("re-import: %v", err)
	}

	report, err := s.Reconnect(ctx, "A", true)
	if err != nil {
		t.Fatalf("Reconnect dry run: %v", err)
	}
	if report.Unmatched != 1 {
		t.Fatalf("report = %+v, want 1 unmatched", report)
	}

	anns, err := s.AnnotationsForStanza(ctx, st.ID)
	if err != nil {
		t.Fatalf("AnnotationsForStanza: %v", err)
	}
	if len(anns) != 1 || anns[0].RowID != id {
		t.Fatalf("dry run changed stored annotations: %+v", anns)
	}
}
