package store

import (
	"context"
	"strings"

	"github.com/codexkit/folium/core/errors"
	"github.com/codexkit/folium/internal/logging"
)

// ReconnectReport summarizes one re-anchoring pass.
type ReconnectReport struct {
	// Checked is the number of annotations examined.
	Checked int
	// Intact still matched at their stored offsets.
	Intact int
	// Moved were re-anchored to a new offset.
	Moved int
	// Ambiguous had several candidate occurrences; the one closest to the
	// stored offset was chosen. Counted inside Moved as well.
	Ambiguous int
	// Unmatched no longer occur in the stanza text and were flagged.
	Unmatched int
}

// Reconnect re-anchors a manuscript's annotations after its transcription
// changed, across both the transcribed and translated stanza rows. Each
// annotation carries the body hash its offsets were last verified against;
// when that hash still matches the stanza's current hash the text has not
// drifted and the annotation is counted intact without searching. For
// drifted stanzas the body is searched for the stored selected text: a
// unique occurrence re-anchors the annotation there, several pick the
// occurrence closest to the old offset, none flags it unmatched so it is
// held out of composition until an editor intervenes. With dryRun set,
// nothing is written.
func (s *Store) Reconnect(ctx context.Context, siglum string, dryRun bool) (ReconnectReport, error) {
	stanzas, err := s.allStanzasBySiglum(ctx, siglum)
	if err != nil {
		return ReconnectReport{}, err
	}

	var report ReconnectReport
	for _, st := range stanzas {
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+annotationColumns+`
			FROM annotations WHERE stanza_id = ?
			ORDER BY from_pos, id`, st.ID)
		if err != nil {
			return report, errors.Wrap(err, "querying annotations")
		}
		var anns []StoredAnnotation
		for rows.Next() {
			sa, err := scanAnnotation(rows)
			if err != nil {
				rows.Close()
				return report, errors.Wrap(err, "scanning annotation")
			}
			anns = append(anns, sa)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return report, errors.Wrap(err, "reading annotations")
		}

		for _, sa := range anns {
			report.Checked++
			if sa.AnchoredHash == st.BodyHash && !sa.Unmatched {
				// The text has not drifted since this anchor was
				// verified; nothing to search.
				report.Intact++
				continue
			}
			from, ambiguous, found := reanchor(st.Body, sa.SelectedText, sa.FromPos)
			switch {
			case !found:
				report.Unmatched++
				if !dryRun {
					if err := s.setAnchor(ctx, sa.RowID, sa.FromPos, sa.ToPos, st.BodyHash, true); err != nil {
						return report, err
					}
				}
				logging.Warn("annotation unmatched", "annotation", sa.RowID, "stanza", st.Address())
			case from == sa.FromPos && !sa.Unmatched:
				report.Intact++
				if !dryRun {
					if err := s.setAnchor(ctx, sa.RowID, from, sa.ToPos, st.BodyHash, false); err != nil {
						return report, err
					}
				}
			default:
				report.Moved++
				if ambiguous {
					report.Ambiguous++
				}
				if !dryRun {
					if err := s.setAnchor(ctx, sa.RowID, from, from+len(sa.SelectedText), st.BodyHash, false); err != nil {
						return report, err
					}
				}
			}
		}
	}
	return report, nil
}

func (s *Store) setAnchor(ctx context.Context, id int64, from, to int, bodyHash string, unmatched bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE annotations SET from_pos = ?, to_pos = ?, anchored_hash = ?, unmatched = ?
		WHERE id = ?`, from, to, bodyHash, unmatched, id)
	return errors.Wrap(err, "updating anchor")
}

// reanchor finds where selected occurs in body. With several occurrences
// the one whose start is closest to oldFrom wins.
func reanchor(body, selected string, oldFrom int) (from int, ambiguous, found bool) {
	if selected == "" {
		return 0, false, false
	}
	var starts []int
	for off := 0; ; {
		i := strings.Index(body[off:], selected)
		if i < 0 {
			break
		}
		starts = append(starts, off+i)
		off += i + 1
	}
	switch len(starts) {
	case 0:
		return 0, false, false
	case 1:
		return starts[0], false, true
	}
	best := starts[0]
	for _, s := range starts[1:] {
		if abs(s-oldFrom) < abs(best-oldFrom) {
			best = s
		}
	}
	return best, true, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
