package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strconv"

	"github.com/codexkit/folium/core/annotation"
	"github.com/codexkit/folium/core/errors"
)

// StoredAnnotation pairs an annotation with its anchoring stanza and the
// unmatched flag set when re-anchoring after a re-import fails.
// AnchoredHash is the stanza body hash the offsets were last verified
// against; Reconnect compares it with the current hash to skip stanzas
// whose text has not drifted.
type StoredAnnotation struct {
	annotation.Annotation
	RowID        int64
	StanzaID     int64
	AnchoredHash string
	Unmatched    bool
}

// CreateAnnotation validates and stores an annotation against a stanza.
// The selected text must reproduce the stanza body at [FromPos, ToPos).
// Variants may carry either a reading or editorial notes; notes and
// references must carry a body.
func (s *Store) CreateAnnotation(ctx context.Context, stanzaID int64, a annotation.Annotation) (int64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	switch a.Type {
	case annotation.TypeVariant:
		if a.Body == "" && a.Notes == "" {
			return 0, errors.NewValidation("annotation", "variant needs a reading or notes")
		}
	default:
		if a.Body == "" {
			return 0, errors.NewValidation("annotation", "annotation body must not be empty")
		}
	}

	var body, bodyHash string
	err := s.db.QueryRowContext(ctx, `SELECT body, body_hash FROM stanzas WHERE id = ?`, stanzaID).Scan(&body, &bodyHash)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, errors.NewNotFound("stanza", strconv.FormatInt(stanzaID, 10))
	}
	if err != nil {
		return 0, errors.Wrap(err, "loading stanza")
	}
	if a.ToPos > len(body) {
		return 0, errors.NewRange(a.FromPos, a.ToPos, len(body))
	}
	if got := body[a.FromPos:a.ToPos]; got != a.SelectedText {
		return 0, errors.NewValidation("selected_text", "does not match stanza text at the given range")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO annotations
			(stanza_id, type, from_pos, to_pos, selected_text, body,
			 siglum, significance, variant_id, editor_initials, notes, anchored_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stanzaID, string(a.Type), a.FromPos, a.ToPos, a.SelectedText, a.Body,
		a.ManuscriptSiglum, a.Significance, a.VariantID, a.EditorInitials, a.Notes, bodyHash)
	if err != nil {
		return 0, errors.Wrap(err, "inserting annotation")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "resolving annotation id")
	}
	return id, nil
}

const annotationColumns = `id, stanza_id, type, from_pos, to_pos, selected_text,
	body, siglum, significance, variant_id, editor_initials, notes, anchored_hash, unmatched`

func scanAnnotation(rows interface{ Scan(...any) error }) (StoredAnnotation, error) {
	var sa StoredAnnotation
	var typ string
	if err := rows.Scan(&sa.RowID, &sa.StanzaID, &typ, &sa.FromPos, &sa.ToPos,
		&sa.SelectedText, &sa.Body, &sa.ManuscriptSiglum, &sa.Significance,
		&sa.VariantID, &sa.EditorInitials, &sa.Notes, &sa.AnchoredHash, &sa.Unmatched); err != nil {
		return StoredAnnotation{}, err
	}
	sa.Type = annotation.Type(typ)
	sa.ID = strconv.FormatInt(sa.RowID, 10)
	return sa, nil
}

// AnnotationsForStanza returns a stanza's matched annotations ordered by
// start offset, ready for the compositor. Unmatched annotations are held
// back until Reconnect re-anchors them.
func (s *Store) AnnotationsForStanza(ctx context.Context, stanzaID int64) ([]StoredAnnotation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+annotationColumns+`
		FROM annotations
		WHERE stanza_id = ? AND unmatched = 0
		ORDER BY from_pos, id`, stanzaID)
	if err != nil {
		return nil, errors.Wrap(err, "querying annotations")
	}
	defer rows.Close()

	var out []StoredAnnotation
	for rows.Next() {
		sa, err := scanAnnotation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning annotation")
		}
		out = append(out, sa)
	}
	return out, rows.Err()
}

// AnnotationDetail fetches one annotation by type and id, joined with its
// stanza's address and manuscript siglum for display.
func (s *Store) AnnotationDetail(ctx context.Context, typ annotation.Type, id int64) (annotation.Detail, error) {
	if !typ.IsValid() {
		return annotation.Detail{}, errors.NewValidation("annotation_type", "unknown type")
	}
	var d annotation.Detail
	var storedType, address, siglum, attestingSiglum string
	err := s.db.QueryRowContext(ctx, `
		SELECT a.type, a.selected_text, a.body, a.notes, a.siglum,
		       st.address, m.siglum
		FROM annotations a
		JOIN stanzas st ON st.id = a.stanza_id
		JOIN manuscripts m ON m.id = st.manuscript_id
		WHERE a.id = ? AND a.type = ?`, id, string(typ)).
		Scan(&storedType, &d.SelectedText, &d.Body, &d.Notes, &attestingSiglum,
			&address, &siglum)
	if stderrors.Is(err, sql.ErrNoRows) {
		return annotation.Detail{}, errors.NewNotFound(string(typ), strconv.FormatInt(id, 10))
	}
	if err != nil {
		return annotation.Detail{}, errors.Wrap(err, "querying annotation")
	}
	d.ID = strconv.FormatInt(id, 10)
	d.Type = annotation.Type(storedType)
	d.LineCode = address
	// Variants name the attesting witness; other annotations belong to
	// the transcribed manuscript itself.
	d.Manuscript = attestingSiglum
	if d.Manuscript == "" {
		d.Manuscript = siglum
	}
	return d, nil
}

// DeleteAnnotation removes an annotation.
func (s *Store) DeleteAnnotation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM annotations WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "deleting annotation")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("annotation", strconv.FormatInt(id, 10))
	}
	return nil
}
