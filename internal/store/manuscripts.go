package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/codexkit/folium/core/errors"
	"github.com/codexkit/folium/core/linecode"
	"github.com/codexkit/folium/core/tei"
)

// Manuscript is one manuscript witness of the text.
type Manuscript struct {
	ID          int64
	Siglum      string
	Title       string
	ManifestURL string
}

// Stanza is one stored stanza of a manuscript transcription. Each address
// may carry two rows, the transcribed text and its translation, told apart
// by Translated.
type Stanza struct {
	ID           int64
	ManuscriptID int64
	Start        linecode.LineCode
	End          linecode.LineCode
	Folio        string
	Translated   bool
	Body         string
	BodyHash     string
}

// Address is the stanza's "BB.SS" label.
func (st Stanza) Address() string {
	return fmt.Sprintf("%d.%d", st.Start.Book, st.Start.Stanza)
}

// UpsertManuscript inserts or updates a manuscript by siglum.
func (s *Store) UpsertManuscript(ctx context.Context, m Manuscript) (int64, error) {
	if m.Siglum == "" {
		return 0, errors.NewValidation("siglum", "must not be empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manuscripts (siglum, title, manifest_url)
		VALUES (?, ?, ?)
		ON CONFLICT (siglum) DO UPDATE SET
			title        = excluded.title,
			manifest_url = excluded.manifest_url`,
		m.Siglum, m.Title, m.ManifestURL)
	if err != nil {
		return 0, errors.Wrap(err, "upserting manuscript")
	}
	// LastInsertId is unreliable on the conflict path; resolve by siglum.
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM manuscripts WHERE siglum = ?`, m.Siglum).Scan(&id); err != nil {
		return 0, errors.Wrap(err, "resolving manuscript id")
	}
	return id, nil
}

// ManuscriptBySiglum looks a manuscript up by its siglum.
func (s *Store) ManuscriptBySiglum(ctx context.Context, siglum string) (Manuscript, error) {
	var m Manuscript
	err := s.db.QueryRowContext(ctx, `
		SELECT id, siglum, title, manifest_url
		FROM manuscripts WHERE siglum = ?`, siglum).
		Scan(&m.ID, &m.Siglum, &m.Title, &m.ManifestURL)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Manuscript{}, errors.NewNotFound("manuscript", siglum)
	}
	if err != nil {
		return Manuscript{}, errors.Wrap(err, "querying manuscript")
	}
	return m, nil
}

// ManuscriptByID looks a manuscript up by its record id.
func (s *Store) ManuscriptByID(ctx context.Context, id int64) (Manuscript, error) {
	var m Manuscript
	err := s.db.QueryRowContext(ctx, `
		SELECT id, siglum, title, manifest_url
		FROM manuscripts WHERE id = ?`, id).
		Scan(&m.ID, &m.Siglum, &m.Title, &m.ManifestURL)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Manuscript{}, errors.NewNotFound("manuscript", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return Manuscript{}, errors.Wrap(err, "querying manuscript")
	}
	return m, nil
}

// Manuscripts lists all manuscripts ordered by siglum.
func (s *Store) Manuscripts(ctx context.Context) ([]Manuscript, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, siglum, title, manifest_url
		FROM manuscripts ORDER BY siglum`)
	if err != nil {
		return nil, errors.Wrap(err, "listing manuscripts")
	}
	defer rows.Close()

	var out []Manuscript
	for rows.Next() {
		var m Manuscript
		if err := rows.Scan(&m.ID, &m.Siglum, &m.Title, &m.ManifestURL); err != nil {
			return nil, errors.Wrap(err, "scanning manuscript")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ImportDocument loads a parsed TEI transcription as the manuscript's
// stanzas, one row per stanza with the lines joined by newlines. Existing
// stanzas at the same address are replaced; their annotations survive and
// should be re-anchored with Reconnect afterwards.
func (s *Store) ImportDocument(ctx context.Context, m Manuscript, doc *tei.Document) (int64, error) {
	return s.importDocument(ctx, m, doc, false)
}

// ImportTranslation loads a TEI document as the manuscript's translated
// stanzas, a parallel set of rows keyed by the same addresses.
func (s *Store) ImportTranslation(ctx context.Context, m Manuscript, doc *tei.Document) (int64, error) {
	return s.importDocument(ctx, m, doc, true)
}

func (s *Store) importDocument(ctx context.Context, m Manuscript, doc *tei.Document, translated bool) (int64, error) {
	if m.Title == "" {
		m.Title = doc.Title
	}
	id, err := s.UpsertManuscript(ctx, m)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "beginning import")
	}
	defer tx.Rollback()

	for _, stanza := range doc.Stanzas {
		if len(stanza.Lines) == 0 {
			continue
		}
		body := joinLines(stanza.Lines)
		start := stanza.Lines[0].Code
		end := stanza.Lines[len(stanza.Lines)-1].Code
		_, err := tx.ExecContext(ctx, `
			INSERT INTO stanzas (manuscript_id, start_code, end_code, address, folio, translated, body, body_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (manuscript_id, start_code, translated) DO UPDATE SET
				end_code  = excluded.end_code,
				address   = excluded.address,
				folio     = excluded.folio,
				body      = excluded.body,
				body_hash = excluded.body_hash`,
			id, start.Numeric(), end.Numeric(),
			fmt.Sprintf("%d.%d", stanza.Book, stanza.Number),
			stanza.Folio, translated, body, hashText(body))
		if err != nil {
			return 0, errors.Wrapf(err, "importing stanza %d.%d", stanza.Book, stanza.Number)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "committing import")
	}
	return id, nil
}

func joinLines(lines []tei.Line) string {
	body := ""
	for i, l := range lines {
		if i > 0 {
			body += "\n"
		}
		body += l.Text
	}
	return body
}

const stanzaColumns = `id, manuscript_id, start_code, end_code, folio, translated, body, body_hash`

func scanStanza(rows interface{ Scan(...any) error }) (Stanza, error) {
	var st Stanza
	var start, end int
	if err := rows.Scan(&st.ID, &st.ManuscriptID, &start, &end, &st.Folio, &st.Translated, &st.Body, &st.BodyHash); err != nil {
		return Stanza{}, err
	}
	st.Start = codeFromNumeric(start)
	st.End = codeFromNumeric(end)
	return st, nil
}

func codeFromNumeric(n int) linecode.LineCode {
	return linecode.LineCode{
		Book:   n / 10000,
		Stanza: n / 100 % 100,
		Line:   n % 100,
	}
}

// StanzasBySiglum returns a manuscript's transcribed stanzas in reading
// order. Translated rows are served by TranslationsBySiglum.
func (s *Store) StanzasBySiglum(ctx context.Context, siglum string) ([]Stanza, error) {
	return s.stanzasBySiglum(ctx, siglum, false)
}

// TranslationsBySiglum returns a manuscript's translated stanzas in
// reading order.
func (s *Store) TranslationsBySiglum(ctx context.Context, siglum string) ([]Stanza, error) {
	return s.stanzasBySiglum(ctx, siglum, true)
}

func (s *Store) stanzasBySiglum(ctx context.Context, siglum string, translated bool) ([]Stanza, error) {
	m, err := s.ManuscriptBySiglum(ctx, siglum)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stanzaColumns+`
		FROM stanzas WHERE manuscript_id = ? AND translated = ?
		ORDER BY start_code`, m.ID, translated)
	if err != nil {
		return nil, errors.Wrap(err, "querying stanzas")
	}
	defer rows.Close()

	var out []Stanza
	for rows.Next() {
		st, err := scanStanza(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning stanza")
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// allStanzasBySiglum returns both dimensions, transcription first.
func (s *Store) allStanzasBySiglum(ctx context.Context, siglum string) ([]Stanza, error) {
	m, err := s.ManuscriptBySiglum(ctx, siglum)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stanzaColumns+`
		FROM stanzas WHERE manuscript_id = ?
		ORDER BY translated, start_code`, m.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying stanzas")
	}
	defer rows.Close()

	var out []Stanza
	for rows.Next() {
		st, err := scanStanza(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning stanza")
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// StanzaByAddress fetches one transcribed stanza by its "BB.SS" address.
func (s *Store) StanzaByAddress(ctx context.Context, siglum string, book, stanza int) (Stanza, error) {
	return s.stanzaByAddress(ctx, siglum, book, stanza, false)
}

// TranslationByAddress fetches the translated stanza at a "BB.SS" address.
func (s *Store) TranslationByAddress(ctx context.Context, siglum string, book, stanza int) (Stanza, error) {
	return s.stanzaByAddress(ctx, siglum, book, stanza, true)
}

func (s *Store) stanzaByAddress(ctx context.Context, siglum string, book, stanza int, translated bool) (Stanza, error) {
	m, err := s.ManuscriptBySiglum(ctx, siglum)
	if err != nil {
		return Stanza{}, err
	}
	lo := linecode.LineCode{Book: book, Stanza: stanza, Line: 0}.Numeric()
	hi := linecode.LineCode{Book: book, Stanza: stanza, Line: 99}.Numeric()
	row := s.db.QueryRowContext(ctx, `
		SELECT `+stanzaColumns+`
		FROM stanzas
		WHERE manuscript_id = ? AND translated = ? AND start_code BETWEEN ? AND ?`,
		m.ID, translated, lo, hi)
	st, err := scanStanza(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Stanza{}, errors.NewNotFound("stanza", fmt.Sprintf("%s %d.%d", siglum, book, stanza))
	}
	if err != nil {
		return Stanza{}, errors.Wrap(err, "querying stanza")
	}
	return st, nil
}

// StanzaByID fetches one stanza row by its record id.
func (s *Store) StanzaByID(ctx context.Context, id int64) (Stanza, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+stanzaColumns+`
		FROM stanzas WHERE id = ?`, id)
	st, err := scanStanza(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Stanza{}, errors.NewNotFound("stanza", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return Stanza{}, errors.Wrap(err, "querying stanza")
	}
	return st, nil
}

// StanzasInRange returns the stanzas whose line spans overlap the given
// range, across ordering by numeric line code.
func (s *Store) StanzasInRange(ctx context.Context, siglum string, r linecode.Range) ([]Stanza, error) {
	m, err := s.ManuscriptBySiglum(ctx, siglum)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stanzaColumns+`
		FROM stanzas
		WHERE manuscript_id = ? AND translated = 0 AND end_code >= ? AND start_code <= ?
		ORDER BY start_code`, m.ID, r.Start.Numeric(), r.End.Numeric())
	if err != nil {
		return nil, errors.Wrap(err, "querying stanza range")
	}
	defer rows.Close()

	var out []Stanza
	for rows.Next() {
		st, err := scanStanza(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning stanza")
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// StanzasOnFolio returns the stanzas that begin on the given folio.
func (s *Store) StanzasOnFolio(ctx context.Context, siglum, folio string) ([]Stanza, error) {
	m, err := s.ManuscriptBySiglum(ctx, siglum)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+stanzaColumns+`
		FROM stanzas
		WHERE manuscript_id = ? AND translated = 0 AND folio = ?
		ORDER BY start_code`, m.ID, folio)
	if err != nil {
		return nil, errors.Wrap(err, "querying folio stanzas")
	}
	defer rows.Close()

	var out []Stanza
	for rows.Next() {
		st, err := scanStanza(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning stanza")
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
