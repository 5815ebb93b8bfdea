// Package tei imports manuscript transcriptions from TEI XML.
//
// The importer reads the subset of TEI the edition pipeline produces:
// <lg n="BB.SS"> stanza groups containing <l n="LL"> lines, with
// <pb n="12r"/> page breaks marking folio boundaries. A page break
// applies to all following lines until the next one.
package tei

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/codexkit/folium/core/errors"
	"github.com/codexkit/folium/core/linecode"
)

// Precompiled selectors; TEI's default namespace is ignored since
// xmlquery matches on local names.
var (
	titleQuery = xpath.MustCompile("//teiHeader//title")
	bodyQuery  = xpath.MustCompile("//body")
)

// Line is one transcribed verse line.
type Line struct {
	Code  linecode.LineCode
	Folio string // folio in effect where the line starts, "" before any <pb>
	Text  string
}

// Stanza is one <lg> group of lines.
type Stanza struct {
	Book   int
	Number int
	Folio  string // folio in effect at the first line
	Lines  []Line
}

// Folio records where a page break falls in the text.
type Folio struct {
	Number string
	// Start is the code of the first line on the folio. A folio with no
	// following lines keeps the zero code.
	Start linecode.LineCode
}

// Document is a parsed TEI transcription.
type Document struct {
	Title   string
	Stanzas []Stanza
	Folios  []Folio
}

// Lines flattens the document into reading order.
func (d *Document) Lines() []Line {
	var out []Line
	for _, s := range d.Stanzas {
		out = append(out, s.Lines...)
	}
	return out
}

// Parse reads a TEI document.
func Parse(r io.Reader) (*Document, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "parsing TEI")
	}

	doc := &Document{}
	if title := xmlquery.QuerySelector(root, titleQuery); title != nil {
		doc.Title = collapse(title.InnerText())
	}

	body := xmlquery.QuerySelector(root, bodyQuery)
	if body == nil {
		return nil, errors.NewFormat("TEI", "document has no <body>")
	}

	w := &walker{doc: doc}
	if err := w.visit(body); err != nil {
		return nil, err
	}
	return doc, nil
}

// walker accumulates stanzas and folios in document order.
type walker struct {
	doc   *Document
	folio string
}

func (w *walker) visit(n *xmlquery.Node) error {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode {
			continue
		}
		switch child.Data {
		case "pb":
			if err := w.pageBreak(child); err != nil {
				return err
			}
		case "lg":
			if err := w.stanzaGroup(child); err != nil {
				return err
			}
		default:
			if err := w.visit(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) pageBreak(n *xmlquery.Node) error {
	number := strings.TrimSpace(n.SelectAttr("n"))
	if number == "" {
		return errors.NewFormat("<pb>", "page break missing n attribute")
	}
	w.folio = number
	w.doc.Folios = append(w.doc.Folios, Folio{Number: number})
	return nil
}

func (w *walker) stanzaGroup(n *xmlquery.Node) error {
	addr := strings.TrimSpace(n.SelectAttr("n"))
	if addr == "" {
		// A container group; stanzas live deeper.
		return w.visit(n)
	}

	book, number, err := splitStanzaAddress(addr)
	if err != nil {
		return err
	}

	stanza := Stanza{Book: book, Number: number, Folio: w.folio}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode {
			continue
		}
		switch child.Data {
		case "pb":
			if err := w.pageBreak(child); err != nil {
				return err
			}
		case "l":
			line, err := w.line(child, book, number)
			if err != nil {
				return err
			}
			stanza.Lines = append(stanza.Lines, line)
			if stanza.Folio == "" {
				stanza.Folio = line.Folio
			}
		}
	}
	w.doc.Stanzas = append(w.doc.Stanzas, stanza)
	return nil
}

func (w *walker) line(n *xmlquery.Node, book, stanza int) (Line, error) {
	attr := strings.TrimSpace(n.SelectAttr("n"))
	num, err := strconv.Atoi(attr)
	if err != nil || num < 1 {
		return Line{}, errors.NewFormat(attr, fmt.Sprintf("invalid line number in stanza %d.%d", book, stanza))
	}

	code := linecode.LineCode{Book: book, Stanza: stanza, Line: num}
	if len(w.doc.Folios) > 0 {
		last := &w.doc.Folios[len(w.doc.Folios)-1]
		if last.Start == (linecode.LineCode{}) {
			last.Start = code
		}
	}
	return Line{Code: code, Folio: w.folio, Text: collapse(n.InnerText())}, nil
}

// splitStanzaAddress parses an lg address of the form "BB.SS".
func splitStanzaAddress(addr string) (book, stanza int, err error) {
	book1, rest, ok := strings.Cut(addr, ".")
	if !ok {
		return 0, 0, errors.NewFormat(addr, "stanza address must be BOOK.STANZA")
	}
	book, err = strconv.Atoi(strings.TrimSpace(book1))
	if err != nil || book < 1 {
		return 0, 0, errors.NewFormat(addr, "invalid book number")
	}
	stanza, err = strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || stanza < 1 {
		return 0, 0, errors.NewFormat(addr, "invalid stanza number")
	}
	return book, stanza, nil
}

// collapse trims and squeezes runs of whitespace to single spaces, so
// source-file indentation never leaks into line text.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
