// Command folium manages critical-edition manuscripts: importing TEI
// transcriptions, anchoring annotations, matching folios to IIIF canvases,
// and serving the synchronized reading view.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/codexkit/folium/core/annotation"
	"github.com/codexkit/folium/core/linecode"
	"github.com/codexkit/folium/core/manifest"
	"github.com/codexkit/folium/core/tei"
	"github.com/codexkit/folium/internal/logging"
	"github.com/codexkit/folium/internal/store"
	"github.com/codexkit/folium/internal/web"
)

const version = "0.1.0"

// CLI defines the command-line interface for folium.
var CLI struct {
	// Global flags
	DB        string `help:"Path to the SQLite database" default:"folium.db" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)" default:"info"`
	LogFormat string `name:"log-format" help:"Log format (json, text)" default:"text"`

	Serve     ServeCmd     `cmd:"" help:"Start the reading view server"`
	Import    ImportCmd    `cmd:"" help:"Import a TEI transcription"`
	Stanzas   StanzasCmd   `cmd:"" help:"Print a manuscript's composed stanzas"`
	Annotate  AnnotateCmd  `cmd:"" help:"Anchor an annotation to a stanza"`
	Match     MatchCmd     `cmd:"" help:"Match a folio against a IIIF manifest"`
	Reconnect ReconnectCmd `cmd:"" help:"Re-anchor annotations after a re-import"`
	Code      CodeCmd      `cmd:"" help:"Parse and normalize a line code or range"`
	Version   VersionCmd   `cmd:"" help:"Print version information"`
}

func openStore() (*store.Store, error) {
	return store.Open(CLI.DB)
}

// ServeCmd starts the reading view server.
type ServeCmd struct {
	Port     int    `help:"HTTP server port" default:"8080"`
	CacheDir string `name:"cache-dir" help:"Manifest disk cache directory (empty disables)" type:"path"`
	TLSCert  string `name:"tls-cert" help:"Path to TLS certificate file" type:"path"`
	TLSKey   string `name:"tls-key" help:"Path to TLS private key file" type:"path"`
}

func (c *ServeCmd) Run() error {
	return web.Start(web.Config{
		Port:     c.Port,
		DBPath:   CLI.DB,
		CacheDir: c.CacheDir,
		TLS: web.TLSConfig{
			Enabled:  c.TLSCert != "" || c.TLSKey != "",
			CertFile: c.TLSCert,
			KeyFile:  c.TLSKey,
		},
	})
}

// ImportCmd imports a TEI transcription into the store.
type ImportCmd struct {
	Path        string `arg:"" help:"Path to the TEI file" type:"existingfile"`
	Siglum      string `required:"" help:"Manuscript siglum"`
	Title       string `help:"Manuscript title (default: TEI header title)"`
	ManifestURL string `name:"manifest-url" help:"IIIF manifest URL for the facsimile"`
	Translated  bool   `help:"Import as the manuscript's translation"`
	Reconnect   bool   `help:"Re-anchor existing annotations after importing"`
}

func (c *ImportCmd) Run() error {
	f, err := os.Open(c.Path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", c.Path, err)
	}
	defer f.Close()

	doc, err := tei.Parse(f)
	if err != nil {
		return err
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	m := store.Manuscript{
		Siglum:      c.Siglum,
		Title:       c.Title,
		ManifestURL: c.ManifestURL,
	}
	importDoc := s.ImportDocument
	if c.Translated {
		importDoc = s.ImportTranslation
	}
	if _, err := importDoc(ctx, m, doc); err != nil {
		return err
	}
	fmt.Printf("imported %d stanzas, %d folios for %s\n", len(doc.Stanzas), len(doc.Folios), c.Siglum)

	if c.Reconnect {
		report, err := s.Reconnect(ctx, c.Siglum, false)
		if err != nil {
			return err
		}
		printReconnectReport(report)
	}
	return nil
}

// StanzasCmd prints a manuscript's stanzas with annotation markers.
type StanzasCmd struct {
	Siglum     string `arg:"" help:"Manuscript siglum"`
	Plain      bool   `help:"Print raw text without annotation markers"`
	Translated bool   `help:"Print the translation instead of the transcription"`
}

func (c *StanzasCmd) Run() error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	fetch := s.StanzasBySiglum
	if c.Translated {
		fetch = s.TranslationsBySiglum
	}
	stanzas, err := fetch(ctx, c.Siglum)
	if err != nil {
		return err
	}

	compositor := annotation.NewCompositor()
	for _, st := range stanzas {
		body := st.Body
		if !c.Plain {
			anns, err := s.AnnotationsForStanza(ctx, st.ID)
			if err != nil {
				return err
			}
			flat := make([]annotation.Annotation, len(anns))
			for i, a := range anns {
				flat[i] = a.Annotation
			}
			if body, err = compositor.Compose(st.Body, flat); err != nil {
				return err
			}
		}
		if st.Folio != "" {
			fmt.Printf("[%s] %s\n%s\n\n", st.Folio, st.Address(), body)
		} else {
			fmt.Printf("%s\n%s\n\n", st.Address(), body)
		}
	}
	return nil
}

// AnnotateCmd anchors an annotation to a stanza.
type AnnotateCmd struct {
	Siglum   string `arg:"" help:"Manuscript siglum"`
	Stanza   string `arg:"" help:"Stanza address (BOOK.STANZA)"`
	From     int    `required:"" help:"Start byte offset of the annotated span"`
	To       int    `required:"" help:"End byte offset (exclusive)"`
	Type     string `help:"Annotation type (note, reference, variant)" default:"note"`
	Body     string `help:"Annotation content; for variants, the variant reading"`
	Witness    string `help:"Attesting manuscript siglum (variants)"`
	Severity   int    `name:"significance" help:"Variant significance, 0-3"`
	Editor     string `help:"Editor initials"`
	Notes      string `help:"Supplementary editorial notes"`
	Translated bool   `help:"Annotate the translated stanza"`
}

func (c *AnnotateCmd) Run() error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	book, number, err := parseStanzaAddress(c.Stanza)
	if err != nil {
		return err
	}
	ctx := context.Background()
	lookup := s.StanzaByAddress
	if c.Translated {
		lookup = s.TranslationByAddress
	}
	st, err := lookup(ctx, c.Siglum, book, number)
	if err != nil {
		return err
	}
	if c.To > len(st.Body) || c.From < 0 || c.From >= c.To {
		return fmt.Errorf("span [%d,%d) outside stanza of length %d", c.From, c.To, len(st.Body))
	}

	id, err := s.CreateAnnotation(ctx, st.ID, annotation.Annotation{
		Type:             annotation.Type(c.Type),
		FromPos:          c.From,
		ToPos:            c.To,
		SelectedText:     st.Body[c.From:c.To],
		Body:             c.Body,
		ManuscriptSiglum: c.Witness,
		Significance:     c.Severity,
		EditorInitials:   c.Editor,
		Notes:            c.Notes,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created %s annotation %d on %s %s (%q)\n", c.Type, id, c.Siglum, c.Stanza, st.Body[c.From:c.To])
	return nil
}

// MatchCmd resolves a folio to its canvas in a IIIF manifest.
type MatchCmd struct {
	URL      string `arg:"" help:"IIIF manifest URL"`
	Folio    string `arg:"" help:"Folio to match (e.g. 12r)"`
	CacheDir string `name:"cache-dir" help:"Manifest disk cache directory" type:"path"`
}

func (c *MatchCmd) Run() error {
	loader := manifest.NewLoader(nil, c.CacheDir)
	m, err := loader.Get(context.Background(), c.URL)
	if err != nil {
		return err
	}
	canvases := m.Canvases()
	idx, ok := manifest.MatchFolio(c.Folio, canvases)
	if !ok {
		return fmt.Errorf("no canvas matches folio %q among %d canvases", c.Folio, len(canvases))
	}
	fmt.Printf("folio %s -> canvas %d (page %d): %s\n", c.Folio, idx, idx+1, canvases[idx].Label)
	return nil
}

// ReconnectCmd re-anchors annotations after a transcription changed.
type ReconnectCmd struct {
	Siglum string `arg:"" help:"Manuscript siglum"`
	DryRun bool   `name:"dry-run" help:"Report without writing changes"`
}

func (c *ReconnectCmd) Run() error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.Reconnect(context.Background(), c.Siglum, c.DryRun)
	if err != nil {
		return err
	}
	if c.DryRun {
		fmt.Println("dry run, nothing written")
	}
	printReconnectReport(report)
	return nil
}

func printReconnectReport(r store.ReconnectReport) {
	fmt.Printf("checked %d annotations: %d intact, %d moved (%d ambiguous), %d unmatched\n",
		r.Checked, r.Intact, r.Moved, r.Ambiguous, r.Unmatched)
}

// CodeCmd parses and normalizes a line code or range.
type CodeCmd struct {
	Code string `arg:"" help:"Line code (BB.SS.LL) or range (BB.SS.LL-BB.SS.LL)"`
}

func (c *CodeCmd) Run() error {
	if r, err := linecode.ParseRange(c.Code); err == nil {
		fmt.Printf("%s (numeric %d-%d)\n", r, r.Start.Numeric(), r.End.Numeric())
		return nil
	}
	code, err := linecode.Parse(c.Code)
	if err != nil {
		return err
	}
	fmt.Printf("%s (short %s, numeric %d)\n", code.Format(), code.Short(), code.Numeric())
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("folium version %s (sqlite driver: %s)\n", version, store.DriverType())
	return nil
}

func parseStanzaAddress(addr string) (book, stanza int, err error) {
	if _, err := fmt.Sscanf(addr, "%d.%d", &book, &stanza); err != nil {
		return 0, 0, fmt.Errorf("stanza address must be BOOK.STANZA: %q", addr)
	}
	return book, stanza, nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("folium"),
		kong.Description("Manuscript annotation and reading view toolkit"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	format := logging.FormatText
	if CLI.LogFormat == "json" {
		format = logging.FormatJSON
	}
	logging.InitLogger(logging.ParseLevel(CLI.LogLevel), format)

	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
