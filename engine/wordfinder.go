package engine

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"

	"github.com/wudi/pdfsamples/surface"
	"github.com/wudi/pdfsamples/tempstore"
)

// Word is a run of glyphs on one baseline with no gap wider than a space.
// Coordinates are in points from the lower-left corner of the page.
type Word struct {
	Text   string
	Page   int
	X, Y   float64
	Width  float64
	Height float64
}

// WordFinder extracts text and word positions. It works on a copy of the
// document taken when it was opened, so later edits to the document are not
// visible through it.
type WordFinder struct {
	doc       *Document
	normalize bool

	blob   tempstore.Blob
	file   tempstore.File
	reader *pdf.Reader
	fonts  map[string]*pdf.Font
}

func (d *Document) openWordFinder(p WordFinderParams) (_ *WordFinder, err error) {
	if d.closed {
		return nil, d.sf.gone()
	}
	src, err := d.blob.Open()
	if err != nil {
		return nil, err
	}
	blob, err := d.sf.store.Put(d.name+".words", src)
	src.Close()
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", d.name, err)
	}
	wf := &WordFinder{doc: d, normalize: p.Normalize, blob: blob, fonts: make(map[string]*pdf.Font)}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read %s: %v", d.name, r)
		}
		if err != nil {
			wf.Close()
		}
	}()
	if wf.file, err = blob.Open(); err != nil {
		return nil, err
	}
	if d.password != "" {
		pw := d.password
		// The callback is asked until it returns "".
		wf.reader, err = pdf.NewReaderEncrypted(wf.file, blob.Size(), func() string {
			next := pw
			pw = ""
			return next
		})
	} else {
		wf.reader, err = pdf.NewReader(wf.file, blob.Size())
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", d.name, err)
	}
	return wf, nil
}

func (wf *WordFinder) Kind() surface.Kind { return KindWordFinder }

func (wf *WordFinder) Close() error {
	if wf.file != nil {
		wf.file.Close()
		wf.file = nil
	}
	wf.reader = nil
	if wf.blob != nil {
		err := wf.blob.Remove()
		wf.blob = nil
		return err
	}
	return nil
}

// Document returns the document the finder was opened on.
func (wf *WordFinder) Document() *Document { return wf.doc }

// PageCount returns the number of pages in the snapshot, or 0 once the
// finder is closed.
func (wf *WordFinder) PageCount() int {
	if wf.reader == nil {
		return 0
	}
	return wf.reader.NumPage()
}

func (wf *WordFinder) page(n int) (pdf.Page, error) {
	if wf.reader == nil {
		return pdf.Page{}, wf.doc.sf.gone()
	}
	if n < 1 || n > wf.reader.NumPage() {
		return pdf.Page{}, fmt.Errorf("%w: page %d of %d", ErrPageRange, n, wf.reader.NumPage())
	}
	return wf.reader.Page(n), nil
}

// Text returns the plain text of page n.
func (wf *WordFinder) Text(n int) (text string, err error) {
	p, err := wf.page(n)
	if err != nil {
		return "", err
	}
	if p.V.IsNull() {
		return "", nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("text of page %d: %v", n, r)
		}
	}()
	for _, name := range p.Fonts() {
		if _, ok := wf.fonts[name]; !ok {
			f := p.Font(name)
			wf.fonts[name] = &f
		}
	}
	text, err = p.GetPlainText(wf.fonts)
	if err != nil {
		return "", fmt.Errorf("text of page %d: %w", n, err)
	}
	return wf.norm(text), nil
}

// AllText returns the text of every page separated by form feeds.
func (wf *WordFinder) AllText() (string, error) {
	var parts []string
	for n := 1; n <= wf.PageCount(); n++ {
		t, err := wf.Text(n)
		if err != nil {
			return "", err
		}
		parts = append(parts, strings.TrimSpace(t))
	}
	return strings.Join(parts, "\f"), nil
}

// Words returns the words of page n in reading order.
func (wf *WordFinder) Words(n int) (words []Word, err error) {
	p, err := wf.page(n)
	if err != nil {
		return nil, err
	}
	if p.V.IsNull() {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("words of page %d: %v", n, r)
		}
	}()
	return groupWords(n, p.Content().Text, wf.norm), nil
}

// Find returns the words on page n that contain needle, ignoring case.
func (wf *WordFinder) Find(n int, needle string) ([]Word, error) {
	words, err := wf.Words(n)
	if err != nil {
		return nil, err
	}
	needle = strings.ToLower(wf.norm(needle))
	return slices.DeleteFunc(words, func(w Word) bool {
		return !strings.Contains(strings.ToLower(w.Text), needle)
	}), nil
}

func (wf *WordFinder) norm(s string) string {
	if wf.normalize {
		return norm.NFKC.String(s)
	}
	return s
}

// groupWords joins glyph runs into words. Runs sharing a baseline (within
// half the font size) are adjacent when the gap between them is under a
// fifth of the font size.
func groupWords(page int, glyphs []pdf.Text, normalize func(string) string) []Word {
	glyphs = slices.Clone(glyphs)
	slices.SortStableFunc(glyphs, func(a, b pdf.Text) int {
		if math.Abs(a.Y-b.Y) > a.FontSize/2 {
			if a.Y > b.Y {
				return -1
			}
			return 1
		}
		switch {
		case a.X < b.X:
			return -1
		case a.X > b.X:
			return 1
		}
		return 0
	})

	var (
		words []Word
		cur   *Word
		sb    strings.Builder
		lastX float64
	)
	flush := func() {
		if cur != nil && sb.Len() > 0 {
			cur.Text = normalize(sb.String())
			cur.Width = lastX - cur.X
			words = append(words, *cur)
		}
		cur = nil
		sb.Reset()
	}
	for _, g := range glyphs {
		if strings.TrimFunc(g.S, unicode.IsSpace) == "" {
			flush()
			continue
		}
		if cur != nil && (math.Abs(g.Y-cur.Y) > g.FontSize/2 || g.X-lastX > g.FontSize/5) {
			flush()
		}
		if cur == nil {
			cur = &Word{Page: page, X: g.X, Y: g.Y, Height: g.FontSize}
		}
		sb.WriteString(g.S)
		lastX = g.X + g.W
		cur.Height = max(cur.Height, g.FontSize)
	}
	flush()
	return words
}
