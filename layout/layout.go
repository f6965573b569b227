// Package layout flows Markdown, HTML, LaTeX and plain text onto pages and
// emits the result as a pdfcpu page description, the JSON accepted by
// pdfcpu's create command. Only the standard 14 fonts are used, so the
// output needs no font embedding.
package layout

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/wudi/pdfsamples/fonts"
)

// Paper is a named page size in points.
type Paper struct {
	Name          string
	Width, Height float64
}

var (
	A4     = Paper{"A4", 595.28, 841.89}
	A5     = Paper{"A5", 419.53, 595.28}
	Letter = Paper{"Letter", 612, 792}
	Legal  = Paper{"Legal", 612, 1008}
)

// Margins in points.
type Margins struct {
	Top, Bottom, Left, Right float64
}

const (
	fontRegular = "Helvetica"
	fontBold    = "Helvetica-Bold"
	fontMono    = "Courier"
)

// Engine accumulates laid-out text across Render calls. It is not safe for
// concurrent use.
type Engine struct {
	FontSize   float64
	LineHeight float64 // multiple of the font size
	Margins    Margins

	paper   Paper
	metrics *fonts.Metrics

	pages   [][]textBox
	cursorY float64
}

type textBox struct {
	value string
	x, y  float64
	font  string
	size  float64
}

type Option func(*Engine)

func WithFontSize(size float64) Option { return func(e *Engine) { e.FontSize = size } }

func WithLineHeight(h float64) Option { return func(e *Engine) { e.LineHeight = h } }

func WithMargins(m Margins) Option { return func(e *Engine) { e.Margins = m } }

func WithPaper(p Paper) Option { return func(e *Engine) { e.paper = p } }

// WithMetrics replaces the Go Regular metrics used for wrapping.
func WithMetrics(m *fonts.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		FontSize:   12,
		LineHeight: 1.2,
		Margins:    Margins{Top: 50, Bottom: 50, Left: 50, Right: 50},
		paper:      A4,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = fonts.Default()
	}
	return e
}

// Pages returns the number of pages laid out so far.
func (e *Engine) Pages() int { return len(e.pages) }

// RenderText lays out plain text. Blank lines separate paragraphs.
func (e *Engine) RenderText(ctx context.Context, text string) error {
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if err := ctx.Err(); err != nil {
			return err
		}
		para = strings.Join(strings.Fields(para), " ")
		if para == "" {
			continue
		}
		e.paragraph(para, e.Margins.Left, fontRegular, e.FontSize)
		e.space()
	}
	return nil
}

// JSON returns the page description. An engine with nothing rendered
// yields a single blank page.
func (e *Engine) JSON() ([]byte, error) {
	pages := make(map[string]any, len(e.pages))
	for i, boxes := range e.pages {
		text := make([]map[string]any, 0, len(boxes))
		for _, b := range boxes {
			text = append(text, map[string]any{
				"value": b.value,
				"pos":   []float64{round2(b.x), round2(b.y)},
				"font":  map[string]any{"name": b.font, "size": b.size},
			})
		}
		pages[fmt.Sprint(i+1)] = map[string]any{"content": map[string]any{"text": text}}
	}
	if len(pages) == 0 {
		pages["1"] = map[string]any{"content": map[string]any{}}
	}

	doc := []byte(`{}`)
	var err error
	for _, kv := range []struct {
		path  string
		value any
	}{
		{"paper", e.paper.Name + "P"},
		{"origin", "LowerLeft"},
		{"pages", pages},
	} {
		if doc, err = sjson.SetBytes(doc, kv.path, kv.value); err != nil {
			return nil, fmt.Errorf("layout: set %s: %w", kv.path, err)
		}
	}
	return doc, nil
}

func (e *Engine) newPage() {
	e.pages = append(e.pages, nil)
	e.cursorY = e.paper.Height - e.Margins.Top
}

// reserve starts a new page unless height fits above the bottom margin.
func (e *Engine) reserve(height float64) {
	if len(e.pages) == 0 || e.cursorY-height < e.Margins.Bottom {
		e.newPage()
	}
}

func (e *Engine) line(text string, x float64, font string, size float64) {
	lh := size * e.LineHeight
	e.reserve(lh)
	if text != "" {
		p := len(e.pages) - 1
		e.pages[p] = append(e.pages[p], textBox{value: text, x: x, y: e.cursorY - size, font: font, size: size})
	}
	e.cursorY -= lh
}

// paragraph wraps text to the space between x and the right margin.
func (e *Engine) paragraph(text string, x float64, font string, size float64) {
	width := e.paper.Width - e.Margins.Right - x
	for _, l := range e.metrics.Wrap(text, size, width) {
		e.line(l, x, font, size)
	}
}

// space adds half a line of vertical space between blocks.
func (e *Engine) space() {
	if len(e.pages) > 0 {
		e.cursorY -= e.FontSize * e.LineHeight / 2
	}
}

func (e *Engine) headingSize(level int) float64 {
	switch level {
	case 1:
		return e.FontSize * 2
	case 2:
		return e.FontSize * 1.5
	case 3:
		return e.FontSize * 1.25
	default:
		return e.FontSize
	}
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
