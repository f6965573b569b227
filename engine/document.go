package engine

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/h2non/filetype"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfsamples/observability"
	"github.com/wudi/pdfsamples/surface"
	"github.com/wudi/pdfsamples/tempstore"
)

// Document is an open PDF. Its serialized form lives in a temp-store blob
// that every edit replaces; the pdfcpu context is re-read after each edit.
type Document struct {
	sf       *engineSurface
	name     string
	password string

	blob tempstore.Blob
	file tempstore.File
	ctx  *model.Context

	closed bool
}

// Info is the document information dictionary plus a few derived facts.
type Info struct {
	Title     string
	Author    string
	Subject   string
	Creator   string
	Producer  string
	Pages     int
	Size      int64
	Encrypted bool
}

func (s *engineSurface) openDocument(p DocumentParams) (*Document, error) {
	name := p.Name
	var src io.Reader
	switch {
	case p.Path != "":
		f, err := os.Open(p.Path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", p.Path, err)
		}
		defer f.Close()
		src = f
		if name == "" {
			name = filepath.Base(p.Path)
		}
	case p.Data != nil:
		src = bytes.NewReader(p.Data)
	case p.Layout != nil:
		var buf bytes.Buffer
		if err := api.Create(nil, bytes.NewReader(p.Layout), &buf, s.newConf("", "")); err != nil {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
		src = &buf
	default:
		return nil, fmt.Errorf("engine: document needs a path, data or layout")
	}
	if name == "" {
		name = "document.pdf"
	}

	src, err := sniff(name, src)
	if err != nil {
		return nil, err
	}
	d := &Document{sf: s, name: name, password: p.Password}
	if err := d.replace(src); err != nil {
		return nil, err
	}
	s.log.Debug("document opened",
		observability.String("document", name),
		observability.Int("pages", d.ctx.PageCount),
		observability.Int64("bytes", d.blob.Size()),
	)
	return d, nil
}

// sniff rejects sources that do not look like a PDF. PDF allows up to 1KiB
// of junk before the header, which magic-number detection does not.
func sniff(name string, r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 1024)
	head, err := br.Peek(1024)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(head) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNotPDF, name)
	}
	kind, _ := filetype.Match(head)
	if kind.Extension == "pdf" || bytes.Contains(head, []byte("%PDF-")) {
		return br, nil
	}
	if kind == filetype.Unknown {
		return nil, fmt.Errorf("%w: %s has unrecognized content", ErrNotPDF, name)
	}
	return nil, fmt.Errorf("%w: %s is %s", ErrNotPDF, name, kind.MIME.Value)
}

// replace stores r as the document's new serialized form and parses it.
// On failure the previous state is kept.
func (d *Document) replace(r io.Reader) error {
	blob, err := d.sf.store.Put(d.name, r)
	if err != nil {
		return fmt.Errorf("store %s: %w", d.name, err)
	}
	f, ctx, err := d.sf.parse(blob, d.password)
	if err != nil {
		blob.Remove()
		return fmt.Errorf("parse %s: %w", d.name, err)
	}
	d.release()
	d.blob, d.file, d.ctx = blob, f, ctx
	return nil
}

func (s *engineSurface) parse(blob tempstore.Blob, password string) (_ tempstore.File, ctx *model.Context, err error) {
	f, err := blob.Open()
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("pdfcpu: %v", p)
		}
		if err != nil {
			f.Close()
		}
	}()
	ctx, err = api.ReadContext(f, s.newConf(password, password))
	if err != nil {
		return nil, nil, err
	}
	if err = api.ValidateContext(ctx); err != nil {
		return nil, nil, err
	}
	return f, ctx, nil
}

func (d *Document) release() {
	if d.file != nil {
		d.file.Close()
	}
	if d.blob != nil {
		d.blob.Remove()
	}
	d.blob, d.file, d.ctx = nil, nil, nil
}

func (d *Document) Kind() surface.Kind { return KindDocument }

// Close drops the document's payload. Closing twice is a no-op.
func (d *Document) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.release()
	return nil
}

// Name returns the document's label.
func (d *Document) Name() string { return d.name }

// PageCount returns the number of pages, or 0 once the document is closed.
func (d *Document) PageCount() int {
	if d.closed {
		return 0
	}
	return d.ctx.PageCount
}

func (d *Document) Info() (Info, error) {
	if d.closed {
		return Info{}, d.sf.gone()
	}
	x := d.ctx.XRefTable
	return Info{
		Title:     x.Title,
		Author:    x.Author,
		Subject:   x.Subject,
		Creator:   x.Creator,
		Producer:  x.Producer,
		Pages:     d.ctx.PageCount,
		Size:      d.blob.Size(),
		Encrypted: x.Encrypt != nil,
	}, nil
}

// PageSize returns the media box dimensions of page n in points.
func (d *Document) PageSize(n int) (width, height float64, err error) {
	if d.closed {
		return 0, 0, d.sf.gone()
	}
	if n < 1 || n > d.ctx.PageCount {
		return 0, 0, fmt.Errorf("%w: %d of %d", ErrPageRange, n, d.ctx.PageCount)
	}
	dims, err := d.ctx.PageDims()
	if err != nil {
		return 0, 0, err
	}
	if n > len(dims) {
		return 0, 0, fmt.Errorf("%w: %d of %d", ErrPageRange, n, len(dims))
	}
	return dims[n-1].Width, dims[n-1].Height, nil
}

// Fingerprint returns the hex BLAKE2b-256 digest of the serialized
// document.
func (d *Document) Fingerprint() (string, error) {
	data, err := d.Bytes()
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Rotate turns the selected pages, all when none are given, by a multiple
// of 90 degrees.
func (d *Document) Rotate(degrees int, pages ...int) error {
	if degrees%90 != 0 {
		return fmt.Errorf("rotate %s: %d is not a multiple of 90", d.name, degrees)
	}
	return d.apply("rotate", func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error {
		return api.Rotate(rs, w, degrees, selection(pages), conf)
	})
}

// WatermarkOptions controls AddTextWatermark. Zero values pick defaults.
type WatermarkOptions struct {
	// FontSize in points; zero fits the text across the first page.
	FontSize float64
	// Rotation in degrees counter-clockwise; defaults to the page diagonal
	// angle, approximated as 45.
	Rotation *float64
	Opacity  float64
	// Color is a hex color such as "#808080".
	Color string
	// OnTop stamps over the content instead of under it.
	OnTop bool
	Pages []int
}

// AddTextWatermark draws text in Helvetica on the selected pages.
func (d *Document) AddTextWatermark(text string, opts WatermarkOptions) error {
	if d.closed {
		return d.sf.gone()
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("watermark %s: empty text", d.name)
	}
	rot := 45.0
	if opts.Rotation != nil {
		rot = *opts.Rotation
	}
	opacity := opts.Opacity
	if opacity <= 0 || opacity > 1 {
		opacity = 0.3
	}
	color := opts.Color
	if color == "" {
		color = "#808080"
	}
	size := opts.FontSize
	if size <= 0 {
		w, h, err := d.PageSize(1)
		if err != nil {
			return err
		}
		span := w
		if rot != 0 {
			span = math.Hypot(w, h)
		}
		size = d.sf.metrics.FitSize(text, span*0.7, 12, 144)
	}
	desc := fmt.Sprintf("fontname:Helvetica, points:%d, rotation:%g, opacity:%.2f, scalefactor:1 abs, fillcolor:%s",
		int(math.Round(size)), rot, opacity, color)
	wm, err := api.TextWatermark(text, desc, opts.OnTop, false, types.POINTS)
	if err != nil {
		return fmt.Errorf("watermark %s: %w", d.name, err)
	}
	return d.apply("watermark", func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error {
		return api.AddWatermarks(rs, w, selection(opts.Pages), wm, conf)
	})
}

// Encrypt protects the document with AES-256. Later reads use ownerPW.
func (d *Document) Encrypt(userPW, ownerPW string) error {
	if d.closed {
		return d.sf.gone()
	}
	if ownerPW == "" {
		return fmt.Errorf("encrypt %s: owner password required", d.name)
	}
	in := d.password
	err := d.applyConf("encrypt", func(rs io.ReadSeeker, w io.Writer) error {
		conf := model.NewAESConfiguration(userPW, ownerPW, 256)
		conf.ValidationMode = d.sf.newConf("", "").ValidationMode
		return api.Encrypt(rs, w, conf)
	}, ownerPW)
	if err != nil {
		d.password = in
	}
	return err
}

// MergeFrom appends the pages of others.
func (d *Document) MergeFrom(others ...*Document) error {
	if len(others) == 0 {
		return nil
	}
	files := make([]tempstore.File, 0, len(others))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, o := range others {
		if o == nil || o.closed {
			return fmt.Errorf("merge into %s: %w", d.name, d.sf.gone())
		}
		f, err := o.blob.Open()
		if err != nil {
			return err
		}
		files = append(files, f)
	}
	return d.apply("merge", func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error {
		rsc := []io.ReadSeeker{rs}
		for _, f := range files {
			rsc = append(rsc, f)
		}
		return api.MergeRaw(rsc, w, false, conf)
	})
}

// Split writes the document into files of span pages each under dir and
// returns their paths in page order.
func (d *Document) Split(dir string, span int) ([]string, error) {
	if d.closed {
		return nil, d.sf.gone()
	}
	if span < 1 {
		span = 1
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(d.name, filepath.Ext(d.name))
	f, err := d.blob.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := api.Split(f, dir, base, span, d.sf.newConf(d.password, d.password)); err != nil {
		return nil, fmt.Errorf("split %s: %w", d.name, err)
	}
	paths, err := filepath.Glob(filepath.Join(dir, base+"_*.pdf"))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(paths, func(a, b string) int { return splitIndex(a, base) - splitIndex(b, base) })
	return paths, nil
}

// splitIndex extracts the first page number from "<base>_<n>[-<m>].pdf".
func splitIndex(path, base string) int {
	s := strings.TrimPrefix(filepath.Base(path), base+"_")
	s = strings.TrimSuffix(s, ".pdf")
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}
	n, _ := strconv.Atoi(s)
	return n
}

// WriteTo writes the serialized document.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	if d.closed {
		return 0, d.sf.gone()
	}
	f, err := d.blob.Open()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

// Save writes the document to path, creating parent directories.
func (d *Document) Save(path string) error {
	if d.closed {
		return d.sf.gone()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := d.WriteTo(out); err != nil {
		out.Close()
		return fmt.Errorf("save %s: %w", path, err)
	}
	return out.Close()
}

func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Size returns the serialized size in bytes, or 0 once the document is
// closed.
func (d *Document) Size() int64 {
	if d.closed {
		return 0
	}
	return d.blob.Size()
}

// apply runs a pdfcpu stream command over the document and replaces it
// with the output.
func (d *Document) apply(op string, fn func(rs io.ReadSeeker, w io.Writer, conf *model.Configuration) error) error {
	return d.applyConf(op, func(rs io.ReadSeeker, w io.Writer) error {
		return fn(rs, w, d.sf.newConf(d.password, d.password))
	}, d.password)
}

func (d *Document) applyConf(op string, fn func(rs io.ReadSeeker, w io.Writer) error, password string) error {
	if d.closed {
		return d.sf.gone()
	}
	f, err := d.blob.Open()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	err = fn(f, &buf)
	f.Close()
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, d.name, err)
	}
	d.password = password
	if err := d.replace(&buf); err != nil {
		return fmt.Errorf("%s %s: %w", op, d.name, err)
	}
	d.sf.log.Debug("document updated",
		observability.String("document", d.name),
		observability.String("op", op),
		observability.Int64("bytes", d.blob.Size()),
	)
	return nil
}

// selection turns page numbers into a pdfcpu page selection; nil selects
// every page.
func selection(pages []int) []string {
	if len(pages) == 0 {
		return nil
	}
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, strconv.Itoa(p))
	}
	return out
}
