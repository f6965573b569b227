package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfsamples/ocr"
	"github.com/wudi/pdfsamples/session"
	"github.com/wudi/pdfsamples/surface"
	"github.com/wudi/pdfsamples/tempstore"
)

// samplePDF builds a small well-formed PDF with the given number of US
// Letter pages, each showing one line of Helvetica text.
func samplePDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}
	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	for i := 0; i < pages; i++ {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (Page %d) Tj ET", i+1)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func newSurface(t *testing.T, cfg surface.Config, opts ...DriverOption) *engineSurface {
	t.Helper()
	sf, err := NewDriver(opts...).Initialize(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sf.Shutdown() })
	return sf.(*engineSurface)
}

func open[T surface.Entity](t *testing.T, sf *engineSurface, req surface.Request) T {
	t.Helper()
	e, err := sf.Open(context.Background(), req)
	require.NoError(t, err)
	v, ok := e.(T)
	require.True(t, ok, "got %T", e)
	return v
}

func openSample(t *testing.T, sf *engineSurface, pages int) *Document {
	t.Helper()
	return open[*Document](t, sf, surface.Request{Kind: KindDocument, Params: OpenBytes("sample.pdf", samplePDF(pages))})
}

func TestOpenDocument(t *testing.T) {
	sf := newSurface(t, surface.Config{TempStorage: surface.TempMemory})
	doc := openSample(t, sf, 3)

	assert.Equal(t, "sample.pdf", doc.Name())
	assert.Equal(t, 3, doc.PageCount())
	w, h, err := doc.PageSize(1)
	require.NoError(t, err)
	assert.Equal(t, 612.0, w)
	assert.Equal(t, 792.0, h)

	info, err := doc.Info()
	require.NoError(t, err)
	assert.Equal(t, 3, info.Pages)
	assert.False(t, info.Encrypted)
	assert.Equal(t, doc.Size(), sf.store.Usage())

	fp, err := doc.Fingerprint()
	require.NoError(t, err)
	assert.Len(t, fp, 64)

	require.NoError(t, doc.Close())
	require.NoError(t, doc.Close())
	assert.Zero(t, sf.store.Usage())
	assert.ErrorIs(t, doc.Rotate(90), ErrClosed)
}

func TestBlankDocument(t *testing.T) {
	sf := newSurface(t, surface.Config{TempStorage: surface.TempMemory})
	doc := open[*Document](t, sf, surface.Request{Kind: KindDocument, Params: Blank("blank.pdf")})
	assert.Equal(t, 1, doc.PageCount())
	w, h, err := doc.PageSize(1)
	require.NoError(t, err)
	assert.InDelta(t, 595.0, w, 1)
	assert.InDelta(t, 842.0, h, 1)
}

func TestClosedEntitiesReportSessionErrors(t *testing.T) {
	ctx := context.Background()
	s, err := session.Open(ctx, NewDriver(), surface.Config{TempStorage: surface.TempMemory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	r, err := s.Acquire(ctx, session.OpenEntity(KindDocument, OpenBytes("a.pdf", samplePDF(2))))
	require.NoError(t, err)
	doc, err := session.Use[*Document](r)
	require.NoError(t, err)
	rp, err := r.Acquire(ctx, session.OpenEntity(KindPage, PageParams{Number: 1}))
	require.NoError(t, err)
	page, err := session.Use[*Page](rp)
	require.NoError(t, err)

	r.Release()
	err = doc.Rotate(90)
	assert.ErrorIs(t, err, session.ErrUseAfterRelease)
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = page.Size()
	assert.ErrorIs(t, err, session.ErrUseAfterRelease)
	assert.Zero(t, doc.PageCount(), "counts report zero once closed")

	r2, err := s.Acquire(ctx, session.OpenEntity(KindDocument, OpenBytes("b.pdf", samplePDF(1))))
	require.NoError(t, err)
	other, err := session.Use[*Document](r2)
	require.NoError(t, err)
	require.True(t, session.IsWarning(s.Close()))

	err = other.Save(filepath.Join(t.TempDir(), "b.pdf"))
	assert.ErrorIs(t, err, session.ErrSessionInactive)
	assert.ErrorIs(t, err, ErrShutDown)
	assert.ErrorIs(t, doc.Rotate(90), session.ErrSessionInactive)
}

func TestOpenDocumentFromFile(t *testing.T) {
	sf := newSurface(t, surface.Config{TempDir: t.TempDir()})
	path := filepath.Join(t.TempDir(), "in.pdf")
	require.NoError(t, os.WriteFile(path, samplePDF(1), 0o644))

	doc := open[*Document](t, sf, surface.Request{Kind: KindDocument, Params: OpenFile(path)})
	assert.Equal(t, "in.pdf", doc.Name())

	out := filepath.Join(t.TempDir(), "nested", "out.pdf")
	require.NoError(t, doc.Save(out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestOpenDocumentErrors(t *testing.T) {
	sf := newSurface(t, surface.Config{TempStorage: surface.TempMemory})
	tests := []struct {
		name   string
		params any
		want   error
	}{
		{"missing file", OpenFile(filepath.Join(t.TempDir(), "missing.pdf")), os.ErrNotExist},
		{"empty", OpenBytes("empty.pdf", []byte{}), ErrNotPDF},
		{"png", OpenBytes("logo.pdf", []byte("\x89PNG\r\n\x1a\n0000000000")), ErrNotPDF},
		{"text", OpenBytes("notes.pdf", []byte("just some notes")), ErrNotPDF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sf.Open(context.Background(), surface.Request{Kind: KindDocument, Params: tt.params})
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := sf.Open(context.Background(), surface.Request{Kind: KindDocument, Params: OpenBytes("broken.pdf", []byte("%PDF-1.7\ngarbage"))})
	require.Error(t, err)
	assert.Zero(t, sf.store.Usage())

	_, err = sf.Open(context.Background(), surface.Request{Kind: KindDocument})
	assert.Error(t, err)
}

func TestOpenRequestErrors(t *testing.T) {
	sf := newSurface(t, surface.Config{TempStorage: surface.TempMemory})
	ctx := context.Background()

	_, err := sf.Open(ctx, surface.Request{Kind: "spreadsheet"})
	assert.ErrorIs(t, err, surface.ErrUnknownKind)

	_, err = sf.Open(ctx, surface.Request{Kind: KindDocument, Params: PageParams{Number: 1}})
	assert.ErrorContains(t, err, "engine: document takes engine.DocumentParams params")

	_, err = sf.Open(ctx, surface.Request{Kind: KindPage, Params: PageParams{Number: 1}})
	assert.ErrorIs(t, err, surface.ErrParentRequired)

	opt := open[*Optimizer](t, sf, surface.Request{Kind: KindOptimizer})
	_, err = sf.Open(ctx, surface.Request{Kind: KindPage, Parent: opt})
	assert.ErrorIs(t, err, surface.ErrParentRequired)

	_, err = sf.Open(ctx, surface.Request{Kind: KindForms})
	assert.ErrorIs(t, err, surface.ErrExtensionDisabled)
	_, err = sf.Open(ctx, surface.Request{Kind: KindOCR})
	assert.ErrorIs(t, err, surface.ErrExtensionDisabled)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = sf.Open(cctx, surface.Request{Kind: KindOptimizer})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryLimit(t *testing.T) {
	data := samplePDF(2)
	sf := newSurface(t, surface.Config{TempStorage: surface.TempMemory, MemoryLimit: int64(len(data)) / 2})

	_, err := sf.Open(context.Background(), surface.Request{Kind: KindDocument, Params: OpenBytes("big.pdf", data)})
	require.ErrorIs(t, err, tempstore.ErrLimitExceeded)
	assert.Zero(t, sf.store.Usage())
}

func TestPages(t *testing.T) {
	sf := newSurface(t, surface.Config{TempStorage: surface.TempMemory})
	doc := openSample(t, sf, 2)

	_, err := sf.Open(context.Background(), surface.Request{Kind: KindPage, Parent: doc, Params: PageParams{Number: 3}})
	assert.ErrorIs(t, err, ErrPageRange)
	_, err = sf.Open(context.Background(), surface.Request{Kind: KindPage, Parent: doc})
	assert.ErrorIs(t, err, ErrPageRange)

	page := open[*Page](t, sf, surface.Request{Kind: KindPage, Parent: doc, Params: PageParams{Number: 2}})
	assert.Equal(t, 2, page.Number())
	assert.Same(t, doc, page.Document())

	content, err := page.Content()
	require.NoError(t, err)
	assert.Contains(t, string(content), "(Page 2) Tj")

	imgs, err := page.Images()
	require.NoError(t, err)
	assert.Empty(t, imgs)
	_, err = sf.Open(context.Background(), surface.Request{Kind: KindImage, Parent: page})
	assert.ErrorIs(t, err, ErrNoImage)

	require.NoError(t, page.Close())
	_, err = page.Content()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRotateAndWatermark(t *testing.T) {
	sf := newSurface(t, surface.Config{TempStorage: surface.TempMemory})
	doc := openSample(t, sf, 2)
	before, err := doc.Fingerprint()
	require.NoError(t, err)

	require.NoError(t, doc.Rotate(90, 1))
	assert.Equal(t, 2, doc.PageCount())
	after, err := doc.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	require.NoError(t, doc.AddTextWatermark("DRAFT", WatermarkOptions{}))
	assert.Equal(t, 2, doc.PageCount())
	assert.Equal(t, doc.Size(), sf.store.Usage())
}

func TestOptimize(t *testing.T) {
	sf := newSurface(t, surface.Config{TempStorage: surface.TempMemory})
	doc := openSample(t, sf, 2)
	opt := open[*Optimizer](t, sf, surface.Request{Kind: KindOptimizer, Params: OptimizerParams{Validate: true}})

	stats, err := opt.Optimize(context.Background(), doc)
	require.NoError(t, err)
	assert.Positive(t, stats.Before)
	assert.Equal(t, doc.Size(), stats.After)
	assert.Equal(t, 2, doc.PageCount())

	require.NoError(t, opt.Close())
	_, err = opt.Optimize(context.Background(), doc)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMergeAndSplit(t *testing.T) {
	sf := newSurface(t, surface.Config{TempStorage: surface.TempMemory})
	a := openSample(t, sf, 2)
	b := openSample(t, sf, 1)

	require.NoError(t, a.MergeFrom(b))
	assert.Equal(t, 3, a.PageCount())

	files, err := a.Split(t.TempDir(), 1)
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestEncrypt(t *testing.T) {
	sf := newSurface(t, surface.Config{TempStorage: surface.TempMemory})
	doc := openSample(t, sf, 1)
	require.NoError(t, doc.Encrypt("user", "owner"))

	info, err := doc.Info()
	require.NoError(t, err)
	assert.True(t, info.Encrypted)

	data, err := doc.Bytes()
	require.NoError(t, err)
	_, err = sf.Open(context.Background(), surface.Request{Kind: KindDocument, Params: OpenBytes("locked.pdf", data)})
	assert.Error(t, err)
}

func TestWordFinderSnapshot(t *testing.T) {
	sf := newSurface(t, surface.Config{TempStorage: surface.TempMemory})
	doc := openSample(t, sf, 2)
	size := doc.Size()

	wf := open[*WordFinder](t, sf, surface.Request{Kind: KindWordFinder, Parent: doc})
	assert.Equal(t, 2, wf.PageCount())
	assert.Equal(t, 2*size, sf.store.Usage())
	_, err := wf.Words(3)
	assert.ErrorIs(t, err, ErrPageRange)

	require.NoError(t, doc.Close())
	assert.Equal(t, 2, wf.PageCount())

	require.NoError(t, wf.Close())
	assert.Zero(t, sf.store.Usage())
	_, err = wf.Text(1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestGroupWords(t *testing.T) {
	glyph := func(s string, x, y float64) pdf.Text {
		return pdf.Text{S: s, X: x, Y: y, W: 6, FontSize: 12}
	}
	glyphs := []pdf.Text{
		glyph("b", 106, 700),
		glyph("o", 78, 720),
		glyph("H", 72, 720),
		glyph(" ", 84, 720),
		glyph("a", 100, 700),
		glyph("w", 90, 720),
		glyph("e", 84, 700),
		glyph("ﬁ", 120, 700),
	}
	words := groupWords(4, glyphs, func(s string) string { return s })
	var texts []string
	for _, w := range words {
		texts = append(texts, w.Text)
		assert.Equal(t, 4, w.Page)
	}
	assert.Equal(t, []string{"Ho", "w", "e", "ab", "ﬁ"}, texts)
	assert.Equal(t, 12.0, words[0].Width)
	assert.Equal(t, 720.0, words[0].Y)

	wf := &WordFinder{normalize: true}
	assert.Equal(t, "fi", wf.norm("ﬁ"))
}

func TestForms(t *testing.T) {
	sf := newSurface(t, surface.Config{TempStorage: surface.TempMemory, Extensions: []surface.Extension{surface.ExtensionForms}})
	doc := openSample(t, sf, 2)
	forms := open[*Forms](t, sf, surface.Request{
		Kind:   KindForms,
		Parent: doc,
		Params: FormsParams{Fields: map[string]string{"price": "12.5", "qty": "4"}},
	})
	ctx := context.Background()

	require.NoError(t, forms.Calculate(ctx, "total", `event.value = getField("price").value * getField("qty").value;`))
	v, err := forms.Field("total")
	require.NoError(t, err)
	assert.Equal(t, 50.0, v)

	pages, err := forms.Run(ctx, "numPages")
	require.NoError(t, err)
	assert.EqualValues(t, 2, pages)

	_, err = forms.Run(ctx, `app.alert("checked " + getField("qty").value)`)
	require.NoError(t, err)
	assert.Equal(t, []string{"checked 4"}, forms.Alerts())

	standalone := open[*Forms](t, sf, surface.Request{Kind: KindForms})
	assert.Nil(t, standalone.Document())

	values, err := forms.Fields()
	require.NoError(t, err)
	assert.Contains(t, values, "total")

	require.NoError(t, forms.Close())
	_, err = forms.Run(ctx, "1")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = forms.Fields()
	assert.ErrorIs(t, err, ErrClosed)
}

type fakeOCR struct {
	availErr error
	inputs   []ocr.Input
}

func (f *fakeOCR) Name() string { return "fake" }

func (f *fakeOCR) Available(...string) error { return f.availErr }

func (f *fakeOCR) Recognize(_ context.Context, in ocr.Input) (ocr.Result, error) {
	f.inputs = append(f.inputs, in)
	return ocr.Result{PlainText: "recognized " + in.ID}, nil
}

func TestOCRExtension(t *testing.T) {
	cfg := surface.Config{TempStorage: surface.TempMemory, Extensions: []surface.Extension{surface.ExtensionOCR}}

	unavailable := errors.New("tesseract not installed")
	_, err := NewDriver(WithOCREngine(&fakeOCR{availErr: unavailable})).Initialize(context.Background(), cfg)
	require.ErrorIs(t, err, unavailable)

	fake := &fakeOCR{}
	sf := newSurface(t, cfg, WithOCREngine(fake))
	rec := open[*Recognizer](t, sf, surface.Request{Kind: KindOCR, Params: OCRParams{Languages: []string{"deu"}}})
	assert.Equal(t, "fake", rec.EngineName())

	src := image.NewGray(image.Rect(0, 0, 4, 4))
	src.SetGray(1, 1, color.Gray{Y: 200})
	blob, err := sf.store.Put("scan.png", bytes.NewReader(encodePNG(t, src)))
	require.NoError(t, err)
	img := &Image{page: &Page{number: 3}, info: ImageInfo{ObjNr: 9, Name: "Im1", FileType: "png"}, blob: blob}

	res, err := rec.Recognize(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "recognized page-3-obj-9", res.PlainText)
	require.Len(t, fake.inputs, 1)
	assert.Equal(t, []string{"deu"}, fake.inputs[0].Languages)
	assert.Equal(t, 2, fake.inputs[0].PageIndex)

	require.NoError(t, img.Close())
	assert.Zero(t, sf.store.Usage())
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestThumbnail(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	got := thumbnail(src, 50)
	assert.Equal(t, image.Rect(0, 0, 50, 25), got.Bounds())
	assert.Same(t, src, thumbnail(src, 400))
}
