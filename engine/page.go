package engine

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"slices"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"

	"github.com/wudi/pdfsamples/surface"
	"github.com/wudi/pdfsamples/tempstore"
)

// Page is a view of one page of a document. It keeps a non-owning
// reference to the document, which must stay open while the page is used.
type Page struct {
	doc    *Document
	number int
	closed bool
}

func (d *Document) openPage(p PageParams) (*Page, error) {
	if d.closed {
		return nil, d.sf.gone()
	}
	if p.Number < 1 || p.Number > d.ctx.PageCount {
		return nil, fmt.Errorf("%w: page %d of %d in %s", ErrPageRange, p.Number, d.ctx.PageCount, d.name)
	}
	return &Page{doc: d, number: p.Number}, nil
}

func (p *Page) Kind() surface.Kind { return KindPage }

func (p *Page) Close() error {
	p.closed = true
	return nil
}

func (p *Page) Number() int { return p.number }

// Document returns the page's document.
func (p *Page) Document() *Document { return p.doc }

func (p *Page) check() error {
	if p.closed || p.doc.closed {
		return p.doc.sf.gone()
	}
	return nil
}

// Size returns the page's media box in points.
func (p *Page) Size() (width, height float64, err error) {
	if err := p.check(); err != nil {
		return 0, 0, err
	}
	return p.doc.PageSize(p.number)
}

// Content returns the page's decoded content stream.
func (p *Page) Content() ([]byte, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	r, err := pdfcpu.ExtractPageContent(p.doc.ctx, p.number)
	if err != nil {
		return nil, fmt.Errorf("content of page %d: %w", p.number, err)
	}
	if r == nil {
		return nil, nil
	}
	return io.ReadAll(r)
}

// ImageInfo describes an image resource of a page.
type ImageInfo struct {
	ObjNr    int
	Name     string
	FileType string
	Width    int
	Height   int
}

// Images lists the page's images ordered by object number.
func (p *Page) Images() ([]ImageInfo, error) {
	imgs, err := p.extract()
	if err != nil {
		return nil, err
	}
	out := make([]ImageInfo, 0, len(imgs))
	for _, img := range imgs {
		out = append(out, infoOf(img))
	}
	return out, nil
}

func (p *Page) extract() ([]model.Image, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	m, err := pdfcpu.ExtractPageImages(p.doc.ctx, p.number, false)
	if err != nil {
		return nil, fmt.Errorf("images of page %d: %w", p.number, err)
	}
	imgs := make([]model.Image, 0, len(m))
	for _, img := range m {
		imgs = append(imgs, img)
	}
	slices.SortFunc(imgs, func(a, b model.Image) int { return a.ObjNr - b.ObjNr })
	return imgs, nil
}

func infoOf(img model.Image) ImageInfo {
	return ImageInfo{ObjNr: img.ObjNr, Name: img.Name, FileType: img.FileType, Width: img.Width, Height: img.Height}
}

// Image is an extracted image whose encoded bytes are held in the temp
// store.
type Image struct {
	page *Page
	info ImageInfo
	blob tempstore.Blob
}

func (p *Page) openImage(params ImageParams) (*Image, error) {
	imgs, err := p.extract()
	if err != nil {
		return nil, err
	}
	i := 0
	if params.ObjNr != 0 {
		i = slices.IndexFunc(imgs, func(img model.Image) bool { return img.ObjNr == params.ObjNr })
	}
	if i < 0 || i >= len(imgs) {
		return nil, fmt.Errorf("%w: object %d on page %d", ErrNoImage, params.ObjNr, p.number)
	}
	img := imgs[i]
	info := infoOf(img)
	name := fmt.Sprintf("page-%d-%s.%s", p.number, info.Name, info.FileType)
	blob, err := p.doc.sf.store.Put(name, img)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", name, err)
	}
	return &Image{page: p, info: info, blob: blob}, nil
}

func (img *Image) Kind() surface.Kind { return KindImage }

func (img *Image) Close() error {
	if img.blob == nil {
		return nil
	}
	err := img.blob.Remove()
	img.blob = nil
	return err
}

func (img *Image) Info() ImageInfo { return img.info }

// Page returns the page the image was extracted from.
func (img *Image) Page() *Page { return img.page }

// Bytes returns the encoded image.
func (img *Image) Bytes() ([]byte, error) {
	if img.blob == nil {
		return nil, img.page.doc.sf.gone()
	}
	f, err := img.blob.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Decode decodes PNG, JPEG and TIFF images.
func (img *Image) Decode() (image.Image, error) {
	data, err := img.Bytes()
	if err != nil {
		return nil, err
	}
	m, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s (%s): %w", img.info.Name, img.info.FileType, err)
	}
	return m, nil
}

// Thumbnail returns the image scaled so its longer side is maxSide pixels.
// Smaller images are returned unscaled.
func (img *Image) Thumbnail(maxSide int) (image.Image, error) {
	src, err := img.Decode()
	if err != nil {
		return nil, err
	}
	return thumbnail(src, maxSide), nil
}

func thumbnail(src image.Image, maxSide int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return src
	}
	if w >= h {
		h = max(1, h*maxSide/w)
		w = maxSide
	} else {
		w = max(1, w*maxSide/h)
		h = maxSide
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
