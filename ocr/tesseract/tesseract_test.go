package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os/exec"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/wudi/pdfsamples/ocr"
)

func requireTesseract(t *testing.T) *Engine {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
	e := New()
	if err := e.Available("eng"); err != nil {
		t.Skipf("tesseract not usable: %v", err)
	}
	return e
}

func sampleImage(t *testing.T, text string) *image.RGBA {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13, Dot: fixed.P(10, 50)}
	d.DrawString(text)
	return img
}

func TestRecognize(t *testing.T) {
	eng := requireTesseract(t)

	in, err := ocr.InputFromImage("page-0-Im1", 0, sampleImage(t, "Hello PDF"), ocr.WithLanguages("eng"), ocr.WithDPI(300))
	if err != nil {
		t.Fatalf("InputFromImage: %v", err)
	}
	results, err := ocr.RecognizeAll(context.Background(), eng, []ocr.Input{in})
	if err != nil {
		t.Fatalf("RecognizeAll() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if !res.Contains("hello") || !res.Contains("pdf") {
		t.Fatalf("unexpected OCR output: %q", res.PlainText)
	}
	if len(res.Blocks) == 0 || len(res.Blocks[0].Lines) == 0 {
		t.Fatal("expected structured blocks")
	}
	if res.InputID != "page-0-Im1" || res.Language != "eng" {
		t.Fatalf("unexpected result header: %+v", res)
	}
}

func TestCrop(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, sampleImage(t, "x")); err != nil {
		t.Fatal(err)
	}
	out, err := crop(buf.Bytes(), &ocr.Region{X: 10, Y: 10, Width: 50, Height: 20})
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode cropped: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 50 || b.Dy() != 20 {
		t.Fatalf("cropped bounds %v", b)
	}

	if _, err := crop(buf.Bytes(), &ocr.Region{X: 500, Y: 500, Width: 5, Height: 5}); err == nil {
		t.Fatal("expected error for region outside the image")
	}
	same, err := crop(buf.Bytes(), nil)
	if err != nil || !bytes.Equal(same, buf.Bytes()) {
		t.Fatal("nil region must return the input unchanged")
	}
}

func TestUnion(t *testing.T) {
	got := union([]ocr.TextWord{
		{Bounds: ocr.Region{X: 10, Y: 5, Width: 10, Height: 10}},
		{Bounds: ocr.Region{X: 30, Y: 2, Width: 5, Height: 20}},
	})
	want := ocr.Region{X: 10, Y: 2, Width: 25, Height: 20}
	if got != want {
		t.Fatalf("union = %+v, want %+v", got, want)
	}
	if !union(nil).IsEmpty() {
		t.Fatal("union of nothing should be empty")
	}
}
