// Package tesseract recognizes text with a local Tesseract install through
// gosseract.
package tesseract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/wudi/pdfsamples/ocr"
)

// ErrUnavailable is returned by Available when Tesseract cannot be used.
var ErrUnavailable = errors.New("tesseract: unavailable")

// Engine implements ocr.BatchEngine. Each input gets a fresh client so
// variables set for one image do not leak into the next.
type Engine struct {
	newClient func() *gosseract.Client
}

func New() *Engine {
	return &Engine{newClient: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Available checks that the library initializes and that trained data for
// langs is installed.
func (e *Engine) Available(langs ...string) error {
	c := e.newClient()
	defer c.Close()
	if strings.TrimSpace(c.Version()) == "" {
		return fmt.Errorf("%w: no library version reported", ErrUnavailable)
	}
	if len(langs) == 0 {
		return nil
	}
	installed, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return fmt.Errorf("%w: list languages: %v", ErrUnavailable, err)
	}
	for _, l := range langs {
		if !slices.Contains(installed, l) {
			return fmt.Errorf("%w: language %q not installed", ErrUnavailable, l)
		}
	}
	return nil
}

func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	c := e.newClient()
	defer c.Close()
	return recognize(c, in)
}

func (e *Engine) RecognizeBatch(ctx context.Context, inputs []ocr.Input) ([]ocr.Result, error) {
	results := make([]ocr.Result, 0, len(inputs))
	for _, in := range inputs {
		res, err := e.Recognize(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func recognize(c *gosseract.Client, in ocr.Input) (ocr.Result, error) {
	data, err := crop(in.Image, in.Region)
	if err != nil {
		return ocr.Result{}, err
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return ocr.Result{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable("user_defined_dpi", strconv.Itoa(in.DPI)); err != nil {
			return ocr.Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	for k, v := range in.Metadata {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	plain := strings.TrimSpace(text)

	words, conf := words(c)
	bounds := union(words)
	res := ocr.Result{
		InputID:   in.ID,
		PlainText: plain,
		Blocks: []ocr.TextBlock{{
			Text:       plain,
			Bounds:     bounds,
			Lines:      []ocr.TextLine{{Text: plain, Bounds: bounds, Words: words, Confidence: conf}},
			Confidence: conf,
		}},
	}
	if len(in.Languages) > 0 {
		res.Language = in.Languages[0]
	}
	return res, nil
}

// words returns word boxes and their mean confidence in [0,1].
func words(c *gosseract.Client) ([]ocr.TextWord, float64) {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil, 0
	}
	out := make([]ocr.TextWord, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		conf := b.Confidence / 100
		sum += conf
		out = append(out, ocr.TextWord{
			Text:       b.Word,
			Bounds:     ocr.Region{X: float64(b.Box.Min.X), Y: float64(b.Box.Min.Y), Width: float64(b.Box.Dx()), Height: float64(b.Box.Dy())},
			Confidence: conf,
		})
	}
	return out, sum / float64(len(out))
}

func union(words []ocr.TextWord) ocr.Region {
	if len(words) == 0 {
		return ocr.Region{}
	}
	minX, minY := math.MaxFloat64, math.MaxFloat64
	var maxX, maxY float64
	for _, w := range words {
		minX = math.Min(minX, w.Bounds.X)
		minY = math.Min(minY, w.Bounds.Y)
		maxX = math.Max(maxX, w.Bounds.X+w.Bounds.Width)
		maxY = math.Max(maxY, w.Bounds.Y+w.Bounds.Height)
	}
	return ocr.Region{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

func crop(data []byte, region *ocr.Region) ([]byte, error) {
	if region == nil || region.IsEmpty() {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode for region: %w", err)
	}
	rect := image.Rect(
		int(math.Round(region.X)),
		int(math.Round(region.Y)),
		int(math.Round(region.X+region.Width)),
		int(math.Round(region.Y+region.Height)),
	).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, errors.New("region outside image bounds")
	}
	sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("%T does not support cropping", img)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, sub.SubImage(rect)); err != nil {
		return nil, fmt.Errorf("encode cropped image: %w", err)
	}
	return buf.Bytes(), nil
}
