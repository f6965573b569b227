package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfsamples/ocr"
	"github.com/wudi/pdfsamples/surface"
)

// Recognizer runs OCR over extracted images.
type Recognizer struct {
	sf     *engineSurface
	engine OCREngine
	params OCRParams
	closed bool
}

func (r *Recognizer) Kind() surface.Kind { return KindOCR }

func (r *Recognizer) Close() error {
	r.closed = true
	return nil
}

// EngineName names the OCR backend.
func (r *Recognizer) EngineName() string { return r.engine.Name() }

func (r *Recognizer) options() []ocr.InputOption {
	var opts []ocr.InputOption
	if len(r.params.Languages) > 0 {
		opts = append(opts, ocr.WithLanguages(r.params.Languages...))
	}
	if r.params.DPI > 0 {
		opts = append(opts, ocr.WithDPI(r.params.DPI))
	}
	return opts
}

// input prepares img for recognition. Formats the OCR engine cannot read
// are decoded and re-encoded as PNG.
func (r *Recognizer) input(img *Image) (ocr.Input, error) {
	data, err := img.Bytes()
	if err != nil {
		return ocr.Input{}, err
	}
	id := fmt.Sprintf("page-%d-obj-%d", img.page.number, img.info.ObjNr)
	in, err := ocr.NewInput(id, img.page.number-1, data, r.options()...)
	if err == nil {
		return in, nil
	}
	if !errors.Is(err, ocr.ErrUnsupportedImage) {
		return ocr.Input{}, err
	}
	m, derr := img.Decode()
	if derr != nil {
		return ocr.Input{}, errors.Join(err, derr)
	}
	return ocr.InputFromImage(id, img.page.number-1, m, r.options()...)
}

// Recognize extracts the text of one image.
func (r *Recognizer) Recognize(ctx context.Context, img *Image) (ocr.Result, error) {
	if r.closed {
		return ocr.Result{}, r.sf.gone()
	}
	in, err := r.input(img)
	if err != nil {
		return ocr.Result{}, err
	}
	return r.engine.Recognize(ctx, in)
}

// RecognizeAll recognizes images in order and stops at the first failure.
func (r *Recognizer) RecognizeAll(ctx context.Context, imgs ...*Image) ([]ocr.Result, error) {
	if r.closed {
		return nil, r.sf.gone()
	}
	inputs := make([]ocr.Input, 0, len(imgs))
	for _, img := range imgs {
		in, err := r.input(img)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return ocr.RecognizeAll(ctx, r.engine, inputs)
}
