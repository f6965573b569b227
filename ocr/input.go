package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/h2non/filetype"
)

// ErrUnsupportedImage is returned for payloads that are not PNG, JPEG or
// TIFF.
var ErrUnsupportedImage = errors.New("ocr: unsupported image format")

// NewInput wraps an encoded image, detecting its format from the payload.
func NewInput(id string, page int, data []byte, opts ...InputOption) (Input, error) {
	kind, err := filetype.Match(data)
	if err != nil {
		return Input{}, fmt.Errorf("detect image format: %w", err)
	}
	format := ImageFormat(kind.MIME.Value)
	switch format {
	case ImageFormatPNG, ImageFormatJPEG, ImageFormatTIFF:
	default:
		if kind == filetype.Unknown {
			return Input{}, fmt.Errorf("%w: unknown", ErrUnsupportedImage)
		}
		return Input{}, fmt.Errorf("%w: %s", ErrUnsupportedImage, kind.MIME.Value)
	}
	in := Input{ID: id, Image: data, Format: format, PageIndex: page}
	for _, opt := range opts {
		opt(&in)
	}
	return in, nil
}

// InputFromImage encodes img as PNG.
func InputFromImage(id string, page int, img image.Image, opts ...InputOption) (Input, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Input{}, fmt.Errorf("encode %s: %w", id, err)
	}
	in := Input{ID: id, Image: buf.Bytes(), Format: ImageFormatPNG, PageIndex: page}
	for _, opt := range opts {
		opt(&in)
	}
	return in, nil
}

// RecognizeAll runs inputs through engine, in one batch when the engine
// supports it and sequentially otherwise.
func RecognizeAll(ctx context.Context, engine Engine, inputs []Input) ([]Result, error) {
	if b, ok := engine.(BatchEngine); ok {
		return b.RecognizeBatch(ctx, inputs)
	}
	results := make([]Result, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := engine.Recognize(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}
