package ocr

import (
	"context"
	"strings"
)

// ImageFormat is the MIME type of an input image.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatJPEG ImageFormat = "image/jpeg"
	ImageFormatTIFF ImageFormat = "image/tiff"
)

// Region is a rectangle in pixels with the origin at the top-left corner.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Input is one image submitted for recognition.
type Input struct {
	// ID is echoed back in the Result.
	ID string
	// Image holds the encoded payload.
	Image  []byte
	Format ImageFormat
	// PageIndex is the zero-based page the image came from.
	PageIndex int
	// DPI is the effective resolution; zero means unknown.
	DPI int
	// Languages are trained-data names such as "eng" or "deu".
	Languages []string
	// Region restricts recognition to part of the image.
	Region *Region
	// Metadata carries provider variables, e.g. Tesseract's
	// tessedit_pageseg_mode.
	Metadata map[string]string
}

type TextWord struct {
	Text       string
	Bounds     Region
	Confidence float64
}

type TextLine struct {
	Text       string
	Bounds     Region
	Words      []TextWord
	Confidence float64
}

type TextBlock struct {
	Text       string
	Bounds     Region
	Lines      []TextLine
	Confidence float64
}

// Result is the recognition output for one Input.
type Result struct {
	InputID   string
	PlainText string
	Blocks    []TextBlock
	// Language is the dominant language when the provider reports one.
	Language string
}

// Words flattens the recognized words of every block in reading order.
func (r Result) Words() []TextWord {
	var out []TextWord
	for _, b := range r.Blocks {
		for _, l := range b.Lines {
			out = append(out, l.Words...)
		}
	}
	return out
}

// Contains reports whether the plain text contains s, ignoring case.
func (r Result) Contains(s string) bool {
	return strings.Contains(strings.ToLower(r.PlainText), strings.ToLower(s))
}

// Engine recognizes one image at a time.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// BatchEngine recognizes several images in one call.
type BatchEngine interface {
	Engine
	RecognizeBatch(ctx context.Context, inputs []Input) ([]Result, error)
}
