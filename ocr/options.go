package ocr

import (
	"maps"
	"strconv"
)

// InputOption adjusts an Input built by NewInput or InputFromImage.
type InputOption func(*Input)

func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithRegion limits recognition to region. An empty region clears any
// previous one.
func WithRegion(region Region) InputOption {
	return func(in *Input) {
		if region.IsEmpty() {
			in.Region = nil
			return
		}
		in.Region = &region
	}
}

func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithMetadata copies metadata into the input.
func WithMetadata(metadata map[string]string) InputOption {
	return func(in *Input) {
		if len(metadata) == 0 {
			in.Metadata = nil
			return
		}
		in.Metadata = maps.Clone(metadata)
	}
}

// WithTesseractPSM sets Tesseract's page segmentation mode.
func WithTesseractPSM(mode int) InputOption {
	return withVariable("tessedit_pageseg_mode", strconv.Itoa(mode))
}

// WithTesseractWhitelist restricts recognition to chars.
func WithTesseractWhitelist(chars string) InputOption {
	return withVariable("tessedit_char_whitelist", chars)
}

func withVariable(key, value string) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string)
		}
		in.Metadata[key] = value
	}
}
