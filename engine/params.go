package engine

import (
	"errors"
	"path/filepath"

	"github.com/wudi/pdfsamples/session"
)

var (
	// ErrNotPDF is returned when a document source is not a PDF.
	ErrNotPDF = errors.New("engine: not a PDF")
	// ErrClosed is returned by operations on a closed entity. It matches
	// session.ErrUseAfterRelease.
	ErrClosed error = &lifecycleError{msg: "engine: entity closed", is: session.ErrUseAfterRelease}
	// ErrShutDown is returned by operations on an entity whose surface has
	// shut down. It matches session.ErrSessionInactive.
	ErrShutDown error = &lifecycleError{msg: "engine: surface shut down", is: session.ErrSessionInactive}
	// ErrPageRange is returned for page numbers outside the document.
	ErrPageRange = errors.New("engine: page out of range")
	// ErrNoImage is returned when a page has no image with the requested
	// object number.
	ErrNoImage = errors.New("engine: no such image")
)

// lifecycleError ties an engine error to the session error it stands for.
type lifecycleError struct {
	msg string
	is  error
}

func (e *lifecycleError) Error() string { return e.msg }

func (e *lifecycleError) Is(target error) bool { return target == e.is }

// DocumentParams selects the source of a document. Exactly one of Path,
// Data or Layout is used, in that order of precedence.
type DocumentParams struct {
	// Name labels the document in logs and temp files. It defaults to the
	// base name of Path.
	Name string
	Path string
	Data []byte
	// Layout is a pdfcpu page description, see package layout.
	Layout []byte
	// Password opens encrypted documents; it is used as both user and
	// owner password.
	Password string
}

// OpenFile reads the document at path.
func OpenFile(path string) DocumentParams {
	return DocumentParams{Name: filepath.Base(path), Path: path}
}

// OpenBytes parses data.
func OpenBytes(name string, data []byte) DocumentParams {
	return DocumentParams{Name: name, Data: data}
}

// FromLayout creates a document from a page description.
func FromLayout(name string, description []byte) DocumentParams {
	return DocumentParams{Name: name, Layout: description}
}

var blankLayout = []byte(`{"paper":"A4P","origin":"LowerLeft","pages":{"1":{"content":{}}}}`)

// Blank creates a one-page A4 document.
func Blank(name string) DocumentParams {
	return FromLayout(name, blankLayout)
}

// PageParams selects a page by its 1-based number.
type PageParams struct {
	Number int
}

// ImageParams selects an image on a page by object number. Zero selects
// the first image.
type ImageParams struct {
	ObjNr int
}

type OptimizerParams struct {
	// Validate runs a validation pass before optimizing.
	Validate bool
}

type WordFinderParams struct {
	// Normalize applies NFKC to extracted text, folding ligatures and
	// full-width forms.
	Normalize bool
}

// FormsParams seeds the form with field values.
type FormsParams struct {
	Fields map[string]string
}

type OCRParams struct {
	Languages []string
	DPI       int
}
