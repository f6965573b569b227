// Package engine is the concrete capability surface. Documents are parsed,
// edited and written by pdfcpu; text and words come from ledongthuc/pdf.
// Every payload an entity holds lives in the surface's temp store so the
// configured memory limit covers it.
//
// Kinds:
//
//	document    no parent    DocumentParams
//	page        document     PageParams
//	image       page         ImageParams
//	optimizer   no parent    OptimizerParams
//	wordfinder  document     WordFinderParams
//	forms       optional     FormsParams       needs the forms extension
//	ocr         no parent    OCRParams         needs the ocr extension
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/wudi/pdfsamples/fonts"
	"github.com/wudi/pdfsamples/observability"
	"github.com/wudi/pdfsamples/ocr"
	"github.com/wudi/pdfsamples/ocr/tesseract"
	"github.com/wudi/pdfsamples/scripting"
	"github.com/wudi/pdfsamples/surface"
	"github.com/wudi/pdfsamples/tempstore"
)

const (
	KindDocument   surface.Kind = "document"
	KindPage       surface.Kind = "page"
	KindImage      surface.Kind = "image"
	KindOptimizer  surface.Kind = "optimizer"
	KindWordFinder surface.Kind = "wordfinder"
	KindForms      surface.Kind = "forms"
	KindOCR        surface.Kind = "ocr"
)

// OCREngine is what the ocr extension needs from a recognizer.
type OCREngine interface {
	ocr.Engine
	Available(langs ...string) error
}

// Driver starts the pdfcpu surface.
type Driver struct {
	log observability.Logger
	ocr OCREngine
}

type DriverOption func(*Driver)

// WithLogger sets the logger handed to the surface.
func WithLogger(l observability.Logger) DriverOption {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

// WithOCREngine replaces the Tesseract engine used by the ocr extension.
func WithOCREngine(e OCREngine) DriverOption {
	return func(d *Driver) { d.ocr = e }
}

func NewDriver(opts ...DriverOption) *Driver {
	d := &Driver{log: observability.NopLogger{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Name() string { return "pdfcpu" }

var disableConfigDir sync.Once

// Initialize validates cfg, creates the temp store and probes the requested
// extensions.
func (d *Driver) Initialize(ctx context.Context, cfg surface.Config) (surface.Surface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg = cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	disableConfigDir.Do(api.DisableConfigDir)

	store, err := tempstore.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("temp storage: %w", err)
	}
	s := &engineSurface{
		cfg:     cfg.Clone(),
		store:   store,
		log:     d.log,
		metrics: fonts.Default(),
	}
	if cfg.HasExtension(surface.ExtensionForms) {
		if _, err := scripting.NewEngine().Execute(ctx, "1"); err != nil {
			store.Close()
			return nil, fmt.Errorf("forms extension: %w", err)
		}
	}
	if cfg.HasExtension(surface.ExtensionOCR) {
		eng := d.ocr
		if eng == nil {
			eng = tesseract.New()
		}
		if err := eng.Available(); err != nil {
			store.Close()
			return nil, fmt.Errorf("ocr extension: %w", err)
		}
		s.ocr = eng
	}
	s.log.Debug("engine initialized",
		observability.String("temp_storage", string(cfg.TempStorage)),
		observability.Int64("memory_limit", cfg.MemoryLimit),
		observability.Bool("strict", cfg.Strict),
	)
	return s, nil
}

type engineSurface struct {
	cfg     surface.Config
	store   tempstore.Store
	log     observability.Logger
	ocr     OCREngine
	metrics *fonts.Metrics
	down    atomic.Bool
}

// gone is the error for using a closed entity of s.
func (s *engineSurface) gone() error {
	if s.down.Load() {
		return ErrShutDown
	}
	return ErrClosed
}

func (s *engineSurface) Open(ctx context.Context, req surface.Request) (surface.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch req.Kind {
	case KindDocument:
		p, err := paramsOf[DocumentParams](req)
		if err != nil {
			return nil, err
		}
		return s.openDocument(p)
	case KindPage:
		doc, err := parentOf[*Document](req)
		if err != nil {
			return nil, err
		}
		p, err := paramsOf[PageParams](req)
		if err != nil {
			return nil, err
		}
		return doc.openPage(p)
	case KindImage:
		page, err := parentOf[*Page](req)
		if err != nil {
			return nil, err
		}
		p, err := paramsOf[ImageParams](req)
		if err != nil {
			return nil, err
		}
		return page.openImage(p)
	case KindOptimizer:
		p, err := paramsOf[OptimizerParams](req)
		if err != nil {
			return nil, err
		}
		return &Optimizer{sf: s, validate: p.Validate}, nil
	case KindWordFinder:
		doc, err := parentOf[*Document](req)
		if err != nil {
			return nil, err
		}
		p, err := paramsOf[WordFinderParams](req)
		if err != nil {
			return nil, err
		}
		return doc.openWordFinder(p)
	case KindForms:
		if !s.cfg.HasExtension(surface.ExtensionForms) {
			return nil, fmt.Errorf("%w: %s", surface.ErrExtensionDisabled, surface.ExtensionForms)
		}
		p, err := paramsOf[FormsParams](req)
		if err != nil {
			return nil, err
		}
		var doc *Document
		if req.Parent != nil {
			if doc, err = parentOf[*Document](req); err != nil {
				return nil, err
			}
		}
		return s.openForms(doc, p)
	case KindOCR:
		if s.ocr == nil {
			return nil, fmt.Errorf("%w: %s", surface.ErrExtensionDisabled, surface.ExtensionOCR)
		}
		p, err := paramsOf[OCRParams](req)
		if err != nil {
			return nil, err
		}
		return &Recognizer{sf: s, engine: s.ocr, params: p}, nil
	default:
		return nil, fmt.Errorf("%w: %q", surface.ErrUnknownKind, req.Kind)
	}
}

// Shutdown releases the temp store.
func (s *engineSurface) Shutdown() error {
	s.down.Store(true)
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close temp storage: %w", err)
	}
	return nil
}

// newConf returns a fresh pdfcpu configuration; pdfcpu commands mutate the
// one they are given.
func (s *engineSurface) newConf(userPW, ownerPW string) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if s.cfg.Strict {
		conf.ValidationMode = model.ValidationStrict
	}
	conf.UserPW = userPW
	conf.OwnerPW = ownerPW
	return conf
}

func paramsOf[T any](req surface.Request) (T, error) {
	var zero T
	switch p := req.Params.(type) {
	case nil:
		return zero, nil
	case T:
		return p, nil
	case *T:
		if p == nil {
			return zero, nil
		}
		return *p, nil
	}
	return zero, fmt.Errorf("engine: %s takes %T params, got %T", req.Kind, zero, req.Params)
}

func parentOf[T surface.Entity](req surface.Request) (T, error) {
	var zero T
	if req.Parent == nil {
		return zero, fmt.Errorf("%w: %s needs a %T parent", surface.ErrParentRequired, req.Kind, zero)
	}
	p, ok := req.Parent.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s needs a %T parent, got %T", surface.ErrParentRequired, req.Kind, zero, req.Parent)
	}
	return p, nil
}
