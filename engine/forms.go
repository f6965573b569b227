package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/wudi/pdfsamples/observability"
	"github.com/wudi/pdfsamples/scripting"
	"github.com/wudi/pdfsamples/surface"
)

// Forms is a JavaScript form environment. Scripts see the fields through
// getField, the page count through numPages and messages go to app.alert.
type Forms struct {
	sf     *engineSurface
	doc    *Document
	form   *scripting.Form
	js     *scripting.Goja
	log    observability.Logger
	closed bool
}

func (s *engineSurface) openForms(doc *Document, p FormsParams) (*Forms, error) {
	pages := 0
	if doc != nil {
		if doc.closed {
			return nil, s.gone()
		}
		pages = doc.PageCount()
	}
	form := scripting.NewForm(pages)
	for _, name := range slices.Sorted(maps.Keys(p.Fields)) {
		form.Set(name, p.Fields[name])
	}
	js := scripting.NewEngine()
	if err := js.RegisterDOM(form); err != nil {
		return nil, fmt.Errorf("forms: %w", err)
	}
	return &Forms{sf: s, doc: doc, form: form, js: js, log: s.log}, nil
}

func (f *Forms) Kind() surface.Kind { return KindForms }

func (f *Forms) Close() error {
	f.closed = true
	return nil
}

// Document returns the document the form belongs to, or nil.
func (f *Forms) Document() *Document { return f.doc }

func (f *Forms) SetField(name string, value any) error {
	if f.closed {
		return f.sf.gone()
	}
	f.form.Set(name, value)
	return nil
}

// Field returns a field's value.
func (f *Forms) Field(name string) (any, error) {
	if f.closed {
		return nil, f.sf.gone()
	}
	fld, err := f.form.Field(name)
	if err != nil {
		return nil, err
	}
	return fld.Value(), nil
}

// Fields returns every field formatted as a string.
func (f *Forms) Fields() (map[string]string, error) {
	if f.closed {
		return nil, f.sf.gone()
	}
	return f.form.Values(), nil
}

// Run executes script and returns its exported result.
func (f *Forms) Run(ctx context.Context, script string) (any, error) {
	if f.closed {
		return nil, f.sf.gone()
	}
	return f.js.Execute(ctx, script)
}

// Calculate runs a calculation script for target, creating the field when
// it does not exist yet.
func (f *Forms) Calculate(ctx context.Context, target, script string) error {
	if f.closed {
		return f.sf.gone()
	}
	if _, err := f.form.Field(target); err != nil {
		f.form.Set(target, "")
	}
	if err := f.js.Calculate(ctx, target, script); err != nil {
		return err
	}
	f.log.Debug("field calculated",
		observability.String("field", target),
		observability.String("value", f.form.Values()[target]),
	)
	return nil
}

// Alerts returns the messages scripts passed to app.alert.
func (f *Forms) Alerts() []string { return f.form.Alerts() }
