// Package scripting runs AcroForm-style JavaScript against the fields of a
// form. Scripts see the Acrobat globals they usually rely on: getField,
// getPage, numPages, app.alert and, during calculation, event.
package scripting

import (
	"context"
	"errors"
)

// ErrNoField is returned when a script or caller names an unknown field.
var ErrNoField = errors.New("scripting: no such field")

// Engine executes scripts.
type Engine interface {
	// Execute runs script and returns its completion value. Cancelling ctx
	// interrupts a running script.
	Execute(ctx context.Context, script string) (interface{}, error)

	// RegisterDOM exposes dom to subsequent scripts.
	RegisterDOM(dom DOM) error
}

// DOM is the document surface visible to scripts.
type DOM interface {
	Field(name string) (*Field, error)
	PageCount() int
	Alert(message string)
}
