package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wudi/pdfsamples/surface"
)

var (
	// ErrSessionAlreadyActive is returned by Open while another session is
	// still open in the process.
	ErrSessionAlreadyActive = errors.New("session: another session is already active")
	// ErrSessionClosed is returned by Acquire once Close has been called.
	ErrSessionClosed = errors.New("session: closed")
	// ErrSessionInactive is returned when a resource is used while its
	// session is not Active.
	ErrSessionInactive = errors.New("session: not active")
	// ErrUseAfterRelease is returned when a released resource is used.
	ErrUseAfterRelease = errors.New("session: resource already released")
	// ErrKindMismatch is returned by Use when the entity has another type.
	ErrKindMismatch = errors.New("session: entity type mismatch")
	// ErrSessionNotEmpty marks the non-fatal diagnostic returned by Close
	// when resources were still registered.
	ErrSessionNotEmpty = errors.New("session: resources still registered at close")

	errNilEntity = errors.New("factory returned no entity")
)

// InitializationError reports that the capability surface failed to start.
type InitializationError struct {
	Driver string
	Err    error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("session: initialize %s: %v", e.Driver, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// AcquisitionError reports that a factory failed to produce a resource.
// Nothing was registered.
type AcquisitionError struct {
	Kind surface.Kind
	Err  error
}

func (e *AcquisitionError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("session: acquire: %v", e.Err)
	}
	return fmt.Sprintf("session: acquire %s: %v", e.Kind, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// NotEmptyWarning is returned by Close when resources had to be force
// released. The teardown has completed by the time it is returned.
// Remaining holds the top-level resources with their live subtrees.
type NotEmptyWarning struct {
	Remaining []Info
}

// Released returns the number of resources at any depth that were force
// released.
func (w *NotEmptyWarning) Released() int {
	n := 0
	var walk func([]Info)
	walk = func(infos []Info) {
		for _, info := range infos {
			n++
			walk(info.Children)
		}
	}
	walk(w.Remaining)
	return n
}

func (w *NotEmptyWarning) Error() string {
	kinds := make([]string, 0, len(w.Remaining))
	for _, info := range w.Remaining {
		kinds = append(kinds, info.String())
	}
	return fmt.Sprintf("%v: %d force released (%s)", ErrSessionNotEmpty, w.Released(), strings.Join(kinds, ", "))
}

func (w *NotEmptyWarning) Is(target error) bool { return target == ErrSessionNotEmpty }

// IsWarning reports whether err only carries non-fatal diagnostics.
func IsWarning(err error) bool {
	if err == nil {
		return false
	}
	var w *NotEmptyWarning
	if !errors.As(err, &w) {
		return false
	}
	// errors.Join of a warning and a real failure is not a warning.
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if !IsWarning(e) {
				return false
			}
		}
	}
	return true
}
