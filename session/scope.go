package session

import (
	"context"
	"errors"

	"github.com/wudi/pdfsamples/surface"
)

// Run opens a session, calls fn and closes the session on every exit path,
// including panics. A not-empty warning from Close is dropped and only
// logged at debug level; any other close error is joined with fn's.
func Run(ctx context.Context, d surface.Driver, cfg surface.Config, fn func(*Session) error, opts ...Option) (err error) {
	s, err := Open(ctx, d, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(true); cerr != nil && !IsWarning(cerr) {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(s)
}

// Scoped acquires a top-level resource, calls fn with it and releases it
// when fn returns.
func (s *Session) Scoped(ctx context.Context, f Factory, fn func(*Resource) error) error {
	r, err := s.Acquire(ctx, f)
	if err != nil {
		return err
	}
	defer r.Release()
	return fn(r)
}

// Scoped acquires a child of r, calls fn with it and releases it when fn
// returns.
func (r *Resource) Scoped(ctx context.Context, f Factory, fn func(*Resource) error) error {
	child, err := r.Acquire(ctx, f)
	if err != nil {
		return err
	}
	defer child.Release()
	return fn(child)
}
