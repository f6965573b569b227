package session

import (
	"context"
	"fmt"

	"github.com/wudi/pdfsamples/observability"
	"github.com/wudi/pdfsamples/surface"
)

// Factory produces an entity from a live surface. parent is the entity of
// the owning resource, or nil for top-level acquisitions. A factory that
// fails must not leave anything open; an entity returned alongside an error
// is closed by the session.
type Factory func(ctx context.Context, sf surface.Surface, parent surface.Entity) (surface.Entity, error)

// OpenEntity returns a Factory that opens kind with params through
// Surface.Open.
func OpenEntity(kind surface.Kind, params any) Factory {
	return func(ctx context.Context, sf surface.Surface, parent surface.Entity) (surface.Entity, error) {
		e, err := sf.Open(ctx, surface.Request{Kind: kind, Parent: parent, Params: params})
		if err != nil {
			return e, &AcquisitionError{Kind: kind, Err: err}
		}
		return e, nil
	}
}

// Resource is a registered entity. It is owned by exactly one parent: the
// session for top-level resources, another Resource otherwise.
type Resource struct {
	id     uint64
	kind   surface.Kind
	entity surface.Entity
	sess   *Session

	// owner is only used to detach from the parent's child list.
	owner    *Resource
	children []*Resource
	released bool
}

// ID returns the resource's acquisition sequence number within its session.
func (r *Resource) ID() uint64 { return r.id }

// Kind returns the kind of the underlying entity.
func (r *Resource) Kind() surface.Kind { return r.kind }

// Session returns the owning session.
func (r *Resource) Session() *Session { return r.sess }

// Owner returns the parent resource, or nil for top-level resources. The
// reference is for lookup only.
func (r *Resource) Owner() *Resource { return r.owner }

// Released reports whether the resource has been released.
func (r *Resource) Released() bool {
	r.sess.mu.Lock()
	defer r.sess.mu.Unlock()
	return r.released
}

// Info returns a snapshot of the resource and its live children.
func (r *Resource) Info() Info {
	r.sess.mu.Lock()
	defer r.sess.mu.Unlock()
	return r.infoLocked()
}

// Entity returns the underlying entity. It fails with ErrSessionInactive if
// the session is not Active and with ErrUseAfterRelease if the resource was
// released.
func (r *Resource) Entity() (surface.Entity, error) {
	s := r.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil, fmt.Errorf("%s#%d: %w", r.kind, r.id, ErrSessionInactive)
	}
	if r.released {
		return nil, fmt.Errorf("%s#%d: %w", r.kind, r.id, ErrUseAfterRelease)
	}
	return r.entity, nil
}

// Use returns the entity of r as T.
func Use[T any](r *Resource) (T, error) {
	var zero T
	e, err := r.Entity()
	if err != nil {
		return zero, err
	}
	t, ok := e.(T)
	if !ok {
		return zero, fmt.Errorf("%s#%d is %T: %w", r.kind, r.id, e, ErrKindMismatch)
	}
	return t, nil
}

// Acquire runs f with r's entity as parent and registers the result as a
// child of r.
func (r *Resource) Acquire(ctx context.Context, f Factory) (*Resource, error) {
	return r.sess.acquire(ctx, r, f)
}

// Release closes the resource after releasing its live children, newest
// first. Releasing twice does nothing. Close failures are logged.
func (r *Resource) Release() {
	if r == nil {
		return
	}
	s := r.sess
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.released {
		return
	}
	r.releaseLocked(true)
}

func (r *Resource) releaseLocked(detach bool) {
	if r.released {
		return
	}
	for i := len(r.children) - 1; i >= 0; i-- {
		r.children[i].releaseLocked(false)
	}
	r.children = nil
	r.released = true
	r.sess.closeEntityLocked(r.entity, r.id)
	r.sess.log.Debug("resource released",
		observability.Uint64("resource", r.id),
		observability.String("kind", string(r.kind)),
	)
	if detach {
		r.sess.detachLocked(r)
	}
	r.entity = nil
}

func (r *Resource) infoLocked() Info {
	return Info{ID: r.id, Kind: r.kind, Children: snapshot(r.children)}
}

// Info describes a live resource subtree.
type Info struct {
	ID       uint64
	Kind     surface.Kind
	Children []Info
}

func (i Info) String() string { return fmt.Sprintf("%s#%d", i.Kind, i.ID) }

func snapshot(rs []*Resource) []Info {
	if len(rs) == 0 {
		return nil
	}
	out := make([]Info, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.infoLocked())
	}
	return out
}

func count(rs []*Resource) int {
	n := 0
	for _, r := range rs {
		n += 1 + count(r.children)
	}
	return n
}

func safeClose(e surface.Entity) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during close: %v", p)
		}
	}()
	return e.Close()
}

func safeShutdown(sf surface.Surface) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during shutdown: %v", p)
		}
	}()
	return sf.Shutdown()
}
