// Package session scopes the capability surface and every resource derived
// from it. A Session owns the initialized surface and a forest of Resources;
// releasing a Resource releases its children first, newest first, and
// closing the Session force-releases whatever is left before shutting the
// surface down.
//
// Only one Session may be active per process. Sessions are passed
// explicitly; nothing in this package is reachable through ambient state
// except the single-session guard.
//
//	sess, err := session.Open(ctx, engine.NewDriver(), cfg)
//	if err != nil {
//		return err
//	}
//	defer sess.Close()
//
//	doc, err := sess.Acquire(ctx, session.OpenEntity(engine.KindDocument, engine.OpenFile(in)))
//	if err != nil {
//		return err
//	}
//	defer doc.Release()
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/wudi/pdfsamples/observability"
	"github.com/wudi/pdfsamples/surface"
)

// active holds the session that owns the process-wide surface, from the
// start of Open until the end of Close.
var active atomic.Pointer[Session]

// Active returns the currently active session, or nil.
func Active() *Session {
	s := active.Load()
	if s == nil || s.State() != StateActive {
		return nil
	}
	return s
}

// Session is one initialization of the capability surface.
type Session struct {
	id     string
	driver string
	cfg    surface.Config
	sf     surface.Surface
	log    observability.Logger
	tracer observability.Tracer

	mu    sync.Mutex
	state State
	seq   uint64
	roots []*Resource
}

// Option configures a Session at Open.
type Option func(*Session)

// WithLogger sets the logger used for lifecycle events and teardown
// failures.
func WithLogger(l observability.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTracer sets the tracer wrapping open, acquire and close.
func WithTracer(t observability.Tracer) Option {
	return func(s *Session) {
		if t != nil {
			s.tracer = t
		}
	}
}

// Open initializes the surface provided by d with cfg. It fails with
// ErrSessionAlreadyActive while another session is open, and with an
// *InitializationError if the driver cannot start.
func Open(ctx context.Context, d surface.Driver, cfg surface.Config, opts ...Option) (*Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Session{
		id:     uuid.NewString(),
		cfg:    cfg.Defaults().Clone(),
		log:    observability.NopLogger{},
		tracer: observability.NopTracer(),
		state:  StateUninitialized,
	}
	for _, opt := range opts {
		opt(s)
	}
	if d == nil {
		return nil, &InitializationError{Driver: "<nil>", Err: errors.New("no driver")}
	}
	s.driver = d.Name()
	s.log = s.log.With(observability.String("session", s.id))

	if !active.CompareAndSwap(nil, s) {
		return nil, ErrSessionAlreadyActive
	}

	ctx, span := s.tracer.StartSpan(ctx, observability.SpanSessionOpen)
	defer span.Finish()
	span.SetTag("driver", s.driver)

	sf, err := s.initialize(ctx, d)
	if err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		active.CompareAndSwap(s, nil)
		ierr := &InitializationError{Driver: s.driver, Err: err}
		span.SetError(ierr)
		s.log.Debug("session initialization failed", observability.String("driver", s.driver), observability.Error("error", err))
		return nil, ierr
	}

	s.mu.Lock()
	s.sf = sf
	s.state = StateActive
	s.mu.Unlock()

	s.log.Debug("session opened",
		observability.String("driver", s.driver),
		observability.String("temp_storage", string(s.cfg.TempStorage)),
		observability.Int64("memory_limit", s.cfg.MemoryLimit),
		observability.Int("extensions", len(s.cfg.Extensions)),
	)
	return s, nil
}

func (s *Session) initialize(ctx context.Context, d surface.Driver) (sf surface.Surface, err error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	defer func() {
		if p := recover(); p != nil {
			sf, err = nil, fmt.Errorf("panic during initialize: %v", p)
		}
	}()
	sf, err = d.Initialize(ctx, s.cfg.Clone())
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("driver returned no surface")
	}
	return sf, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Driver returns the name of the driver that backs the session.
func (s *Session) Driver() string { return s.driver }

// Config returns a copy of the configuration snapshot taken at Open.
func (s *Session) Config() surface.Config { return s.cfg.Clone() }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Acquire runs f against the surface and registers the entity it returns as
// a top-level resource.
func (s *Session) Acquire(ctx context.Context, f Factory) (*Resource, error) {
	return s.acquire(ctx, nil, f)
}

// Resources returns a snapshot of the live resource forest in acquisition
// order.
func (s *Session) Resources() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.roots)
}

// Live returns the number of live resources at any depth.
func (s *Session) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return count(s.roots)
}

// Close releases every remaining resource, deepest first and newest first,
// then shuts the surface down. If resources were still registered it
// returns a *NotEmptyWarning after the teardown has finished. Teardown
// failures are logged, not returned. Closing a closed session does nothing.
func (s *Session) Close() error { return s.close(false) }

// close tears the session down. A quiet close logs the not-empty warning at
// debug level, for callers that drop it.
func (s *Session) close(quiet bool) error {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosing
	_, span := s.tracer.StartSpan(context.Background(), observability.SpanSessionClose)
	defer span.Finish()

	remaining := snapshot(s.roots)
	forced := count(s.roots)
	roots := s.roots
	s.roots = nil
	for i := len(roots) - 1; i >= 0; i-- {
		roots[i].releaseLocked(false)
	}
	if s.sf != nil {
		if err := safeShutdown(s.sf); err != nil {
			s.log.Error("surface shutdown failed", observability.String("driver", s.driver), observability.Error("error", err))
		}
	}
	s.state = StateClosed
	s.mu.Unlock()
	active.CompareAndSwap(s, nil)

	span.SetTag("force_released", forced)
	if forced > 0 {
		w := &NotEmptyWarning{Remaining: remaining}
		logf := s.log.Warn
		if quiet {
			logf = s.log.Debug
		}
		logf("session closed with live resources", observability.Int("remaining", forced), observability.Error("warning", w))
		return w
	}
	s.log.Debug("session closed")
	return nil
}

func (s *Session) acquire(ctx context.Context, owner *Resource, f Factory) (*Resource, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if f == nil {
		return nil, &AcquisitionError{Err: errors.New("nil factory")}
	}
	ctx, span := s.tracer.StartSpan(ctx, observability.SpanSessionAcquire)
	defer span.Finish()

	s.mu.Lock()
	if err := s.acquirableLocked(owner); err != nil {
		s.mu.Unlock()
		span.SetError(err)
		return nil, err
	}
	var parent surface.Entity
	if owner != nil {
		parent = owner.entity
	}
	sf := s.sf
	s.mu.Unlock()

	// The factory runs unlocked so it may use other live resources.
	entity, err := f(ctx, sf, parent)
	if err != nil {
		if entity != nil {
			s.discard(entity)
		}
		var aerr *AcquisitionError
		if !errors.As(err, &aerr) {
			err = &AcquisitionError{Err: err}
		}
		span.SetError(err)
		s.log.Debug("acquire failed", observability.Error("error", err))
		return nil, err
	}
	if entity == nil {
		err := &AcquisitionError{Err: errNilEntity}
		span.SetError(err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquirableLocked(owner); err != nil {
		s.closeEntityLocked(entity, 0)
		span.SetError(err)
		return nil, err
	}
	s.seq++
	r := &Resource{
		id:     s.seq,
		kind:   entity.Kind(),
		entity: entity,
		sess:   s,
		owner:  owner,
	}
	var ownerID uint64
	if owner == nil {
		s.roots = append(s.roots, r)
	} else {
		owner.children = append(owner.children, r)
		ownerID = owner.id
	}
	span.SetTag("resource", r.id)
	span.SetTag("kind", string(r.kind))
	s.log.Debug("resource acquired",
		observability.Uint64("resource", r.id),
		observability.String("kind", string(r.kind)),
		observability.Uint64("owner", ownerID),
	)
	return r, nil
}

func (s *Session) acquirableLocked(owner *Resource) error {
	switch s.state {
	case StateActive:
	case StateClosing, StateClosed:
		return ErrSessionClosed
	default:
		return ErrSessionInactive
	}
	if owner != nil && owner.released {
		return ErrUseAfterRelease
	}
	return nil
}

// discard closes an entity that was never registered.
func (s *Session) discard(e surface.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeEntityLocked(e, 0)
}

func (s *Session) closeEntityLocked(e surface.Entity, id uint64) {
	if err := safeClose(e); err != nil {
		s.log.Error("resource close failed",
			observability.Uint64("resource", id),
			observability.String("kind", string(e.Kind())),
			observability.Error("error", err),
		)
	}
}

func (s *Session) detachLocked(r *Resource) {
	if r.owner == nil {
		s.roots = slices.DeleteFunc(s.roots, func(x *Resource) bool { return x == r })
		return
	}
	r.owner.children = slices.DeleteFunc(r.owner.children, func(x *Resource) bool { return x == r })
}
