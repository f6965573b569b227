// Package surfacetest provides an in-memory surface.Driver that records the
// order in which entities are opened and closed. Failures can be injected
// at initialization, open, close and shutdown.
package surfacetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/wudi/pdfsamples/surface"
)

// Params names the entity being opened. Requests with other params get a
// generated name of the form "<kind>#<n>".
type Params struct {
	Name string
}

// Driver is a fake surface.Driver.
type Driver struct {
	mu          sync.Mutex
	events      []string
	entities    []*Entity
	cfg         surface.Config
	initErr     error
	shutdownErr error
	openErr     map[string]error
	partial     map[string]error
	closeErr    map[string]error
	seq         int
}

// NewDriver returns a driver with no injected failures.
func NewDriver() *Driver {
	return &Driver{
		openErr:  make(map[string]error),
		partial:  make(map[string]error),
		closeErr: make(map[string]error),
	}
}

// FailInit makes Initialize return err.
func (d *Driver) FailInit(err error) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initErr = err
	return d
}

// FailOpen makes opening the entity called name return err.
func (d *Driver) FailOpen(name string, err error) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr[name] = err
	return d
}

// FailOpenPartial makes opening name return both a live entity and err, the
// way a careless native binding might.
func (d *Driver) FailOpenPartial(name string, err error) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.partial[name] = err
	return d
}

// FailClose makes closing the entity called name return err.
func (d *Driver) FailClose(name string, err error) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeErr[name] = err
	return d
}

// FailShutdown makes Shutdown return err.
func (d *Driver) FailShutdown(err error) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shutdownErr = err
	return d
}

// Events returns the recorded lifecycle events, oldest first. Events are
// "init", "open:<name>", "close:<name>" and "shutdown".
func (d *Driver) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

// Closed returns the names of closed entities in close order.
func (d *Driver) Closed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, ev := range d.events {
		if len(ev) > 6 && ev[:6] == "close:" {
			out = append(out, ev[6:])
		}
	}
	return out
}

// Entities returns every entity opened so far.
func (d *Driver) Entities() []*Entity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Entity(nil), d.entities...)
}

// Config returns the configuration passed to the last Initialize call.
func (d *Driver) Config() surface.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

func (d *Driver) Name() string { return "fake" }

func (d *Driver) Initialize(ctx context.Context, cfg surface.Config) (surface.Surface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initErr != nil {
		return nil, d.initErr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d.cfg = cfg
	d.events = append(d.events, "init")
	return &fakeSurface{d: d}, nil
}

func (d *Driver) record(ev string) {
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.mu.Unlock()
}

type fakeSurface struct {
	d *Driver
}

func (s *fakeSurface) Open(ctx context.Context, req surface.Request) (surface.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Kind == "" {
		return nil, surface.ErrUnknownKind
	}
	d := s.d
	d.mu.Lock()
	d.seq++
	name := fmt.Sprintf("%s#%d", req.Kind, d.seq)
	switch p := req.Params.(type) {
	case Params:
		if p.Name != "" {
			name = p.Name
		}
	case string:
		if p != "" {
			name = p
		}
	}
	if err, ok := d.openErr[name]; ok {
		d.mu.Unlock()
		return nil, err
	}
	parent, _ := req.Parent.(*Entity)
	e := &Entity{kind: req.Kind, name: name, parent: parent, d: d}
	d.entities = append(d.entities, e)
	d.events = append(d.events, "open:"+name)
	partialErr := d.partial[name]
	d.mu.Unlock()
	if partialErr != nil {
		return e, partialErr
	}
	return e, nil
}

func (s *fakeSurface) Shutdown() error {
	s.d.record("shutdown")
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.d.shutdownErr
}

// Entity is a fake native handle.
type Entity struct {
	kind   surface.Kind
	name   string
	parent *Entity
	d      *Driver
	closes int
}

func (e *Entity) Kind() surface.Kind { return e.kind }

// Name returns the entity's name.
func (e *Entity) Name() string { return e.name }

// Parent returns the entity this one was opened from, if any.
func (e *Entity) Parent() *Entity { return e.parent }

// Closes reports how many times Close was called.
func (e *Entity) Closes() int {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return e.closes
}

func (e *Entity) Close() error {
	e.d.mu.Lock()
	e.closes++
	e.d.events = append(e.d.events, "close:"+e.name)
	err := e.d.closeErr[e.name]
	e.d.mu.Unlock()
	return err
}
