// Package surface describes the capability surface a session drives: a
// driver that initializes the underlying PDF library, and the entities
// (documents, pages, optimizers, ...) it hands out. Implementations live in
// other packages; the session layer only depends on these interfaces.
package surface

import (
	"context"
	"errors"
)

// Kind names a family of entities a surface can open.
type Kind string

// Driver initializes a Surface. Initialize is called once per session.
type Driver interface {
	Name() string
	Initialize(ctx context.Context, cfg Config) (Surface, error)
}

// Surface is an initialized capability surface.
type Surface interface {
	// Open produces a new entity. It must not retain partial state when it
	// returns an error.
	Open(ctx context.Context, req Request) (Entity, error)

	// Shutdown releases process-wide state. It is called after every entity
	// opened through the surface has been closed.
	Shutdown() error
}

// Entity is a native handle obtained from a Surface.
type Entity interface {
	Kind() Kind
	Close() error
}

// Request describes an entity to open. Parent is the entity the new one is
// derived from (a page's document), or nil for top-level entities.
type Request struct {
	Kind   Kind
	Parent Entity
	Params any
}

var (
	// ErrUnknownKind is returned by Open for kinds the surface does not serve.
	ErrUnknownKind = errors.New("surface: unknown entity kind")
	// ErrExtensionDisabled is returned when a kind needs an extension that
	// was not enabled in the Config.
	ErrExtensionDisabled = errors.New("surface: extension not enabled")
	// ErrParentRequired is returned when a derived kind is opened without a
	// suitable parent entity.
	ErrParentRequired = errors.New("surface: parent entity required")
)
