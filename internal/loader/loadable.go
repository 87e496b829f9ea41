// Package loader implements the lifecycle engine around externally defined
// lookup tables: it discovers definitions from scanned sources and from the
// declarative API channel, instantiates them, refreshes each table on a
// jittered schedule derived from its lifetime window, and retries failed
// loads with exponential backoff.
package loader

import (
	"context"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate mockgen -destination=mocks/mock_loadable.go -package=mocks -source=loadable.go Loadable,Factory,Repository

// Lifetime is the refresh window of a loadable object. Scheduled refresh
// times are drawn uniformly from [Min, Max] after each load; a window with
// a zero bound disables scheduled refresh entirely.
type Lifetime struct {
	Min time.Duration
	Max time.Duration
}

// Refreshable reports whether objects with this lifetime participate in
// scheduled refresh.
func (l Lifetime) Refreshable() bool {
	return l.Min > 0 && l.Max > 0
}

// Loadable is one externally defined object managed by the registry.
// Implementations must behave as immutable snapshots: the registry installs
// new versions by pointer swap and never mutates an instance after
// construction, so handles held by callers stay valid indefinitely.
//
// Clone produces the next version of the object. It must not fail out of
// band for recoverable problems; those are captured on the returned version
// and exposed through CreationError, so "exists but broken" is handled
// uniformly with "never loaded".
type Loadable interface {
	// Name returns the stable name the object is registered under.
	Name() string

	// Clone builds a new version of the object from its backing source.
	Clone(ctx context.Context) Loadable

	// CreationError returns the error captured while building this
	// version, or nil if the version is usable.
	CreationError() error

	// Lifetime returns the refresh window.
	Lifetime() Lifetime

	// SupportsUpdates reports whether the backing source can change after
	// the initial load.
	SupportsUpdates() bool

	// IsModified reports whether the backing source changed since this
	// version was built. It may perform I/O and is never called under a
	// registry lock.
	IsModified(ctx context.Context) bool
}

// Factory constructs loadable objects from a definition subtree. Create
// follows the same error contract as Clone: failures are captured on the
// returned object, never returned out of band.
type Factory interface {
	Create(ctx context.Context, name string, spec *yaml.Node) Loadable
}

// Definition is one named object declared by a definition source. Spec is
// the raw definition subtree; the registry passes it through to the
// factory without interpreting it.
type Definition struct {
	Name string
	Spec *yaml.Node
}

// Document is the parsed content of one definition source.
type Document struct {
	Definitions []Definition
}

// Repository enumerates definition sources and parses them into documents.
// Source IDs are opaque to the registry; they only need to be stable
// between passes so that per-source bookkeeping (modification times,
// declared-name sets) works.
type Repository interface {
	// ListSources returns the IDs of all current definition sources.
	ListSources(ctx context.Context) ([]string, error)

	// ModifiedAt returns the last modification time of a source.
	ModifiedAt(ctx context.Context, sourceID string) (time.Time, error)

	// Load reads and parses one source.
	Load(ctx context.Context, sourceID string) (*Document, error)

	// Exists reports whether the source is still present.
	Exists(ctx context.Context, sourceID string) bool
}

// Kind identifies which channel declared an entry.
type Kind string

const (
	// KindSource marks entries declared by scanned definition sources.
	KindSource Kind = "source"

	// KindDeclarative marks entries registered through the API.
	KindDeclarative Kind = "declarative"
)
