// Package sources implements the definition sources lookup tables are
// declared in: directories of YAML files on local disk and Git repositories
// polled for new commits. A Composite aggregates any number of sources into
// the single repository view the reload coordinator scans.
package sources

import (
	"context"
	"time"
)

// Source is one provider of definition files. IDs returned by List are
// relative to the source (for a directory source, file names; for a Git
// source, repository paths) and must stay stable between scans.
type Source interface {
	// Name returns the configured source name, used to namespace file IDs.
	Name() string

	// List returns the IDs of all definition files the source currently
	// holds.
	List(ctx context.Context) ([]string, error)

	// ModifiedAt returns the last modification time of one file.
	ModifiedAt(ctx context.Context, id string) (time.Time, error)

	// Read returns the raw content of one file.
	Read(ctx context.Context, id string) ([]byte, error)

	// Exists reports whether the file is still present.
	Exists(ctx context.Context, id string) bool
}
