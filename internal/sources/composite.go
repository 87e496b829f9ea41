package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/refdatahq/lookupd/internal/loader"
)

// idSeparator joins a source name and a file ID into a repository-wide
// source ID. Source names must not contain it.
const idSeparator = ":"

// Composite aggregates several sources into the single repository the
// reload coordinator scans. Source IDs are "<source>:<file>" so per-source
// bookkeeping in the registry stays stable across scans regardless of which
// source declared a file.
type Composite struct {
	sources []Source
	byName  map[string]Source
}

var _ loader.Repository = (*Composite)(nil)

// NewComposite builds a composite over the given sources. Source names must
// be unique and must not contain the ID separator.
func NewComposite(srcs ...Source) (*Composite, error) {
	c := &Composite{
		sources: srcs,
		byName:  make(map[string]Source, len(srcs)),
	}
	for _, src := range srcs {
		name := src.Name()
		if name == "" {
			return nil, fmt.Errorf("definition source has no name")
		}
		if strings.Contains(name, idSeparator) {
			return nil, fmt.Errorf("definition source name %q contains %q", name, idSeparator)
		}
		if _, dup := c.byName[name]; dup {
			return nil, fmt.Errorf("duplicate definition source name %q", name)
		}
		c.byName[name] = src
	}
	return c, nil
}

// Sources returns the aggregated sources.
func (c *Composite) Sources() []Source {
	return c.sources
}

// ListSources implements loader.Repository.
func (c *Composite) ListSources(ctx context.Context) ([]string, error) {
	var ids []string
	for _, src := range c.sources {
		files, err := src.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing source %s: %w", src.Name(), err)
		}
		for _, file := range files {
			ids = append(ids, src.Name()+idSeparator+file)
		}
	}
	return ids, nil
}

// ModifiedAt implements loader.Repository.
func (c *Composite) ModifiedAt(ctx context.Context, sourceID string) (time.Time, error) {
	src, file, err := c.resolve(sourceID)
	if err != nil {
		return time.Time{}, err
	}
	return src.ModifiedAt(ctx, file)
}

// Load implements loader.Repository.
func (c *Composite) Load(ctx context.Context, sourceID string) (*loader.Document, error) {
	src, file, err := c.resolve(sourceID)
	if err != nil {
		return nil, err
	}
	data, err := src.Read(ctx, file)
	if err != nil {
		return nil, err
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sourceID, err)
	}
	return doc, nil
}

// Exists implements loader.Repository.
func (c *Composite) Exists(ctx context.Context, sourceID string) bool {
	src, file, err := c.resolve(sourceID)
	if err != nil {
		return false
	}
	return src.Exists(ctx, file)
}

func (c *Composite) resolve(sourceID string) (Source, string, error) {
	name, file, ok := strings.Cut(sourceID, idSeparator)
	if !ok {
		return nil, "", fmt.Errorf("malformed source ID %q", sourceID)
	}
	src, ok := c.byName[name]
	if !ok {
		return nil, "", fmt.Errorf("unknown definition source %q", name)
	}
	return src, file, nil
}
