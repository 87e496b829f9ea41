package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DirectorySource serves definition files from a local directory. Only
// regular files with a .yaml or .yml extension are considered; everything
// else in the directory is ignored.
type DirectorySource struct {
	name  string
	path  string
	watch bool
}

var _ Source = (*DirectorySource)(nil)

// DirectoryOption configures a DirectorySource.
type DirectoryOption func(*DirectorySource)

// WithWatch enables filesystem-event watching for the directory. The watch
// itself is run by the Watcher; this only marks the source as eligible.
func WithWatch(watch bool) DirectoryOption {
	return func(d *DirectorySource) {
		d.watch = watch
	}
}

// NewDirectorySource creates a directory source rooted at path.
func NewDirectorySource(name, path string, opts ...DirectoryOption) *DirectorySource {
	d := &DirectorySource{
		name: name,
		path: path,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements Source.
func (d *DirectorySource) Name() string {
	return d.name
}

// Path returns the directory being served.
func (d *DirectorySource) Path() string {
	return d.path
}

// Watched reports whether the directory should be registered with the
// filesystem watcher.
func (d *DirectorySource) Watched() bool {
	return d.watch
}

// List implements Source. IDs are plain file names within the directory.
func (d *DirectorySource) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("reading definition directory %s: %w", d.path, err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// ModifiedAt implements Source using the file's mtime.
func (d *DirectorySource) ModifiedAt(_ context.Context, id string) (time.Time, error) {
	info, err := os.Stat(filepath.Join(d.path, id))
	if err != nil {
		return time.Time{}, fmt.Errorf("stating definition file %s: %w", id, err)
	}
	return info.ModTime(), nil
}

// Read implements Source.
func (d *DirectorySource) Read(_ context.Context, id string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.path, id))
	if err != nil {
		return nil, fmt.Errorf("reading definition file %s: %w", id, err)
	}
	return data, nil
}

// Exists implements Source.
func (d *DirectorySource) Exists(_ context.Context, id string) bool {
	info, err := os.Stat(filepath.Join(d.path, id))
	return err == nil && info.Mode().IsRegular()
}

func isDefinitionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
