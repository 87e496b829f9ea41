package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefinitionsFileName is the name of the definitions file within the data
// directory.
const DefinitionsFileName = "definitions.json"

// fileStore implements Store using a single JSON file. Writes go through a
// temp file and an atomic rename so a crash mid-write never corrupts the
// stored definitions.
type fileStore struct {
	basePath string

	mu sync.Mutex
}

// NewFileStore creates a file-based definition store rooted at basePath.
func NewFileStore(basePath string) Store {
	return &fileStore{
		basePath: basePath,
	}
}

func (f *fileStore) filePath() string {
	return filepath.Join(f.basePath, DefinitionsFileName)
}

// load reads the current definition list. A missing file is an empty
// store, not an error.
func (f *fileStore) load() ([]*Definition, error) {
	// #nosec G304 -- path is constructed from the configured data directory
	data, err := os.ReadFile(f.filePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read definitions file: %w", err)
	}

	var defs []*Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal definitions: %w", err)
	}
	return defs, nil
}

// save writes the definition list atomically.
func (f *fileStore) save(defs []*Definition) error {
	if err := os.MkdirAll(f.basePath, 0750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal definitions: %w", err)
	}

	filePath := f.filePath()
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary definitions file: %w", err)
	}
	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename definitions file: %w", err)
	}
	return nil
}

// Save implements Store.
func (f *fileStore) Save(_ context.Context, def *Definition) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	defs, err := f.load()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	updated := false
	for i, existing := range defs {
		if existing.Namespace == def.Namespace && existing.Name == def.Name {
			def.ID = existing.ID
			def.CreatedAt = existing.CreatedAt
			def.UpdatedAt = now
			defs[i] = def
			updated = true
			break
		}
	}
	if !updated {
		def.ID = uuid.New()
		def.CreatedAt = now
		def.UpdatedAt = now
		defs = append(defs, def)
	}

	return f.save(defs)
}

// Delete implements Store.
func (f *fileStore) Delete(_ context.Context, namespace, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	defs, err := f.load()
	if err != nil {
		return err
	}

	for i, existing := range defs {
		if existing.Namespace == namespace && existing.Name == name {
			return f.save(append(defs[:i], defs[i+1:]...))
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrNotFound, namespace, name)
}

// List implements Store.
func (f *fileStore) List(_ context.Context) ([]*Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	defs, err := f.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Namespace != defs[j].Namespace {
			return defs[i].Namespace < defs[j].Namespace
		}
		return defs[i].Name < defs[j].Name
	})
	return defs, nil
}

// Ping implements Store. The file store is reachable when its directory
// can be created.
func (f *fileStore) Ping(_ context.Context) error {
	return os.MkdirAll(f.basePath, 0750)
}

// Close implements Store.
func (*fileStore) Close() error {
	return nil
}
