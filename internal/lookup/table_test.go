package lookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refdatahq/lookupd/internal/loader"
)

func inlineDef(name string, rows []map[string]string) *TableDefinition {
	def := &TableDefinition{
		Name:      name,
		KeyColumn: DefaultKeyColumn,
		Source:    SourceSpec{Inline: &InlineSource{Rows: rows}},
	}
	return def
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestTable_Inline(t *testing.T) {
	t.Parallel()

	t.Run("lookup and length", func(t *testing.T) {
		t.Parallel()

		def := inlineDef("plans", []map[string]string{
			{"key": "basic", "name": "Basic", "seats": "5"},
			{"key": "pro", "name": "Pro", "seats": "50"},
		})
		table := newTable(context.Background(), def, nil)
		require.NoError(t, table.CreationError())

		assert.Equal(t, "plans", table.Name())
		assert.Equal(t, 2, table.Len())
		assert.False(t, table.SupportsUpdates())
		assert.False(t, table.IsModified(context.Background()))

		row, err := table.Lookup("pro")
		require.NoError(t, err)
		assert.Equal(t, "Pro", row["name"])

		_, err = table.Lookup("enterprise")
		require.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("row without key column breaks the version", func(t *testing.T) {
		t.Parallel()

		def := inlineDef("plans", []map[string]string{
			{"name": "Basic"},
		})
		table := newTable(context.Background(), def, nil)
		require.Error(t, table.CreationError())
		assert.Contains(t, table.CreationError().Error(), "no key column")

		_, err := table.Lookup("basic")
		require.Error(t, err)
	})

	t.Run("duplicate keys break the version", func(t *testing.T) {
		t.Parallel()

		def := inlineDef("plans", []map[string]string{
			{"key": "basic"},
			{"key": "basic"},
		})
		table := newTable(context.Background(), def, nil)
		require.Error(t, table.CreationError())
		assert.Contains(t, table.CreationError().Error(), "duplicate key")
	})

	t.Run("lifetime converts to the loader window", func(t *testing.T) {
		t.Parallel()

		def := inlineDef("plans", nil)
		def.Lifetime = LifetimeSpec{Min: Duration(5 * time.Minute), Max: Duration(10 * time.Minute)}
		table := newTable(context.Background(), def, nil)

		assert.Equal(t, loader.Lifetime{Min: 5 * time.Minute, Max: 10 * time.Minute}, table.Lifetime())
	})
}

func TestTable_FileCSV(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "countries.csv", "code,name\nDE,Germany\nFR,France\n")

	def := &TableDefinition{
		Name:      "countries",
		KeyColumn: "code",
		Source:    SourceSpec{File: &FileSource{Path: path, Format: FormatCSV}},
	}
	table := newTable(context.Background(), def, nil)
	require.NoError(t, table.CreationError())
	assert.True(t, table.SupportsUpdates())
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, "code", table.KeyColumn())

	row, err := table.Lookup("DE")
	require.NoError(t, err)
	assert.Equal(t, "Germany", row["name"])

	// Unchanged file: not modified.
	assert.False(t, table.IsModified(context.Background()))

	// Rewrite with a strictly later mtime and clone the new content in.
	require.NoError(t, os.WriteFile(path, []byte("code,name\nDE,Germany\nIT,Italy\n"), 0o600))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.True(t, table.IsModified(context.Background()))

	next := table.Clone(context.Background())
	require.NoError(t, next.CreationError())
	row, err = next.(*Table).Lookup("IT")
	require.NoError(t, err)
	assert.Equal(t, "Italy", row["name"])

	// The previous version is untouched.
	_, err = table.Lookup("IT")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestTable_FileJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "plans.json", `[
		{"key": "basic", "name": "Basic"},
		{"key": "pro", "name": "Pro"}
	]`)

	def := &TableDefinition{
		Name:      "plans",
		KeyColumn: DefaultKeyColumn,
		Source:    SourceSpec{File: &FileSource{Path: path, Format: FormatJSON}},
	}
	table := newTable(context.Background(), def, nil)
	require.NoError(t, table.CreationError())

	row, err := table.Lookup("basic")
	require.NoError(t, err)
	assert.Equal(t, "Basic", row["name"])
}

func TestTable_FileErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing file breaks the version and clone recovers", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := filepath.Join(dir, "countries.csv")

		def := &TableDefinition{
			Name:      "countries",
			KeyColumn: "code",
			Source:    SourceSpec{File: &FileSource{Path: path, Format: FormatCSV}},
		}
		table := newTable(context.Background(), def, nil)
		require.Error(t, table.CreationError())

		// A missing file always counts as modified.
		assert.True(t, table.IsModified(context.Background()))

		writeFile(t, dir, "countries.csv", "code,name\nDE,Germany\n")
		next := table.Clone(context.Background())
		require.NoError(t, next.CreationError())
	})

	t.Run("malformed csv breaks the version", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := writeFile(t, dir, "bad.csv", "code,name\nDE\n")

		def := &TableDefinition{
			Name:      "bad",
			KeyColumn: "code",
			Source:    SourceSpec{File: &FileSource{Path: path, Format: FormatCSV}},
		}
		table := newTable(context.Background(), def, nil)
		require.Error(t, table.CreationError())
	})

	t.Run("malformed json breaks the version", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := writeFile(t, dir, "bad.json", `{"not": "an array"}`)

		def := &TableDefinition{
			Name:      "bad",
			KeyColumn: DefaultKeyColumn,
			Source:    SourceSpec{File: &FileSource{Path: path, Format: FormatJSON}},
		}
		table := newTable(context.Background(), def, nil)
		require.Error(t, table.CreationError())
	})
}

func TestTable_HTTP(t *testing.T) {
	t.Parallel()

	t.Run("fetches rows and honors validators", func(t *testing.T) {
		t.Parallel()

		etag := `"v1"`
		var conditionalHits int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("If-None-Match") == etag {
				conditionalHits++
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`[{"key": "EUR", "symbol": "€"}]`))
		}))
		defer server.Close()

		factory := NewFactory()
		def := &TableDefinition{
			Name:      "currencies",
			KeyColumn: DefaultKeyColumn,
			Source:    SourceSpec{HTTP: &HTTPSource{URL: server.URL}},
		}
		table := factory.NewTable(context.Background(), def)
		require.NoError(t, table.CreationError())
		assert.True(t, table.SupportsUpdates())

		row, err := table.Lookup("EUR")
		require.NoError(t, err)
		assert.Equal(t, "€", row["symbol"])

		// The stored ETag turns the probe into a conditional request.
		assert.False(t, table.IsModified(context.Background()))
		assert.Equal(t, 1, conditionalHits)

		// Server content changed: the validator no longer matches.
		etag = `"v2"`
		assert.True(t, table.IsModified(context.Background()))
	})

	t.Run("responses without validators always count as modified", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`[{"key": "EUR"}]`))
		}))
		defer server.Close()

		factory := NewFactory()
		def := &TableDefinition{
			Name:      "currencies",
			KeyColumn: DefaultKeyColumn,
			Source:    SourceSpec{HTTP: &HTTPSource{URL: server.URL}},
		}
		table := factory.NewTable(context.Background(), def)
		require.NoError(t, table.CreationError())
		assert.True(t, table.IsModified(context.Background()))
	})

	t.Run("server errors break the version", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		factory := NewFactory()
		def := &TableDefinition{
			Name:      "currencies",
			KeyColumn: DefaultKeyColumn,
			Source:    SourceSpec{HTTP: &HTTPSource{URL: server.URL}},
		}
		table := factory.NewTable(context.Background(), def)
		require.Error(t, table.CreationError())
		assert.Contains(t, table.CreationError().Error(), "HTTP 503")
	})
}

func TestFactory_Create(t *testing.T) {
	t.Parallel()

	t.Run("builds a table from a definition subtree", func(t *testing.T) {
		t.Parallel()

		factory := NewFactory()
		obj := factory.Create(context.Background(), "plans", defNode(t, `
name: plans
source:
  inline:
    rows:
      - {key: basic, name: Basic}
`))
		require.NoError(t, obj.CreationError())
		assert.Equal(t, "plans", obj.Name())

		row, err := obj.(*Table).Lookup("basic")
		require.NoError(t, err)
		assert.Equal(t, "Basic", row["name"])
	})

	t.Run("captures definition errors on the returned table", func(t *testing.T) {
		t.Parallel()

		factory := NewFactory()
		obj := factory.Create(context.Background(), "plans", defNode(t, `
name: plans
bogusField: true
source:
  inline: {rows: []}
`))
		require.Error(t, obj.CreationError())
		assert.Equal(t, "plans", obj.Name())
		assert.False(t, obj.SupportsUpdates())
	})
}
