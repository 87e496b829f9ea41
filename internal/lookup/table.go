package lookup

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/refdatahq/lookupd/internal/httpclient"
	"github.com/refdatahq/lookupd/internal/loader"
)

// ErrKeyNotFound is returned by Lookup for keys absent from the table.
var ErrKeyNotFound = errors.New("key not found")

// Table is one immutable version of a lookup table. A broken version
// carries its creation error and no rows; the registry decides whether an
// older usable version keeps serving.
type Table struct {
	def    *TableDefinition
	client httpclient.Client

	rows        map[string]map[string]string
	creationErr error
	loadedAt    time.Time

	// file source: mtime observed when this version was read
	fileModTime time.Time

	// http source: cache validators from the response that built this
	// version, used for conditional modification probes
	etag         string
	lastModified string
}

// newTable builds one version of the table by loading data from the
// definition's source. Load failures are captured on the returned table.
func newTable(ctx context.Context, def *TableDefinition, client httpclient.Client) *Table {
	t := &Table{
		def:      def,
		client:   client,
		loadedAt: time.Now(),
	}

	var (
		rows []map[string]string
		err  error
	)
	switch {
	case def.Source.Inline != nil:
		rows = def.Source.Inline.Rows
	case def.Source.File != nil:
		rows, err = t.loadFile(def.Source.File)
	case def.Source.HTTP != nil:
		rows, err = t.loadHTTP(ctx, def.Source.HTTP)
	default:
		err = errors.New("definition has no source")
	}
	if err != nil {
		t.creationErr = err
		return t
	}

	t.rows, err = indexRows(rows, def.KeyColumn)
	if err != nil {
		t.creationErr = err
	}
	return t
}

// brokenTable wraps a definition-level failure as a table version, so the
// factory never fails out of band.
func brokenTable(name string, err error) *Table {
	return &Table{
		def:         &TableDefinition{Name: name},
		creationErr: err,
		loadedAt:    time.Now(),
	}
}

func (t *Table) loadFile(src *FileSource) ([]map[string]string, error) {
	info, err := os.Stat(src.Path)
	if err != nil {
		return nil, fmt.Errorf("stating %s: %w", src.Path, err)
	}
	t.fileModTime = info.ModTime()

	data, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", src.Path, err)
	}

	switch src.Format {
	case FormatCSV:
		return parseCSVRows(data)
	case FormatJSON:
		return parseJSONRows(data)
	default:
		return nil, fmt.Errorf("unsupported file format %q", src.Format)
	}
}

func (t *Table) loadHTTP(ctx context.Context, src *HTTPSource) ([]map[string]string, error) {
	if t.client == nil {
		return nil, errors.New("no http client configured")
	}
	resp, err := t.client.Get(ctx, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", src.URL, err)
	}
	t.etag = resp.ETag()
	t.lastModified = resp.LastModified()
	return parseJSONRows(resp.Body)
}

func parseCSVRows(data []byte) ([]map[string]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("csv data has no header row")
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			row[col] = record[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseJSONRows(data []byte) ([]map[string]string, error) {
	var rows []map[string]string
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing json rows: %w", err)
	}
	return rows, nil
}

// indexRows keys the row slice by keyColumn. A row without the key column
// or a duplicated key breaks the version.
func indexRows(rows []map[string]string, keyColumn string) (map[string]map[string]string, error) {
	indexed := make(map[string]map[string]string, len(rows))
	for i, row := range rows {
		key, ok := row[keyColumn]
		if !ok {
			return nil, fmt.Errorf("row %d has no key column %q", i, keyColumn)
		}
		if _, dup := indexed[key]; dup {
			return nil, fmt.Errorf("duplicate key %q", key)
		}
		indexed[key] = row
	}
	return indexed, nil
}

// Name implements loader.Loadable.
func (t *Table) Name() string {
	return t.def.Name
}

// CreationError implements loader.Loadable.
func (t *Table) CreationError() error {
	return t.creationErr
}

// Lifetime implements loader.Loadable.
func (t *Table) Lifetime() loader.Lifetime {
	return loader.Lifetime{
		Min: time.Duration(t.def.Lifetime.Min),
		Max: time.Duration(t.def.Lifetime.Max),
	}
}

// SupportsUpdates implements loader.Loadable. Inline tables carry their
// data in the definition itself; a changed definition arrives as a source
// rescan, not a refresh.
func (t *Table) SupportsUpdates() bool {
	return t.def.Source.File != nil || t.def.Source.HTTP != nil
}

// IsModified implements loader.Loadable. File tables compare mtimes; HTTP
// tables issue a conditional request when the previous response carried
// validators, and assume modified otherwise. Probe failures count as
// modified so the follow-up clone captures the real error.
func (t *Table) IsModified(ctx context.Context) bool {
	switch {
	case t.def.Source.File != nil:
		info, err := os.Stat(t.def.Source.File.Path)
		if err != nil {
			return true
		}
		return info.ModTime().After(t.fileModTime)

	case t.def.Source.HTTP != nil:
		if t.client == nil {
			return true
		}
		headers := map[string]string{}
		if t.etag != "" {
			headers["If-None-Match"] = t.etag
		}
		if t.lastModified != "" {
			headers["If-Modified-Since"] = t.lastModified
		}
		if len(headers) == 0 {
			return true
		}
		resp, err := t.client.Get(ctx, t.def.Source.HTTP.URL, headers)
		if err != nil {
			return true
		}
		return !resp.NotModified

	default:
		return false
	}
}

// Clone implements loader.Loadable by re-fetching from the same definition.
func (t *Table) Clone(ctx context.Context) loader.Loadable {
	return newTable(ctx, t.def, t.client)
}

// Lookup returns the row stored under key.
func (t *Table) Lookup(key string) (map[string]string, error) {
	if t.creationErr != nil {
		return nil, t.creationErr
	}
	row, ok := t.rows[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q in table %s", ErrKeyNotFound, key, t.def.Name)
	}
	return row, nil
}

// Len returns the number of rows in this version.
func (t *Table) Len() int {
	return len(t.rows)
}

// KeyColumn returns the attribute used as lookup key.
func (t *Table) KeyColumn() string {
	return t.def.KeyColumn
}

// LoadedAt returns when this version was built.
func (t *Table) LoadedAt() time.Time {
	return t.loadedAt
}

// Definition returns the parsed definition backing this table.
func (t *Table) Definition() *TableDefinition {
	return t.def
}
