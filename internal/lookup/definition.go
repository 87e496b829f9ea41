// Package lookup implements reference-data lookup tables: immutable key
// to row snapshots built from YAML table definitions, backed by inline
// entries, local CSV/JSON files, or remote JSON endpoints.
package lookup

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultKeyColumn is the row attribute used as lookup key when a
	// definition does not name one.
	DefaultKeyColumn = "key"

	// FormatCSV marks a file source parsed as CSV with a header row.
	FormatCSV = "csv"

	// FormatJSON marks a file or HTTP source parsed as a JSON array of
	// flat string objects.
	FormatJSON = "json"
)

// Duration wraps time.Duration with Go duration-string YAML syntax ("5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"5m\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration %q must not be negative", s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// LifetimeSpec is the refresh window of a table. It accepts either a
// single duration scalar (min == max) or an explicit {min, max} mapping.
// A zero window disables scheduled refresh.
type LifetimeSpec struct {
	Min Duration `yaml:"min"`
	Max Duration `yaml:"max"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *LifetimeSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var d Duration
		if err := node.Decode(&d); err != nil {
			return err
		}
		l.Min, l.Max = d, d
		return nil
	}

	type rawLifetime LifetimeSpec
	var raw rawLifetime
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*l = LifetimeSpec(raw)
	return nil
}

// InlineSource declares rows directly in the definition document.
type InlineSource struct {
	Rows []map[string]string `yaml:"rows"`
}

// FileSource reads rows from a local file. Format defaults from the file
// extension when omitted.
type FileSource struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format,omitempty"`
}

// HTTPSource fetches rows as a JSON array from a remote endpoint.
type HTTPSource struct {
	URL string `yaml:"url"`
}

// SourceSpec selects exactly one data source for a table.
type SourceSpec struct {
	Inline *InlineSource `yaml:"inline,omitempty"`
	File   *FileSource   `yaml:"file,omitempty"`
	HTTP   *HTTPSource   `yaml:"http,omitempty"`
}

// TableDefinition is one table declaration from a definition document.
type TableDefinition struct {
	Name      string       `yaml:"name"`
	KeyColumn string       `yaml:"keyColumn,omitempty"`
	Lifetime  LifetimeSpec `yaml:"lifetime,omitempty"`
	Source    SourceSpec   `yaml:"source"`
}

// ParseDefinition decodes one table definition subtree strictly: unknown
// fields are errors, so a typoed key fails the table instead of silently
// changing its behavior. The name is taken from the enclosing document
// entry and must agree with the subtree when both are present.
func ParseDefinition(name string, spec *yaml.Node) (*TableDefinition, error) {
	if spec == nil {
		return nil, errors.New("definition body is missing")
	}

	// yaml.Node.Decode has no strict mode, so round-trip through a
	// decoder with KnownFields enabled.
	raw, err := yaml.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("re-encoding definition: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var def TableDefinition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("parsing definition: %w", err)
	}

	if def.Name == "" {
		def.Name = name
	} else if def.Name != name {
		return nil, fmt.Errorf("definition names itself %q but is declared as %q", def.Name, name)
	}

	def.normalize()
	if err := def.validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func (d *TableDefinition) normalize() {
	if d.KeyColumn == "" {
		d.KeyColumn = DefaultKeyColumn
	}
	if d.Source.File != nil && d.Source.File.Format == "" {
		switch strings.ToLower(filepath.Ext(d.Source.File.Path)) {
		case ".csv":
			d.Source.File.Format = FormatCSV
		case ".json":
			d.Source.File.Format = FormatJSON
		}
	}
}

func (d *TableDefinition) validate() error {
	var errs []error

	if d.Name == "" {
		errs = append(errs, errors.New("table name is required"))
	}
	if d.Lifetime.Max < d.Lifetime.Min {
		errs = append(errs, fmt.Errorf("lifetime max %s is below min %s",
			time.Duration(d.Lifetime.Max), time.Duration(d.Lifetime.Min)))
	}

	count := 0
	if d.Source.Inline != nil {
		count++
	}
	if d.Source.File != nil {
		count++
		if d.Source.File.Path == "" {
			errs = append(errs, errors.New("file source requires a path"))
		}
		switch d.Source.File.Format {
		case FormatCSV, FormatJSON:
		case "":
			errs = append(errs, fmt.Errorf("cannot infer format of %s, set source.file.format", d.Source.File.Path))
		default:
			errs = append(errs, fmt.Errorf("unsupported file format %q, must be %q or %q",
				d.Source.File.Format, FormatCSV, FormatJSON))
		}
	}
	if d.Source.HTTP != nil {
		count++
		if d.Source.HTTP.URL == "" {
			errs = append(errs, errors.New("http source requires a url"))
		}
	}
	if count != 1 {
		errs = append(errs, fmt.Errorf("exactly one of source.inline, source.file, source.http is required, got %d", count))
	}

	return errors.Join(errs...)
}
