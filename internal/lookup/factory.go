package lookup

import (
	"context"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/refdatahq/lookupd/internal/httpclient"
	"github.com/refdatahq/lookupd/internal/loader"
)

// Factory builds Table versions from definition subtrees. It implements
// loader.Factory: failures are captured on the returned table, never
// returned out of band.
type Factory struct {
	client httpclient.Client
}

// FactoryOption configures the factory.
type FactoryOption func(*Factory)

// WithHTTPClient sets the client used by http-sourced tables.
func WithHTTPClient(client httpclient.Client) FactoryOption {
	return func(f *Factory) {
		f.client = client
	}
}

// NewFactory creates a table factory.
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		client: httpclient.NewDefaultClient(30 * time.Second),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create implements loader.Factory.
func (f *Factory) Create(ctx context.Context, name string, spec *yaml.Node) loader.Loadable {
	def, err := ParseDefinition(name, spec)
	if err != nil {
		return brokenTable(name, err)
	}
	return newTable(ctx, def, f.client)
}

// NewTable builds one table version directly from a parsed definition.
// Used by the declarative channel, which validates definitions before
// handing them to the registry.
func (f *Factory) NewTable(ctx context.Context, def *TableDefinition) *Table {
	return newTable(ctx, def, f.client)
}
