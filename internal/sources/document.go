package sources

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/refdatahq/lookupd/internal/loader"
)

// documentEnvelope is the top-level shape of a definition file. Each entry
// under tables is kept as a raw node; only the name is probed here, the rest
// of the subtree is interpreted by the table factory.
type documentEnvelope struct {
	Tables []yaml.Node `yaml:"tables"`
}

// ParseDocument parses the raw content of a definition file into the
// document the reload coordinator consumes. A file that fails to parse, or
// an entry without a name, fails the whole document: partial documents would
// make eviction indistinguishable from a dropped declaration.
func ParseDocument(data []byte) (*loader.Document, error) {
	var envelope documentEnvelope
	if err := yaml.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parsing definition document: %w", err)
	}

	doc := &loader.Document{
		Definitions: make([]loader.Definition, 0, len(envelope.Tables)),
	}
	for i := range envelope.Tables {
		node := &envelope.Tables[i]

		var probe struct {
			Name string `yaml:"name"`
		}
		if err := node.Decode(&probe); err != nil {
			return nil, fmt.Errorf("definition entry %d is not a mapping: %w", i, err)
		}
		if probe.Name == "" {
			return nil, fmt.Errorf("definition entry %d has no name", i)
		}

		doc.Definitions = append(doc.Definitions, loader.Definition{
			Name: probe.Name,
			Spec: node,
		})
	}
	return doc, nil
}
