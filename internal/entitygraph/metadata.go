package entitygraph

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// metadataDocument is the on-disk layout of a metadata file:
//
//	entities:
//	  - name: Employee
//	    table: EMPLOYEE
//	    columns: [id]
//	    associations:
//	      - name: company
//	        target: Company
//	        join_columns: [COMPANY_ID]
//	        batch: true
//	        strategy: IN
type metadataDocument struct {
	Entities []EntitySpec `yaml:"entities"`
}

// LoadMetadata decodes a YAML metadata document and builds the graph.
func LoadMetadata(r io.Reader) (*Graph, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc metadataDocument
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("metadata: empty document")
		}
		return nil, fmt.Errorf("metadata: %w", err)
	}
	if len(doc.Entities) == 0 {
		return nil, fmt.Errorf("metadata: no entities declared")
	}
	return NewBuilder().Add(doc.Entities...).Build()
}

// LoadMetadataFile reads metadata from path.
func LoadMetadataFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	defer f.Close()
	return LoadMetadata(f)
}

// UnmarshalYAML accepts the ParseCardinality spellings.
func (c *Cardinality) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseCardinality(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// UnmarshalYAML accepts strategy names in any case.
func (s *Strategy) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseStrategy(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
