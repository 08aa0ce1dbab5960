package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

//go:embed schema.json
var schemaJSON []byte

const schemaURI = "catalog.schema.json"

// ErrInvalidCatalog is matched by every load failure
var ErrInvalidCatalog = errors.New("invalid catalog")

// InvalidCatalogError lists every violation found while loading a catalog
type InvalidCatalogError struct {
	Violations []string
}

func (e *InvalidCatalogError) Error() string {
	return fmt.Sprintf("invalid catalog: %d violation(s): %s", len(e.Violations), strings.Join(e.Violations, "; "))
}

func (e *InvalidCatalogError) Unwrap() error {
	return ErrInvalidCatalog
}

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// LoadDefault loads the catalog embedded in the binary
func LoadDefault() (*Catalog, error) {
	return Load(defaultCatalog)
}

// LoadFile loads a catalog from a YAML file
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Load(data)
}

// Load parses, schema-validates and invariant-checks a YAML catalog
func Load(data []byte) (*Catalog, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &InvalidCatalogError{Violations: []string{"parse: " + err.Error()}}
	}

	if violations := validateSchema(doc); len(violations) > 0 {
		return nil, &InvalidCatalogError{Violations: violations}
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, &InvalidCatalogError{Violations: []string{"decode: " + err.Error()}}
	}

	if violations := c.checkInvariants(); len(violations) > 0 {
		return nil, &InvalidCatalogError{Violations: violations}
	}

	sort.Slice(c.Stages, func(i, j int) bool { return c.Stages[i].Number < c.Stages[j].Number })
	c.buildIndexes()
	return &c, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("failed to parse catalog schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURI, doc); err != nil {
			schemaErr = fmt.Errorf("failed to add catalog schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURI)
	})
	return compiledSchema, schemaErr
}

// validateSchema checks the document structure. The YAML tree is round-tripped
// through JSON so numbers reach the validator as json.Number.
func validateSchema(doc interface{}) []string {
	schema, err := loadSchema()
	if err != nil {
		return []string{err.Error()}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return []string{"schema: document is not JSON compatible: " + err.Error()}
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return []string{"schema: " + err.Error()}
	}

	err = schema.Validate(instance)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{"schema: " + err.Error()}
	}

	var violations []string
	for _, line := range strings.Split(verr.Error(), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		violations = append(violations, "schema: "+strings.TrimPrefix(line, "- "))
	}
	if len(violations) == 0 {
		violations = []string{"schema: " + verr.Error()}
	}
	return violations
}
