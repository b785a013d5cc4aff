// Package validation checks request payloads against the JSON schemas that
// ship inside the binary.
package validation

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema names a compiled schema. It matches the schema's file name.
type Schema string

const (
	FeedEvent       Schema = "feed-event"
	EvaluateRequest Schema = "evaluate-request"
)

//go:embed schemas/*.json
var embedded embed.FS

type Validator struct {
	schemas map[Schema]*gojsonschema.Schema
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	v := &Validator{schemas: make(map[Schema]*gojsonschema.Schema)}
	if err := v.Load(embedded, "schemas"); err != nil {
		return nil, err
	}
	return v, nil
}

// Load compiles every *.json file in dir. A later file with the same name
// replaces the earlier schema.
func (v *Validator) Load(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to list schemas in %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".json" {
			continue
		}
		raw, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read schema %s: %w", entry.Name(), err)
		}

		name := Schema(strings.TrimSuffix(entry.Name(), ".json"))
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		v.schemas[name] = compiled
	}

	return nil
}

// Schemas lists the loaded schema names in sorted order.
func (v *Validator) Schemas() []Schema {
	names := make([]Schema, 0, len(v.schemas))
	for name := range v.schemas {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Validate checks a JSON document. An unknown schema or a document that
// cannot be parsed is reported as an error, not as problems.
func (v *Validator) Validate(name Schema, body []byte) (*Result, error) {
	schema, ok := v.schemas[name]
	if !ok {
		return nil, fmt.Errorf("schema %q not loaded", name)
	}

	outcome, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to validate against %s: %w", name, err)
	}

	result := &Result{Valid: outcome.Valid()}
	for _, re := range outcome.Errors() {
		result.Problems = append(result.Problems, Problem{
			Field:   re.Field(),
			Rule:    re.Type(),
			Message: re.Description(),
		})
	}
	return result, nil
}

type Result struct {
	Valid    bool      `json:"valid"`
	Problems []Problem `json:"problems,omitempty"`
}

// Problem is one failed schema rule. Field is a dotted path, "(root)" for
// the document itself.
type Problem struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Fields groups problem messages by field.
func (r *Result) Fields() map[string][]string {
	if r == nil || len(r.Problems) == 0 {
		return nil
	}
	fields := make(map[string][]string)
	for _, p := range r.Problems {
		fields[p.Field] = append(fields[p.Field], p.Message)
	}
	return fields
}
