package plan

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed template.schema.json
var templateSchemaJSON string

var templateSchema = jsonschema.MustCompileString("template.schema.json", templateSchemaJSON)

// ValidateTemplateDocument checks a raw template document against the
// embedded JSON schema before it is ever bound.
func ValidateTemplateDocument(doc []byte) error {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("template is not valid json: %w", err)
	}
	if err := templateSchema.Validate(v); err != nil {
		return fmt.Errorf("template schema violation: %w", err)
	}
	return nil
}

// ParseTemplate validates and decodes one template document.
func ParseTemplate(doc []byte) (Template, error) {
	if err := ValidateTemplateDocument(doc); err != nil {
		return Template{}, err
	}
	var tpl Template
	if err := json.Unmarshal(doc, &tpl); err != nil {
		return Template{}, err
	}
	return tpl, nil
}

// LoadDir reads every *.json template in dir. Missing dir is fine; a
// malformed template is not.
func LoadDir(dir string) ([]Template, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var out []Template
	for _, name := range names {
		doc, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		tpl, err := ParseTemplate(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, tpl)
	}
	return out, nil
}
