package fieldmap

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

// SeedEntry is one built-in (raw label, canonical field, language) triple.
type SeedEntry struct {
	Raw      string `yaml:"raw"`
	Field    string `yaml:"field"`
	Language string `yaml:"lang"`
}

// SeedEntries parses the embedded seed table. Entries whose normalized names
// collide keep the first occurrence.
func SeedEntries() ([]SeedEntry, error) {
	var doc struct {
		Mappings []SeedEntry `yaml:"mappings"`
	}
	if err := yaml.Unmarshal(seedYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse field mapping seed: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Mappings))
	out := make([]SeedEntry, 0, len(doc.Mappings))
	for _, e := range doc.Mappings {
		if e.Raw == "" || e.Field == "" {
			return nil, fmt.Errorf("field mapping seed entry %+v is incomplete", e)
		}
		key := Normalize(e.Raw)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

// StandardFields are the canonical names offered when mapping a field.
var StandardFields = []string{
	"email",
	"phone",
	"full_name",
	"first_name",
	"last_name",
	"city",
	"province",
	"country",
	"date_of_birth",
	"comments",
	"job_experience",
	"salary_expectations",
	"languages",
	"work_onsite",
}
