package conditions

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog holds the keyword table and ICD-10 codes for every condition.
// It is built once at start-up and never mutated afterwards, so it is safe
// for concurrent readers.
type Catalog struct {
	entries   []Entry
	index     map[string]int
	extractor *Extractor
}

type catalogFile struct {
	Conditions []Entry `yaml:"conditions"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return newCatalog(defaultEntries())
}

// LoadCatalog reads a YAML catalog from path. Entries in the file replace
// the built-in entry for the same label; labels absent from the file keep
// their built-in keywords and codes. An empty path yields DefaultCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read condition catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("decode condition catalog: %w", err)
	}
	if len(file.Conditions) == 0 {
		return nil, fmt.Errorf("condition catalog %s is empty", path)
	}

	entries := defaultEntries()
	pos := make(map[string]int, len(entries))
	for i, e := range entries {
		pos[e.Label] = i
	}

	seen := make(map[string]bool, len(file.Conditions))
	for _, e := range file.Conditions {
		i, ok := pos[e.Label]
		if !ok {
			return nil, fmt.Errorf("unknown condition %q in catalog", e.Label)
		}
		if seen[e.Label] {
			return nil, fmt.Errorf("duplicate condition %q in catalog", e.Label)
		}
		seen[e.Label] = true
		if len(e.Keywords) == 0 {
			return nil, fmt.Errorf("condition %q has no keywords", e.Label)
		}
		for _, kw := range e.Keywords {
			if strings.TrimSpace(kw) == "" {
				return nil, fmt.Errorf("condition %q has an empty keyword", e.Label)
			}
		}
		if e.ICDCodes == nil {
			e.ICDCodes = entries[i].ICDCodes
		}
		entries[i] = e
	}

	return newCatalog(entries), nil
}

func newCatalog(entries []Entry) *Catalog {
	c := &Catalog{
		entries: entries,
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		c.index[strings.ToLower(e.Label)] = i
	}
	c.extractor = NewExtractor(entries)
	return c
}

// List returns a copy of all catalog entries in table order.
func (c *Catalog) List() []Entry {
	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.clone()
	}
	return out
}

// Lookup finds an entry by label, ignoring case.
func (c *Catalog) Lookup(label string) (Entry, bool) {
	i, ok := c.index[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i].clone(), true
}

// ICDCodes returns the ICD-10 codes for a condition.
func (c *Catalog) ICDCodes(label string) ([]ICDCode, bool) {
	e, ok := c.Lookup(label)
	if !ok {
		return nil, false
	}
	return e.ICDCodes, true
}

// Extractor returns the keyword extractor built from this catalog.
func (c *Catalog) Extractor() *Extractor {
	return c.extractor
}

func defaultEntries() []Entry {
	return []Entry{
		{
			Label:    CardiacFailure,
			Keywords: []string{"cardiac failure", "heart failure", "chf", "congestive heart", "cardiac dysfunction"},
			ICDCodes: []ICDCode{
				{Code: "I50.0", Description: "Congestive heart failure"},
				{Code: "I50.1", Description: "Left ventricular failure"},
				{Code: "I50.9", Description: "Heart failure, unspecified"},
				{Code: "I11.0", Description: "Hypertensive heart disease with (congestive) heart failure"},
			},
		},
		{
			Label:    Hypertension,
			Keywords: []string{"hypertension", "high blood pressure", "elevated bp", "htn", "blood pressure"},
			ICDCodes: []ICDCode{
				{Code: "I10", Description: "Essential (primary) hypertension"},
				{Code: "I11.9", Description: "Hypertensive heart disease without (congestive) heart failure"},
				{Code: "I15.9", Description: "Secondary hypertension, unspecified"},
			},
		},
		{
			Label:    DiabetesInsipidus,
			Keywords: []string{"diabetes insipidus", "di ", "polyuria", "polydipsia"},
			ICDCodes: []ICDCode{
				{Code: "E23.2", Description: "Diabetes insipidus"},
				{Code: "N25.1", Description: "Nephrogenic diabetes insipidus"},
			},
		},
		{
			Label:    DiabetesMellitusType1,
			Keywords: []string{"diabetes type 1", "type 1 diabetes", "t1dm", "insulin dependent diabetes", "iddm"},
			ICDCodes: []ICDCode{
				{Code: "E10.2", Description: "Insulin-dependent diabetes mellitus with renal complications"},
				{Code: "E10.5", Description: "Insulin-dependent diabetes mellitus with peripheral circulatory complications"},
				{Code: "E10.7", Description: "Insulin-dependent diabetes mellitus with multiple complications"},
				{Code: "E10.9", Description: "Insulin-dependent diabetes mellitus without complications"},
			},
		},
		{
			Label:    DiabetesMellitusType2,
			Keywords: []string{"diabetes type 2", "type 2 diabetes", "t2dm", "non-insulin dependent", "niddm"},
			ICDCodes: []ICDCode{
				{Code: "E11.2", Description: "Non-insulin-dependent diabetes mellitus with renal complications"},
				{Code: "E11.5", Description: "Non-insulin-dependent diabetes mellitus with peripheral circulatory complications"},
				{Code: "E11.7", Description: "Non-insulin-dependent diabetes mellitus with multiple complications"},
				{Code: "E11.9", Description: "Non-insulin-dependent diabetes mellitus without complications"},
			},
		},
	}
}
