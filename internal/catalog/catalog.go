// Package catalog holds the PKD classification-code catalog used to
// constrain and verify LLM-selected industry codes.
package catalog

import (
	_ "embed"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

//go:embed pkd.json
var embeddedCatalog []byte

// Code is one PKD subclass, e.g. "43.99.Z".
type Code struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Section groups subclasses under a one-letter PKD section, e.g. "F".
type Section struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Subclasses []Code `json:"subclasses"`
}

// Catalog is the full code taxonomy.
type Catalog struct {
	sections []Section
}

// Load reads a catalog from a JSON file, or the embedded default when
// path is empty.
func Load(path string) (*Catalog, error) {
	data := embeddedCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: read %s", path)
		}
	}
	var sections []Section
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}
	return &Catalog{sections: sections}, nil
}

// New builds a catalog from sections directly. Used by tests.
func New(sections []Section) *Catalog {
	return &Catalog{sections: sections}
}

// Sections returns the catalog's sections.
func (c *Catalog) Sections() []Section {
	return c.sections
}

// Candidates returns the subclasses available to the enricher. A non-empty
// section code restricts the candidate set to that section; otherwise all
// subclasses from all sections are candidates.
func (c *Catalog) Candidates(sectionCode string) []Code {
	var out []Code
	for _, s := range c.sections {
		if sectionCode != "" && !strings.EqualFold(s.Code, sectionCode) {
			continue
		}
		out = append(out, s.Subclasses...)
	}
	return out
}

// CodeSet is a dot-insensitive membership set over PKD codes: "43.99.Z"
// and "4399Z" are the same code. The registry API speaks the dotless form.
type CodeSet map[string]struct{}

// NewCodeSet builds a CodeSet from code strings.
func NewCodeSet(codes []string) CodeSet {
	set := make(CodeSet, len(codes))
	for _, c := range codes {
		if k := canonicalCode(c); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

// Has reports membership, ignoring dots and case.
func (s CodeSet) Has(code string) bool {
	_, ok := s[canonicalCode(code)]
	return ok
}

// HasAny reports whether any of the given codes is in the set.
func (s CodeSet) HasAny(codes []string) bool {
	for _, c := range codes {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// Empty reports whether the set holds no codes.
func (s CodeSet) Empty() bool {
	return len(s) == 0
}

func canonicalCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), ".", ""))
}

// Dotless converts codes to the dotless form the registry API expects.
func Dotless(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if k := canonicalCode(c); k != "" {
			out = append(out, k)
		}
	}
	return out
}
