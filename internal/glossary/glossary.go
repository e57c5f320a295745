// Package glossary holds the static term-to-definition map served to the page for
// click-to-highlight definitions. It is loaded once at startup and read-only afterwards.
package glossary

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is one glossary entry.
type Definition struct {
	Term       string `yaml:"term"`
	Definition string `yaml:"definition"`
}

// Glossary is a read-only, case-insensitive mapping from term to definition.
type Glossary struct {
	defs map[string]Definition
}

// Load reads glossary entries from a YAML file containing a list of term/definition pairs. A
// missing file yields an empty glossary rather than an error, since deployments without a glossary
// are valid.
func Load(path string) (Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Glossary{defs: map[string]Definition{}}, nil
		}
		return Glossary{}, fmt.Errorf("failed to read glossary file: %w", err)
	}

	var entries []Definition
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return Glossary{}, fmt.Errorf("failed to parse glossary file: %w", err)
	}

	defs := make(map[string]Definition, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry.Term) == "" {
			continue
		}
		defs[strings.ToLower(entry.Term)] = entry
	}
	return Glossary{defs: defs}, nil
}

// Lookup returns the definition for a term, matching case-insensitively.
func (g Glossary) Lookup(term string) (Definition, bool) {
	def, ok := g.defs[strings.ToLower(term)]
	return def, ok
}

// Terms returns every known term in sorted order, for the page's highlighting pass.
func (g Glossary) Terms() []string {
	terms := make([]string, 0, len(g.defs))
	for _, def := range g.defs {
		terms = append(terms, def.Term)
	}
	sort.Strings(terms)
	return terms
}

// Len reports the number of entries.
func (g Glossary) Len() int {
	return len(g.defs)
}
