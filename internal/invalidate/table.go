// Package invalidate maps mutated entity types to the cache fingerprints
// that must be dropped.
//
// The mapping is a declarative table, not ad hoc cache-clearing calls
// scattered across mutation sites: adding a new cached view means
// registering its dependency here, not auditing every write path.
// Over-invalidation is the accepted safe default; under-invalidation is a
// correctness bug.
package invalidate

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table holds the entity-type → fingerprint-pattern rules.
//
// A pattern is either an exact fingerprint ("/medications/alerts") or a
// prefix ending in "*" ("/participants*"), which also catches every
// parameterized variant ("/participants?org=42", "/participants/7").
type Table struct {
	rules map[string][]string
}

// tableFile is the YAML shape of a rule file.
type tableFile struct {
	Rules map[string][]string `yaml:"rules"`
}

// Default returns the built-in rule table for the Trail domain.
//
// The relationships modeled here follow the views each mutation renders
// stale. A medication distribution, for example, feeds three different
// projections (upcoming distributions, participants ready, alerts), so
// mutating one record drops all three.
func Default() *Table {
	return &Table{rules: map[string][]string{
		"participant": {
			"/participants*",
			"/dashboard*",
			"/reports/participants*",
		},
		"activity": {
			"/activities*",
			"/dashboard*",
		},
		"attendance": {
			"/activities*",
			"/attendance*",
			"/dashboard*",
		},
		"medication": {
			"/medications*",
		},
		"medicationDistribution": {
			"/medications/distributions*",
			"/medications/upcoming*",
			"/medications/ready*",
			"/medications/alerts*",
			"/dashboard*",
		},
		"expense": {
			"/finances/expenses*",
			"/finances/summary*",
			"/reports/finance*",
		},
		"revenue": {
			"/finances/revenue*",
			"/finances/summary*",
			"/reports/finance*",
		},
		"permissionSlip": {
			"/permission-slips*",
			"/participants*",
			"/dashboard*",
		},
		"report": {
			"/reports*",
		},
	}}
}

// Load parses a rule table from YAML and validates it.
func Load(r io.Reader) (*Table, error) {
	var f tableFile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse rule table: %w", err)
	}

	t := &Table{rules: f.Rules}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadFile reads a rule table from a YAML file.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule table: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// validate rejects rule tables that could silently under-invalidate.
func (t *Table) validate() error {
	if len(t.rules) == 0 {
		return fmt.Errorf("rule table is empty")
	}
	for entity, patterns := range t.rules {
		if entity == "" {
			return fmt.Errorf("rule table has an empty entity type")
		}
		if len(patterns) == 0 {
			return fmt.Errorf("entity %q has no patterns", entity)
		}
		for _, p := range patterns {
			if !strings.HasPrefix(p, "/") {
				return fmt.Errorf("entity %q: pattern %q must start with /", entity, p)
			}
			if i := strings.Index(p, "*"); i >= 0 && i != len(p)-1 {
				return fmt.Errorf("entity %q: pattern %q may only end with *", entity, p)
			}
		}
	}
	return nil
}

// EntityTypes returns the registered entity types, sorted.
func (t *Table) EntityTypes() []string {
	types := make([]string, 0, len(t.rules))
	for entity := range t.rules {
		types = append(types, entity)
	}
	sort.Strings(types)
	return types
}

// Patterns returns the patterns for an entity type, or nil if unregistered.
func (t *Table) Patterns(entityType string) []string {
	return t.rules[entityType]
}

// Resolve returns the subset of fingerprints matched by the entity type's
// patterns, preserving the input order of fingerprints.
func (t *Table) Resolve(entityType string, fingerprints []string) []string {
	patterns := t.rules[entityType]
	if len(patterns) == 0 {
		return nil
	}

	var matched []string
	for _, fp := range fingerprints {
		for _, p := range patterns {
			if matchPattern(p, fp) {
				matched = append(matched, fp)
				break
			}
		}
	}
	return matched
}

// matchPattern matches one pattern against one fingerprint.
func matchPattern(pattern, fp string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(fp, prefix)
	}
	// Exact patterns also cover their parameterized variants.
	return fp == pattern || strings.HasPrefix(fp, pattern+"?")
}
