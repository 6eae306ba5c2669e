package engine

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

// Lexicon is the engine's dictionary: per-schema code tables, the
// traditional to simplified character map, English words and the symbol
// tables opened with the sym key.
type Lexicon struct {
	// Schemas maps a schema id to its code table. Codes are lowercase
	// ASCII; a code may span several syllables.
	Schemas map[string]map[string][]string `yaml:"schemas"`

	Simplified map[string]string   `yaml:"simplified"`
	English    []string            `yaml:"english"`
	Symbols    map[string][]string `yaml:"symbols"`

	simplified map[rune]rune
}

// PrimarySchema is the schema typed input is composed with.
const PrimarySchema = "jyutping"

// LoadLexicon reads a YAML lexicon. An empty path loads the built-in one.
func LoadLexicon(path string) (*Lexicon, error) {
	if path == "" {
		return ParseLexicon(defaultLexicon)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	return ParseLexicon(data)
}

// ParseLexicon decodes and checks a lexicon document.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	if _, ok := lex.Schemas[PrimarySchema]; !ok {
		return nil, fmt.Errorf("parse lexicon: %w: %s table missing", ErrUnknownSchema, PrimarySchema)
	}
	for schema, table := range lex.Schemas {
		for code := range table {
			if code == "" || strings.ToLower(code) != code {
				return nil, fmt.Errorf("parse lexicon: schema %s: code %q must be lowercase", schema, code)
			}
		}
	}

	lex.simplified = make(map[rune]rune, len(lex.Simplified))
	for trad, simp := range lex.Simplified {
		t, s := []rune(trad), []rune(simp)
		if len(t) != 1 || len(s) != 1 {
			return nil, fmt.Errorf("parse lexicon: simplified entry %q: %q is not one character each", trad, simp)
		}
		lex.simplified[t[0]] = s[0]
	}
	return &lex, nil
}

// HasSchema reports whether the lexicon defines a code table for schema.
func (l *Lexicon) HasSchema(schema string) bool {
	_, ok := l.Schemas[schema]
	return ok
}

// Simplify converts traditional characters to their simplified form.
func (l *Lexicon) Simplify(s string) string {
	if len(l.simplified) == 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if simp, ok := l.simplified[r]; ok {
			return simp
		}
		return r
	}, s)
}
