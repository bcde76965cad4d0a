// Package analysis answers a fixed list of questions about the loaded
// applicant table. The questions and their SQL are configuration, not code.
package analysis

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

const tablePlaceholder = "{{table}}"

type Query struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

type Catalog struct {
	Queries []Query `json:"queries"`
}

//go:embed queries.json5
var defaultCatalogFile []byte

// DefaultCatalog is the catalog shipped with the binary.
func DefaultCatalog() (Catalog, error) {
	var c Catalog
	if err := json5.Unmarshal(defaultCatalogFile, &c); err != nil {
		return c, fmt.Errorf("built-in query catalog: %w", err)
	}
	return c, nil
}

// ReadCatalog reads name and then <name>.local.<ext> next to it, the local
// file taking precedence. When neither exists the built-in catalog is used.
func ReadCatalog(name string) (Catalog, error) {
	var out Catalog
	found := false

	ext := filepath.Ext(name)
	localName := strings.TrimSuffix(name, ext) + ".local" + ext

	for i, path := range []string{name, localName} {
		b, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) || (err == nil && len(b) == 0) {
			continue
		}
		if err != nil {
			return out, err
		}
		var c Catalog
		if err := json5.Unmarshal(b, &c); err != nil {
			return out, fmt.Errorf("query catalog %s: %w", path, err)
		}
		if err := mergo.Merge(&out, c, mergo.WithOverride); err != nil {
			return out, err
		}
		if i > 0 {
			slog.Info("merging query catalog with local overrides", "local", path)
		}
		found = true
	}

	if !found {
		slog.Info("No query catalog found, using built-in", "path", name)
		return DefaultCatalog()
	}
	return out, out.validate()
}

func (c Catalog) validate() error {
	for i, q := range c.Queries {
		if strings.TrimSpace(q.SQL) == "" {
			return fmt.Errorf("query %d (%q) has no sql", i, q.Question)
		}
	}
	return nil
}

// Render substitutes table into every query.
func (c Catalog) Render(table string) []Query {
	out := make([]Query, len(c.Queries))
	for i, q := range c.Queries {
		out[i] = Query{Question: q.Question, SQL: strings.ReplaceAll(q.SQL, tablePlaceholder, table)}
	}
	return out
}
