// Package depscan finds saved filters and review rooms whose stored queries
// still reference an entity by name.
//
// Matching is a case-insensitive containment test of the predicate shape
// "= '<name>'" against the persisted parsed query text. A name that appears
// inside an unrelated predicate with the same shape is reported as a
// dependent too.
package depscan

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tallyflow/workcfg/internal/db"
	"github.com/tallyflow/workcfg/internal/models"
	"gorm.io/gorm"
)

// Dependent sources.
const (
	SourceFilter = "filter"
	SourceRoom   = "room"
)

// Dependent is one stored query that references a candidate name.
type Dependent struct {
	Source      string `json:"source"`
	DisplayName string `json:"displayName"`
}

// Report maps a candidate name to its dependents. Names without dependents
// are absent.
type Report map[string][]Dependent

// Names returns the blocked names in sorted order.
func (r Report) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pattern returns the LIKE pattern matching a predicate on name.
func Pattern(name string) string {
	return "%= '" + db.EscapeLike(strings.ToLower(name)) + "'%"
}

const predicate = "tenant_id = ? AND datasource_id = ? AND LOWER(parsed_query) LIKE ? ESCAPE '" + db.LikeEscape + "'"

// FindDependents scans the saved filters and review rooms of one datasource
// for references to each candidate name. tx may be a transaction handle; the
// scan is read-only.
func FindDependents(ctx context.Context, tx *gorm.DB, tenant, datasourceID string, names []string) (Report, error) {
	report := make(Report)
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		pattern := Pattern(key)
		var deps []Dependent

		var filters []models.SavedFilter
		if err := tx.WithContext(ctx).
			Where(predicate, tenant, datasourceID, pattern).
			Order("name").
			Find(&filters).Error; err != nil {
			return nil, fmt.Errorf("depscan: scan saved filters for %q: %w", name, err)
		}
		for _, f := range filters {
			deps = append(deps, Dependent{Source: SourceFilter, DisplayName: f.Name})
		}

		var rooms []models.ReviewRoom
		if err := tx.WithContext(ctx).
			Where(predicate, tenant, datasourceID, pattern).
			Order("name").
			Find(&rooms).Error; err != nil {
			return nil, fmt.Errorf("depscan: scan review rooms for %q: %w", name, err)
		}
		for _, r := range rooms {
			deps = append(deps, Dependent{Source: SourceRoom, DisplayName: r.Name})
		}

		if len(deps) > 0 {
			report[name] = deps
		}
	}
	return report, nil
}
