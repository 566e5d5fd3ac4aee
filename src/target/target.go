package target

import (
	"fmt"
	"sort"
	"strings"
)

// Kind distinguishes the database tier from an infrastructure service.
type Kind string

const (
	KindDatabase Kind = "database"
	KindService  Kind = "service"
)

// DatabaseName is the target name used for the database tier. It is also
// the prefix of database backup-set directories (mysql-<timestamp>).
const DatabaseName = "mysql"

// Target identifies one unit of selection for backup or restore.
type Target struct {
	Kind Kind
	Name string
}

// Database returns the database-tier target.
func Database() Target {
	return Target{Kind: KindDatabase, Name: DatabaseName}
}

// ServiceTarget returns the target for a named service.
func ServiceTarget(name string) Target {
	return Target{Kind: KindService, Name: name}
}

// IsDatabase reports whether t is the database tier.
func (t Target) IsDatabase() bool { return t.Kind == KindDatabase }

// String returns the name used in backup-set directory names.
func (t Target) String() string { return t.Name }

// Parse resolves a user-supplied name ("mysql", "nova", ...) against the
// catalog. The database tier is always recognised.
func Parse(raw string, catalog Catalog) (Target, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return Target{}, fmt.Errorf("target must not be empty")
	}
	if name == DatabaseName {
		return Database(), nil
	}
	if _, ok := catalog[name]; ok {
		return ServiceTarget(name), nil
	}
	return Target{}, fmt.Errorf("unknown target %q (known: %s)", raw, strings.Join(append([]string{DatabaseName}, catalog.Names()...), ", "))
}

// Order returns targets with the database tier first and services in catalog
// order. Duplicates are dropped.
func Order(targets []Target, catalog Catalog) []Target {
	seen := map[Target]bool{}
	var db []Target
	var svcs []Target
	for _, t := range targets {
		if seen[t] {
			continue
		}
		seen[t] = true
		if t.IsDatabase() {
			db = append(db, t)
			continue
		}
		svcs = append(svcs, t)
	}
	rank := catalog.rank()
	sort.SliceStable(svcs, func(i, j int) bool {
		ri, okI := rank[svcs[i].Name]
		rj, okJ := rank[svcs[j].Name]
		switch {
		case okI && okJ:
			return ri < rj
		case okI != okJ:
			return okI
		}
		return svcs[i].Name < svcs[j].Name
	})
	return append(db, svcs...)
}
