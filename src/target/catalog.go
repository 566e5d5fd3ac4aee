package target

import (
	"fmt"
	"sort"
	"strings"
)

// Service describes how one infrastructure service is controlled and which
// database schemas it owns.
type Service struct {
	Name string `yaml:"-" mapstructure:"-"`
	// Units are the service-manager unit names in stop order (API first).
	Units []string `yaml:"units" mapstructure:"units"`
	// Schemas are the database schemas restored together with the service.
	Schemas []string `yaml:"schemas" mapstructure:"schemas"`
	// Rank orders services within a run; lower runs first.
	Rank int `yaml:"rank" mapstructure:"rank"`
}

// StartUnits returns the units in start order, the reverse of stop order.
func (s Service) StartUnits() []string {
	out := make([]string, len(s.Units))
	for i, u := range s.Units {
		out[len(s.Units)-1-i] = u
	}
	return out
}

// Catalog maps a service name to its definition.
type Catalog map[string]Service

// DefaultCatalog returns the built-in service definitions.
func DefaultCatalog() Catalog {
	return Catalog{
		"keystone": {
			Name:    "keystone",
			Units:   []string{"keystone"},
			Schemas: []string{"keystone"},
			Rank:    10,
		},
		"nova": {
			Name: "nova",
			Units: []string{
				"nova-api",
				"nova-cert",
				"nova-scheduler",
				"nova-objectstore",
				"nova-consoleauth",
				"nova-novncproxy",
			},
			Schemas: []string{"nova"},
			Rank:    20,
		},
		"glance": {
			Name:    "glance",
			Units:   []string{"glance-api", "glance-registry"},
			Schemas: []string{"glance"},
			Rank:    30,
		},
		"cinder": {
			Name:    "cinder",
			Units:   []string{"cinder-api", "cinder-scheduler", "cinder-volume"},
			Schemas: []string{"cinder"},
			Rank:    40,
		},
		"neutron": {
			Name: "neutron",
			Units: []string{
				"neutron-server",
				"neutron-dhcp-agent",
				"neutron-l3-agent",
				"neutron-metadata-agent",
				"neutron-plugin-openvswitch-agent",
			},
			Schemas: []string{"neutron"},
			Rank:    50,
		},
	}
}

// Merge returns a copy of c with overrides applied. An override with units
// or schemas replaces the corresponding list; a zero rank keeps the existing
// rank, or places a new service after every built-in one.
func (c Catalog) Merge(overrides map[string]Service) (Catalog, error) {
	out := make(Catalog, len(c)+len(overrides))
	maxRank := 0
	for name, svc := range c {
		out[name] = svc
		if svc.Rank > maxRank {
			maxRank = svc.Rank
		}
	}
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, raw := range names {
		o := overrides[raw]
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || name == DatabaseName {
			return nil, fmt.Errorf("invalid service name %q in catalog override", raw)
		}
		svc, exists := out[name]
		svc.Name = name
		if len(o.Units) > 0 {
			svc.Units = append([]string(nil), o.Units...)
		}
		if len(o.Schemas) > 0 {
			svc.Schemas = append([]string(nil), o.Schemas...)
		}
		switch {
		case o.Rank != 0:
			svc.Rank = o.Rank
		case !exists:
			maxRank += 10
			svc.Rank = maxRank
		}
		if len(svc.Units) == 0 {
			return nil, fmt.Errorf("service %q has no units", name)
		}
		out[name] = svc
	}
	return out, nil
}

// Names returns service names in rank order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := c[names[i]], c[names[j]]
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		return names[i] < names[j]
	})
	return names
}

// Units expands a name to unit names. Unknown names are returned as-is so
// callers may address individual units directly.
func (c Catalog) Units(name string) []string {
	if svc, ok := c[name]; ok {
		return append([]string(nil), svc.Units...)
	}
	return []string{name}
}

// OwnerOf returns the service that owns schema, if any.
func (c Catalog) OwnerOf(schema string) (string, bool) {
	for _, name := range c.Names() {
		for _, s := range c[name].Schemas {
			if s == schema {
				return name, true
			}
		}
	}
	return "", false
}

func (c Catalog) rank() map[string]int {
	out := make(map[string]int, len(c))
	for name, svc := range c {
		out[name] = svc.Rank
	}
	return out
}
