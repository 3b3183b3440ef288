package flags

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// SystemDefinition is the on-disk shape of one flag system: a name and a
// fixed name-to-bit mapping. The bit values are part of the stored-data
// contract and must be powers of two, unique within the system.
//
// Example definition file:
//
//	systems:
//	  quality_control:
//	    out_of_range: 1
//	    spike: 2
//	    low_battery: 4
//	  provenance:
//	    infilled: 1
//	    invalid_aggregate: 2
type SystemDefinition struct {
	Systems map[string]map[string]uint64 `yaml:"systems"`
}

// LoadSystems parses a YAML flag-system definition and builds a registry per
// system. Names and bits are bound in ascending bit order so that future
// Register calls continue above the highest configured bit.
func LoadSystems(data []byte) (map[string]*Registry, error) {
	var def SystemDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing flag systems: %w", err)
	}
	out := make(map[string]*Registry, len(def.Systems))
	for systemName, entries := range def.Systems {
		reg := NewRegistry(systemName)

		names := make([]string, 0, len(entries))
		for name := range entries {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool { return entries[names[i]] < entries[names[j]] })

		for _, name := range names {
			if err := reg.registerAt(name, Mask(entries[name])); err != nil {
				return nil, fmt.Errorf("flag system %q: %w", systemName, err)
			}
		}
		out[systemName] = reg
	}
	return out, nil
}
