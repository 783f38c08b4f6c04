package initscript

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile names a radio preset: a list of init-script lines to run for a
// given attached-module model. This supplements the bare newline-separated
// init file spec.md §4.3 describes, letting one file describe several
// presets (SPEC_FULL.md's YAML profile supplement).
type Profile struct {
	Name  string   `yaml:"name"`
	Lines []string `yaml:"lines"`
}

// ProfileSet is a named collection of profiles, as read from a YAML file.
type ProfileSet struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadProfiles reads and parses a YAML profile file.
func LoadProfiles(path string) (ProfileSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ProfileSet{}, fmt.Errorf("initscript: read profile file: %w", err)
	}
	var set ProfileSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return ProfileSet{}, fmt.Errorf("initscript: parse profile file %s: %w", path, err)
	}
	return set, nil
}

// Find returns the named profile's init-script lines.
func (s ProfileSet) Find(name string) ([]string, bool) {
	for _, p := range s.Profiles {
		if p.Name == name {
			return p.Lines, true
		}
	}
	return nil, false
}
