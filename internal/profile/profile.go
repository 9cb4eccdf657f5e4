// Package profile loads the audio device profiles, provider presets that
// tune synthesized audio for a class of playback device.
package profile

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Profile struct {
	Name string `yaml:"name" json:"name"`
	ID   string `yaml:"id" json:"id"`
}

var ErrNotFound = errors.New("audio profile not found")

// Catalog is the immutable list of profiles in file order.
type Catalog struct {
	profiles []Profile
}

// Load reads a JSON or YAML list of {name, id} pairs.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio profiles: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var profiles []Profile
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parse audio profiles: %w", err)
	}
	seen := make(map[string]bool, len(profiles))
	for i, p := range profiles {
		if p.Name == "" {
			return nil, fmt.Errorf("audio profile %d has no name", i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate audio profile %q", p.Name)
		}
		seen[p.Name] = true
	}
	return &Catalog{profiles: profiles}, nil
}

func (c *Catalog) All() []Profile {
	out := make([]Profile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

func (c *Catalog) Names() []string {
	out := make([]string, len(c.profiles))
	for i, p := range c.profiles {
		out[i] = p.Name
	}
	return out
}

// Lookup finds a profile by display name.
func (c *Catalog) Lookup(name string) (Profile, error) {
	for _, p := range c.profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Default is the first profile, or the zero Profile for an empty catalog.
func (c *Catalog) Default() Profile {
	if len(c.profiles) == 0 {
		return Profile{}
	}
	return c.profiles[0]
}
