// Package profile loads squad profiles: blocks of organisational context
// inserted near the front of every stage conversation when a squad is
// selected. Absence of the profiles file is a valid default state.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Squad describes one squad's context.
type Squad struct {
	DisplayName               string   `yaml:"display_name"`
	Mission                   string   `yaml:"mission"`
	PrimaryUsers              []string `yaml:"primary_users"`
	SystemsOwned              []string `yaml:"systems_owned"`
	Responsibilities          []string `yaml:"responsibilities"`
	NonFunctionalPriorities   []string `yaml:"non_functional_priorities"`
	GoodTicketCharacteristics []string `yaml:"good_ticket_characteristics"`
}

// Profiles is a set of squads keyed by upper-cased name.
type Profiles map[string]Squad

// DefaultPath returns ~/.release/squads.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".release", "squads.yaml"), nil
}

// Load reads squad profiles from the YAML file at path. A missing file
// yields an empty set, not an error.
func Load(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Profiles{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read squads file: %w", err)
	}

	raw := make(map[string]Squad)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse squads YAML: %w", err)
	}

	profiles := make(Profiles, len(raw))
	for name, squad := range raw {
		profiles[strings.ToUpper(strings.TrimSpace(name))] = squad
	}
	return profiles, nil
}

// Lookup returns the squad for name, case-insensitively.
func (p Profiles) Lookup(name string) (Squad, bool) {
	squad, ok := p[strings.ToUpper(strings.TrimSpace(name))]
	return squad, ok
}

// Names returns the configured squad names, sorted.
func (p Profiles) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Format renders the compact multi-section context block for prompting.
func (s Squad) Format() string {
	display := s.DisplayName
	if display == "" {
		display = "Unknown Squad"
	}
	mission := strings.TrimSpace(s.Mission)
	if mission == "" {
		mission = "Not specified"
	}

	sections := []string{
		"Squad: " + display,
		"",
		"Mission:",
		mission,
		"",
		"Primary users:",
		formatList(s.PrimaryUsers),
		"",
		"Systems owned:",
		formatList(s.SystemsOwned),
		"",
		"Responsibilities:",
		formatList(s.Responsibilities),
		"",
		"Non-functional priorities:",
		formatList(s.NonFunctionalPriorities),
		"",
		"Characteristics of good tickets for this squad:",
		formatList(s.GoodTicketCharacteristics),
	}
	return strings.TrimSpace(strings.Join(sections, "\n"))
}

func formatList(items []string) string {
	var lines []string
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			lines = append(lines, "- "+trimmed)
		}
	}
	if len(lines) == 0 {
		return "- Not specified"
	}
	return strings.Join(lines, "\n")
}
