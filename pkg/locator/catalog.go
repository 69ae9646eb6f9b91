package locator

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrUnknownTarget is returned when a catalog has no strategy for a target.
var ErrUnknownTarget = errors.New("locator: unknown target")

// Strategy is the ordered rule list for one semantic target.
type Strategy struct {
	Target string
	Rules  []Rule
}

// RuleNames returns the rule names in declared order.
func (s Strategy) RuleNames() []string {
	names := make([]string, len(s.Rules))
	for i, r := range s.Rules {
		names[i] = r.Name
	}
	return names
}

// Catalog is an immutable, versioned set of strategies.
type Catalog struct {
	version    string
	strategies map[string]Strategy
}

// catalogFile is the on-disk representation of a catalog. Other top-level
// keys are ignored so applications can keep related layout data in the
// same document.
type catalogFile struct {
	Version string            `yaml:"version"`
	Targets map[string][]Rule `yaml:"targets"`
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode locator catalog: %w", err)
	}
	if file.Version == "" {
		return nil, fmt.Errorf("locator catalog: version is required")
	}
	if len(file.Targets) == 0 {
		return nil, fmt.Errorf("locator catalog %s: no targets defined", file.Version)
	}

	c := &Catalog{
		version:    file.Version,
		strategies: make(map[string]Strategy, len(file.Targets)),
	}
	for target, rules := range file.Targets {
		if len(rules) == 0 {
			return nil, fmt.Errorf("locator catalog %s: target %q has no rules", file.Version, target)
		}
		seen := make(map[string]bool, len(rules))
		for _, r := range rules {
			if err := r.Validate(); err != nil {
				return nil, fmt.Errorf("locator catalog %s: target %q: %w", file.Version, target, err)
			}
			if seen[r.Name] {
				return nil, fmt.Errorf("locator catalog %s: target %q: duplicate rule %q", file.Version, target, r.Name)
			}
			seen[r.Name] = true
		}
		c.strategies[target] = Strategy{Target: target, Rules: append([]Rule(nil), rules...)}
	}
	return c, nil
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locator catalog: %w", err)
	}
	return ParseCatalog(data)
}

// Version returns the catalog version string.
func (c *Catalog) Version() string {
	return c.version
}

// Strategy returns the strategy for target. The returned rules are a copy.
func (c *Catalog) Strategy(target string) (Strategy, error) {
	s, ok := c.strategies[target]
	if !ok {
		return Strategy{}, fmt.Errorf("%w: %q (catalog %s)", ErrUnknownTarget, target, c.version)
	}
	return Strategy{Target: s.Target, Rules: append([]Rule(nil), s.Rules...)}, nil
}

// Targets returns all target names in sorted order.
func (c *Catalog) Targets() []string {
	names := make([]string, 0, len(c.strategies))
	for name := range c.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
