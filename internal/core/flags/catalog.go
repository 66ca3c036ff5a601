package flags

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

const (
	GroupCore     = "core"
	GroupUI       = "ui"
	GroupAdvanced = "advanced"
	GroupDebug    = "debug"
)

type Rollout struct {
	Percentage *float64 `yaml:"percentage,omitempty" toml:"percentage,omitempty" json:"percentage,omitempty"`
	Stage      string   `yaml:"stage,omitempty" toml:"stage,omitempty" json:"stage,omitempty"`
}

// Definition is one catalog entry.
type Definition struct {
	Name         string          `yaml:"name" toml:"name" json:"name"`
	Description  string          `yaml:"description,omitempty" toml:"description,omitempty" json:"description,omitempty"`
	Group        string          `yaml:"group" toml:"group" json:"group"`
	Enabled      bool            `yaml:"enabled" toml:"enabled" json:"enabled"`
	Environments map[string]bool `yaml:"environments,omitempty" toml:"environments,omitempty" json:"environments,omitempty"`
	MinTier      domain.Tier     `yaml:"minTier,omitempty" toml:"minTier,omitempty" json:"minTier,omitempty"`
	RequiresRole string          `yaml:"requiresRole,omitempty" toml:"requiresRole,omitempty" json:"requiresRole,omitempty"`
	BetaOnly     bool            `yaml:"betaOnly,omitempty" toml:"betaOnly,omitempty" json:"betaOnly,omitempty"`
	Experimental bool            `yaml:"experimental,omitempty" toml:"experimental,omitempty" json:"experimental,omitempty"`
	DependsOn    []string        `yaml:"dependsOn,omitempty" toml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	Rollout      *Rollout        `yaml:"rollout,omitempty" toml:"rollout,omitempty" json:"rollout,omitempty"`
	OverrideEnv  string          `yaml:"overrideEnv,omitempty" toml:"overrideEnv,omitempty" json:"overrideEnv,omitempty"`
	EnableEnv    string          `yaml:"enableEnv,omitempty" toml:"enableEnv,omitempty" json:"enableEnv,omitempty"`
	Config       map[string]any  `yaml:"config,omitempty" toml:"config,omitempty" json:"config,omitempty"`
}

type Catalog struct {
	Version int          `yaml:"version" toml:"version" json:"version"`
	Flags   []Definition `yaml:"flags" toml:"flags" json:"flags"`

	index map[string]int
}

// NormalizeName maps "USE_SMART_ROUTER" and "use-smart-router" to the
// catalog spelling.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() *Catalog {
	c, err := ParseYAML(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded flag catalog: %v", err))
	}
	return c
}

func ParseYAML(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse flag catalog: %w", err)
	}
	if err := c.Prepare(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Prepare normalizes names and builds the lookup index. Catalogs decoded
// from other formats must call it before use.
func (c *Catalog) Prepare() error {
	c.index = make(map[string]int, len(c.Flags))
	for i := range c.Flags {
		def := &c.Flags[i]
		def.Name = NormalizeName(def.Name)
		if def.Name == "" {
			return fmt.Errorf("flag catalog entry %d has no name", i)
		}
		if _, dup := c.index[def.Name]; dup {
			return fmt.Errorf("flag catalog: duplicate flag %q", def.Name)
		}
		if def.Group == "" {
			def.Group = GroupCore
		}
		for j, dep := range def.DependsOn {
			def.DependsOn[j] = NormalizeName(dep)
		}
		c.index[def.Name] = i
	}
	return nil
}

func (c *Catalog) Lookup(name string) (Definition, bool) {
	if c == nil {
		return Definition{}, false
	}
	i, ok := c.index[NormalizeName(name)]
	if !ok {
		return Definition{}, false
	}
	return c.Flags[i], true
}

func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.Flags))
	for _, def := range c.Flags {
		out = append(out, def.Name)
	}
	return out
}

// Groups lists flag names per group, sorted.
func (c *Catalog) Groups() map[string][]string {
	out := make(map[string][]string)
	for _, def := range c.Flags {
		out[def.Group] = append(out[def.Group], def.Name)
	}
	for _, names := range out {
		sort.Strings(names)
	}
	return out
}

// Validate reports unknown dependencies, dependency cycles and unknown
// tiers. An empty slice means the catalog is consistent.
func (c *Catalog) Validate() []string {
	problems := []string{}
	for _, def := range c.Flags {
		for _, dep := range def.DependsOn {
			if _, ok := c.index[dep]; !ok {
				problems = append(problems, fmt.Sprintf("%s depends on unknown flag %s", def.Name, dep))
			}
		}
		switch def.MinTier {
		case "", domain.TierBasic, domain.TierProfessional, domain.TierEnterprise:
		default:
			problems = append(problems, fmt.Sprintf("%s has unknown minTier %s", def.Name, def.MinTier))
		}
		if def.Rollout != nil && def.Rollout.Percentage != nil {
			if p := *def.Rollout.Percentage; p < 0 || p > 100 {
				problems = append(problems, fmt.Sprintf("%s has rollout percentage %v outside [0,100]", def.Name, p))
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(c.Flags))
	var visit func(name string, trail []string)
	visit = func(name string, trail []string) {
		switch state[name] {
		case done:
			return
		case visiting:
			problems = append(problems, "dependency cycle: "+strings.Join(append(trail, name), " -> "))
			return
		}
		state[name] = visiting
		path := append(append([]string(nil), trail...), name)
		if def, ok := c.Lookup(name); ok {
			for _, dep := range def.DependsOn {
				visit(dep, path)
			}
		}
		state[name] = done
	}
	for _, name := range c.Names() {
		if state[name] == unvisited {
			visit(name, nil)
		}
	}
	return problems
}
