package achievement

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the immutable list of achievement definitions, ordered by
// SortOrder.
type Catalog struct {
	defs  []Definition
	index map[string]int
}

type catalogFile struct {
	Achievements []rawDefinition `yaml:"achievements"`
}

type rawDefinition struct {
	Definition `yaml:",inline"`
	Active     *bool `yaml:"is_active"`
}

// Load parses and validates a YAML catalog.
func Load(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	defs := make([]Definition, 0, len(file.Achievements))
	for _, raw := range file.Achievements {
		def := raw.Definition
		def.IsActive = raw.Active == nil || *raw.Active
		defs = append(defs, def)
	}
	return New(defs)
}

// New builds a catalog from definitions after validating them.
func New(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		defs:  make([]Definition, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	copy(c.defs, defs)

	for _, d := range c.defs {
		if err := validate(d); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(c.defs, func(i, j int) bool {
		return c.defs[i].SortOrder < c.defs[j].SortOrder
	})
	for i, d := range c.defs {
		if _, dup := c.index[d.ID]; dup {
			return nil, fmt.Errorf("duplicate achievement id %q", d.ID)
		}
		c.index[d.ID] = i
	}
	return c, nil
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Load(defaultCatalog)
}

func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

func validate(d Definition) error {
	if d.ID == "" {
		return fmt.Errorf("achievement without id")
	}
	if d.Threshold <= 0 {
		return fmt.Errorf("achievement %q: threshold must be positive", d.ID)
	}
	if d.Points < 0 {
		return fmt.Errorf("achievement %q: negative points", d.ID)
	}
	switch d.Category {
	case CategoryWorkout, CategoryStreak, CategoryPR, CategoryTime, CategoryNutrition, CategorySocial, CategoryGoal:
	default:
		return fmt.Errorf("achievement %q: unknown category %q", d.ID, d.Category)
	}
	if !d.MetricType.Known() {
		return fmt.Errorf("achievement %q: unknown metric type %q", d.ID, d.MetricType)
	}
	known := false
	for _, r := range Rarities {
		if r == d.Rarity {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("achievement %q: unknown rarity %q", d.ID, d.Rarity)
	}
	return nil
}

// All returns every definition, including inactive ones.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Active returns the definitions that take part in evaluation.
func (c *Catalog) Active() []Definition {
	out := make([]Definition, 0, len(c.defs))
	for _, d := range c.defs {
		if d.IsActive {
			out = append(out, d)
		}
	}
	return out
}

func (c *Catalog) Get(id string) (Definition, bool) {
	i, ok := c.index[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

func (c *Catalog) Len() int { return len(c.defs) }
