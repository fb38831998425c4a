// Package resource loads the item and recipe catalog and seeds it into the
// database.
package resource

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/kasuganosora/fracturesim/model"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type ItemDef struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Type        model.ItemType `yaml:"type"`
	Value       int            `yaml:"value"`
	Stats       map[string]int `yaml:"stats"`
}

type IngredientDef struct {
	Item string `yaml:"item"`
	Qty  int    `yaml:"qty"`
}

type RecipeDef struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Output      string          `yaml:"output"`
	Qty         int             `yaml:"qty"`
	Ingredients []IngredientDef `yaml:"ingredients"`
}

// Catalog is the parsed seed data.
type Catalog struct {
	Items   []ItemDef   `yaml:"items"`
	Recipes []RecipeDef `yaml:"recipes"`
}

// Loader reads a catalog from Path, or the embedded default when Path is empty.
type Loader struct {
	Path    string
	Catalog *Catalog
}

func NewLoader(path string) *Loader {
	return &Loader{Path: path}
}

// Load reads and validates the catalog.
func (l *Loader) Load() error {
	data := defaultCatalog
	src := "embedded catalog"
	if l.Path != "" {
		b, err := os.ReadFile(l.Path)
		if err != nil {
			return fmt.Errorf("resource: read %s: %w", l.Path, err)
		}
		data, src = b, l.Path
	}
	cat, err := Parse(data)
	if err != nil {
		return fmt.Errorf("resource: parse %s: %w", src, err)
	}
	l.Catalog = cat
	return nil
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, err
	}
	if err := cat.validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Catalog) validate() error {
	names := make(map[string]bool, len(c.Items))
	for i, it := range c.Items {
		if it.Name == "" {
			return fmt.Errorf("item %d: missing name", i)
		}
		if names[it.Name] {
			return fmt.Errorf("item %q: duplicate name", it.Name)
		}
		switch it.Type {
		case model.ItemWeapon, model.ItemArmor, model.ItemConsumable, model.ItemResource:
		default:
			return fmt.Errorf("item %q: unknown type %q", it.Name, it.Type)
		}
		if it.Value < 0 {
			return fmt.Errorf("item %q: negative value", it.Name)
		}
		names[it.Name] = true
	}
	for _, r := range c.Recipes {
		if r.Name == "" || r.Output == "" {
			return fmt.Errorf("recipe %q: name and output are required", r.Name)
		}
		if !names[r.Output] {
			return fmt.Errorf("recipe %q: unknown output %q", r.Name, r.Output)
		}
		if r.Qty < 1 {
			return fmt.Errorf("recipe %q: qty must be at least 1", r.Name)
		}
		if len(r.Ingredients) == 0 {
			return fmt.Errorf("recipe %q: no ingredients", r.Name)
		}
		for _, ing := range r.Ingredients {
			if !names[ing.Item] {
				return fmt.Errorf("recipe %q: unknown ingredient %q", r.Name, ing.Item)
			}
			if ing.Qty < 1 {
				return fmt.Errorf("recipe %q: ingredient %q qty must be at least 1", r.Name, ing.Item)
			}
		}
	}
	return nil
}

// TypedStats converts the YAML stat map into the typed stats stored on items.
func (d ItemDef) TypedStats() model.Stats {
	if n, ok := d.Stats["damage"]; ok {
		return model.DamageStats{Damage: n}
	}
	if n, ok := d.Stats["defense"]; ok {
		return model.DefenseStats{Defense: n}
	}
	if n, ok := d.Stats["heal"]; ok {
		return model.HealStats{Heal: n}
	}
	if n, ok := d.Stats["tier"]; ok {
		return model.TierStats{Tier: n}
	}
	return nil
}
