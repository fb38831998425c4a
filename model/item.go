package model

import (
	"encoding/json"

	"gorm.io/datatypes"
)

type ItemType string

const (
	ItemWeapon     ItemType = "WEAPON"
	ItemArmor      ItemType = "ARMOR"
	ItemConsumable ItemType = "CONSUMABLE"
	ItemResource   ItemType = "RESOURCE"
)

// Equippable reports whether items of this type can occupy an equip slot.
func (t ItemType) Equippable() bool {
	return t == ItemWeapon || t == ItemArmor
}

// Item is a catalog entry. Stats is decoded through ParseStats.
type Item struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string         `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Type        ItemType       `gorm:"size:16;not null;index:idx_item_type" json:"type"`
	Value       int            `gorm:"not null" json:"value"`
	Stats       datatypes.JSON `json:"stats"`
}

// Stats is one of DamageStats, DefenseStats, HealStats, TierStats or UnknownStats.
type Stats interface {
	statsKind() string
}

type DamageStats struct {
	Damage int `json:"damage"`
}

type DefenseStats struct {
	Defense int `json:"defense"`
}

type HealStats struct {
	Heal int `json:"heal"`
}

// TierStats marks scavenged resources by rarity tier.
type TierStats struct {
	Tier int `json:"tier"`
}

// UnknownStats keeps stat maps that match no known shape.
type UnknownStats map[string]any

func (DamageStats) statsKind() string  { return "damage" }
func (DefenseStats) statsKind() string { return "defense" }
func (HealStats) statsKind() string    { return "heal" }
func (TierStats) statsKind() string    { return "tier" }
func (UnknownStats) statsKind() string { return "unknown" }

// ParseStats decodes a stats column into its typed variant. Empty input
// yields an empty UnknownStats.
func ParseStats(raw datatypes.JSON) Stats {
	fields := map[string]json.RawMessage{}
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil {
		return UnknownStats{}
	}
	intField := func(key string) (int, bool) {
		v, ok := fields[key]
		if !ok {
			return 0, false
		}
		var f float64
		if json.Unmarshal(v, &f) != nil {
			return 0, false
		}
		return int(f), true
	}
	if n, ok := intField("damage"); ok {
		return DamageStats{Damage: n}
	}
	if n, ok := intField("defense"); ok {
		return DefenseStats{Defense: n}
	}
	if n, ok := intField("heal"); ok {
		return HealStats{Heal: n}
	}
	if n, ok := intField("tier"); ok {
		return TierStats{Tier: n}
	}
	out := UnknownStats{}
	_ = json.Unmarshal(raw, &out)
	return out
}

// EncodeStats serializes a typed stats value for storage.
func EncodeStats(s Stats) datatypes.JSON {
	if s == nil {
		return datatypes.JSON("{}")
	}
	b, _ := json.Marshal(s)
	return datatypes.JSON(b)
}

// Damage returns the weapon damage stat, or 0.
func (i *Item) Damage() int {
	if s, ok := ParseStats(i.Stats).(DamageStats); ok {
		return s.Damage
	}
	return 0
}

// Defense returns the armor defense stat, or 0.
func (i *Item) Defense() int {
	if s, ok := ParseStats(i.Stats).(DefenseStats); ok {
		return s.Defense
	}
	return 0
}
