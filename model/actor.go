package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ActorStatus is derived from health after every health change.
type ActorStatus string

const (
	StatusAlive   ActorStatus = "ALIVE"
	StatusInjured ActorStatus = "INJURED"
	StatusDead    ActorStatus = "DEAD"
)

const (
	MaxHealth        = 100
	InjuredThreshold = 30
)

// StatusForHealth maps a clamped health value onto the actor status.
func StatusForHealth(health int) ActorStatus {
	switch {
	case health <= 0:
		return StatusDead
	case health < InjuredThreshold:
		return StatusInjured
	default:
		return StatusAlive
	}
}

// ClampHealth bounds health to [0, MaxHealth].
func ClampHealth(health int) int {
	if health < 0 {
		return 0
	}
	if health > MaxHealth {
		return MaxHealth
	}
	return health
}

// Actor is a player-controlled or autonomous entity. Actors are never
// hard-deleted; death is a status.
type Actor struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string         `gorm:"uniqueIndex;size:64;not null" json:"name"`
	FactionID       *int64         `gorm:"index:idx_actor_faction" json:"faction_id"`
	Alignment       string         `gorm:"size:32" json:"alignment"`
	Health          int            `gorm:"not null" json:"health"`
	Status          ActorStatus    `gorm:"size:16;not null;index:idx_actor_status" json:"status"`
	Job             string         `gorm:"size:32" json:"job"`
	CurrentAction   string         `gorm:"size:32" json:"current_action"`
	ActionExpiresAt *time.Time     `json:"action_expires_at"`
	Traits          datatypes.JSON `json:"traits"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// Traits holds the actor's skills and habits.
type Traits struct {
	Skills map[string]int `json:"skills,omitempty"`
	Habits []string       `json:"habits,omitempty"`
}

// ParseTraits decodes the traits column. Malformed JSON yields empty traits.
func (a *Actor) ParseTraits() Traits {
	var t Traits
	if len(a.Traits) == 0 {
		return t
	}
	_ = json.Unmarshal(a.Traits, &t)
	return t
}

// EncodeTraits is the inverse of ParseTraits.
func EncodeTraits(t Traits) datatypes.JSON {
	b, _ := json.Marshal(t)
	return datatypes.JSON(b)
}

// Acting reports whether the actor has an unexpired action at now.
func (a *Actor) Acting(now time.Time) bool {
	return a.CurrentAction != "" && a.ActionExpiresAt != nil && a.ActionExpiresAt.After(now)
}
