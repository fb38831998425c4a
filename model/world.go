package model

import "time"

type WorldEventType string

const (
	EventWeather   WorldEventType = "WEATHER"
	EventPolitical WorldEventType = "POLITICAL"
	EventInvasion  WorldEventType = "INVASION"
	EventResource  WorldEventType = "RESOURCE"
	EventAnomaly   WorldEventType = "ANOMALY"
)

// Valid reports whether t is a known event type.
func (t WorldEventType) Valid() bool {
	switch t {
	case EventWeather, EventPolitical, EventInvasion, EventResource, EventAnomaly:
		return true
	}
	return false
}

type WorldEvent struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string         `gorm:"size:128;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Type        WorldEventType `gorm:"size:16;not null" json:"type"`
	Active      bool           `gorm:"index:idx_world_event_active;not null" json:"active"`
	CreatedAt   time.Time      `gorm:"index:idx_world_event_created;autoCreateTime:milli" json:"created_at"`
}

// Faction groups actors; its members are actors with a matching FactionID.
type Faction struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:50;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Goals       string    `gorm:"type:text" json:"goals"`
	Resources   int       `gorm:"not null" json:"resources"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
