package model

import (
	"strings"
	"time"
)

// Trust event types.
const (
	TrustEventHelp   = "HELP"
	TrustEventBetray = "BETRAY"
	TrustEventGreet  = "GREET"
	TrustEventCombat = "COMBAT"
	TrustEventTrade  = "TRADE"
)

// HostilityFloor is the trust level combat pins a defender to.
const HostilityFloor = -100.0

// TrustState is one actor's disposition toward another. Unbounded.
type TrustState struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceID   int64     `gorm:"uniqueIndex:idx_trust_pair;not null" json:"source_id"`
	TargetID   int64     `gorm:"uniqueIndex:idx_trust_pair;not null" json:"target_id"`
	TrustLevel float64   `gorm:"not null" json:"trust_level"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TrustEvent is an append-only record of a trust change.
type TrustEvent struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceID       int64     `gorm:"index:idx_trust_event_pair;not null" json:"source_id"`
	TargetID       int64     `gorm:"index:idx_trust_event_pair;not null" json:"target_id"`
	Delta          float64   `gorm:"not null" json:"delta"`
	ResultingTrust float64   `gorm:"not null" json:"resulting_trust"`
	EventType      string    `gorm:"size:32;not null" json:"event_type"`
	CreatedAt      time.Time `gorm:"autoCreateTime:milli" json:"created_at"`
}

// MemoryEvent is an immutable record of something an actor experienced.
type MemoryEvent struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorID    int64     `gorm:"index:idx_memory_actor;not null" json:"actor_id"`
	RawContent string    `gorm:"type:text" json:"raw_content"`
	Summary    string    `gorm:"type:text" json:"summary"`
	Importance int       `gorm:"not null" json:"importance"`
	Tags       string    `gorm:"size:255" json:"tags"` // comma separated
	CreatedAt  time.Time `gorm:"index:idx_memory_created;autoCreateTime:milli" json:"created_at"`
}

// TagList splits the stored tag string.
func (m *MemoryEvent) TagList() []string {
	if m.Tags == "" {
		return nil
	}
	return strings.Split(m.Tags, ",")
}

// JoinTags is the inverse of TagList.
func JoinTags(tags []string) string {
	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			clean = append(clean, t)
		}
	}
	return strings.Join(clean, ",")
}
