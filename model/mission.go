package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type MissionStatus string

const (
	MissionPending   MissionStatus = "PENDING"
	MissionAccepted  MissionStatus = "ACCEPTED"
	MissionDeclined  MissionStatus = "DECLINED"
	MissionCompleted MissionStatus = "COMPLETED"
	MissionFailed    MissionStatus = "FAILED"
)

// Mission is a contract from giver to receiver with an optional credit and
// item reward, settled on completion.
type Mission struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	GiverID       int64           `gorm:"index:idx_mission_giver;not null" json:"giver_id"`
	ReceiverID    int64           `gorm:"index:idx_mission_receiver;not null" json:"receiver_id"`
	Title         string          `gorm:"size:128;not null" json:"title"`
	Description   string          `gorm:"type:text" json:"description"`
	RewardCredits decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"reward_credits"`
	RewardItemID  *int64          `json:"reward_item_id"`
	Status        MissionStatus   `gorm:"size:16;not null;index:idx_mission_status" json:"status"`
	StartedAt     *time.Time      `json:"started_at"`
	DurationS     int             `gorm:"not null" json:"duration_s"`
	CompletedAt   *time.Time      `json:"completed_at"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Deadline is StartedAt + DurationS; zero if not started.
func (m *Mission) Deadline() time.Time {
	if m.StartedAt == nil {
		return time.Time{}
	}
	return m.StartedAt.Add(time.Duration(m.DurationS) * time.Second)
}
