package trust

import (
	"context"

	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	MinImportance = 1
	MaxImportance = 10
)

// Memory is the input for RecordMemory.
type Memory struct {
	ActorID    int64
	Raw        string
	Summary    string
	Importance int
	Tags       []string
}

// RecordMemory appends a memory to the actor's log.
func (svc *Service) RecordMemory(ctx context.Context, m Memory) (*model.MemoryEvent, error) {
	var ev *model.MemoryEvent
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.Actor{}).Where("id = ?", m.ActorID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return gameerr.ErrActorNotFound
		}
		var err error
		ev, err = RecordMemoryTx(tx, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Debug("memory recorded", zap.Int64("actor_id", m.ActorID), zap.Int("importance", m.Importance))
	return ev, nil
}

// RecordMemoryTx is RecordMemory inside an existing transaction. The actor
// is assumed to exist.
func RecordMemoryTx(tx *gorm.DB, m Memory) (*model.MemoryEvent, error) {
	if m.Importance < MinImportance || m.Importance > MaxImportance {
		return nil, gameerr.Validationf("importance must be between %d and %d, got %d", MinImportance, MaxImportance, m.Importance)
	}
	ev := &model.MemoryEvent{
		ActorID:    m.ActorID,
		RawContent: m.Raw,
		Summary:    m.Summary,
		Importance: m.Importance,
		Tags:       model.JoinTags(m.Tags),
	}
	if err := tx.Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// Memories returns the actor's newest memories.
func (svc *Service) Memories(ctx context.Context, actorID int64, limit int) ([]model.MemoryEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	var out []model.MemoryEvent
	err := svc.db.WithContext(ctx).Where("actor_id = ?", actorID).
		Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// ImportantMemories returns memories at or above minImportance, most
// important first.
func (svc *Service) ImportantMemories(ctx context.Context, actorID int64, minImportance, limit int) ([]model.MemoryEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 10
	}
	var out []model.MemoryEvent
	err := svc.db.WithContext(ctx).
		Where("actor_id = ? AND importance >= ?", actorID, minImportance).
		Order("importance DESC, id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// WipeMemories deletes every memory.
func (svc *Service) WipeMemories(ctx context.Context) (int64, error) {
	res := svc.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.MemoryEvent{})
	if res.Error != nil {
		return 0, res.Error
	}
	svc.logger.Warn("memories wiped", zap.Int64("count", res.RowsAffected))
	return res.RowsAffected, nil
}
