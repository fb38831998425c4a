// Package trust keeps pairwise trust levels between actors and each actor's
// memory log.
package trust

import (
	"context"
	"errors"

	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeltaFor returns the trust change an interaction type carries.
func DeltaFor(eventType string) float64 {
	switch eventType {
	case model.TrustEventHelp:
		return 5
	case model.TrustEventBetray:
		return -10
	case model.TrustEventGreet:
		return 1
	default:
		return 0
	}
}

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Adjust adds delta to source's trust in target and logs the change.
// Concurrent adjustments on the same pair accumulate.
func (svc *Service) Adjust(ctx context.Context, sourceID, targetID int64, delta float64, eventType string) (*model.TrustEvent, error) {
	var ev *model.TrustEvent
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ev, err = AdjustTx(tx, sourceID, targetID, delta, eventType)
		return err
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Debug("trust adjusted",
		zap.Int64("source_id", sourceID), zap.Int64("target_id", targetID),
		zap.Float64("delta", delta), zap.Float64("trust", ev.ResultingTrust))
	return ev, nil
}

// AdjustTx is Adjust inside an existing transaction.
func AdjustTx(tx *gorm.DB, sourceID, targetID int64, delta float64, eventType string) (*model.TrustEvent, error) {
	if sourceID == targetID {
		return nil, gameerr.Validationf("an actor cannot adjust trust in itself")
	}
	if eventType == "" {
		return nil, gameerr.Validationf("event type is required")
	}
	state := &model.TrustState{SourceID: sourceID, TargetID: targetID, TrustLevel: delta}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}, {Name: "target_id"}},
		DoUpdates: clause.Assignments(map[string]any{"trust_level": gorm.Expr("trust_level + ?", delta)}),
	}).Create(state).Error
	if err != nil {
		return nil, err
	}
	level, err := levelTx(tx, sourceID, targetID)
	if err != nil {
		return nil, err
	}
	ev := &model.TrustEvent{
		SourceID:       sourceID,
		TargetID:       targetID,
		Delta:          delta,
		ResultingTrust: level,
		EventType:      eventType,
	}
	if err := tx.Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// ForceHostile pins source's trust in target to the hostility floor.
func (svc *Service) ForceHostile(ctx context.Context, sourceID, targetID int64) (*model.TrustEvent, error) {
	var ev *model.TrustEvent
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ev, err = ForceHostileTx(tx, sourceID, targetID)
		return err
	})
	return ev, err
}

// ForceHostileTx records the actual change as a COMBAT event.
func ForceHostileTx(tx *gorm.DB, sourceID, targetID int64) (*model.TrustEvent, error) {
	if sourceID == targetID {
		return nil, gameerr.Validationf("an actor cannot be hostile to itself")
	}
	var prev model.TrustState
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("source_id = ? AND target_id = ?", sourceID, targetID).First(&prev).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		prev.TrustLevel = 0
	case err != nil:
		return nil, err
	}

	state := &model.TrustState{SourceID: sourceID, TargetID: targetID, TrustLevel: model.HostilityFloor}
	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}, {Name: "target_id"}},
		DoUpdates: clause.Assignments(map[string]any{"trust_level": model.HostilityFloor}),
	}).Create(state).Error
	if err != nil {
		return nil, err
	}
	ev := &model.TrustEvent{
		SourceID:       sourceID,
		TargetID:       targetID,
		Delta:          model.HostilityFloor - prev.TrustLevel,
		ResultingTrust: model.HostilityFloor,
		EventType:      model.TrustEventCombat,
	}
	if err := tx.Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

func levelTx(tx *gorm.DB, sourceID, targetID int64) (float64, error) {
	var st model.TrustState
	err := tx.Where("source_id = ? AND target_id = ?", sourceID, targetID).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return st.TrustLevel, err
}

// Trust returns source's trust in target; 0 for a pair that never interacted.
func (svc *Service) Trust(ctx context.Context, sourceID, targetID int64) (float64, error) {
	return levelTx(svc.db.WithContext(ctx), sourceID, targetID)
}

// Relations lists every trust state held by sourceID.
func (svc *Service) Relations(ctx context.Context, sourceID int64) ([]model.TrustState, error) {
	var out []model.TrustState
	err := svc.db.WithContext(ctx).Where("source_id = ?", sourceID).
		Order("trust_level DESC").Find(&out).Error
	return out, err
}

// Events returns trust changes involving actorID as source or target, newest first.
func (svc *Service) Events(ctx context.Context, actorID int64, limit int) ([]model.TrustEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []model.TrustEvent
	err := svc.db.WithContext(ctx).
		Where("source_id = ? OR target_id = ?", actorID, actorID).
		Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// WipeTrust deletes all trust states and events.
func (svc *Service) WipeTrust(ctx context.Context) (int64, error) {
	var n int64
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.TrustEvent{})
		if res.Error != nil {
			return res.Error
		}
		res2 := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.TrustState{})
		if res2.Error != nil {
			return res2.Error
		}
		n = res2.RowsAffected
		return nil
	})
	if err == nil {
		svc.logger.Warn("trust wiped", zap.Int64("states", n))
	}
	return n, err
}
