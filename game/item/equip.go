package item

import (
	"context"
	"errors"

	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Equip sets or clears the equipped flag on the actor's stack of itemID.
// Equipping first unequips any other slot holding the same item type, so an
// actor has at most one weapon and one armor equipped.
func (svc *Service) Equip(ctx context.Context, actorID, itemID int64, equip bool) (*model.InventorySlot, error) {
	var out model.InventorySlot
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The actor row lock serializes equips for the same actor.
		var actor model.Actor
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&actor, actorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return gameerr.ErrActorNotFound
			}
			return err
		}
		slot, err := lockSlot(tx, actorID, itemID)
		if err != nil {
			return err
		}
		if slot == nil {
			return gameerr.ErrItemNotFound.Withf("item %d not in inventory", itemID)
		}
		it, err := FindItem(tx, itemID)
		if err != nil {
			return err
		}

		if equip {
			if !it.Type.Equippable() {
				return gameerr.ErrItemNotEquippable
			}
			sameType := tx.Model(&model.Item{}).Select("id").Where("type = ?", it.Type)
			if err := tx.Model(&model.InventorySlot{}).
				Where("actor_id = ? AND equipped = ? AND id <> ? AND item_id IN (?)", actorID, true, slot.ID, sameType).
				Update("equipped", false).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&model.InventorySlot{}).Where("id = ?", slot.ID).Update("equipped", equip).Error; err != nil {
			return err
		}
		slot.Equipped = equip
		slot.Item = it
		out = *slot
		return nil
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Debug("equip",
		zap.Int64("actor_id", actorID), zap.Int64("item_id", itemID), zap.Bool("equip", equip))
	return &out, nil
}

// EquippedTx returns the actor's equipped item of the given type, or nil.
func EquippedTx(tx *gorm.DB, actorID int64, typ model.ItemType) (*model.Item, error) {
	var items []model.Item
	err := tx.Model(&model.Item{}).
		Joins("JOIN inventory_slots ON inventory_slots.item_id = items.id").
		Where("inventory_slots.actor_id = ? AND inventory_slots.equipped = ? AND items.type = ?", actorID, true, typ).
		Limit(1).Find(&items).Error
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}
