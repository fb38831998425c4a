package item

import (
	"context"
	"errors"
	"time"

	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service handles inventory, equipment and crafting.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService creates a new item Service.
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// AddItem adds qty of itemID to the actor's stack, creating the slot if needed.
func (svc *Service) AddItem(ctx context.Context, actorID, itemID int64, qty int) error {
	if qty <= 0 {
		return gameerr.Validationf("qty must be positive")
	}
	return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireActor(tx, actorID); err != nil {
			return err
		}
		if _, err := FindItem(tx, itemID); err != nil {
			return err
		}
		return CreditTx(tx, actorID, itemID, qty)
	})
}

// RemoveItem takes qty of itemID from the actor. The slot is deleted when
// it reaches zero.
func (svc *Service) RemoveItem(ctx context.Context, actorID, itemID int64, qty int) error {
	if qty <= 0 {
		return gameerr.Validationf("qty must be positive")
	}
	return svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := DebitTx(tx, actorID, itemID, qty)
		return err
	})
}

// List returns the actor's inventory with item details.
func (svc *Service) List(ctx context.Context, actorID int64) ([]model.InventorySlot, error) {
	var slots []model.InventorySlot
	err := svc.db.WithContext(ctx).Preload("Item").
		Where("actor_id = ?", actorID).Order("id").Find(&slots).Error
	return slots, err
}

// ---- transaction helpers ----

func requireActor(tx *gorm.DB, actorID int64) error {
	var n int64
	if err := tx.Model(&model.Actor{}).Where("id = ?", actorID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return gameerr.ErrActorNotFound
	}
	return nil
}

// FindItem loads a catalog item.
func FindItem(tx *gorm.DB, itemID int64) (*model.Item, error) {
	var it model.Item
	if err := tx.First(&it, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gameerr.ErrItemNotFound
		}
		return nil, err
	}
	return &it, nil
}

// CreditTx increments the (actor, item) slot with a single upsert so
// concurrent credits add up.
func CreditTx(tx *gorm.DB, actorID, itemID int64, qty int) error {
	slot := &model.InventorySlot{ActorID: actorID, ItemID: itemID, Qty: qty}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "actor_id"}, {Name: "item_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"qty":        gorm.Expr("qty + ?", qty),
			"updated_at": time.Now(),
		}),
	}).Create(slot).Error
}

// Shortfall describes one missing quantity.
type Shortfall struct {
	ItemID   int64  `json:"item_id"`
	Item     string `json:"item,omitempty"`
	Required int    `json:"required"`
	Have     int    `json:"have"`
}

// lockSlot returns the row-locked slot, or nil when the actor holds none.
func lockSlot(tx *gorm.DB, actorID, itemID int64) (*model.InventorySlot, error) {
	var slots []model.InventorySlot
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("actor_id = ? AND item_id = ?", actorID, itemID).Limit(1).Find(&slots).Error
	if err != nil || len(slots) == 0 {
		return nil, err
	}
	return &slots[0], nil
}

// DebitTx removes qty from the slot, deleting it at zero, and returns the
// quantity left.
func DebitTx(tx *gorm.DB, actorID, itemID int64, qty int) (int, error) {
	slot, err := lockSlot(tx, actorID, itemID)
	if err != nil {
		return 0, err
	}
	have := 0
	if slot != nil {
		have = slot.Qty
	}
	if have < qty {
		return have, gameerr.ErrInsufficientItems.WithDetails(Shortfall{ItemID: itemID, Required: qty, Have: have})
	}
	left := have - qty
	if left <= 0 {
		return 0, tx.Delete(&model.InventorySlot{}, slot.ID).Error
	}
	return left, tx.Model(&model.InventorySlot{}).Where("id = ?", slot.ID).Update("qty", left).Error
}

// HeldTx returns the actor's quantity of itemID.
func HeldTx(tx *gorm.DB, actorID, itemID int64) (int, error) {
	slot, err := lockSlot(tx, actorID, itemID)
	if err != nil || slot == nil {
		return 0, err
	}
	return slot.Qty, nil
}
