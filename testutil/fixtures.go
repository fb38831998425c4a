package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/kasuganosora/fracturesim/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var fixtureSeq int64

// CreateActor inserts a healthy, idle actor.
func CreateActor(t *testing.T, db *gorm.DB, name string) *model.Actor {
	t.Helper()
	a := &model.Actor{Name: name, Health: model.MaxHealth, Status: model.StatusAlive, Alignment: "NEUTRAL"}
	require.NoError(t, db.Create(a).Error, "CreateActor")
	return a
}

// SetHealth overwrites an actor's health and derived status.
func SetHealth(t *testing.T, db *gorm.DB, a *model.Actor, health int) {
	t.Helper()
	a.Health = health
	a.Status = model.StatusForHealth(health)
	require.NoError(t, db.Model(a).Updates(map[string]any{"health": a.Health, "status": a.Status}).Error)
}

// CreateItem inserts a catalog item.
func CreateItem(t *testing.T, db *gorm.DB, name string, typ model.ItemType, stats model.Stats) *model.Item {
	t.Helper()
	it := &model.Item{Name: name, Type: typ, Value: 10, Stats: model.EncodeStats(stats)}
	require.NoError(t, db.Create(it).Error, "CreateItem")
	return it
}

// CreateWallet inserts a wallet with the given balance. ownerID 0 means unowned.
func CreateWallet(t *testing.T, db *gorm.DB, ownerID int64, balance int64) *model.Wallet {
	t.Helper()
	w := &model.Wallet{
		Address: fmt.Sprintf("0xtest%d%s", atomic.AddInt64(&fixtureSeq, 1), strings.ReplaceAll(uuid.NewString(), "-", "")[:8]),
		Balance: decimal.NewFromInt(balance),
	}
	if ownerID != 0 {
		w.OwnerID = &ownerID
	}
	require.NoError(t, db.Create(w).Error, "CreateWallet")
	return w
}

// Give sets an actor's stack of itemID to qty.
func Give(t *testing.T, db *gorm.DB, actorID, itemID int64, qty int) *model.InventorySlot {
	t.Helper()
	slot := &model.InventorySlot{ActorID: actorID, ItemID: itemID, Qty: qty}
	require.NoError(t, db.Create(slot).Error, "Give")
	return slot
}

// Qty returns the actor's held quantity of itemID, 0 when no slot exists.
func Qty(t *testing.T, db *gorm.DB, actorID, itemID int64) int {
	t.Helper()
	var slots []model.InventorySlot
	require.NoError(t, db.Where("actor_id = ? AND item_id = ?", actorID, itemID).Find(&slots).Error)
	if len(slots) == 0 {
		return 0
	}
	return slots[0].Qty
}

// Balance reloads a wallet's balance.
func Balance(t *testing.T, db *gorm.DB, address string) decimal.Decimal {
	t.Helper()
	var w model.Wallet
	require.NoError(t, db.Where("address = ?", address).First(&w).Error)
	return w.Balance
}
