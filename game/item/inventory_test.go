package item

import (
	"context"
	"sync"
	"testing"

	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/model"
	"github.com/kasuganosora/fracturesim/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func nop() *zap.Logger { return zap.NewNop() }

func setup(t *testing.T) (*Service, *gorm.DB, *model.Actor) {
	db := testutil.SetupTestDB(t)
	return NewService(db, nop()), db, testutil.CreateActor(t, db, "Mara")
}

func TestAddItem_StacksIntoOneSlot(t *testing.T) {
	svc, db, a := setup(t)
	scrap := testutil.CreateItem(t, db, "Scrap Metal", model.ItemResource, model.TierStats{Tier: 1})
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, a.ID, scrap.ID, 2))
	require.NoError(t, svc.AddItem(ctx, a.ID, scrap.ID, 3))

	slots, err := svc.List(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 5, slots[0].Qty)
	require.NotNil(t, slots[0].Item)
	assert.Equal(t, "Scrap Metal", slots[0].Item.Name)
}

func TestAddItem_Validation(t *testing.T) {
	svc, db, a := setup(t)
	scrap := testutil.CreateItem(t, db, "Scrap Metal", model.ItemResource, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.AddItem(ctx, a.ID, scrap.ID, 0), gameerr.ErrValidation)
	assert.ErrorIs(t, svc.AddItem(ctx, a.ID, 999, 1), gameerr.ErrItemNotFound)
	assert.ErrorIs(t, svc.AddItem(ctx, 999, scrap.ID, 1), gameerr.ErrActorNotFound)
}

func TestAddItem_ConcurrentCreditsSum(t *testing.T) {
	svc, db, a := setup(t)
	scrap := testutil.CreateItem(t, db, "Scrap Metal", model.ItemResource, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.AddItem(context.Background(), a.ID, scrap.ID, 1))
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, testutil.Qty(t, db, a.ID, scrap.ID))
}

func TestRemoveItem_DeletesEmptiedSlot(t *testing.T) {
	svc, db, a := setup(t)
	scrap := testutil.CreateItem(t, db, "Scrap Metal", model.ItemResource, nil)
	testutil.Give(t, db, a.ID, scrap.ID, 3)
	ctx := context.Background()

	require.NoError(t, svc.RemoveItem(ctx, a.ID, scrap.ID, 1))
	assert.Equal(t, 2, testutil.Qty(t, db, a.ID, scrap.ID))

	require.NoError(t, svc.RemoveItem(ctx, a.ID, scrap.ID, 2))
	var n int64
	db.Model(&model.InventorySlot{}).Where("actor_id = ?", a.ID).Count(&n)
	assert.Zero(t, n, "slot at zero must be deleted")
}

func TestRemoveItem_Insufficient(t *testing.T) {
	svc, db, a := setup(t)
	scrap := testutil.CreateItem(t, db, "Scrap Metal", model.ItemResource, nil)
	testutil.Give(t, db, a.ID, scrap.ID, 2)

	err := svc.RemoveItem(context.Background(), a.ID, scrap.ID, 3)
	require.ErrorIs(t, err, gameerr.ErrInsufficientItems)
	ge, _ := gameerr.As(err)
	assert.Equal(t, Shortfall{ItemID: scrap.ID, Required: 3, Have: 2}, ge.Details)
	assert.Equal(t, 2, testutil.Qty(t, db, a.ID, scrap.ID))

	assert.ErrorIs(t, svc.RemoveItem(context.Background(), a.ID, 777, 1), gameerr.ErrInsufficientItems)
}

func TestEquip_OnePerType(t *testing.T) {
	svc, db, a := setup(t)
	knife := testutil.CreateItem(t, db, "Rusty Knife", model.ItemWeapon, model.DamageStats{Damage: 5})
	pistol := testutil.CreateItem(t, db, "Laser Pistol", model.ItemWeapon, model.DamageStats{Damage: 25})
	armor := testutil.CreateItem(t, db, "Scrap Armor", model.ItemArmor, model.DefenseStats{Defense: 10})
	for _, it := range []*model.Item{knife, pistol, armor} {
		testutil.Give(t, db, a.ID, it.ID, 1)
	}
	ctx := context.Background()

	_, err := svc.Equip(ctx, a.ID, knife.ID, true)
	require.NoError(t, err)
	_, err = svc.Equip(ctx, a.ID, armor.ID, true)
	require.NoError(t, err)
	slot, err := svc.Equip(ctx, a.ID, pistol.ID, true)
	require.NoError(t, err)
	assert.True(t, slot.Equipped)

	w, err := EquippedTx(db, a.ID, model.ItemWeapon)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, pistol.ID, w.ID)

	ar, err := EquippedTx(db, a.ID, model.ItemArmor)
	require.NoError(t, err)
	require.NotNil(t, ar, "equipping a weapon must not touch armor")

	var equippedWeapons int64
	db.Model(&model.InventorySlot{}).
		Joins("JOIN items ON items.id = inventory_slots.item_id").
		Where("inventory_slots.actor_id = ? AND inventory_slots.equipped = ? AND items.type = ?", a.ID, true, model.ItemWeapon).
		Count(&equippedWeapons)
	assert.Equal(t, int64(1), equippedWeapons)

	_, err = svc.Equip(ctx, a.ID, pistol.ID, false)
	require.NoError(t, err)
	w, err = EquippedTx(db, a.ID, model.ItemWeapon)
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestEquip_Errors(t *testing.T) {
	svc, db, a := setup(t)
	medkit := testutil.CreateItem(t, db, "Medkit", model.ItemConsumable, model.HealStats{Heal: 30})
	knife := testutil.CreateItem(t, db, "Rusty Knife", model.ItemWeapon, model.DamageStats{Damage: 5})
	testutil.Give(t, db, a.ID, medkit.ID, 1)
	ctx := context.Background()

	_, err := svc.Equip(ctx, a.ID, medkit.ID, true)
	assert.ErrorIs(t, err, gameerr.ErrItemNotEquippable)

	_, err = svc.Equip(ctx, a.ID, knife.ID, true)
	assert.ErrorIs(t, err, gameerr.ErrItemNotFound)

	_, err = svc.Equip(ctx, 999, knife.ID, true)
	assert.ErrorIs(t, err, gameerr.ErrActorNotFound)
}
