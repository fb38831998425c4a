package item

import (
	"context"
	"testing"

	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/model"
	"github.com/kasuganosora/fracturesim/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createRecipe(t *testing.T, db *gorm.DB, name string, out *model.Item, ings map[*model.Item]int) *model.Recipe {
	t.Helper()
	r := &model.Recipe{Name: name, OutputItemID: out.ID, OutputQty: 1}
	for it, qty := range ings {
		r.Ingredients = append(r.Ingredients, model.RecipeIngredient{ItemID: it.ID, Qty: qty})
	}
	require.NoError(t, db.Create(r).Error)
	return r
}

func TestCraft_ShortIngredientChangesNothing(t *testing.T) {
	svc, db, a := setup(t)
	scrap := testutil.CreateItem(t, db, "Scrap Metal", model.ItemResource, model.TierStats{Tier: 1})
	armor := testutil.CreateItem(t, db, "Scrap Armor", model.ItemArmor, model.DefenseStats{Defense: 10})
	r := createRecipe(t, db, "Scrap Armor", armor, map[*model.Item]int{scrap: 5})
	testutil.Give(t, db, a.ID, scrap.ID, 3)

	_, err := svc.Craft(context.Background(), r.ID, a.ID)
	require.ErrorIs(t, err, gameerr.ErrInsufficientIngredients)

	ge, ok := gameerr.As(err)
	require.True(t, ok)
	missing, ok := ge.Details.([]Shortfall)
	require.True(t, ok)
	require.Len(t, missing, 1)
	assert.Equal(t, "Scrap Metal", missing[0].Item)
	assert.Equal(t, 5, missing[0].Required)
	assert.Equal(t, 3, missing[0].Have)

	assert.Equal(t, 3, testutil.Qty(t, db, a.ID, scrap.ID))
	assert.Equal(t, 0, testutil.Qty(t, db, a.ID, armor.ID))
}

func TestCraft_ConsumesAndCredits(t *testing.T) {
	svc, db, a := setup(t)
	bandage := testutil.CreateItem(t, db, "Bandage", model.ItemResource, nil)
	antiseptic := testutil.CreateItem(t, db, "Antiseptic", model.ItemResource, nil)
	medkit := testutil.CreateItem(t, db, "Medkit", model.ItemConsumable, model.HealStats{Heal: 30})
	r := createRecipe(t, db, "Medkit", medkit, map[*model.Item]int{bandage: 1, antiseptic: 1})
	testutil.Give(t, db, a.ID, bandage.ID, 1)
	testutil.Give(t, db, a.ID, antiseptic.ID, 2)

	res, err := svc.Craft(context.Background(), r.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Medkit", res.Recipe)
	assert.Equal(t, 1, res.Qty)

	assert.Equal(t, 0, testutil.Qty(t, db, a.ID, bandage.ID))
	assert.Equal(t, 1, testutil.Qty(t, db, a.ID, antiseptic.ID))
	assert.Equal(t, 1, testutil.Qty(t, db, a.ID, medkit.ID))
}

func TestCraft_PartialShortReportsOnlyMissing(t *testing.T) {
	svc, db, a := setup(t)
	scrap := testutil.CreateItem(t, db, "Scrap Metal", model.ItemResource, nil)
	parts := testutil.CreateItem(t, db, "Weapon Parts", model.ItemResource, nil)
	knife := testutil.CreateItem(t, db, "Rusty Knife", model.ItemWeapon, model.DamageStats{Damage: 5})
	r := createRecipe(t, db, "Rusty Knife", knife, map[*model.Item]int{scrap: 2, parts: 1})
	testutil.Give(t, db, a.ID, scrap.ID, 2)

	_, err := svc.Craft(context.Background(), r.ID, a.ID)
	require.ErrorIs(t, err, gameerr.ErrInsufficientIngredients)
	ge, _ := gameerr.As(err)
	missing := ge.Details.([]Shortfall)
	require.Len(t, missing, 1)
	assert.Equal(t, parts.ID, missing[0].ItemID)
	assert.Equal(t, 0, missing[0].Have)
	assert.Equal(t, 2, testutil.Qty(t, db, a.ID, scrap.ID))
}

func TestCraft_UnknownRecipe(t *testing.T) {
	svc, _, a := setup(t)
	_, err := svc.Craft(context.Background(), 42, a.ID)
	assert.ErrorIs(t, err, gameerr.ErrRecipeNotFound)
}

func TestRecipesAndCatalog(t *testing.T) {
	svc, db, _ := setup(t)
	scrap := testutil.CreateItem(t, db, "Scrap Metal", model.ItemResource, nil)
	armor := testutil.CreateItem(t, db, "Scrap Armor", model.ItemArmor, model.DefenseStats{Defense: 10})
	createRecipe(t, db, "Scrap Armor", armor, map[*model.Item]int{scrap: 5})

	recipes, err := svc.Recipes(context.Background())
	require.NoError(t, err)
	require.Len(t, recipes, 1)
	require.Len(t, recipes[0].Ingredients, 1)
	assert.Equal(t, "Scrap Metal", recipes[0].Ingredients[0].Item.Name)
	assert.Equal(t, "Scrap Armor", recipes[0].OutputItem.Name)

	res, err := svc.Catalog(context.Background(), model.ItemResource)
	require.NoError(t, err)
	require.Len(t, res, 1)
	all, _ := svc.Catalog(context.Background(), "")
	assert.Len(t, all, 2)
}
