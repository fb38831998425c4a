package resource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kasuganosora/fracturesim/model"
	"github.com/kasuganosora/fracturesim/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoad_Embedded(t *testing.T) {
	l := NewLoader("")
	require.NoError(t, l.Load())
	require.NotNil(t, l.Catalog)
	assert.Len(t, l.Catalog.Recipes, 3)

	byName := map[string]ItemDef{}
	for _, it := range l.Catalog.Items {
		byName[it.Name] = it
	}
	assert.Equal(t, model.DamageStats{Damage: 25}, byName["Laser Pistol"].TypedStats())
	assert.Equal(t, model.DefenseStats{Defense: 10}, byName["Scrap Armor"].TypedStats())
	assert.Equal(t, model.HealStats{Heal: 30}, byName["Medkit"].TypedStats())
	assert.Equal(t, model.TierStats{Tier: 3}, byName["Void Essence"].TypedStats())
	assert.Nil(t, byName["Bandage"].TypedStats())
}

func TestLoad_FileErrors(t *testing.T) {
	err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	assert.ErrorContains(t, err, "resource: read")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("items: [{name: X, type: GADGET}]"), 0o644))
	err = NewLoader(bad).Load()
	assert.ErrorContains(t, err, `unknown type "GADGET"`)
}

func TestParse_Validation(t *testing.T) {
	cases := map[string]string{
		"duplicate":          "items: [{name: A, type: RESOURCE}, {name: A, type: RESOURCE}]",
		"unknown output":     "items: [{name: A, type: RESOURCE}]\nrecipes: [{name: R, output: B, qty: 1, ingredients: [{item: A, qty: 1}]}]",
		"unknown ingredient": "items: [{name: A, type: RESOURCE}]\nrecipes: [{name: R, output: A, qty: 1, ingredients: [{item: Z, qty: 1}]}]",
		"zero qty":           "items: [{name: A, type: RESOURCE}]\nrecipes: [{name: R, output: A, qty: 0, ingredients: [{item: A, qty: 1}]}]",
		"no ingredients":     "items: [{name: A, type: RESOURCE}]\nrecipes: [{name: R, output: A, qty: 1}]",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			assert.Error(t, err)
		})
	}
}

func TestSeed_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	l := NewLoader("")
	require.NoError(t, l.Load())
	ctx := context.Background()

	rep, err := Seed(ctx, db, l.Catalog, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, len(l.Catalog.Items), rep.Items)
	assert.Equal(t, 3, rep.RecipesCreated)

	rep, err = Seed(ctx, db, l.Catalog, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.RecipesCreated)

	var items int64
	require.NoError(t, db.Model(&model.Item{}).Count(&items).Error)
	assert.EqualValues(t, len(l.Catalog.Items), items)

	var knife model.Item
	require.NoError(t, db.Where("name = ?", "Rusty Knife").First(&knife).Error)
	assert.Equal(t, 5, knife.Damage())

	var r model.Recipe
	require.NoError(t, db.Preload("Ingredients.Item").Where("name = ?", "Craft Rusty Knife").First(&r).Error)
	assert.Equal(t, knife.ID, r.OutputItemID)
	require.Len(t, r.Ingredients, 2)
	got := map[string]int{}
	for _, ing := range r.Ingredients {
		got[ing.Item.Name] = ing.Qty
	}
	assert.Equal(t, map[string]int{"Scrap Metal": 2, "Weapon Parts": 1}, got)
}
