package item

import (
	"context"
	"errors"

	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CraftResult is what a successful craft produced.
type CraftResult struct {
	Recipe   string      `json:"recipe"`
	Output   *model.Item `json:"output"`
	Qty      int         `json:"qty"`
	Consumed []Shortfall `json:"consumed"` // Required is the consumed quantity
}

// Craft consumes a recipe's ingredients from the actor and credits the
// output. Either every ingredient is consumed or nothing changes.
func (svc *Service) Craft(ctx context.Context, recipeID, actorID int64) (*CraftResult, error) {
	var res *CraftResult
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var recipe model.Recipe
		if err := tx.Preload("Ingredients.Item").Preload("OutputItem").First(&recipe, recipeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return gameerr.ErrRecipeNotFound
			}
			return err
		}
		if err := requireActor(tx, actorID); err != nil {
			return err
		}

		needs := aggregate(recipe.Ingredients)
		var missing []Shortfall
		for _, need := range needs {
			have, err := HeldTx(tx, actorID, need.ItemID)
			if err != nil {
				return err
			}
			if have < need.Required {
				need.Have = have
				missing = append(missing, need)
			}
		}
		if len(missing) > 0 {
			return gameerr.ErrInsufficientIngredients.WithDetails(missing)
		}

		for _, need := range needs {
			if _, err := DebitTx(tx, actorID, need.ItemID, need.Required); err != nil {
				return err
			}
		}
		if err := CreditTx(tx, actorID, recipe.OutputItemID, recipe.OutputQty); err != nil {
			return err
		}
		res = &CraftResult{Recipe: recipe.Name, Output: recipe.OutputItem, Qty: recipe.OutputQty, Consumed: needs}
		return nil
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Info("craft", zap.Int64("actor_id", actorID), zap.String("recipe", res.Recipe))
	return res, nil
}

// aggregate folds duplicate ingredient rows into one requirement per item,
// keeping recipe order.
func aggregate(ings []model.RecipeIngredient) []Shortfall {
	idx := make(map[int64]int, len(ings))
	var out []Shortfall
	for _, ing := range ings {
		if i, ok := idx[ing.ItemID]; ok {
			out[i].Required += ing.Qty
			continue
		}
		name := ""
		if ing.Item != nil {
			name = ing.Item.Name
		}
		idx[ing.ItemID] = len(out)
		out = append(out, Shortfall{ItemID: ing.ItemID, Item: name, Required: ing.Qty})
	}
	return out
}

// Recipes lists every recipe with ingredients and output.
func (svc *Service) Recipes(ctx context.Context) ([]model.Recipe, error) {
	var recipes []model.Recipe
	err := svc.db.WithContext(ctx).Preload("Ingredients.Item").Preload("OutputItem").
		Order("name").Find(&recipes).Error
	return recipes, err
}

// Catalog lists items, optionally filtered by type.
func (svc *Service) Catalog(ctx context.Context, typ model.ItemType) ([]model.Item, error) {
	q := svc.db.WithContext(ctx).Order("id")
	if typ != "" {
		q = q.Where("type = ?", typ)
	}
	var items []model.Item
	err := q.Find(&items).Error
	return items, err
}
