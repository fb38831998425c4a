package resource

import (
	"context"
	"fmt"

	"github.com/kasuganosora/fracturesim/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedReport counts what Seed wrote.
type SeedReport struct {
	Items          int `json:"items"`
	RecipesCreated int `json:"recipes_created"`
}

// Seed upserts every catalog item by name and creates recipes that do not
// exist yet. Existing recipes are left untouched.
func Seed(ctx context.Context, db *gorm.DB, cat *Catalog, logger *zap.Logger) (*SeedReport, error) {
	rep := &SeedReport{}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range cat.Items {
			it := model.Item{
				Name:        def.Name,
				Description: def.Description,
				Type:        def.Type,
				Value:       def.Value,
				Stats:       model.EncodeStats(def.TypedStats()),
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"description", "type", "value", "stats"}),
			}).Create(&it).Error; err != nil {
				return fmt.Errorf("item %q: %w", def.Name, err)
			}
			rep.Items++
		}

		var items []model.Item
		if err := tx.Select("id", "name").Find(&items).Error; err != nil {
			return err
		}
		ids := make(map[string]int64, len(items))
		for _, it := range items {
			ids[it.Name] = it.ID
		}

		for _, def := range cat.Recipes {
			var n int64
			if err := tx.Model(&model.Recipe{}).Where("name = ?", def.Name).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			r := model.Recipe{
				Name:         def.Name,
				Description:  def.Description,
				OutputItemID: ids[def.Output],
				OutputQty:    def.Qty,
			}
			for _, ing := range def.Ingredients {
				r.Ingredients = append(r.Ingredients, model.RecipeIngredient{ItemID: ids[ing.Item], Qty: ing.Qty})
			}
			if err := tx.Create(&r).Error; err != nil {
				return fmt.Errorf("recipe %q: %w", def.Name, err)
			}
			rep.RecipesCreated++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resource: seed: %w", err)
	}
	logger.Info("catalog seeded", zap.Int("items", rep.Items), zap.Int("recipes_created", rep.RecipesCreated))
	return rep, nil
}
