package model

import "time"

// InventorySlot is the unique (actor, item) stack. Qty is always > 0;
// emptied slots are deleted.
type InventorySlot struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorID   int64     `gorm:"uniqueIndex:idx_slot_actor_item;not null" json:"actor_id"`
	ItemID    int64     `gorm:"uniqueIndex:idx_slot_actor_item;not null" json:"item_id"`
	Qty       int       `gorm:"not null" json:"qty"`
	Equipped  bool      `gorm:"not null" json:"equipped"`
	Item      *Item     `gorm:"foreignKey:ItemID" json:"item,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Recipe converts a list of ingredients into an output stack.
type Recipe struct {
	ID           int64              `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string             `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Description  string             `gorm:"type:text" json:"description"`
	OutputItemID int64              `gorm:"not null" json:"output_item_id"`
	OutputQty    int                `gorm:"not null" json:"output_qty"`
	OutputItem   *Item              `gorm:"foreignKey:OutputItemID" json:"output_item,omitempty"`
	Ingredients  []RecipeIngredient `gorm:"foreignKey:RecipeID" json:"ingredients"`
}

type RecipeIngredient struct {
	ID       int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	RecipeID int64 `gorm:"index:idx_ingredient_recipe;not null" json:"recipe_id"`
	ItemID   int64 `gorm:"not null" json:"item_id"`
	Qty      int   `gorm:"not null" json:"qty"`
	Item     *Item `gorm:"foreignKey:ItemID" json:"item,omitempty"`
}
