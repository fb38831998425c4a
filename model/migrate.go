package model

import "gorm.io/gorm"

// allModels lists every model to be auto-migrated.
var allModels = []interface{}{
	&Faction{},
	&Actor{},
	&Wallet{},
	&Transaction{},
	&Item{},
	&InventorySlot{},
	&Recipe{},
	&RecipeIngredient{},
	&MarketListing{},
	&TrustState{},
	&TrustEvent{},
	&MemoryEvent{},
	&Mission{},
	&WorldEvent{},
	&AuditLog{},
}

// AutoMigrate creates or updates all tables in the given database.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(allModels...)
}
