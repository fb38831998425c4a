package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketListing is goods held in escrow by the market until bought or cancelled.
type MarketListing struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SellerID  int64           `gorm:"index:idx_listing_seller;not null" json:"seller_id"`
	ItemID    int64           `gorm:"index:idx_listing_item;not null" json:"item_id"`
	Qty       int             `gorm:"not null" json:"qty"`
	Price     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	Active    bool            `gorm:"index:idx_listing_active;not null" json:"active"`
	Item      *Item           `gorm:"foreignKey:ItemID" json:"item,omitempty"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
