package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SystemAddress is the counterparty recorded for minted or sunk funds.
const SystemAddress = "SYSTEM"

// Wallet holds an actor's credits. OwnerID is nil for unowned wallets.
type Wallet struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID   *int64          `gorm:"uniqueIndex:idx_wallet_owner" json:"owner_id"`
	Address   string          `gorm:"uniqueIndex:idx_wallet_address;size:66;not null" json:"address"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Transaction is an append-only ledger record.
type Transaction struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	FromAddress string          `gorm:"index:idx_tx_from;size:66;not null" json:"from"`
	ToAddress   string          `gorm:"index:idx_tx_to;size:66;not null" json:"to"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Hash        string          `gorm:"uniqueIndex:idx_tx_hash;size:64;not null" json:"hash"`
	Memo        string          `gorm:"size:128" json:"memo"`
	CreatedAt   time.Time       `gorm:"index:idx_tx_created;autoCreateTime:milli" json:"created_at"`
}
