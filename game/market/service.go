package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/game/item"
	"github.com/kasuganosora/fracturesim/game/ledger"
	"github.com/kasuganosora/fracturesim/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service runs the player-to-player market. Listed goods leave the seller's
// inventory immediately and are held by the listing.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Purchase is the outcome of a successful Buy.
type Purchase struct {
	Listing     *model.MarketListing `json:"listing"`
	Qty         int                  `json:"qty"`
	Total       decimal.Decimal      `json:"total"`
	Transaction *model.Transaction   `json:"transaction"`
	SellerPaid  bool                 `json:"seller_paid"` // false when the seller has no wallet and funds were sunk
}

// List moves qty of itemID from the seller into an active listing at price.
// An existing active listing by the same seller, item and price is topped up.
func (svc *Service) List(ctx context.Context, sellerID, itemID int64, qty int, price decimal.Decimal) (*model.MarketListing, error) {
	if qty < 1 {
		return nil, gameerr.Validationf("qty must be at least 1")
	}
	if price.IsNegative() {
		return nil, gameerr.Validationf("price must not be negative")
	}
	var listing model.MarketListing
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := item.FindItem(tx, itemID); err != nil {
			return err
		}
		if _, err := item.DebitTx(tx, sellerID, itemID, qty); err != nil {
			return err
		}
		var existing []model.MarketListing
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("seller_id = ? AND item_id = ? AND active = ?", sellerID, itemID, true).
			Find(&existing).Error; err != nil {
			return err
		}
		for _, l := range existing {
			if l.Price.Equal(price) {
				if err := tx.Model(&model.MarketListing{}).Where("id = ?", l.ID).
					Update("qty", gorm.Expr("qty + ?", qty)).Error; err != nil {
					return err
				}
				l.Qty += qty
				listing = l
				return nil
			}
		}
		listing = model.MarketListing{SellerID: sellerID, ItemID: itemID, Qty: qty, Price: price, Active: true}
		return tx.Create(&listing).Error
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Info("market listed",
		zap.Int64("seller_id", sellerID), zap.Int64("listing_id", listing.ID),
		zap.Int("qty", qty), zap.Stringer("price", price))
	return &listing, nil
}

func lockListing(tx *gorm.DB, listingID int64) (*model.MarketListing, error) {
	var l model.MarketListing
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&l, listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gameerr.ErrListingNotFound
		}
		return nil, err
	}
	return &l, nil
}

// Buy purchases qty units of a listing for buyerID.
func (svc *Service) Buy(ctx context.Context, listingID, buyerID int64, qty int) (*Purchase, error) {
	if qty < 1 {
		return nil, gameerr.Validationf("qty must be at least 1")
	}
	var p Purchase
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := lockListing(tx, listingID)
		if err != nil {
			return err
		}
		if !l.Active {
			return gameerr.ErrListingInactive
		}
		if l.SellerID == buyerID {
			return gameerr.Validationf("cannot buy your own listing")
		}
		if l.Qty < qty {
			return gameerr.ErrInsufficientStock.WithDetails(map[string]int{"requested": qty, "available": l.Qty})
		}

		total := l.Price.Mul(decimal.NewFromInt(int64(qty)))
		// Unlocked read; TransferTx and SinkTx take the row locks in address order.
		buyerWallet, err := ledger.WalletForOwnerTx(tx, buyerID, false)
		if err != nil {
			return err
		}
		if buyerWallet.Balance.LessThan(total) {
			return gameerr.ErrInsufficientFunds.WithDetails(map[string]string{
				"required": total.String(),
				"balance":  buyerWallet.Balance.String(),
			})
		}

		memo := fmt.Sprintf("market listing %d x%d", l.ID, qty)
		sellerWallet, err := ledger.WalletForOwnerTx(tx, l.SellerID, false)
		switch {
		case err == nil:
			p.SellerPaid = true
			if total.IsPositive() {
				p.Transaction, err = ledger.TransferTx(tx, buyerWallet.Address, sellerWallet.Address, total, memo)
			} else {
				p.Transaction, err = ledger.RecordTx(tx, buyerWallet.Address, sellerWallet.Address, total, memo)
			}
		case errors.Is(err, gameerr.ErrWalletNotFound):
			if total.IsPositive() {
				p.Transaction, err = ledger.SinkTx(tx, buyerWallet.Address, total, memo)
			} else {
				p.Transaction, err = ledger.RecordTx(tx, buyerWallet.Address, model.SystemAddress, total, memo)
			}
		}
		if err != nil {
			return err
		}

		l.Qty -= qty
		l.Active = l.Qty > 0
		if err := tx.Model(&model.MarketListing{}).Where("id = ?", l.ID).
			Updates(map[string]interface{}{"qty": l.Qty, "active": l.Active}).Error; err != nil {
			return err
		}
		if err := item.CreditTx(tx, buyerID, l.ItemID, qty); err != nil {
			return err
		}
		p.Listing, p.Qty, p.Total = l, qty, total
		return nil
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Info("market buy",
		zap.Int64("buyer_id", buyerID), zap.Int64("listing_id", listingID),
		zap.Int("qty", qty), zap.Stringer("total", p.Total), zap.Bool("seller_paid", p.SellerPaid))
	return &p, nil
}

// Cancel deactivates the seller's listing and returns the unsold goods.
func (svc *Service) Cancel(ctx context.Context, listingID, sellerID int64) (*model.MarketListing, error) {
	var out *model.MarketListing
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		l, err := lockListing(tx, listingID)
		if err != nil {
			return err
		}
		if l.SellerID != sellerID {
			return gameerr.ErrForbidden.Withf("listing %d belongs to another seller", listingID)
		}
		if !l.Active {
			return gameerr.ErrListingInactive
		}
		if l.Qty > 0 {
			if err := item.CreditTx(tx, sellerID, l.ItemID, l.Qty); err != nil {
				return err
			}
		}
		if err := tx.Model(&model.MarketListing{}).Where("id = ?", l.ID).
			Updates(map[string]interface{}{"qty": 0, "active": false}).Error; err != nil {
			return err
		}
		l.Qty, l.Active = 0, false
		out = l
		return nil
	})
	return out, err
}

// Active lists open listings, cheapest first.
func (svc *Service) Active(ctx context.Context) ([]model.MarketListing, error) {
	var ls []model.MarketListing
	err := svc.db.WithContext(ctx).Preload("Item").
		Where("active = ? AND qty > 0", true).Order("price ASC, id ASC").Find(&ls).Error
	return ls, err
}
