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
)

// TradeParams describes a direct swap of goods for credits. Price is the
// total for the whole quantity.
type TradeParams struct {
	BuyerID  int64
	SellerID int64
	ItemID   int64
	Qty      int
	Price    decimal.Decimal
}

// TradeResult is the outcome of a direct trade.
type TradeResult struct {
	BuyerID     int64              `json:"buyer_id"`
	SellerID    int64              `json:"seller_id"`
	ItemID      int64              `json:"item_id"`
	Qty         int                `json:"qty"`
	Price       decimal.Decimal    `json:"price"`
	Transaction *model.Transaction `json:"transaction"`
	SellerPaid  bool               `json:"seller_paid"`
}

// Trade moves qty of an item from seller to buyer and price credits the other
// way, without a listing. Either both legs happen or neither does.
func (svc *Service) Trade(ctx context.Context, p TradeParams) (*TradeResult, error) {
	switch {
	case p.Qty < 1:
		return nil, gameerr.Validationf("qty must be at least 1")
	case !p.Price.IsPositive():
		return nil, gameerr.Validationf("price must be positive")
	case p.BuyerID == p.SellerID:
		return nil, gameerr.Validationf("buyer and seller must differ")
	}

	out := &TradeResult{BuyerID: p.BuyerID, SellerID: p.SellerID, ItemID: p.ItemID, Qty: p.Qty, Price: p.Price}
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range []int64{p.BuyerID, p.SellerID} {
			var n int64
			if err := tx.Model(&model.Actor{}).Where("id = ?", id).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return gameerr.ErrActorNotFound.Withf("actor %d not found", id)
			}
		}
		if _, err := item.FindItem(tx, p.ItemID); err != nil {
			return err
		}

		buyerWallet, err := ledger.WalletForOwnerTx(tx, p.BuyerID, false)
		if err != nil {
			return err
		}
		if _, err := item.DebitTx(tx, p.SellerID, p.ItemID, p.Qty); err != nil {
			return err
		}

		memo := fmt.Sprintf("trade item %d x%d", p.ItemID, p.Qty)
		sellerWallet, err := ledger.WalletForOwnerTx(tx, p.SellerID, false)
		switch {
		case err == nil:
			out.SellerPaid = true
			out.Transaction, err = ledger.TransferTx(tx, buyerWallet.Address, sellerWallet.Address, p.Price, memo)
		case errors.Is(err, gameerr.ErrWalletNotFound):
			out.Transaction, err = ledger.SinkTx(tx, buyerWallet.Address, p.Price, memo)
		}
		if err != nil {
			return err
		}
		return item.CreditTx(tx, p.BuyerID, p.ItemID, p.Qty)
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Info("direct trade",
		zap.Int64("buyer_id", p.BuyerID), zap.Int64("seller_id", p.SellerID),
		zap.Int64("item_id", p.ItemID), zap.Int("qty", p.Qty),
		zap.Stringer("price", p.Price), zap.Bool("seller_paid", out.SellerPaid))
	return out, nil
}
