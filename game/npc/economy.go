package npc

import (
	"context"
	"errors"

	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/game/item"
	"github.com/kasuganosora/fracturesim/game/ledger"
	"github.com/kasuganosora/fracturesim/game/oracle"
	"github.com/kasuganosora/fracturesim/model"
	"go.uber.org/zap"
)

// EconomyResult reports the optional market step of a turn.
type EconomyResult struct {
	Decision  oracle.EconomicDecision `json:"decision"`
	Fallback  bool                    `json:"fallback"`
	ListingID int64                   `json:"listing_id,omitempty"`
	Bought    bool                    `json:"bought"`
	Error     string                  `json:"error,omitempty"`
}

// economyStep lets an actor with a wallet buy one unit from the active
// market. Actors without a wallet skip it.
func (e *Engine) economyStep(ctx context.Context, a *model.Actor, provider string) *EconomyResult {
	db := e.db.WithContext(ctx)
	w, err := ledger.WalletForOwnerTx(db, a.ID, false)
	if errors.Is(err, gameerr.ErrWalletNotFound) {
		return nil
	}
	if err != nil {
		return &EconomyResult{Error: err.Error()}
	}
	listings, err := e.market.Active(ctx)
	if err != nil {
		return &EconomyResult{Error: err.Error()}
	}
	weapon, err := item.EquippedTx(db, a.ID, model.ItemWeapon)
	if err != nil {
		return &EconomyResult{Error: err.Error()}
	}

	// Listings arrive cheapest first, so the first listing per item wins.
	byName := map[string]int64{}
	var options []oracle.EconomicOption
	for _, l := range listings {
		if l.SellerID == a.ID || l.Item == nil {
			continue
		}
		if _, dup := byName[l.Item.Name]; dup {
			continue
		}
		byName[l.Item.Name] = l.ID
		options = append(options, oracle.EconomicOption{
			Name:   l.Item.Name,
			Cost:   l.Price,
			Weapon: l.Item.Type == model.ItemWeapon,
		})
	}
	if len(options) == 0 {
		return nil
	}

	r := e.oracle.DecideEconomicAction(ctx, e.provider(provider), oracle.EconomicInput{
		Name:    a.Name,
		Balance: w.Balance,
		Armed:   weapon != nil,
		Options: options,
	})
	out := &EconomyResult{Decision: r.Value, Fallback: r.Fallback}
	if r.Value.Action != oracle.EconBuy {
		return out
	}
	out.ListingID = byName[r.Value.Choice]
	if _, err := e.market.Buy(ctx, out.ListingID, a.ID, 1); err != nil {
		e.logger.Info("npc purchase failed", zap.Int64("actor_id", a.ID), zap.Int64("listing_id", out.ListingID), zap.Error(err))
		out.Error = err.Error()
		return out
	}
	out.Bought = true
	return out
}
