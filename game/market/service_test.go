package market

import (
	"context"
	"sync"
	"testing"

	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/model"
	"github.com/kasuganosora/fracturesim/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc    *Service
	db     *gorm.DB
	buyer  *model.Actor
	seller *model.Actor
	goods  *model.Item
}

func setup(t *testing.T) *fixture {
	db := testutil.SetupTestDB(t)
	f := &fixture{
		svc:    NewService(db, zap.NewNop()),
		db:     db,
		buyer:  testutil.CreateActor(t, db, "Buyer"),
		seller: testutil.CreateActor(t, db, "Seller"),
	}
	f.goods = testutil.CreateItem(t, db, "Ration Pack", model.ItemConsumable, model.HealStats{Heal: 10})
	return f
}

func dec(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func assertDec(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %d, got %s", want, got)
}

func TestBuy_Scenario(t *testing.T) {
	f := setup(t)
	bw := testutil.CreateWallet(t, f.db, f.buyer.ID, 100)
	sw := testutil.CreateWallet(t, f.db, f.seller.ID, 10)
	testutil.Give(t, f.db, f.seller.ID, f.goods.ID, 1)
	ctx := context.Background()

	l, err := f.svc.List(ctx, f.seller.ID, f.goods.ID, 1, dec(30))
	require.NoError(t, err)
	assert.Equal(t, 0, testutil.Qty(t, f.db, f.seller.ID, f.goods.ID))

	p, err := f.svc.Buy(ctx, l.ID, f.buyer.ID, 1)
	require.NoError(t, err)
	assert.True(t, p.SellerPaid)
	assertDec(t, 30, p.Transaction.Amount)

	assertDec(t, 70, testutil.Balance(t, f.db, bw.Address))
	assertDec(t, 40, testutil.Balance(t, f.db, sw.Address))
	assert.Equal(t, 1, testutil.Qty(t, f.db, f.buyer.ID, f.goods.ID))

	var reloaded model.MarketListing
	require.NoError(t, f.db.First(&reloaded, l.ID).Error)
	assert.False(t, reloaded.Active)
	assert.Equal(t, 0, reloaded.Qty)

	var txCount int64
	f.db.Model(&model.Transaction{}).Count(&txCount)
	assert.Equal(t, int64(1), txCount)
}

func TestList_TopsUpSamePriceListing(t *testing.T) {
	f := setup(t)
	testutil.Give(t, f.db, f.seller.ID, f.goods.ID, 5)
	ctx := context.Background()

	l1, err := f.svc.List(ctx, f.seller.ID, f.goods.ID, 2, dec(15))
	require.NoError(t, err)
	l2, err := f.svc.List(ctx, f.seller.ID, f.goods.ID, 1, dec(15))
	require.NoError(t, err)
	assert.Equal(t, l1.ID, l2.ID)
	assert.Equal(t, 3, l2.Qty)

	l3, err := f.svc.List(ctx, f.seller.ID, f.goods.ID, 1, dec(20))
	require.NoError(t, err)
	assert.NotEqual(t, l1.ID, l3.ID)
	assert.Equal(t, 1, testutil.Qty(t, f.db, f.seller.ID, f.goods.ID))
}

func TestList_Errors(t *testing.T) {
	f := setup(t)
	testutil.Give(t, f.db, f.seller.ID, f.goods.ID, 1)
	ctx := context.Background()

	_, err := f.svc.List(ctx, f.seller.ID, f.goods.ID, 2, dec(5))
	assert.ErrorIs(t, err, gameerr.ErrInsufficientItems)
	_, err = f.svc.List(ctx, f.seller.ID, f.goods.ID, 1, dec(-1))
	assert.ErrorIs(t, err, gameerr.ErrValidation)
	_, err = f.svc.List(ctx, f.seller.ID, f.goods.ID, 0, dec(1))
	assert.ErrorIs(t, err, gameerr.ErrValidation)
	assert.Equal(t, 1, testutil.Qty(t, f.db, f.seller.ID, f.goods.ID))
}

func TestBuy_Errors(t *testing.T) {
	f := setup(t)
	testutil.CreateWallet(t, f.db, f.buyer.ID, 20)
	testutil.Give(t, f.db, f.seller.ID, f.goods.ID, 2)
	ctx := context.Background()
	l, err := f.svc.List(ctx, f.seller.ID, f.goods.ID, 2, dec(15))
	require.NoError(t, err)

	_, err = f.svc.Buy(ctx, 999, f.buyer.ID, 1)
	assert.ErrorIs(t, err, gameerr.ErrListingNotFound)

	_, err = f.svc.Buy(ctx, l.ID, f.buyer.ID, 3)
	assert.ErrorIs(t, err, gameerr.ErrInsufficientStock)

	_, err = f.svc.Buy(ctx, l.ID, f.buyer.ID, 2)
	assert.ErrorIs(t, err, gameerr.ErrInsufficientFunds)

	_, err = f.svc.Buy(ctx, l.ID, f.seller.ID, 1)
	assert.ErrorIs(t, err, gameerr.ErrValidation)

	stranger := testutil.CreateActor(t, f.db, "Stranger")
	_, err = f.svc.Buy(ctx, l.ID, stranger.ID, 1)
	assert.ErrorIs(t, err, gameerr.ErrWalletNotFound)

	var reloaded model.MarketListing
	require.NoError(t, f.db.First(&reloaded, l.ID).Error)
	assert.Equal(t, 2, reloaded.Qty)
	assert.True(t, reloaded.Active)
}

func TestBuy_InactiveListing(t *testing.T) {
	f := setup(t)
	testutil.CreateWallet(t, f.db, f.buyer.ID, 100)
	testutil.Give(t, f.db, f.seller.ID, f.goods.ID, 1)
	ctx := context.Background()
	l, err := f.svc.List(ctx, f.seller.ID, f.goods.ID, 1, dec(5))
	require.NoError(t, err)
	_, err = f.svc.Buy(ctx, l.ID, f.buyer.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.Buy(ctx, l.ID, f.buyer.ID, 1)
	assert.ErrorIs(t, err, gameerr.ErrListingInactive)
}

func TestBuy_SellerWithoutWalletSinksFunds(t *testing.T) {
	f := setup(t)
	bw := testutil.CreateWallet(t, f.db, f.buyer.ID, 50)
	testutil.Give(t, f.db, f.seller.ID, f.goods.ID, 3)
	ctx := context.Background()
	l, err := f.svc.List(ctx, f.seller.ID, f.goods.ID, 3, dec(10))
	require.NoError(t, err)

	p, err := f.svc.Buy(ctx, l.ID, f.buyer.ID, 2)
	require.NoError(t, err)
	assert.False(t, p.SellerPaid)
	assert.Equal(t, model.SystemAddress, p.Transaction.ToAddress)
	assertDec(t, 30, testutil.Balance(t, f.db, bw.Address))
	assert.Equal(t, 1, p.Listing.Qty)
	assert.True(t, p.Listing.Active)
}

func TestCancel_ReturnsGoods(t *testing.T) {
	f := setup(t)
	testutil.Give(t, f.db, f.seller.ID, f.goods.ID, 4)
	ctx := context.Background()
	l, err := f.svc.List(ctx, f.seller.ID, f.goods.ID, 3, dec(10))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, l.ID, f.buyer.ID)
	assert.ErrorIs(t, err, gameerr.ErrForbidden)

	out, err := f.svc.Cancel(ctx, l.ID, f.seller.ID)
	require.NoError(t, err)
	assert.False(t, out.Active)
	assert.Equal(t, 4, testutil.Qty(t, f.db, f.seller.ID, f.goods.ID))

	_, err = f.svc.Cancel(ctx, l.ID, f.seller.ID)
	assert.ErrorIs(t, err, gameerr.ErrListingInactive)

	active, err := f.svc.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestBuy_ConcurrentCrossBuysConserveCredits(t *testing.T) {
	f := setup(t)
	aw := testutil.CreateWallet(t, f.db, f.buyer.ID, 100)
	bw := testutil.CreateWallet(t, f.db, f.seller.ID, 100)
	water := testutil.CreateItem(t, f.db, "Clean Water", model.ItemConsumable, model.HealStats{Heal: 5})
	testutil.Give(t, f.db, f.buyer.ID, water.ID, 10)
	testutil.Give(t, f.db, f.seller.ID, f.goods.ID, 10)
	ctx := context.Background()

	fromA, err := f.svc.List(ctx, f.buyer.ID, water.ID, 10, dec(3))
	require.NoError(t, err)
	fromB, err := f.svc.List(ctx, f.seller.ID, f.goods.ID, 10, dec(5))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.Buy(ctx, fromB.ID, f.buyer.ID, 1)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.Buy(ctx, fromA.ID, f.seller.ID, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// A paid 10x5 and earned 10x3.
	assertDec(t, 80, testutil.Balance(t, f.db, aw.Address))
	assertDec(t, 120, testutil.Balance(t, f.db, bw.Address))
	assert.Equal(t, 10, testutil.Qty(t, f.db, f.buyer.ID, f.goods.ID))
	assert.Equal(t, 10, testutil.Qty(t, f.db, f.seller.ID, water.ID))
}

func TestBuy_FreeListingWithoutSellerWallet(t *testing.T) {
	f := setup(t)
	bw := testutil.CreateWallet(t, f.db, f.buyer.ID, 5)
	testutil.Give(t, f.db, f.seller.ID, f.goods.ID, 1)
	ctx := context.Background()
	l, err := f.svc.List(ctx, f.seller.ID, f.goods.ID, 1, decimal.Zero)
	require.NoError(t, err)

	p, err := f.svc.Buy(ctx, l.ID, f.buyer.ID, 1)
	require.NoError(t, err)
	assert.False(t, p.SellerPaid)
	assert.Equal(t, model.SystemAddress, p.Transaction.ToAddress)
	assertDec(t, 5, testutil.Balance(t, f.db, bw.Address))
	assert.Equal(t, 1, testutil.Qty(t, f.db, f.buyer.ID, f.goods.ID))
}

func TestTrade_SwapsGoodsForCredits(t *testing.T) {
	f := setup(t)
	bw := testutil.CreateWallet(t, f.db, f.buyer.ID, 100)
	sw := testutil.CreateWallet(t, f.db, f.seller.ID, 20)
	testutil.Give(t, f.db, f.seller.ID, f.goods.ID, 5)
	ctx := context.Background()

	res, err := f.svc.Trade(ctx, TradeParams{
		BuyerID: f.buyer.ID, SellerID: f.seller.ID, ItemID: f.goods.ID, Qty: 3, Price: dec(45),
	})
	require.NoError(t, err)
	assert.True(t, res.SellerPaid)
	assertDec(t, 45, res.Transaction.Amount)

	assertDec(t, 55, testutil.Balance(t, f.db, bw.Address))
	assertDec(t, 65, testutil.Balance(t, f.db, sw.Address))
	assert.Equal(t, 3, testutil.Qty(t, f.db, f.buyer.ID, f.goods.ID))
	assert.Equal(t, 2, testutil.Qty(t, f.db, f.seller.ID, f.goods.ID))
}

func TestTrade_FailuresChangeNothing(t *testing.T) {
	f := setup(t)
	bw := testutil.CreateWallet(t, f.db, f.buyer.ID, 10)
	sw := testutil.CreateWallet(t, f.db, f.seller.ID, 0)
	testutil.Give(t, f.db, f.seller.ID, f.goods.ID, 2)
	ctx := context.Background()
	base := TradeParams{BuyerID: f.buyer.ID, SellerID: f.seller.ID, ItemID: f.goods.ID, Qty: 1, Price: dec(5)}

	tooDear := base
	tooDear.Price = dec(50)
	_, err := f.svc.Trade(ctx, tooDear)
	assert.ErrorIs(t, err, gameerr.ErrInsufficientFunds)

	tooMany := base
	tooMany.Qty = 3
	_, err = f.svc.Trade(ctx, tooMany)
	assert.ErrorIs(t, err, gameerr.ErrInsufficientItems)

	self := base
	self.SellerID = f.buyer.ID
	_, err = f.svc.Trade(ctx, self)
	assert.ErrorIs(t, err, gameerr.ErrValidation)

	free := base
	free.Price = decimal.Zero
	_, err = f.svc.Trade(ctx, free)
	assert.ErrorIs(t, err, gameerr.ErrValidation)

	ghost := base
	ghost.SellerID = 999
	_, err = f.svc.Trade(ctx, ghost)
	assert.ErrorIs(t, err, gameerr.ErrActorNotFound)

	assertDec(t, 10, testutil.Balance(t, f.db, bw.Address))
	assertDec(t, 0, testutil.Balance(t, f.db, sw.Address))
	assert.Equal(t, 2, testutil.Qty(t, f.db, f.seller.ID, f.goods.ID))
	assert.Equal(t, 0, testutil.Qty(t, f.db, f.buyer.ID, f.goods.ID))
}

func TestTrade_SellerWithoutWalletSinksFunds(t *testing.T) {
	f := setup(t)
	bw := testutil.CreateWallet(t, f.db, f.buyer.ID, 30)
	testutil.Give(t, f.db, f.seller.ID, f.goods.ID, 1)

	res, err := f.svc.Trade(context.Background(), TradeParams{
		BuyerID: f.buyer.ID, SellerID: f.seller.ID, ItemID: f.goods.ID, Qty: 1, Price: dec(12),
	})
	require.NoError(t, err)
	assert.False(t, res.SellerPaid)
	assert.Equal(t, model.SystemAddress, res.Transaction.ToAddress)
	assertDec(t, 18, testutil.Balance(t, f.db, bw.Address))
	assert.Equal(t, 1, testutil.Qty(t, f.db, f.buyer.ID, f.goods.ID))
}
