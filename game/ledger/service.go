package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service owns wallets and the append-only transaction log.
type Service struct {
	db     *gorm.DB
	grant  decimal.Decimal
	logger *zap.Logger
}

// NewService creates a ledger. grant is minted into every new wallet.
func NewService(db *gorm.DB, grant decimal.Decimal, logger *zap.Logger) *Service {
	return &Service{db: db, grant: grant, logger: logger}
}

// NewAddress returns a fresh 40-hex-digit wallet address.
func NewAddress() string {
	a := strings.ReplaceAll(uuid.NewString(), "-", "")
	b := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "0x" + a + b[:8]
}

// NewHash returns a unique transaction hash.
func NewHash() string {
	return "tx_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CreateWallet opens a wallet for ownerID (nil for an unowned wallet) and
// mints the starting grant into it.
func (svc *Service) CreateWallet(ctx context.Context, ownerID *int64) (*model.Wallet, error) {
	var w *model.Wallet
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		w, err = svc.CreateWalletTx(tx, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Info("wallet created", zap.String("address", w.Address), zap.Stringer("grant", svc.grant))
	return w, nil
}

// CreateWalletTx is CreateWallet inside an existing transaction.
func (svc *Service) CreateWalletTx(tx *gorm.DB, ownerID *int64) (*model.Wallet, error) {
	if ownerID != nil {
		var n int64
		if err := tx.Model(&model.Actor{}).Where("id = ?", *ownerID).Count(&n).Error; err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, gameerr.ErrActorNotFound
		}
		if err := tx.Model(&model.Wallet{}).Where("owner_id = ?", *ownerID).Count(&n).Error; err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, gameerr.ErrConflict.Withf("actor %d already has a wallet", *ownerID)
		}
	}
	w := &model.Wallet{OwnerID: ownerID, Address: NewAddress(), Balance: svc.grant}
	if err := tx.Create(w).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, gameerr.ErrConflict.Withf("wallet already exists")
		}
		return nil, err
	}
	if svc.grant.IsPositive() {
		if _, err := RecordTx(tx, model.SystemAddress, w.Address, svc.grant, "starting grant"); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Transfer moves amount between two wallets atomically.
func (svc *Service) Transfer(ctx context.Context, from, to string, amount decimal.Decimal, memo string) (*model.Transaction, error) {
	var rec *model.Transaction
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rec, err = TransferTx(tx, from, to, amount, memo)
		return err
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Info("transfer",
		zap.String("from", from), zap.String("to", to),
		zap.Stringer("amount", amount), zap.String("hash", rec.Hash))
	return rec, nil
}

// Wallet looks a wallet up by address.
func (svc *Service) Wallet(ctx context.Context, address string) (*model.Wallet, error) {
	var w model.Wallet
	if err := svc.db.WithContext(ctx).Where("address = ?", address).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gameerr.ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

// WalletByOwner looks up an actor's wallet.
func (svc *Service) WalletByOwner(ctx context.Context, ownerID int64) (*model.Wallet, error) {
	return WalletForOwnerTx(svc.db.WithContext(ctx), ownerID, false)
}

// History returns the newest transactions touching address.
func (svc *Service) History(ctx context.Context, address string, limit int) ([]model.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var txs []model.Transaction
	err := svc.db.WithContext(ctx).
		Where("from_address = ? OR to_address = ?", address, address).
		Order("id DESC").Limit(limit).Find(&txs).Error
	return txs, err
}

// TotalSupply sums every wallet balance.
func (svc *Service) TotalSupply(ctx context.Context) (decimal.Decimal, error) {
	var wallets []model.Wallet
	if err := svc.db.WithContext(ctx).Select("balance").Find(&wallets).Error; err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, w := range wallets {
		sum = sum.Add(w.Balance)
	}
	return sum, nil
}

// ---- transaction helpers, for callers composing larger units of work ----

func lockWallet(tx *gorm.DB, address string) (*model.Wallet, error) {
	var w model.Wallet
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("address = ?", address).First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gameerr.ErrWalletNotFound.Withf("wallet %s not found", address)
		}
		return nil, err
	}
	return &w, nil
}

// WalletForOwnerTx returns the owner's wallet, row-locked when lock is set.
func WalletForOwnerTx(tx *gorm.DB, ownerID int64, lock bool) (*model.Wallet, error) {
	q := tx
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var w model.Wallet
	if err := q.Where("owner_id = ?", ownerID).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gameerr.ErrWalletNotFound.Withf("actor %d has no wallet", ownerID)
		}
		return nil, err
	}
	return &w, nil
}

// TransferTx is Transfer inside an existing transaction. Wallet rows are
// locked in address order so concurrent opposite transfers cannot deadlock.
func TransferTx(tx *gorm.DB, from, to string, amount decimal.Decimal, memo string) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, gameerr.Validationf("amount must be positive")
	}
	if from == to {
		return nil, gameerr.Validationf("cannot transfer to the same wallet")
	}

	order := []string{from, to}
	sort.Strings(order)
	locked := make(map[string]*model.Wallet, 2)
	for _, addr := range order {
		w, err := lockWallet(tx, addr)
		if err != nil {
			return nil, err
		}
		locked[addr] = w
	}

	src, dst := locked[from], locked[to]
	if src.Balance.LessThan(amount) {
		return nil, gameerr.ErrInsufficientFunds.WithDetails(map[string]string{
			"required": amount.String(),
			"balance":  src.Balance.String(),
		})
	}
	if err := setBalance(tx, src, src.Balance.Sub(amount)); err != nil {
		return nil, err
	}
	if err := setBalance(tx, dst, dst.Balance.Add(amount)); err != nil {
		return nil, err
	}
	return RecordTx(tx, from, to, amount, memo)
}

// SinkTx debits a wallet with no receiving wallet; the counterparty is
// recorded as SYSTEM. The source row is locked here, so callers may have
// read it unlocked.
func SinkTx(tx *gorm.DB, from string, amount decimal.Decimal, memo string) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, gameerr.Validationf("amount must be positive")
	}
	src, err := lockWallet(tx, from)
	if err != nil {
		return nil, err
	}
	if src.Balance.LessThan(amount) {
		return nil, gameerr.ErrInsufficientFunds.WithDetails(map[string]string{
			"required": amount.String(),
			"balance":  src.Balance.String(),
		})
	}
	if err := setBalance(tx, src, src.Balance.Sub(amount)); err != nil {
		return nil, err
	}
	return RecordTx(tx, src.Address, model.SystemAddress, amount, memo)
}

func setBalance(tx *gorm.DB, w *model.Wallet, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return fmt.Errorf("ledger: balance of %s would go negative", w.Address)
	}
	if err := tx.Model(&model.Wallet{}).Where("id = ?", w.ID).Update("balance", balance).Error; err != nil {
		return err
	}
	w.Balance = balance
	return nil
}

// RecordTx appends one Transaction row.
func RecordTx(tx *gorm.DB, from, to string, amount decimal.Decimal, memo string) (*model.Transaction, error) {
	rec := &model.Transaction{
		FromAddress: from,
		ToAddress:   to,
		Amount:      amount,
		Hash:        NewHash(),
		Memo:        memo,
	}
	if err := tx.Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}
