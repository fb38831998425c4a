package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/game/ledger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WalletHandler struct {
	ledger *ledger.Service
	logger *zap.Logger
}

func NewWalletHandler(l *ledger.Service, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{ledger: l, logger: logger}
}

// GET /api/me/wallet
func (h *WalletHandler) Mine(c *gin.Context) {
	w, err := h.ledger.WalletByOwner(c.Request.Context(), me(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, w)
}

// GET /api/me/transactions?limit=
func (h *WalletHandler) MyHistory(c *gin.Context) {
	ctx := c.Request.Context()
	w, err := h.ledger.WalletByOwner(ctx, me(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	txs, err := h.ledger.History(ctx, w.Address, queryInt(c, "limit", 0))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, txs)
}

// GET /api/wallets/:address
func (h *WalletHandler) Get(c *gin.Context) {
	w, err := h.ledger.Wallet(c.Request.Context(), c.Param("address"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, w)
}

// GET /api/wallets/:address/transactions?limit=
func (h *WalletHandler) History(c *gin.Context) {
	ctx := c.Request.Context()
	addr := c.Param("address")
	if _, err := h.ledger.Wallet(ctx, addr); err != nil {
		fail(c, h.logger, err)
		return
	}
	txs, err := h.ledger.History(ctx, addr, queryInt(c, "limit", 0))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, txs)
}

type transferRequest struct {
	To     string          `json:"to" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
	Memo   string          `json:"memo"`
}

// Transfer moves credits from the caller's wallet to another address.
// POST /api/me/transfer
func (h *WalletHandler) Transfer(c *gin.Context) {
	var req transferRequest
	if !bind(c, h.logger, &req) {
		return
	}
	if len(req.Memo) > 256 {
		fail(c, h.logger, gameerr.Validationf("memo is too long"))
		return
	}
	ctx := c.Request.Context()
	w, err := h.ledger.WalletByOwner(ctx, me(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	tx, err := h.ledger.Transfer(ctx, w.Address, req.To, req.Amount, req.Memo)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, tx)
}
