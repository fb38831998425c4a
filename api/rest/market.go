package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/fracturesim/game/market"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type MarketHandler struct {
	market *market.Service
	logger *zap.Logger
}

func NewMarketHandler(m *market.Service, logger *zap.Logger) *MarketHandler {
	return &MarketHandler{market: m, logger: logger}
}

// Active lists open listings, cheapest first.
// GET /api/market
func (h *MarketHandler) Active(c *gin.Context) {
	ls, err := h.market.Active(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, ls)
}

type listRequest struct {
	ItemID int64           `json:"item_id" binding:"required"`
	Qty    int             `json:"qty" binding:"required"`
	Price  decimal.Decimal `json:"price"`
}

// POST /api/market
func (h *MarketHandler) List(c *gin.Context) {
	var req listRequest
	if !bind(c, h.logger, &req) {
		return
	}
	l, err := h.market.List(c.Request.Context(), me(c), req.ItemID, req.Qty, req.Price)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, l)
}

// POST /api/market/:id/buy
func (h *MarketHandler) Buy(c *gin.Context) {
	id, valid := paramID(c, h.logger, "id")
	if !valid {
		return
	}
	var req struct {
		Qty int `json:"qty"`
	}
	if c.Request.ContentLength > 0 && !bind(c, h.logger, &req) {
		return
	}
	if req.Qty == 0 {
		req.Qty = 1
	}
	p, err := h.market.Buy(c.Request.Context(), id, me(c), req.Qty)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, p)
}

// DELETE /api/market/:id
func (h *MarketHandler) Cancel(c *gin.Context) {
	id, valid := paramID(c, h.logger, "id")
	if !valid {
		return
	}
	l, err := h.market.Cancel(c.Request.Context(), id, me(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, l)
}
