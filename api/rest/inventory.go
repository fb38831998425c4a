package rest

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/fracturesim/game/item"
	"github.com/kasuganosora/fracturesim/model"
	"go.uber.org/zap"
)

// InventoryHandler serves inventory, equipment, the item catalog and crafting.
type InventoryHandler struct {
	items  *item.Service
	logger *zap.Logger
}

func NewInventoryHandler(items *item.Service, logger *zap.Logger) *InventoryHandler {
	return &InventoryHandler{items: items, logger: logger}
}

// GET /api/me/inventory
func (h *InventoryHandler) List(c *gin.Context) {
	slots, err := h.items.List(c.Request.Context(), me(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, slots)
}

// GET /api/items?type=
func (h *InventoryHandler) Catalog(c *gin.Context) {
	items, err := h.items.Catalog(c.Request.Context(), model.ItemType(strings.ToUpper(c.Query("type"))))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, items)
}

// GET /api/recipes
func (h *InventoryHandler) Recipes(c *gin.Context) {
	recipes, err := h.items.Recipes(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, recipes)
}

type equipRequest struct {
	ItemID int64 `json:"item_id" binding:"required"`
	Equip  *bool `json:"equip"` // defaults to true
}

// POST /api/me/equip
func (h *InventoryHandler) Equip(c *gin.Context) {
	var req equipRequest
	if !bind(c, h.logger, &req) {
		return
	}
	equip := req.Equip == nil || *req.Equip
	slot, err := h.items.Equip(c.Request.Context(), me(c), req.ItemID, equip)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, slot)
}

// POST /api/recipes/:id/craft
func (h *InventoryHandler) Craft(c *gin.Context) {
	id, valid := paramID(c, h.logger, "id")
	if !valid {
		return
	}
	res, err := h.items.Craft(c.Request.Context(), id, me(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, res)
}
