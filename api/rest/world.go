package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/fracturesim/game/faction"
	"github.com/kasuganosora/fracturesim/game/world"
	"go.uber.org/zap"
)

// WorldHandler exposes the public view of the world: events, the world log
// and factions.
type WorldHandler struct {
	world    *world.Engine
	factions *faction.Service
	logger   *zap.Logger
}

func NewWorldHandler(w *world.Engine, f *faction.Service, logger *zap.Logger) *WorldHandler {
	return &WorldHandler{world: w, factions: f, logger: logger}
}

// GET /api/world/events
func (h *WorldHandler) Active(c *gin.Context) {
	evs, err := h.world.Active(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, evs)
}

// GET /api/world/events/recent?limit=
func (h *WorldHandler) Recent(c *gin.Context) {
	evs, err := h.world.Recent(c.Request.Context(), queryInt(c, "limit", 10))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, evs)
}

// GET /api/world/log?limit=
func (h *WorldHandler) Log(c *gin.Context) {
	lines, err := h.world.Log(c.Request.Context(), queryInt(c, "limit", 50))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, lines)
}

// GET /api/factions
func (h *WorldHandler) Factions(c *gin.Context) {
	list, err := h.factions.List(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, list)
}

// GET /api/factions/:id
func (h *WorldHandler) Faction(c *gin.Context) {
	id, valid := paramID(c, h.logger, "id")
	if !valid {
		return
	}
	f, err := h.factions.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, f)
}
