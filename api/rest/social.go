package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/fracturesim/game/combat"
	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/game/npc"
	"github.com/kasuganosora/fracturesim/game/oracle"
	"github.com/kasuganosora/fracturesim/game/trust"
	"go.uber.org/zap"
)

// SocialHandler covers everything one actor does to or with another:
// talking, attacking, and reading back trust and memories.
type SocialHandler struct {
	npc    *npc.Engine
	trust  *trust.Service
	oracle *oracle.Oracle
	combat *combat.Resolver
	logger *zap.Logger
}

func NewSocialHandler(n *npc.Engine, t *trust.Service, o *oracle.Oracle, r *combat.Resolver, logger *zap.Logger) *SocialHandler {
	return &SocialHandler{npc: n, trust: t, oracle: o, combat: r, logger: logger}
}

type interactRequest struct {
	Content   string `json:"content" binding:"required"`
	EventType string `json:"event_type" binding:"required"`
	Provider  string `json:"provider"`
}

// POST /api/actors/:id/interact
func (h *SocialHandler) Interact(c *gin.Context) {
	target, valid := paramID(c, h.logger, "id")
	if !valid {
		return
	}
	var req interactRequest
	if !bind(c, h.logger, &req) {
		return
	}
	res, err := h.npc.Interact(c.Request.Context(), me(c), target, req.Content, req.EventType, req.Provider)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, res)
}

// POST /api/actors/:id/attack
func (h *SocialHandler) Attack(c *gin.Context) {
	target, valid := paramID(c, h.logger, "id")
	if !valid {
		return
	}
	res, err := h.combat.Attack(c.Request.Context(), me(c), target)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, res)
}

// GET /api/me/relations
func (h *SocialHandler) Relations(c *gin.Context) {
	rel, err := h.trust.Relations(c.Request.Context(), me(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, rel)
}

// Memories returns the newest memories, or with min_importance the most
// important ones.
// GET /api/me/memories?limit=&min_importance=
func (h *SocialHandler) Memories(c *gin.Context) {
	ctx := c.Request.Context()
	limit := queryInt(c, "limit", 0)
	if minImp := queryInt(c, "min_importance", 0); minImp > 0 {
		mems, err := h.trust.ImportantMemories(ctx, me(c), minImp, limit)
		if err != nil {
			fail(c, h.logger, err)
			return
		}
		ok(c, mems)
		return
	}
	mems, err := h.trust.Memories(ctx, me(c), limit)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, mems)
}

// StartAction puts the caller on a short task.
// POST /api/me/action
func (h *SocialHandler) StartAction(c *gin.Context) {
	var req struct {
		Task string `json:"task" binding:"required"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	res, err := h.npc.StartAction(c.Request.Context(), me(c), req.Task)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, res)
}

// POST /api/chat
func (h *SocialHandler) Chat(c *gin.Context) {
	var req struct {
		Query    string `json:"query" binding:"required"`
		Provider string `json:"provider"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	if len(req.Query) > 1000 {
		fail(c, h.logger, gameerr.Validationf("query is too long"))
		return
	}
	r := h.oracle.Chat(c.Request.Context(), req.Provider, req.Query)
	ok(c, gin.H{"reply": r.Value, "provider": r.Provider, "fallback": r.Fallback})
}
