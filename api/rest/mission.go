package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/game/mission"
	"github.com/kasuganosora/fracturesim/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type MissionHandler struct {
	missions *mission.Service
	logger   *zap.Logger
}

func NewMissionHandler(m *mission.Service, logger *zap.Logger) *MissionHandler {
	return &MissionHandler{missions: m, logger: logger}
}

type createMissionRequest struct {
	ReceiverID    int64           `json:"receiver_id" binding:"required"`
	Title         string          `json:"title" binding:"required"`
	Description   string          `json:"description" binding:"required"`
	RewardCredits decimal.Decimal `json:"reward_credits"`
	RewardItemID  *int64          `json:"reward_item_id"`
	DurationS     int             `json:"duration_s"`
}

// Create offers a mission from the caller.
// POST /api/missions
func (h *MissionHandler) Create(c *gin.Context) {
	var req createMissionRequest
	if !bind(c, h.logger, &req) {
		return
	}
	m, err := h.missions.Create(c.Request.Context(), mission.CreateParams{
		GiverID:       me(c),
		ReceiverID:    req.ReceiverID,
		Title:         req.Title,
		Description:   req.Description,
		RewardCredits: req.RewardCredits,
		RewardItemID:  req.RewardItemID,
		DurationS:     req.DurationS,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, m)
}

// GET /api/me/missions
func (h *MissionHandler) Mine(c *gin.Context) {
	list, err := h.missions.List(c.Request.Context(), me(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, list)
}

// Get returns a mission to its giver or receiver.
// GET /api/missions/:id
func (h *MissionHandler) Get(c *gin.Context) {
	id, valid := paramID(c, h.logger, "id")
	if !valid {
		return
	}
	m, err := h.missions.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if caller := me(c); m.GiverID != caller && m.ReceiverID != caller {
		fail(c, h.logger, gameerr.ErrForbidden.Withf("not a party to mission %d", id))
		return
	}
	ok(c, m)
}

func (h *MissionHandler) respond(c *gin.Context, do func(*gin.Context, int64) (*model.Mission, error)) {
	id, valid := paramID(c, h.logger, "id")
	if !valid {
		return
	}
	m, err := do(c, id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, m)
}

// POST /api/missions/:id/accept
func (h *MissionHandler) Accept(c *gin.Context) {
	h.respond(c, func(c *gin.Context, id int64) (*model.Mission, error) {
		return h.missions.Accept(c.Request.Context(), id, me(c))
	})
}

// POST /api/missions/:id/decline
func (h *MissionHandler) Decline(c *gin.Context) {
	h.respond(c, func(c *gin.Context, id int64) (*model.Mission, error) {
		return h.missions.Decline(c.Request.Context(), id, me(c))
	})
}

// POST /api/missions/:id/complete
func (h *MissionHandler) Complete(c *gin.Context) {
	id, valid := paramID(c, h.logger, "id")
	if !valid {
		return
	}
	s, err := h.missions.Complete(c.Request.Context(), id, me(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, s)
}
