package rest

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/fracturesim/game/actor"
	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/model"
	"go.uber.org/zap"
)

// ActorHandler serves actor lookups and job changes.
type ActorHandler struct {
	actors *actor.Service
	logger *zap.Logger
}

func NewActorHandler(actors *actor.Service, logger *zap.Logger) *ActorHandler {
	return &ActorHandler{actors: actors, logger: logger}
}

// List returns actors, living ones unless include_dead=true or a status is given.
// GET /api/actors?faction_id=&status=&include_dead=
func (h *ActorHandler) List(c *gin.Context) {
	f := actor.Filter{
		Status:      model.ActorStatus(strings.ToUpper(c.Query("status"))),
		IncludeDead: c.Query("include_dead") == "true",
	}
	if v := c.Query("faction_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			fail(c, h.logger, gameerr.Validationf("invalid faction_id"))
			return
		}
		f.FactionID = &id
	}
	list, err := h.actors.List(c.Request.Context(), f)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, list)
}

// GET /api/actors/:id
func (h *ActorHandler) Get(c *gin.Context) {
	id, valid := paramID(c, h.logger, "id")
	if !valid {
		return
	}
	a, err := h.actors.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, a)
}

// GET /api/me
func (h *ActorHandler) Me(c *gin.Context) {
	a, err := h.actors.Get(c.Request.Context(), me(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, a)
}

// GET /api/jobs
func (h *ActorHandler) Jobs(c *gin.Context) {
	ok(c, actor.Jobs())
}

// SetJob changes the caller's job; an empty job clears it.
// PUT /api/me/job
func (h *ActorHandler) SetJob(c *gin.Context) {
	var req struct {
		Job string `json:"job"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	a, err := h.actors.SetJob(c.Request.Context(), me(c), strings.ToUpper(strings.TrimSpace(req.Job)))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, a)
}
