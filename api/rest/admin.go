package rest

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/fracturesim/audit"
	"github.com/kasuganosora/fracturesim/game/actor"
	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/game/market"
	mw "github.com/kasuganosora/fracturesim/middleware"
	"github.com/kasuganosora/fracturesim/model"
	"github.com/kasuganosora/fracturesim/resource"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reset actions accepted by POST /api/admin/reset.
const (
	ResetMemories = "WIPE_MEMORIES"
	ResetTrust    = "WIPE_TRUST"
	ResetWorld    = "RESET_WORLD"
)

// AdminHandler handles operator endpoints. Routes are protected by the
// AdminKey and IPWhitelist middleware.
type AdminHandler struct {
	d      Deps
	logger *zap.Logger
}

func NewAdminHandler(d Deps, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{d: d, logger: logger}
}

// IssueToken signs an identity token for an existing actor.
// POST /api/admin/tokens
func (h *AdminHandler) IssueToken(c *gin.Context) {
	var req struct {
		ActorID int64 `json:"actor_id" binding:"required"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	if _, err := h.d.Actors.Get(c.Request.Context(), req.ActorID); err != nil {
		fail(c, h.logger, err)
		return
	}
	tok, claims, err := mw.GenerateToken(req.ActorID, h.d.Security.JWTSecret, h.d.Security.JWTTTLH)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, gin.H{"token": tok, "actor_id": req.ActorID, "expires_at": claims.ExpiresAt.Time})
}

// RevokeToken blacklists a token until it would have expired.
// POST /api/admin/tokens/revoke
func (h *AdminHandler) RevokeToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	claims, err := mw.ParseToken(req.Token, h.d.Security.JWTSecret)
	if err != nil {
		fail(c, h.logger, gameerr.Validationf("invalid token"))
		return
	}
	if err := mw.Revoke(c.Request.Context(), h.d.Cache, claims); err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, gin.H{"revoked": claims.ID})
}

// Reset bulk-deletes memories, trust history or world events.
// POST /api/admin/reset
func (h *AdminHandler) Reset(c *gin.Context) {
	var req struct {
		Action string `json:"action" binding:"required"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	ctx := c.Request.Context()
	var (
		n   int64
		err error
	)
	action := strings.ToUpper(strings.TrimSpace(req.Action))
	switch action {
	case ResetMemories:
		n, err = h.d.Trust.WipeMemories(ctx)
	case ResetTrust:
		n, err = h.d.Trust.WipeTrust(ctx)
	case ResetWorld:
		n, err = h.d.World.Reset(ctx)
	default:
		fail(c, h.logger, gameerr.Validationf("unknown reset action %q", req.Action))
		return
	}
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	h.logger.Warn("admin reset", zap.String("action", action), zap.Int64("deleted", n),
		zap.String("trace_id", mw.GetTraceID(c)))
	ok(c, gin.H{"action": action, "deleted": n})
}

// Turn advances the whole simulation by one step.
// POST /api/admin/turn
func (h *AdminHandler) Turn(c *gin.Context) {
	var req struct {
		Provider string `json:"provider"`
	}
	if c.Request.ContentLength > 0 && !bind(c, h.logger, &req) {
		return
	}
	rep, err := h.d.Sim.Advance(c.Request.Context(), req.Provider)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, rep)
}

// POST /api/admin/missions/:id/fail
func (h *AdminHandler) FailMission(c *gin.Context) {
	id, valid := paramID(c, h.logger, "id")
	if !valid {
		return
	}
	m, err := h.d.Missions.Fail(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, m)
}

// Metrics reports credit supply, population, scheduler state and oracle providers.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	ctx := c.Request.Context()
	supply, err := h.d.Ledger.TotalSupply(ctx)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	var rows []struct {
		Status model.ActorStatus
		N      int64
	}
	if err := h.d.DB.WithContext(ctx).Model(&model.Actor{}).
		Select("status, count(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		fail(c, h.logger, err)
		return
	}
	population := map[model.ActorStatus]int64{}
	for _, r := range rows {
		population[r.Status] = r.N
	}
	out := gin.H{
		"total_supply": supply,
		"population":   population,
		"providers":    h.d.Oracle.Providers(),
	}
	if h.d.Scheduler != nil {
		out["scheduler_tasks"] = h.d.Scheduler.Tasks()
	}
	ok(c, out)
}

// AuditLog queries recorded operations.
// GET /api/admin/audit?actor_id=&action=&trace_id=&limit=
func (h *AdminHandler) AuditLog(c *gin.Context) {
	if h.d.Audit == nil {
		ok(c, []model.AuditLog{})
		return
	}
	f := audit.Filter{
		Action:  c.Query("action"),
		TraceID: c.Query("trace_id"),
		Limit:   queryInt(c, "limit", 0),
	}
	if id := int64(queryInt(c, "actor_id", 0)); id > 0 {
		f.ActorID = &id
	}
	logs, err := h.d.Audit.Query(c.Request.Context(), f)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, logs)
}

type spawnActorRequest struct {
	Name       string       `json:"name" binding:"required"`
	FactionID  *int64       `json:"faction_id"`
	Alignment  string       `json:"alignment"`
	Job        string       `json:"job"`
	Traits     model.Traits `json:"traits"`
	WithWallet bool         `json:"with_wallet"`
}

// POST /api/admin/actors
func (h *AdminHandler) SpawnActor(c *gin.Context) {
	var req spawnActorRequest
	if !bind(c, h.logger, &req) {
		return
	}
	a, w, err := h.d.Actors.Spawn(c.Request.Context(), actor.SpawnParams{
		Name:       req.Name,
		FactionID:  req.FactionID,
		Alignment:  req.Alignment,
		Job:        strings.ToUpper(req.Job),
		Traits:     req.Traits,
		WithWallet: req.WithWallet,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, gin.H{"actor": a, "wallet": w})
}

// GrantItem puts catalog items into an actor's inventory.
// POST /api/admin/actors/:id/items
func (h *AdminHandler) GrantItem(c *gin.Context) {
	id, valid := paramID(c, h.logger, "id")
	if !valid {
		return
	}
	var req struct {
		ItemID int64 `json:"item_id" binding:"required"`
		Qty    int   `json:"qty"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	if req.Qty == 0 {
		req.Qty = 1
	}
	ctx := c.Request.Context()
	if err := h.d.Items.AddItem(ctx, id, req.ItemID, req.Qty); err != nil {
		fail(c, h.logger, err)
		return
	}
	slots, err := h.d.Items.List(ctx, id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, slots)
}

// Trade brokers a direct swap of goods for credits between two actors.
// POST /api/admin/trade
func (h *AdminHandler) Trade(c *gin.Context) {
	var req struct {
		BuyerID  int64           `json:"buyer_id" binding:"required"`
		SellerID int64           `json:"seller_id" binding:"required"`
		ItemID   int64           `json:"item_id" binding:"required"`
		Qty      int             `json:"qty" binding:"required"`
		Price    decimal.Decimal `json:"price"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	res, err := h.d.Market.Trade(c.Request.Context(), market.TradeParams{
		BuyerID:  req.BuyerID,
		SellerID: req.SellerID,
		ItemID:   req.ItemID,
		Qty:      req.Qty,
		Price:    req.Price,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, res)
}

// POST /api/admin/factions
func (h *AdminHandler) CreateFaction(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description" binding:"required"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	f, err := h.d.Factions.Create(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, f)
}

// POST /api/admin/factions/:id/turn
func (h *AdminHandler) FactionTurn(c *gin.Context) {
	id, valid := paramID(c, h.logger, "id")
	if !valid {
		return
	}
	res, err := h.d.Factions.EvaluateTurn(c.Request.Context(), id, c.Query("provider"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, res)
}

// TriggerEvent starts an operator-authored world event.
// POST /api/admin/world/events
func (h *AdminHandler) TriggerEvent(c *gin.Context) {
	var req struct {
		Title       string               `json:"title" binding:"required"`
		Description string               `json:"description"`
		Type        model.WorldEventType `json:"type" binding:"required"`
	}
	if !bind(c, h.logger, &req) {
		return
	}
	ev, err := h.d.World.Trigger(c.Request.Context(), req.Title, req.Description,
		model.WorldEventType(strings.ToUpper(string(req.Type))))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, ev)
}

// SpawnEvent asks the oracle for a new event now.
// POST /api/admin/world/spawn
func (h *AdminHandler) SpawnEvent(c *gin.Context) {
	ev, fallback, err := h.d.World.Spawn(c.Request.Context(), c.Query("provider"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, gin.H{"event": ev, "fallback": fallback})
}

// Seed re-applies the item and recipe catalog.
// POST /api/admin/seed
func (h *AdminHandler) Seed(c *gin.Context) {
	if h.d.Catalog == nil {
		fail(c, h.logger, gameerr.ErrConflict.Withf("no catalog loaded"))
		return
	}
	start := time.Now()
	rep, err := resource.Seed(c.Request.Context(), h.d.DB, h.d.Catalog, h.logger)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, gin.H{"items": rep.Items, "recipes_created": rep.RecipesCreated, "took_ms": time.Since(start).Milliseconds()})
}
