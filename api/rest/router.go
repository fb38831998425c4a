package rest

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/fracturesim/audit"
	"github.com/kasuganosora/fracturesim/cache"
	"github.com/kasuganosora/fracturesim/config"
	"github.com/kasuganosora/fracturesim/game/actor"
	"github.com/kasuganosora/fracturesim/game/combat"
	"github.com/kasuganosora/fracturesim/game/faction"
	"github.com/kasuganosora/fracturesim/game/item"
	"github.com/kasuganosora/fracturesim/game/ledger"
	"github.com/kasuganosora/fracturesim/game/market"
	"github.com/kasuganosora/fracturesim/game/mission"
	"github.com/kasuganosora/fracturesim/game/npc"
	"github.com/kasuganosora/fracturesim/game/oracle"
	"github.com/kasuganosora/fracturesim/game/sim"
	"github.com/kasuganosora/fracturesim/game/trust"
	"github.com/kasuganosora/fracturesim/game/world"
	mw "github.com/kasuganosora/fracturesim/middleware"
	"github.com/kasuganosora/fracturesim/resource"
	"github.com/kasuganosora/fracturesim/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps bundles everything the REST surface calls into.
type Deps struct {
	DB        *gorm.DB
	Cache     cache.Cache
	Security  config.SecurityConfig
	AdminKey  string
	Ledger    *ledger.Service
	Items     *item.Service
	Market    *market.Service
	Trust     *trust.Service
	Combat    *combat.Resolver
	Oracle    *oracle.Oracle
	Actors    *actor.Service
	NPC       *npc.Engine
	Missions  *mission.Service
	World     *world.Engine
	Factions  *faction.Service
	Sim       *sim.Sim
	Scheduler *scheduler.Scheduler
	Audit     *audit.Service
	Catalog   *resource.Catalog
	Logger    *zap.Logger
}

// audited records the request in the audit log once the handler has run.
// A nil audit service disables it.
func audited(a *audit.Service, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		params := map[string]string{}
		for _, p := range c.Params {
			params[p.Key] = p.Value
		}
		e := audit.Entry{
			TraceID:  mw.GetTraceID(c),
			Action:   action,
			Request:  gin.H{"path": c.Request.URL.Path, "params": params},
			Response: gin.H{"status": c.Writer.Status()},
			IP:       c.ClientIP(),
			Duration: time.Since(start),
		}
		if id := mw.GetActorID(c); id > 0 {
			e.ActorID = &id
		}
		if last := c.Errors.Last(); last != nil {
			e.Err = last.Err
		} else if code, exists := c.Get(errorCodeKey); exists {
			e.Err = errorCode(code.(string))
		}
		a.Log(e)
	}
}

// Register mounts every route on r.
func Register(r *gin.Engine, d Deps) {
	log := d.Logger
	actorH := NewActorHandler(d.Actors, log)
	walletH := NewWalletHandler(d.Ledger, log)
	invH := NewInventoryHandler(d.Items, log)
	marketH := NewMarketHandler(d.Market, log)
	socialH := NewSocialHandler(d.NPC, d.Trust, d.Oracle, d.Combat, log)
	missionH := NewMissionHandler(d.Missions, log)
	worldH := NewWorldHandler(d.World, d.Factions, log)
	adminH := NewAdminHandler(d, log)

	pub := r.Group("/api")
	pub.GET("/jobs", actorH.Jobs)
	pub.GET("/items", invH.Catalog)
	pub.GET("/recipes", invH.Recipes)
	pub.GET("/market", marketH.Active)
	pub.GET("/world/events", worldH.Active)
	pub.GET("/world/events/recent", worldH.Recent)
	pub.GET("/world/log", worldH.Log)
	pub.GET("/factions", worldH.Factions)
	pub.GET("/factions/:id", worldH.Faction)

	authed := r.Group("/api", mw.Auth(d.Security, d.Cache))
	authed.GET("/actors", actorH.List)
	authed.GET("/actors/:id", actorH.Get)
	authed.GET("/me", actorH.Me)
	authed.PUT("/me/job", actorH.SetJob)

	authed.GET("/me/wallet", walletH.Mine)
	authed.GET("/me/transactions", walletH.MyHistory)
	authed.POST("/me/transfer", audited(d.Audit, "ledger.transfer"), walletH.Transfer)
	authed.GET("/wallets/:address", walletH.Get)
	authed.GET("/wallets/:address/transactions", walletH.History)

	authed.GET("/me/inventory", invH.List)
	authed.POST("/me/equip", audited(d.Audit, "item.equip"), invH.Equip)
	authed.POST("/recipes/:id/craft", audited(d.Audit, "item.craft"), invH.Craft)

	authed.POST("/market", audited(d.Audit, "market.list"), marketH.List)
	authed.POST("/market/:id/buy", audited(d.Audit, "market.buy"), marketH.Buy)
	authed.DELETE("/market/:id", audited(d.Audit, "market.cancel"), marketH.Cancel)

	authed.POST("/actors/:id/interact", socialH.Interact)
	authed.POST("/actors/:id/attack", audited(d.Audit, "combat.attack"), socialH.Attack)
	authed.GET("/me/relations", socialH.Relations)
	authed.GET("/me/memories", socialH.Memories)
	authed.POST("/me/action", socialH.StartAction)
	authed.POST("/chat", socialH.Chat)

	authed.GET("/me/missions", missionH.Mine)
	authed.POST("/missions", audited(d.Audit, "mission.create"), missionH.Create)
	authed.GET("/missions/:id", missionH.Get)
	authed.POST("/missions/:id/accept", missionH.Accept)
	authed.POST("/missions/:id/decline", missionH.Decline)
	authed.POST("/missions/:id/complete", audited(d.Audit, "mission.complete"), missionH.Complete)

	admin := r.Group("/api/admin", mw.IPWhitelist(d.Security.AdminIPs), mw.AdminKey(d.AdminKey))
	admin.POST("/tokens", adminH.IssueToken)
	admin.POST("/tokens/revoke", adminH.RevokeToken)
	admin.POST("/reset", audited(d.Audit, "admin.reset"), adminH.Reset)
	admin.POST("/turn", adminH.Turn)
	admin.POST("/missions/:id/fail", audited(d.Audit, "mission.fail"), adminH.FailMission)
	admin.GET("/metrics", adminH.Metrics)
	admin.GET("/audit", adminH.AuditLog)
	admin.POST("/actors", adminH.SpawnActor)
	admin.POST("/actors/:id/items", audited(d.Audit, "admin.grant_item"), adminH.GrantItem)
	admin.POST("/trade", audited(d.Audit, "market.trade"), adminH.Trade)
	admin.POST("/factions", adminH.CreateFaction)
	admin.POST("/factions/:id/turn", adminH.FactionTurn)
	admin.POST("/world/events", adminH.TriggerEvent)
	admin.POST("/world/spawn", adminH.SpawnEvent)
	admin.POST("/seed", adminH.Seed)
}
