package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/fracturesim/api/rest"
	"github.com/kasuganosora/fracturesim/audit"
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
	"github.com/kasuganosora/fracturesim/model"
	"github.com/kasuganosora/fracturesim/scheduler"
	"github.com/kasuganosora/fracturesim/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const adminKey = "test-admin-key"

func init() { gin.SetMode(gin.TestMode) }

type fixedDice struct{}

func (fixedDice) Float64() float64 { return 0.99 }

type quietWorld struct{}

func (quietWorld) Float64() float64 { return 0.99 }
func (quietWorld) IntN(int) int     { return 0 }

type env struct {
	r     *gin.Engine
	db    *gorm.DB
	deps  rest.Deps
	audit *audit.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	log := zap.NewNop()
	o := oracle.New(config.OracleConfig{Timeout: time.Second}, log)
	led := ledger.NewService(db, decimal.NewFromInt(100), log)
	tr := trust.NewService(db, log)
	mk := market.NewService(db, log)
	w := world.NewEngine(db, o, world.Config{}, log, world.WithRand(quietWorld{}), world.WithLog(c))
	n := npc.NewEngine(db, c, o, tr, mk, npc.Config{PlayerAction: 3 * time.Second}, log)
	f := faction.NewService(db, o, log)
	sched := scheduler.New(log)
	t.Cleanup(sched.Stop)
	a := audit.New(db, log)
	t.Cleanup(func() { a.Stop(context.Background()) })

	d := rest.Deps{
		DB:        db,
		Cache:     c,
		Security:  config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: time.Hour},
		AdminKey:  adminKey,
		Ledger:    led,
		Items:     item.NewService(db, log),
		Market:    mk,
		Trust:     tr,
		Combat:    combat.NewResolver(db, ps, fixedDice{}, log),
		Oracle:    o,
		Actors:    actor.NewService(db, led, log),
		NPC:       n,
		Missions:  mission.NewService(db, 60, log),
		World:     w,
		Factions:  f,
		Sim:       sim.New(c, w, n, f, time.Minute, log),
		Scheduler: sched,
		Audit:     a,
		Logger:    log,
	}
	r := gin.New()
	r.Use(mw.TraceID())
	rest.Register(r, d)
	return &env{r: r, db: db, deps: d, audit: a}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func (e *env) do(t *testing.T, method, path, token string, body any, headers ...string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (e *env) admin(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	return e.do(t, method, path, "", body, mw.AdminKeyHeader, adminKey)
}

func (e *env) token(t *testing.T, actorID int64) string {
	t.Helper()
	code, resp := e.admin(t, http.MethodPost, "/api/admin/tokens", map[string]int64{"actor_id": actorID})
	require.Equal(t, http.StatusCreated, code)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestAuth_RequiresToken(t *testing.T) {
	e := newEnv(t)
	code, resp := e.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", resp.Error)
}

func TestAdmin_KeyRequired(t *testing.T) {
	e := newEnv(t)
	code, resp := e.do(t, http.MethodGet, "/api/admin/metrics", "", nil, mw.AdminKeyHeader, "wrong")
	assert.Equal(t, http.StatusForbidden, code)
	assert.False(t, resp.Success)
}

func TestAdmin_TokenIssueAndRevoke(t *testing.T) {
	e := newEnv(t)
	a := testutil.CreateActor(t, e.db, "Mara")
	tok := e.token(t, a.ID)

	code, resp := e.do(t, http.MethodGet, "/api/me", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Mara", decode[model.Actor](t, resp.Data).Name)

	code, _ = e.admin(t, http.MethodPost, "/api/admin/tokens/revoke", map[string]string{"token": tok})
	require.Equal(t, http.StatusOK, code)
	code, _ = e.do(t, http.MethodGet, "/api/me", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, resp = e.admin(t, http.MethodPost, "/api/admin/tokens", map[string]int64{"actor_id": 999})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "ACTOR_NOT_FOUND", resp.Error)
}

func TestErrorEnvelope(t *testing.T) {
	e := newEnv(t)
	a := testutil.CreateActor(t, e.db, "Mara")
	tok := e.token(t, a.ID)

	code, resp := e.do(t, http.MethodGet, "/api/actors/999", tok, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "ACTOR_NOT_FOUND", resp.Error)

	code, resp = e.do(t, http.MethodGet, "/api/actors/abc", tok, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error)

	code, resp = e.do(t, http.MethodPut, "/api/me/job", tok, map[string]string{"job": "astronaut"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error)

	code, resp = e.do(t, http.MethodPut, "/api/me/job", tok, map[string]string{"job": "medic"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "MEDIC", decode[model.Actor](t, resp.Data).Job)
}

func TestTransfer_AndAudit(t *testing.T) {
	e := newEnv(t)
	a := testutil.CreateActor(t, e.db, "Mara")
	b := testutil.CreateActor(t, e.db, "Jonas")
	wa := testutil.CreateWallet(t, e.db, a.ID, 100)
	wb := testutil.CreateWallet(t, e.db, b.ID, 0)
	tok := e.token(t, a.ID)

	code, _ := e.do(t, http.MethodPost, "/api/me/transfer", tok,
		map[string]string{"to": wb.Address, "amount": "30", "memo": "rations"})
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, testutil.Balance(t, e.db, wa.Address).Equal(decimal.NewFromInt(70)))
	assert.True(t, testutil.Balance(t, e.db, wb.Address).Equal(decimal.NewFromInt(30)))

	code, resp := e.do(t, http.MethodPost, "/api/me/transfer", tok,
		map[string]string{"to": wb.Address, "amount": "1000"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INSUFFICIENT_FUNDS", resp.Error)

	code, resp = e.do(t, http.MethodGet, "/api/me/transactions", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]model.Transaction](t, resp.Data), 1)

	e.audit.Stop(context.Background())
	logs, err := e.audit.Query(context.Background(), audit.Filter{Action: "ledger.transfer"})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "INSUFFICIENT_FUNDS", logs[0].Error)
	assert.Empty(t, logs[1].Error)
	require.NotNil(t, logs[1].ActorID)
	assert.Equal(t, a.ID, *logs[1].ActorID)
}

func TestMarket_ListBuyCancel(t *testing.T) {
	e := newEnv(t)
	seller := testutil.CreateActor(t, e.db, "Seller")
	buyer := testutil.CreateActor(t, e.db, "Buyer")
	sw := testutil.CreateWallet(t, e.db, seller.ID, 0)
	bw := testutil.CreateWallet(t, e.db, buyer.ID, 50)
	water := testutil.CreateItem(t, e.db, "Clean Water", model.ItemConsumable, model.HealStats{Heal: 5})
	testutil.Give(t, e.db, seller.ID, water.ID, 5)
	sellerTok, buyerTok := e.token(t, seller.ID), e.token(t, buyer.ID)

	code, resp := e.do(t, http.MethodPost, "/api/market", sellerTok,
		map[string]any{"item_id": water.ID, "qty": 3, "price": "10"})
	require.Equal(t, http.StatusCreated, code)
	listing := decode[model.MarketListing](t, resp.Data)
	assert.Equal(t, 2, testutil.Qty(t, e.db, seller.ID, water.ID))

	code, resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/market/%d/buy", listing.ID), sellerTok, map[string]int{"qty": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error)

	code, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/market/%d/buy", listing.ID), buyerTok, map[string]int{"qty": 2})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, testutil.Qty(t, e.db, buyer.ID, water.ID))
	assert.True(t, testutil.Balance(t, e.db, bw.Address).Equal(decimal.NewFromInt(30)))
	assert.True(t, testutil.Balance(t, e.db, sw.Address).Equal(decimal.NewFromInt(20)))

	code, resp = e.do(t, http.MethodDelete, fmt.Sprintf("/api/market/%d", listing.ID), buyerTok, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", resp.Error)

	code, _ = e.do(t, http.MethodDelete, fmt.Sprintf("/api/market/%d", listing.ID), sellerTok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, testutil.Qty(t, e.db, seller.ID, water.ID))

	code, resp = e.do(t, http.MethodGet, "/api/market", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]model.MarketListing](t, resp.Data))
}

func TestInventory_EquipAndCraft(t *testing.T) {
	e := newEnv(t)
	a := testutil.CreateActor(t, e.db, "Mara")
	knife := testutil.CreateItem(t, e.db, "Rusty Knife", model.ItemWeapon, model.DamageStats{Damage: 8})
	scrap := testutil.CreateItem(t, e.db, "Scrap Metal", model.ItemResource, nil)
	armor := testutil.CreateItem(t, e.db, "Scrap Armor", model.ItemArmor, model.DefenseStats{Defense: 5})
	recipe := &model.Recipe{Name: "Craft Scrap Armor", OutputItemID: armor.ID, OutputQty: 1,
		Ingredients: []model.RecipeIngredient{{ItemID: scrap.ID, Qty: 5}}}
	require.NoError(t, e.db.Create(recipe).Error)
	testutil.Give(t, e.db, a.ID, knife.ID, 1)
	testutil.Give(t, e.db, a.ID, scrap.ID, 4)
	tok := e.token(t, a.ID)

	code, resp := e.do(t, http.MethodPost, "/api/me/equip", tok, map[string]any{"item_id": knife.ID})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decode[model.InventorySlot](t, resp.Data).Equipped)

	path := fmt.Sprintf("/api/recipes/%d/craft", recipe.ID)
	code, resp = e.do(t, http.MethodPost, path, tok, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INSUFFICIENT_INGREDIENTS", resp.Error)
	assert.Equal(t, 4, testutil.Qty(t, e.db, a.ID, scrap.ID))

	code, _ = e.admin(t, http.MethodPost, fmt.Sprintf("/api/admin/actors/%d/items", a.ID),
		map[string]any{"item_id": scrap.ID, "qty": 1})
	require.Equal(t, http.StatusOK, code)

	code, _ = e.do(t, http.MethodPost, path, tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, testutil.Qty(t, e.db, a.ID, scrap.ID))
	assert.Equal(t, 1, testutil.Qty(t, e.db, a.ID, armor.ID))
}

func TestAttack(t *testing.T) {
	e := newEnv(t)
	a := testutil.CreateActor(t, e.db, "Mara")
	b := testutil.CreateActor(t, e.db, "Jonas")
	tok := e.token(t, a.ID)

	code, resp := e.do(t, http.MethodPost, fmt.Sprintf("/api/actors/%d/attack", b.ID), tok, nil)
	require.Equal(t, http.StatusOK, code)
	res := decode[combat.Result](t, resp.Data)
	assert.Positive(t, res.Damage)
	assert.Equal(t, model.MaxHealth-res.Damage, res.DefenderHealth)

	code, resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/actors/%d/attack", a.ID), tok, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_COMBATANTS", resp.Error)
}

func TestMission_OverHTTP(t *testing.T) {
	e := newEnv(t)
	giver := testutil.CreateActor(t, e.db, "Giver")
	receiver := testutil.CreateActor(t, e.db, "Receiver")
	outsider := testutil.CreateActor(t, e.db, "Outsider")
	testutil.CreateWallet(t, e.db, giver.ID, 100)
	giverTok, recvTok, outTok := e.token(t, giver.ID), e.token(t, receiver.ID), e.token(t, outsider.ID)

	code, resp := e.do(t, http.MethodPost, "/api/missions", giverTok, map[string]any{
		"receiver_id":    receiver.ID,
		"title":          "Scout the ridge",
		"description":    "Report raider movement on the north ridge.",
		"reward_credits": "40",
	})
	require.Equal(t, http.StatusCreated, code)
	m := decode[model.Mission](t, resp.Data)
	assert.Equal(t, model.MissionPending, m.Status)

	code, _ = e.do(t, http.MethodGet, fmt.Sprintf("/api/missions/%d", m.ID), outTok, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/missions/%d/accept", m.ID), recvTok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.MissionAccepted, decode[model.Mission](t, resp.Data).Status)

	code, resp = e.do(t, http.MethodPost, fmt.Sprintf("/api/missions/%d/complete", m.ID), recvTok, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "MISSION_IN_PROGRESS", resp.Error)

	code, resp = e.admin(t, http.MethodPost, fmt.Sprintf("/api/admin/missions/%d/fail", m.ID), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.MissionFailed, decode[model.Mission](t, resp.Data).Status)

	code, resp = e.do(t, http.MethodGet, "/api/me/missions", recvTok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]model.Mission](t, resp.Data), 1)
}

func TestAdmin_WorldAndReset(t *testing.T) {
	e := newEnv(t)

	code, resp := e.admin(t, http.MethodPost, "/api/admin/world/events",
		map[string]string{"title": "Acid Rain", "description": "Burning drizzle.", "type": "weather"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, model.EventWeather, decode[model.WorldEvent](t, resp.Data).Type)

	code, resp = e.do(t, http.MethodGet, "/api/world/events", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]model.WorldEvent](t, resp.Data), 1)

	code, resp = e.do(t, http.MethodGet, "/api/world/log", "", nil)
	require.Equal(t, http.StatusOK, code)
	lines := decode[[]string](t, resp.Data)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Event Triggered: Acid Rain")

	code, resp = e.admin(t, http.MethodPost, "/api/admin/reset", map[string]string{"action": "DROP_EVERYTHING"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error)

	code, resp = e.admin(t, http.MethodPost, "/api/admin/reset", map[string]string{"action": rest.ResetWorld})
	require.Equal(t, http.StatusOK, code)
	out := decode[map[string]any](t, resp.Data)
	assert.EqualValues(t, 1, out["deleted"])

	code, resp = e.do(t, http.MethodGet, "/api/world/events", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]model.WorldEvent](t, resp.Data))
}

func TestAdmin_TurnAndMetrics(t *testing.T) {
	e := newEnv(t)
	testutil.CreateActor(t, e.db, "Mara")
	code, _ := e.admin(t, http.MethodPost, "/api/admin/factions",
		map[string]string{"name": "Rust Saints", "description": "Scrap-worshipping mechanics."})
	require.Equal(t, http.StatusCreated, code)

	code, resp := e.admin(t, http.MethodPost, "/api/admin/turn", nil)
	require.Equal(t, http.StatusOK, code)
	rep := decode[sim.Report](t, resp.Data)
	require.Len(t, rep.Turns, 1)
	assert.Equal(t, npc.OutcomeActed, rep.Turns[0].Outcome)
	require.Len(t, rep.Factions, 1)

	code, resp = e.admin(t, http.MethodGet, "/api/admin/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	m := decode[map[string]any](t, resp.Data)
	assert.Contains(t, m, "total_supply")
	assert.Contains(t, m, "providers")
	pop := m["population"].(map[string]any)
	assert.EqualValues(t, 1, pop[string(model.StatusAlive)])
}

func TestSocial_InteractAndChat(t *testing.T) {
	e := newEnv(t)
	a := testutil.CreateActor(t, e.db, "Mara")
	b := testutil.CreateActor(t, e.db, "Jonas")
	tok := e.token(t, a.ID)

	code, resp := e.do(t, http.MethodPost, fmt.Sprintf("/api/actors/%d/interact", b.ID), tok,
		map[string]string{"content": "Shared my water.", "event_type": "help"})
	require.Equal(t, http.StatusOK, code)
	in := decode[npc.Interaction](t, resp.Data)
	assert.Equal(t, "HELP", in.EventType)
	assert.True(t, in.Fallback)

	code, resp = e.do(t, http.MethodGet, "/api/me/relations", tok, nil)
	require.Equal(t, http.StatusOK, code)
	rel := decode[[]model.TrustState](t, resp.Data)
	require.Len(t, rel, 1)
	assert.Equal(t, b.ID, rel[0].TargetID)

	code, resp = e.do(t, http.MethodPost, "/api/chat", tok, map[string]string{"query": "status?"})
	require.Equal(t, http.StatusOK, code)
	chat := decode[map[string]any](t, resp.Data)
	assert.Equal(t, true, chat["fallback"])
}

func TestAction_ScavengeOverHTTP(t *testing.T) {
	e := newEnv(t)
	a := testutil.CreateActor(t, e.db, "Mara")
	scrap := testutil.CreateItem(t, e.db, "Scrap Metal", model.ItemResource, nil)
	tok := e.token(t, a.ID)

	code, resp := e.do(t, http.MethodPost, "/api/me/action", tok, map[string]string{"task": "scavenge"})
	require.Equal(t, http.StatusOK, code, resp.Message)
	res := decode[npc.ActionResult](t, resp.Data)
	assert.Equal(t, "found Scrap Metal", res.Effect)
	assert.Equal(t, "SCAVENGE", res.Actor.CurrentAction)
	assert.Equal(t, 1, testutil.Qty(t, e.db, a.ID, scrap.ID))

	code, resp = e.do(t, http.MethodPost, "/api/me/action", tok, map[string]string{"task": "rest"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ACTOR_BUSY", resp.Error)
}

func TestAdmin_TradeConservesCredits(t *testing.T) {
	e := newEnv(t)
	buyer := testutil.CreateActor(t, e.db, "Buyer")
	seller := testutil.CreateActor(t, e.db, "Seller")
	bw := testutil.CreateWallet(t, e.db, buyer.ID, 100)
	sw := testutil.CreateWallet(t, e.db, seller.ID, 0)
	knife := testutil.CreateItem(t, e.db, "Rusty Knife", model.ItemWeapon, model.DamageStats{Damage: 5})
	testutil.Give(t, e.db, seller.ID, knife.ID, 2)

	body := map[string]any{"buyer_id": buyer.ID, "seller_id": seller.ID, "item_id": knife.ID, "qty": 2, "price": "40"}
	code, resp := e.admin(t, http.MethodPost, "/api/admin/trade", body)
	require.Equal(t, http.StatusOK, code, resp.Message)
	res := decode[market.TradeResult](t, resp.Data)
	assert.True(t, res.SellerPaid)

	assert.True(t, testutil.Balance(t, e.db, bw.Address).Equal(decimal.NewFromInt(60)))
	assert.True(t, testutil.Balance(t, e.db, sw.Address).Equal(decimal.NewFromInt(40)))
	assert.Equal(t, 2, testutil.Qty(t, e.db, buyer.ID, knife.ID))
	assert.Equal(t, 0, testutil.Qty(t, e.db, seller.ID, knife.ID))

	code, resp = e.admin(t, http.MethodPost, "/api/admin/trade", body)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INSUFFICIENT_ITEMS", resp.Error)

	code, _ = e.do(t, http.MethodPost, "/api/admin/trade", e.token(t, buyer.ID), body)
	assert.Equal(t, http.StatusForbidden, code)
}
