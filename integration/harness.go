package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/fracturesim/api/rest"
	"github.com/kasuganosora/fracturesim/api/sse"
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
	"github.com/kasuganosora/fracturesim/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const AdminKey = "integration-admin-key"

// maxDice rolls the top of every range and never crits.
type maxDice struct{}

func (maxDice) Float64() float64 { return 0.999 }

// TestServer wraps a real HTTP server with every subsystem wired together
// over the embedded catalog.
type TestServer struct {
	DB      *gorm.DB
	Cache   cache.Cache
	PubSub  cache.PubSub
	Audit   *audit.Service
	Sched   *scheduler.Scheduler
	Catalog *resource.Catalog
	Server  *httptest.Server
	URL     string
	Sec     config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}

	loader := resource.NewLoader("")
	require.NoError(t, loader.Load())
	_, err := resource.Seed(context.Background(), db, loader.Catalog, logger)
	require.NoError(t, err)

	// ---- Services ----
	orc := oracle.New(config.OracleConfig{Timeout: time.Second}, logger)
	ledgerSvc := ledger.NewService(db, decimal.NewFromInt(100), logger)
	marketSvc := market.NewService(db, logger)
	trustSvc := trust.NewService(db, logger)
	worldEng := world.NewEngine(db, orc, world.Config{}, logger, world.WithPubSub(pubsub), world.WithLog(c))
	npcEng := npc.NewEngine(db, c, orc, trustSvc, marketSvc, npc.Config{
		Parallelism:  2,
		LockTTL:      time.Minute,
		Economy:      true,
		PlayerAction: 3 * time.Second,
	}, logger, npc.WithPubSub(pubsub))
	factionSvc := faction.NewService(db, orc, logger)
	auditSvc := audit.New(db, logger)
	sched := scheduler.New(logger)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	apirest.Register(r, apirest.Deps{
		DB:        db,
		Cache:     c,
		Security:  sec,
		AdminKey:  AdminKey,
		Ledger:    ledgerSvc,
		Items:     item.NewService(db, logger),
		Market:    marketSvc,
		Trust:     trustSvc,
		Combat:    combat.NewResolver(db, pubsub, maxDice{}, logger),
		Oracle:    orc,
		Actors:    actor.NewService(db, ledgerSvc, logger),
		NPC:       npcEng,
		Missions:  mission.NewService(db, 60, logger),
		World:     worldEng,
		Factions:  factionSvc,
		Sim:       sim.New(c, worldEng, npcEng, factionSvc, time.Minute, logger),
		Scheduler: sched,
		Audit:     auditSvc,
		Catalog:   loader.Catalog,
		Logger:    logger,
	})
	r.GET("/sse", sse.NewHandler(pubsub, time.Hour, logger).ServeSSE)

	server := httptest.NewServer(r)
	return &TestServer{
		DB:      db,
		Cache:   c,
		PubSub:  pubsub,
		Audit:   auditSvc,
		Sched:   sched,
		Catalog: loader.Catalog,
		Server:  server,
		URL:     server.URL,
		Sec:     sec,
	}
}

// Close shuts down the test server and its background workers.
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.Sched.Stop()
	ts.Audit.Stop(context.Background())
}

// --- HTTP helpers ---

// Envelope is the JSON body every API route answers with.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

// Do sends a request with an optional JSON body and Bearer token and decodes
// the envelope.
func (ts *TestServer) Do(t *testing.T, method, path string, body any, token string, headers ...string) (int, Envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

// Admin sends a request carrying the admin key.
func (ts *TestServer) Admin(t *testing.T, method, path string, body any) (int, Envelope) {
	t.Helper()
	return ts.Do(t, method, path, body, "", mw.AdminKeyHeader, AdminKey)
}

// Survivor is a spawned actor with its token and wallet address.
type Survivor struct {
	ID      int64
	Name    string
	Token   string
	Address string
}

// Spawn creates an actor with a wallet through the admin API and issues its token.
func (ts *TestServer) Spawn(t *testing.T, name string) Survivor {
	t.Helper()
	code, env := ts.Admin(t, http.MethodPost, "/api/admin/actors",
		map[string]any{"name": name, "alignment": "NEUTRAL", "with_wallet": true})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var spawned struct {
		Actor struct {
			ID int64 `json:"id"`
		} `json:"actor"`
		Wallet struct {
			Address string `json:"address"`
		} `json:"wallet"`
	}
	ReadData(t, env, &spawned)

	code, env = ts.Admin(t, http.MethodPost, "/api/admin/tokens", map[string]int64{"actor_id": spawned.Actor.ID})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var tok struct {
		Token string `json:"token"`
	}
	ReadData(t, env, &tok)
	return Survivor{ID: spawned.Actor.ID, Name: name, Token: tok.Token, Address: spawned.Wallet.Address}
}

// ItemID looks a catalog item up by name.
func (ts *TestServer) ItemID(t *testing.T, name string) int64 {
	t.Helper()
	code, env := ts.Do(t, http.MethodGet, "/api/items", nil, "")
	require.Equal(t, http.StatusOK, code)
	var items []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	ReadData(t, env, &items)
	for _, it := range items {
		if it.Name == name {
			return it.ID
		}
	}
	t.Fatalf("item %q not in catalog", name)
	return 0
}

// RecipeID looks a recipe up by name.
func (ts *TestServer) RecipeID(t *testing.T, name string) int64 {
	t.Helper()
	code, env := ts.Do(t, http.MethodGet, "/api/recipes", nil, "")
	require.Equal(t, http.StatusOK, code)
	var recipes []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	ReadData(t, env, &recipes)
	for _, r := range recipes {
		if r.Name == name {
			return r.ID
		}
	}
	t.Fatalf("recipe %q not found", name)
	return 0
}

// Grant puts qty of an item into a survivor's inventory.
func (ts *TestServer) Grant(t *testing.T, s Survivor, itemID int64, qty int) {
	t.Helper()
	code, env := ts.Admin(t, http.MethodPost, fmt.Sprintf("/api/admin/actors/%d/items", s.ID),
		map[string]any{"item_id": itemID, "qty": qty})
	require.Equal(t, http.StatusOK, code, env.Message)
}

// Balance reads a survivor's wallet balance.
func (ts *TestServer) Balance(t *testing.T, s Survivor) decimal.Decimal {
	t.Helper()
	code, env := ts.Do(t, http.MethodGet, "/api/me/wallet", nil, s.Token)
	require.Equal(t, http.StatusOK, code, env.Message)
	var w struct {
		Balance decimal.Decimal `json:"balance"`
	}
	ReadData(t, env, &w)
	return w.Balance
}

// ReadData decodes the envelope's data into v.
func ReadData(t *testing.T, env Envelope, v any) {
	t.Helper()
	require.True(t, env.Success, "%s: %s", env.Error, env.Message)
	require.NoError(t, json.Unmarshal(env.Data, v))
}

var uidCounter int64

// UniqueID returns a name unique within the test binary.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, atomic.AddInt64(&uidCounter, 1))
}
