// Package npc runs autonomous actor turns: decide a task, claim the action
// window, apply the task's effect and optionally trade on the market.
package npc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/kasuganosora/fracturesim/cache"
	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/game/item"
	"github.com/kasuganosora/fracturesim/game/market"
	"github.com/kasuganosora/fracturesim/game/oracle"
	"github.com/kasuganosora/fracturesim/game/trust"
	"github.com/kasuganosora/fracturesim/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Outcome classifies a turn.
type Outcome string

const (
	OutcomeActed   Outcome = "ACTED"
	OutcomeBusy    Outcome = "BUSY"
	OutcomeSkipped Outcome = "SKIPPED"
	OutcomeLocked  Outcome = "LOCKED"
	OutcomeFailed  Outcome = "FAILED"
)

// TurnResult reports one actor's turn.
type TurnResult struct {
	ActorID  int64            `json:"actor_id"`
	Name     string           `json:"name,omitempty"`
	Outcome  Outcome          `json:"outcome"`
	Plan     *oracle.TaskPlan `json:"plan,omitempty"`
	Fallback bool             `json:"fallback"`
	Until    *time.Time       `json:"until,omitempty"`
	Effect   string           `json:"effect,omitempty"`
	Economy  *EconomyResult   `json:"economy,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type Config struct {
	Parallelism   int
	LockTTL       time.Duration
	Economy       bool
	PlayerAction  time.Duration
	DefaultOracle string
}

// Rand picks uniformly from [0, n).
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

type Engine struct {
	db     *gorm.DB
	cache  cache.Cache
	pubsub cache.PubSub
	oracle *oracle.Oracle
	trust  *trust.Service
	market *market.Service
	cfg    Config
	now    func() time.Time
	rng    Rand
	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithRand overrides the random source.
func WithRand(r Rand) Option { return func(e *Engine) { e.rng = r } }

// WithPubSub publishes turn summaries.
func WithPubSub(ps cache.PubSub) Option { return func(e *Engine) { e.pubsub = ps } }

func NewEngine(db *gorm.DB, c cache.Cache, o *oracle.Oracle, trustSvc *trust.Service, marketSvc *market.Service, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.PlayerAction <= 0 {
		cfg.PlayerAction = 3 * time.Second
	}
	e := &Engine{
		db:     db,
		cache:  c,
		oracle: o,
		trust:  trustSvc,
		market: marketSvc,
		cfg:    cfg,
		now:    time.Now,
		rng:    globalRand{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func turnLockKey(actorID int64) string { return fmt.Sprintf("npc:turn:%d", actorID) }

// RunTurn advances one actor by a single turn.
func (e *Engine) RunTurn(ctx context.Context, actorID int64, provider string) (*TurnResult, error) {
	res := &TurnResult{ActorID: actorID}
	release, ok, err := cache.TryLock(ctx, e.cache, turnLockKey(actorID), e.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("npc: turn lock: %w", err)
	}
	if !ok {
		res.Outcome = OutcomeLocked
		return res, nil
	}
	defer release()

	a, err := e.loadActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	res.Name = a.Name
	now := e.now().UTC()
	switch {
	case a.Status == model.StatusDead:
		res.Outcome = OutcomeSkipped
		return res, nil
	case a.Acting(now):
		res.Outcome = OutcomeBusy
		res.Until = a.ActionExpiresAt
		return res, nil
	}

	traits := a.ParseTraits()
	decision := e.oracle.DecideNextTask(ctx, e.provider(provider), oracle.TaskInput{
		Name:   a.Name,
		Health: a.Health,
		Job:    a.Job,
		Skills: traits.Skills,
		Habits: traits.Habits,
	})
	plan := decision.Value
	res.Plan = &plan
	res.Fallback = decision.Fallback

	until := now.Add(time.Duration(plan.DurationMinutes) * time.Minute)
	var socializeWith int64
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := claimTx(tx, a.ID, plan.Task, now, until)
		if err != nil {
			return err
		}
		if !claimed {
			return errClaimLost
		}
		res.Effect, socializeWith, err = e.applyTaskTx(tx, a.ID, plan.Task, until)
		return err
	})
	if errors.Is(err, errClaimLost) {
		res.Outcome = OutcomeBusy
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	res.Outcome = OutcomeActed
	res.Until = &until

	// Oracle-backed follow-ups run outside the claim transaction.
	if socializeWith != 0 {
		res.Effect = e.greet(ctx, a, socializeWith, provider)
	}
	if e.cfg.Economy {
		res.Economy = e.economyStep(ctx, a, provider)
	}

	e.logger.Info("npc turn",
		zap.Int64("actor_id", a.ID), zap.String("task", plan.Task),
		zap.Bool("fallback", res.Fallback), zap.String("effect", res.Effect))
	return res, nil
}

var errClaimLost = errors.New("npc: action claim lost")

// claimTx sets the action only when the actor is alive and idle at now.
func claimTx(tx *gorm.DB, actorID int64, task string, now, until time.Time) (bool, error) {
	r := tx.Model(&model.Actor{}).
		Where("id = ? AND status <> ? AND (action_expires_at IS NULL OR action_expires_at <= ?)", actorID, model.StatusDead, now).
		Updates(map[string]any{"current_action": task, "action_expires_at": until})
	return r.RowsAffected == 1, r.Error
}

// applyTaskTx runs the immediate effect of a freshly claimed task. A non-zero
// partner means a SOCIALIZE greeting must follow once the claim commits.
func (e *Engine) applyTaskTx(tx *gorm.DB, actorID int64, task string, until time.Time) (effect string, partner int64, err error) {
	switch task {
	case oracle.TaskScavenge:
		effect, err = e.scavengeTx(tx, actorID)
		return effect, 0, err
	case oracle.TaskSocialize:
		partner, err = e.pickPartnerTx(tx, actorID)
		if partner == 0 && err == nil {
			effect = "nobody to talk to"
		}
		return effect, partner, err
	default:
		return "occupied until " + until.Format(time.RFC3339), 0, nil
	}
}

// greet runs the GREET interaction that completes a SOCIALIZE task.
func (e *Engine) greet(ctx context.Context, a *model.Actor, partner int64, provider string) string {
	if _, err := e.Interact(ctx, a.ID, partner, a.Name+" stops by to say hello.", model.TrustEventGreet, provider); err != nil {
		e.logger.Warn("npc: socialize failed", zap.Int64("actor_id", a.ID), zap.Error(err))
		return "greeting failed"
	}
	return fmt.Sprintf("greeted actor %d", partner)
}

func (e *Engine) scavengeTx(tx *gorm.DB, actorID int64) (string, error) {
	var resources []model.Item
	if err := tx.Where("type = ?", model.ItemResource).Order("id").Find(&resources).Error; err != nil {
		return "", err
	}
	if len(resources) == 0 {
		return "found nothing", nil
	}
	found := resources[e.rng.IntN(len(resources))]
	if err := item.CreditTx(tx, actorID, found.ID, 1); err != nil {
		return "", err
	}
	return "found " + found.Name, nil
}

func (e *Engine) pickPartnerTx(tx *gorm.DB, actorID int64) (int64, error) {
	var ids []int64
	err := tx.Model(&model.Actor{}).
		Where("id <> ? AND status <> ?", actorID, model.StatusDead).
		Order("id").Pluck("id", &ids).Error
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	return ids[e.rng.IntN(len(ids))], nil
}

func (e *Engine) loadActor(ctx context.Context, id int64) (*model.Actor, error) {
	var a model.Actor
	if err := e.db.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gameerr.ErrActorNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (e *Engine) provider(name string) string {
	if name == "" {
		return e.cfg.DefaultOracle
	}
	return name
}

// RunAll runs one turn for every living actor. A failing actor is reported
// in its own result and does not stop the others.
func (e *Engine) RunAll(ctx context.Context, provider string) ([]TurnResult, error) {
	var ids []int64
	if err := e.db.WithContext(ctx).Model(&model.Actor{}).
		Where("status <> ?", model.StatusDead).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}

	results := make([]TurnResult, len(ids))
	var g errgroup.Group
	g.SetLimit(e.cfg.Parallelism)
	for i, id := range ids {
		g.Go(func() error {
			r, err := e.RunTurn(ctx, id, provider)
			if err != nil {
				e.logger.Error("npc turn failed", zap.Int64("actor_id", id), zap.Error(err))
				results[i] = TurnResult{ActorID: id, Outcome: OutcomeFailed, Error: err.Error()}
				return nil
			}
			results[i] = *r
			return nil
		})
	}
	_ = g.Wait()

	e.publish(ctx, results)
	return results, nil
}

func (e *Engine) publish(ctx context.Context, results []TurnResult) {
	if e.pubsub == nil {
		return
	}
	b, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := e.pubsub.Publish(ctx, cache.ChannelTurns, string(b)); err != nil {
		e.logger.Warn("npc: publish turns", zap.Error(err))
	}
}
