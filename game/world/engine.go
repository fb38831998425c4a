// Package world runs global world events: each tick applies the effects of
// active events, retires some of them and occasionally generates a new one.
package world

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/kasuganosora/fracturesim/cache"
	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/game/oracle"
	"github.com/kasuganosora/fracturesim/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MaxAffected     = 3
	WeatherMaxDmg   = 10
	ResourceHeal    = 10
	EndChance       = 0.3
	SpawnWhenQuiet  = 0.5
	SpawnWhenActive = 0.1

	logKey = "world:log"
	logCap = 200
)

// Rand is the randomness the engine draws on.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }
func (globalRand) IntN(n int) int   { return rand.IntN(n) }

type Config struct {
	ContextSize   int // recent events handed to the generator
	DefaultOracle string
}

type Engine struct {
	db     *gorm.DB
	pubsub cache.PubSub
	log    cache.Cache
	oracle *oracle.Oracle
	cfg    Config
	rng    Rand
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Engine)

func WithRand(r Rand) Option { return func(e *Engine) { e.rng = r } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithPubSub publishes every tick log line on cache.ChannelWorld.
func WithPubSub(ps cache.PubSub) Option { return func(e *Engine) { e.pubsub = ps } }

// WithLog keeps the most recent log lines in a capped cache list.
func WithLog(c cache.Cache) Option { return func(e *Engine) { e.log = c } }

func NewEngine(db *gorm.DB, o *oracle.Oracle, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if cfg.ContextSize <= 0 {
		cfg.ContextSize = 3
	}
	e := &Engine{db: db, oracle: o, cfg: cfg, rng: globalRand{}, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TickReport is the outcome of one world tick.
type TickReport struct {
	Timestamp time.Time         `json:"timestamp"`
	Logs      []string          `json:"logs"`
	Ended     []int64           `json:"ended,omitempty"`
	Spawned   *model.WorldEvent `json:"spawned,omitempty"`
	Fallback  bool              `json:"fallback,omitempty"`
}

// Tick advances world time by one step.
func (e *Engine) Tick(ctx context.Context, provider string) (*TickReport, error) {
	report := &TickReport{Timestamp: e.now(), Logs: []string{}}

	active, err := e.Active(ctx)
	if err != nil {
		return nil, err
	}
	for _, ev := range active {
		line, err := e.applyEffect(ctx, &ev)
		if err != nil {
			return nil, fmt.Errorf("world: apply %q: %w", ev.Title, err)
		}
		report.Logs = append(report.Logs, line)

		if e.rng.Float64() < EndChance {
			if err := e.db.WithContext(ctx).Model(&model.WorldEvent{}).
				Where("id = ?", ev.ID).Update("active", false).Error; err != nil {
				return nil, err
			}
			report.Ended = append(report.Ended, ev.ID)
			report.Logs = append(report.Logs, "Event Ended: "+ev.Title)
		}
	}

	chance := SpawnWhenActive
	if len(active) == 0 {
		chance = SpawnWhenQuiet
	}
	if e.rng.Float64() < chance {
		ev, fallback, err := e.spawn(ctx, provider)
		if err != nil {
			return nil, err
		}
		report.Spawned, report.Fallback = ev, fallback
		report.Logs = append(report.Logs, "New Event Generated: "+ev.Title)
	}

	e.publish(ctx, report.Logs)
	e.logger.Info("world tick", zap.Int("active", len(active)), zap.Int("ended", len(report.Ended)),
		zap.Bool("spawned", report.Spawned != nil))
	return report, nil
}

// applyEffect runs one event's effect in its own transaction and returns
// the log line.
func (e *Engine) applyEffect(ctx context.Context, ev *model.WorldEvent) (string, error) {
	line := "Event Effect: " + ev.Title
	switch ev.Type {
	case model.EventWeather, model.EventResource:
	case model.EventPolitical:
		return line + " -> Faction tensions rising.", nil
	case model.EventInvasion:
		return line + " -> Raiders sighted at the perimeter.", nil
	default:
		return line + " -> Reality flickers.", nil
	}

	var n int
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		victims, err := e.pickLiving(tx)
		if err != nil {
			return err
		}
		for _, id := range victims {
			delta := ResourceHeal
			if ev.Type == model.EventWeather {
				delta = -(1 + e.rng.IntN(WeatherMaxDmg))
			}
			if err := adjustHealthTx(tx, id, delta); err != nil {
				return err
			}
		}
		n = len(victims)
		return nil
	})
	if err != nil {
		return "", err
	}
	if ev.Type == model.EventWeather {
		return fmt.Sprintf("%s -> Damaged %d survivors.", line, n), nil
	}
	return fmt.Sprintf("%s -> Healed %d survivors.", line, n), nil
}

// pickLiving draws up to MaxAffected distinct living actors.
func (e *Engine) pickLiving(tx *gorm.DB) ([]int64, error) {
	var ids []int64
	if err := tx.Model(&model.Actor{}).Where("status <> ?", model.StatusDead).
		Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	k := min(MaxAffected, len(ids))
	for i := 0; i < k; i++ {
		j := i + e.rng.IntN(len(ids)-i)
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids[:k], nil
}

func adjustHealthTx(tx *gorm.DB, actorID int64, delta int) error {
	var a model.Actor
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, actorID).Error; err != nil {
		return err
	}
	if a.Status == model.StatusDead {
		return nil
	}
	health := model.ClampHealth(a.Health + delta)
	return tx.Model(&model.Actor{}).Where("id = ?", actorID).
		Updates(map[string]any{"health": health, "status": model.StatusForHealth(health)}).Error
}

// Spawn forces generation of a new event.
func (e *Engine) Spawn(ctx context.Context, provider string) (*model.WorldEvent, bool, error) {
	ev, fallback, err := e.spawn(ctx, provider)
	if err != nil {
		return nil, false, err
	}
	e.publish(ctx, []string{"New Event Generated: " + ev.Title})
	return ev, fallback, nil
}

func (e *Engine) spawn(ctx context.Context, provider string) (*model.WorldEvent, bool, error) {
	recent, err := e.Recent(ctx, e.cfg.ContextSize)
	if err != nil {
		return nil, false, err
	}
	if provider == "" {
		provider = e.cfg.DefaultOracle
	}
	gen := e.oracle.GenerateWorldEvent(ctx, provider, recent)
	ev := &model.WorldEvent{
		Title:       gen.Value.Title,
		Description: gen.Value.Description,
		Type:        gen.Value.Type,
		Active:      true,
	}
	if err := e.db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, false, err
	}
	e.logger.Info("world event spawned", zap.Int64("event_id", ev.ID), zap.String("type", string(ev.Type)),
		zap.String("provider", gen.Provider), zap.Bool("fallback", gen.Fallback))
	return ev, gen.Fallback, nil
}

// Trigger creates an active event by hand.
func (e *Engine) Trigger(ctx context.Context, title, description string, typ model.WorldEventType) (*model.WorldEvent, error) {
	if len([]rune(title)) < 3 {
		return nil, gameerr.Validationf("title must be at least 3 characters")
	}
	if !typ.Valid() {
		return nil, gameerr.Validationf("unknown event type %q", typ)
	}
	ev := &model.WorldEvent{Title: title, Description: description, Type: typ, Active: true}
	if err := e.db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	e.publish(ctx, []string{"Event Triggered: " + title})
	return ev, nil
}

func (e *Engine) Active(ctx context.Context) ([]model.WorldEvent, error) {
	var evs []model.WorldEvent
	err := e.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&evs).Error
	return evs, err
}

// Recent returns the latest events, newest first.
func (e *Engine) Recent(ctx context.Context, limit int) ([]model.WorldEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	var evs []model.WorldEvent
	err := e.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&evs).Error
	return evs, err
}

// Reset deletes every world event and returns how many were removed.
func (e *Engine) Reset(ctx context.Context) (int64, error) {
	res := e.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.WorldEvent{})
	if res.Error != nil {
		return 0, res.Error
	}
	e.logger.Warn("world events reset", zap.Int64("deleted", res.RowsAffected))
	return res.RowsAffected, nil
}

// Log returns up to limit recent log lines, newest first.
func (e *Engine) Log(ctx context.Context, limit int) ([]string, error) {
	if e.log == nil {
		return []string{}, nil
	}
	if limit <= 0 || limit > logCap {
		limit = logCap
	}
	return e.log.LRange(ctx, logKey, 0, int64(limit-1))
}

func (e *Engine) publish(ctx context.Context, lines []string) {
	if len(lines) == 0 {
		return
	}
	if e.log != nil {
		stamp := e.now().UTC().Format(time.RFC3339)
		entries := make([]string, len(lines))
		for i, l := range lines {
			entries[i] = stamp + " " + l
		}
		if err := e.log.LPush(ctx, logKey, entries...); err != nil {
			e.logger.Warn("world: log push", zap.Error(err))
		} else if err := e.log.LTrim(ctx, logKey, 0, logCap-1); err != nil {
			e.logger.Warn("world: log trim", zap.Error(err))
		}
	}
	if e.pubsub == nil {
		return
	}
	for _, l := range lines {
		if err := e.pubsub.Publish(ctx, cache.ChannelWorld, l); err != nil {
			e.logger.Warn("world: publish", zap.Error(err))
			return
		}
	}
}
