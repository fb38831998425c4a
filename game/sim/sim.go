// Package sim advances the whole simulation by one turn.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/kasuganosora/fracturesim/cache"
	"github.com/kasuganosora/fracturesim/game/faction"
	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/game/npc"
	"github.com/kasuganosora/fracturesim/game/world"
	"go.uber.org/zap"
)

const advanceLockKey = "sim:advance"

// ErrTurnInProgress is returned when another Advance holds the turn lock.
var ErrTurnInProgress = gameerr.New(gameerr.KindStateConflict, "TURN_IN_PROGRESS", "a turn is already running")

type Report struct {
	StartedAt time.Time            `json:"started_at"`
	Duration  time.Duration        `json:"duration"`
	World     *world.TickReport    `json:"world"`
	Turns     []npc.TurnResult     `json:"turns"`
	Factions  []faction.TurnResult `json:"factions"`
}

type Sim struct {
	cache    cache.Cache
	world    *world.Engine
	npcs     *npc.Engine
	factions *faction.Service
	lockTTL  time.Duration
	logger   *zap.Logger
}

func New(c cache.Cache, w *world.Engine, n *npc.Engine, f *faction.Service, lockTTL time.Duration, logger *zap.Logger) *Sim {
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &Sim{cache: c, world: w, npcs: n, factions: f, lockTTL: lockTTL, logger: logger}
}

// Advance runs the world tick, then every actor's turn, then every faction's
// turn. Only one Advance runs at a time across the cluster.
func (s *Sim) Advance(ctx context.Context, provider string) (*Report, error) {
	release, ok, err := cache.TryLock(ctx, s.cache, advanceLockKey, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("sim: lock: %w", err)
	}
	if !ok {
		return nil, ErrTurnInProgress
	}
	defer release()

	rep := &Report{StartedAt: time.Now()}
	if rep.World, err = s.world.Tick(ctx, provider); err != nil {
		return nil, fmt.Errorf("sim: world tick: %w", err)
	}
	if rep.Turns, err = s.npcs.RunAll(ctx, provider); err != nil {
		return nil, fmt.Errorf("sim: npc turns: %w", err)
	}
	if rep.Factions, err = s.factions.EvaluateAll(ctx, provider); err != nil {
		return nil, fmt.Errorf("sim: faction turns: %w", err)
	}
	rep.Duration = time.Since(rep.StartedAt)

	s.logger.Info("turn advanced",
		zap.Int("world_logs", len(rep.World.Logs)),
		zap.Int("actors", len(rep.Turns)),
		zap.Int("factions", len(rep.Factions)),
		zap.Duration("took", rep.Duration))
	return rep, nil
}
