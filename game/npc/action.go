package npc

import (
	"context"
	"errors"
	"time"

	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/game/oracle"
	"github.com/kasuganosora/fracturesim/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ActionResult is a started player task and what it did right away.
type ActionResult struct {
	Actor  *model.Actor `json:"actor"`
	Effect string       `json:"effect"`
}

// StartAction starts a player-requested task with the short fixed duration
// and applies the task's immediate effect.
func (e *Engine) StartAction(ctx context.Context, actorID int64, task string) (*ActionResult, error) {
	t, ok := oracle.NormalizeTask(task)
	if !ok {
		return nil, gameerr.Validationf("unknown task %q", task)
	}
	now := e.now().UTC()
	until := now.Add(e.cfg.PlayerAction)

	res := &ActionResult{}
	var partner int64
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := claimTx(tx, actorID, t, now, until)
		if err != nil {
			return err
		}
		var cur model.Actor
		if err := tx.First(&cur, actorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return gameerr.ErrActorNotFound
			}
			return err
		}
		if !claimed {
			if cur.Status == model.StatusDead {
				return gameerr.ErrActorDead
			}
			return gameerr.ErrActorBusy.WithDetails(map[string]any{
				"action":     cur.CurrentAction,
				"expires_at": cur.ActionExpiresAt,
				"remaining":  remaining(cur.ActionExpiresAt, now).String(),
			})
		}
		res.Actor = &cur
		res.Effect, partner, err = e.applyTaskTx(tx, actorID, t, until)
		return err
	})
	if err != nil {
		return nil, err
	}
	if partner != 0 {
		res.Effect = e.greet(ctx, res.Actor, partner, "")
	}
	e.logger.Debug("action started",
		zap.Int64("actor_id", actorID), zap.String("task", t),
		zap.Time("until", until), zap.String("effect", res.Effect))
	return res, nil
}

func remaining(expires *time.Time, now time.Time) time.Duration {
	if expires == nil || !expires.After(now) {
		return 0
	}
	return expires.Sub(now).Round(time.Millisecond)
}
