// Package combat resolves one attack between two actors.
package combat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/kasuganosora/fracturesim/cache"
	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/game/item"
	"github.com/kasuganosora/fracturesim/game/trust"
	"github.com/kasuganosora/fracturesim/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	UnarmedDamage  = 5
	CritChance     = 0.10
	CritMultiplier = 1.5
	minRoll        = 0.5
)

// Dice yields uniform values in [0, 1).
type Dice interface {
	Float64() float64
}

type randDice struct{}

func (randDice) Float64() float64 { return rand.Float64() }

// Result is the outcome of one attack.
type Result struct {
	AttackerID     int64             `json:"attacker_id"`
	DefenderID     int64             `json:"defender_id"`
	Damage         int               `json:"damage"`
	Crit           bool              `json:"crit"`
	Weapon         string            `json:"weapon"`
	DefenderHealth int               `json:"defender_health"`
	DefenderStatus model.ActorStatus `json:"defender_status"`
	Message        string            `json:"message"`
}

type Resolver struct {
	db     *gorm.DB
	pubsub cache.PubSub
	dice   Dice
	logger *zap.Logger
}

// NewResolver builds a resolver. pubsub may be nil; dice nil uses math/rand.
func NewResolver(db *gorm.DB, pubsub cache.PubSub, dice Dice, logger *zap.Logger) *Resolver {
	if dice == nil {
		dice = randDice{}
	}
	return &Resolver{db: db, pubsub: pubsub, dice: dice, logger: logger}
}

// Roll computes damage from attack power and defense. The first die scales
// power into [0.5, 1.0]; the second decides the critical hit.
func Roll(d Dice, power, defense int) (damage int, crit bool) {
	raw := int(math.Floor(float64(power) * (minRoll + (1-minRoll)*d.Float64())))
	damage = raw - defense
	if damage < 1 {
		damage = 1
	}
	if d.Float64() < CritChance {
		crit = true
		damage = int(math.Floor(float64(damage) * CritMultiplier))
	}
	return damage, crit
}

// Attack applies one blow from attackerID to defenderID. Health, status,
// both memories and the defender's hostility commit together.
func (r *Resolver) Attack(ctx context.Context, attackerID, defenderID int64) (*Result, error) {
	if attackerID == defenderID {
		return nil, gameerr.ErrInvalidCombatants.Withf("an actor cannot attack itself")
	}
	var res Result
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		actors, err := lockPair(tx, attackerID, defenderID)
		if err != nil {
			return err
		}
		att, def := actors[attackerID], actors[defenderID]
		if att.Status == model.StatusDead {
			return gameerr.ErrInvalidCombatants.Withf("%s is dead", att.Name)
		}
		if def.Status == model.StatusDead {
			return gameerr.ErrTargetAlreadyDead
		}

		power, weaponName := UnarmedDamage, "fists"
		weapon, err := item.EquippedTx(tx, att.ID, model.ItemWeapon)
		if err != nil {
			return err
		}
		if weapon != nil && weapon.Damage() > 0 {
			power, weaponName = weapon.Damage(), weapon.Name
		}
		defense := 0
		armor, err := item.EquippedTx(tx, def.ID, model.ItemArmor)
		if err != nil {
			return err
		}
		if armor != nil {
			defense = armor.Defense()
		}

		damage, crit := Roll(r.dice, power, defense)
		health := model.ClampHealth(def.Health - damage)
		status := model.StatusForHealth(health)
		if err := tx.Model(&model.Actor{}).Where("id = ?", def.ID).
			Updates(map[string]any{"health": health, "status": status}).Error; err != nil {
			return err
		}

		msg := fmt.Sprintf("%s hit %s with %s for %d damage", att.Name, def.Name, weaponName, damage)
		if crit {
			msg += " (critical)"
		}
		if status == model.StatusDead {
			msg += fmt.Sprintf(". %s has died", def.Name)
		}

		if _, err := trust.RecordMemoryTx(tx, trust.Memory{
			ActorID:    att.ID,
			Raw:        fmt.Sprintf("I attacked %s with %s for %d damage.", def.Name, weaponName, damage),
			Summary:    "Fought " + def.Name,
			Importance: 5,
			Tags:       []string{"combat", "violence"},
		}); err != nil {
			return err
		}
		if _, err := trust.RecordMemoryTx(tx, trust.Memory{
			ActorID:    def.ID,
			Raw:        fmt.Sprintf("%s attacked me with %s for %d damage.", att.Name, weaponName, damage),
			Summary:    "Attacked by " + att.Name,
			Importance: 8,
			Tags:       []string{"combat", "survival", "trauma"},
		}); err != nil {
			return err
		}
		if _, err := trust.ForceHostileTx(tx, def.ID, att.ID); err != nil {
			return err
		}

		res = Result{
			AttackerID:     att.ID,
			DefenderID:     def.ID,
			Damage:         damage,
			Crit:           crit,
			Weapon:         weaponName,
			DefenderHealth: health,
			DefenderStatus: status,
			Message:        msg,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("attack",
		zap.Int64("attacker_id", attackerID), zap.Int64("defender_id", defenderID),
		zap.Int("damage", res.Damage), zap.Bool("crit", res.Crit),
		zap.String("status", string(res.DefenderStatus)))
	r.publish(ctx, &res)
	return &res, nil
}

func (r *Resolver) publish(ctx context.Context, res *Result) {
	if r.pubsub == nil {
		return
	}
	b, _ := json.Marshal(res)
	if err := r.pubsub.Publish(ctx, cache.ChannelCombat, string(b)); err != nil {
		r.logger.Warn("combat publish failed", zap.Error(err))
	}
}

// lockPair row-locks both actors in id order.
func lockPair(tx *gorm.DB, a, b int64) (map[int64]*model.Actor, error) {
	ids := []int64{a, b}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make(map[int64]*model.Actor, 2)
	for _, id := range ids {
		var act model.Actor
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&act, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, gameerr.ErrInvalidCombatants.Withf("actor %d not found", id)
			}
			return nil, err
		}
		out[id] = &act
	}
	return out, nil
}
