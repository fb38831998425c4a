// Package faction manages factions and their strategic turns.
package faction

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/game/oracle"
	"github.com/kasuganosora/fracturesim/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Resource change per move. SCAVENGE gains a random amount instead.
var moveCost = map[string]int{
	oracle.MoveExpand:   -20,
	oracle.MoveFortify:  -10,
	oracle.MoveRecruit:  -15,
	oracle.MoveMaintain: -5,
}

const (
	scavengeMin    = 10
	scavengeSpread = 20 // gains fall in [10, 29]
)

type Service struct {
	db     *gorm.DB
	oracle *oracle.Oracle
	intn   func(n int) int
	logger *zap.Logger
}

func NewService(db *gorm.DB, o *oracle.Oracle, logger *zap.Logger) *Service {
	return &Service{db: db, oracle: o, intn: rand.IntN, logger: logger}
}

// SetRand replaces the source used for scavenging gains.
func (svc *Service) SetRand(intn func(n int) int) { svc.intn = intn }

// Create registers a new faction with no resources.
func (svc *Service) Create(ctx context.Context, name, description string) (*model.Faction, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 3 || n > 50 {
		return nil, gameerr.Validationf("name must be 3-50 characters")
	}
	if n := utf8.RuneCountInString(description); n < 10 || n > 500 {
		return nil, gameerr.Validationf("description must be 10-500 characters")
	}
	f := &model.Faction{Name: name, Description: description}
	if err := svc.db.WithContext(ctx).Create(f).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, gameerr.ErrConflict.Withf("faction %q already exists", name)
		}
		return nil, err
	}
	svc.logger.Info("faction created", zap.Int64("faction_id", f.ID), zap.String("name", name))
	return f, nil
}

// Summary is a faction with its member count.
type Summary struct {
	model.Faction
	Members int64 `json:"members"`
}

func (svc *Service) List(ctx context.Context) ([]Summary, error) {
	var out []Summary
	err := svc.db.WithContext(ctx).Model(&model.Faction{}).
		Select("factions.*, (SELECT COUNT(*) FROM actors WHERE actors.faction_id = factions.id) AS members").
		Order("factions.id").Scan(&out).Error
	return out, err
}

func (svc *Service) Get(ctx context.Context, id int64) (*model.Faction, error) {
	var f model.Faction
	if err := svc.db.WithContext(ctx).First(&f, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gameerr.ErrFactionNotFound
		}
		return nil, err
	}
	return &f, nil
}

// TurnResult reports one faction turn.
type TurnResult struct {
	FactionID int64  `json:"faction_id"`
	Faction   string `json:"faction"`
	Action    string `json:"action"`
	Delta     int    `json:"delta"`
	Resources int    `json:"resources"`
	Reasoning string `json:"reasoning"`
	NewGoal   string `json:"new_goal,omitempty"`
	Fallback  bool   `json:"fallback"`
}

// EvaluateTurn asks the oracle for the faction's move and applies its
// resource change. Resources never drop below zero.
func (svc *Service) EvaluateTurn(ctx context.Context, factionID int64, provider string) (*TurnResult, error) {
	f, err := svc.Get(ctx, factionID)
	if err != nil {
		return nil, err
	}
	var members int64
	if err := svc.db.WithContext(ctx).Model(&model.Actor{}).
		Where("faction_id = ?", f.ID).Count(&members).Error; err != nil {
		return nil, err
	}
	var events []string
	if err := svc.db.WithContext(ctx).Model(&model.WorldEvent{}).
		Where("active = ?", true).Order("id").Pluck("title", &events).Error; err != nil {
		return nil, err
	}

	move := svc.oracle.DecideFactionMove(ctx, provider, oracle.FactionInput{
		Name:        f.Name,
		Description: f.Description,
		Goals:       f.Goals,
		Resources:   f.Resources,
		Members:     int(members),
		WorldEvents: events,
	})
	res := &TurnResult{
		FactionID: f.ID,
		Faction:   f.Name,
		Action:    move.Value.Action,
		Reasoning: move.Value.Reasoning,
		NewGoal:   strings.TrimSpace(move.Value.NewGoal),
		Fallback:  move.Fallback,
	}
	if res.Action == oracle.MoveScavenge {
		res.Delta = scavengeMin + svc.intn(scavengeSpread)
	} else {
		delta, ok := moveCost[res.Action]
		if !ok {
			res.Action, delta = oracle.MoveMaintain, moveCost[oracle.MoveMaintain]
		}
		res.Delta = delta
	}

	err = svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur model.Faction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cur, f.ID).Error; err != nil {
			return err
		}
		res.Resources = max(0, cur.Resources+res.Delta)
		updates := map[string]any{"resources": res.Resources}
		if res.NewGoal != "" {
			updates["goals"] = res.NewGoal
		}
		return tx.Model(&model.Faction{}).Where("id = ?", f.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Info("faction turn",
		zap.Int64("faction_id", f.ID), zap.String("action", res.Action),
		zap.Int("delta", res.Delta), zap.Int("resources", res.Resources), zap.Bool("fallback", res.Fallback))
	return res, nil
}

// EvaluateAll runs a turn for every faction. A failing faction is logged and
// skipped.
func (svc *Service) EvaluateAll(ctx context.Context, provider string) ([]TurnResult, error) {
	var ids []int64
	if err := svc.db.WithContext(ctx).Model(&model.Faction{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	out := make([]TurnResult, 0, len(ids))
	for _, id := range ids {
		r, err := svc.EvaluateTurn(ctx, id, provider)
		if err != nil {
			svc.logger.Error("faction turn failed", zap.Int64("faction_id", id), zap.Error(err))
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}
