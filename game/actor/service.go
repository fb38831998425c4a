// Package actor is the registry of players and NPCs.
package actor

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/game/ledger"
	"github.com/kasuganosora/fracturesim/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Job describes an occupation an actor can hold.
type Job struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var jobs = []Job{
	{ID: "SCAVENGER", Name: "Scavenger", Description: "Finds resources in the wasteland."},
	{ID: "TRADER", Name: "Trader", Description: "Buys and sells goods."},
	{ID: "MERCENARY", Name: "Mercenary", Description: "Fights for credits."},
	{ID: "MEDIC", Name: "Medic", Description: "Heals the wounded."},
}

// Jobs returns the available jobs.
func Jobs() []Job {
	out := make([]Job, len(jobs))
	copy(out, jobs)
	return out
}

func validJob(id string) bool {
	if id == "" {
		return true
	}
	for _, j := range jobs {
		if j.ID == id {
			return true
		}
	}
	return false
}

type Service struct {
	db     *gorm.DB
	ledger *ledger.Service
	logger *zap.Logger
}

func NewService(db *gorm.DB, ledgerSvc *ledger.Service, logger *zap.Logger) *Service {
	return &Service{db: db, ledger: ledgerSvc, logger: logger}
}

// SpawnParams describes a new actor.
type SpawnParams struct {
	Name       string
	FactionID  *int64
	Alignment  string
	Job        string
	Traits     model.Traits
	WithWallet bool
}

// Spawn creates a healthy, idle actor and, when asked, its wallet.
func (svc *Service) Spawn(ctx context.Context, p SpawnParams) (*model.Actor, *model.Wallet, error) {
	name := strings.TrimSpace(p.Name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 64 {
		return nil, nil, gameerr.Validationf("name must be 2-64 characters")
	}
	if !validJob(p.Job) {
		return nil, nil, gameerr.Validationf("unknown job %q", p.Job)
	}
	alignment := p.Alignment
	if alignment == "" {
		alignment = "NEUTRAL"
	}

	a := &model.Actor{
		Name:      name,
		FactionID: p.FactionID,
		Alignment: alignment,
		Health:    model.MaxHealth,
		Status:    model.StatusAlive,
		Job:       p.Job,
		Traits:    model.EncodeTraits(p.Traits),
	}
	var w *model.Wallet
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if p.FactionID != nil {
			var n int64
			if err := tx.Model(&model.Faction{}).Where("id = ?", *p.FactionID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return gameerr.ErrFactionNotFound
			}
		}
		if err := tx.Create(a).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return gameerr.ErrConflict.Withf("actor %q already exists", name)
			}
			return err
		}
		if p.WithWallet {
			var err error
			w, err = svc.ledger.CreateWalletTx(tx, &a.ID)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	svc.logger.Info("actor spawned", zap.Int64("actor_id", a.ID), zap.String("name", a.Name), zap.Bool("wallet", w != nil))
	return a, w, nil
}

// Get loads one actor.
func (svc *Service) Get(ctx context.Context, id int64) (*model.Actor, error) {
	return Find(svc.db.WithContext(ctx), id)
}

// Find loads one actor on db or a transaction.
func Find(db *gorm.DB, id int64) (*model.Actor, error) {
	var a model.Actor
	if err := db.First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gameerr.ErrActorNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Filter narrows List. Zero values match everything except dead actors,
// which are included only with IncludeDead.
type Filter struct {
	FactionID   *int64
	Status      model.ActorStatus
	IncludeDead bool
}

// List returns actors ordered by id.
func (svc *Service) List(ctx context.Context, f Filter) ([]model.Actor, error) {
	q := svc.db.WithContext(ctx).Model(&model.Actor{})
	if f.FactionID != nil {
		q = q.Where("faction_id = ?", *f.FactionID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	} else if !f.IncludeDead {
		q = q.Where("status <> ?", model.StatusDead)
	}
	var out []model.Actor
	err := q.Order("id").Find(&out).Error
	return out, err
}

// SetJob changes an actor's job. An empty job clears it.
func (svc *Service) SetJob(ctx context.Context, id int64, job string) (*model.Actor, error) {
	if !validJob(job) {
		return nil, gameerr.Validationf("unknown job %q", job)
	}
	a, err := svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := svc.db.WithContext(ctx).Model(&model.Actor{}).Where("id = ?", id).Update("job", job).Error; err != nil {
		return nil, err
	}
	a.Job = job
	return a, nil
}
