// Package mission manages contracts between actors: offer, accept or
// decline, then settle the reward once the mission window has passed.
package mission

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/game/item"
	"github.com/kasuganosora/fracturesim/game/ledger"
	"github.com/kasuganosora/fracturesim/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db              *gorm.DB
	defaultDuration int
	now             func() time.Time
	logger          *zap.Logger
}

// NewService creates the mission engine. defaultDurationS applies when a
// mission is created without a duration.
func NewService(db *gorm.DB, defaultDurationS int, logger *zap.Logger) *Service {
	if defaultDurationS <= 0 {
		defaultDurationS = 60
	}
	return &Service{db: db, defaultDuration: defaultDurationS, now: time.Now, logger: logger}
}

// SetClock overrides the wall clock.
func (svc *Service) SetClock(now func() time.Time) { svc.now = now }

type CreateParams struct {
	GiverID       int64
	ReceiverID    int64
	Title         string
	Description   string
	RewardCredits decimal.Decimal
	RewardItemID  *int64
	DurationS     int
}

// Create offers a mission. The giver's ability to pay is checked now and
// again at settlement.
func (svc *Service) Create(ctx context.Context, p CreateParams) (*model.Mission, error) {
	switch {
	case utf8.RuneCountInString(p.Title) < 3:
		return nil, gameerr.Validationf("title must be at least 3 characters")
	case utf8.RuneCountInString(p.Description) < 10:
		return nil, gameerr.Validationf("description must be at least 10 characters")
	case p.GiverID == p.ReceiverID:
		return nil, gameerr.Validationf("giver and receiver must differ")
	case p.RewardCredits.IsNegative():
		return nil, gameerr.Validationf("reward credits must not be negative")
	case p.DurationS < 0:
		return nil, gameerr.Validationf("duration must not be negative")
	}
	duration := p.DurationS
	if duration == 0 {
		duration = svc.defaultDuration
	}

	m := &model.Mission{
		GiverID:       p.GiverID,
		ReceiverID:    p.ReceiverID,
		Title:         p.Title,
		Description:   p.Description,
		RewardCredits: p.RewardCredits,
		RewardItemID:  p.RewardItemID,
		Status:        model.MissionPending,
		DurationS:     duration,
	}
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range []int64{p.GiverID, p.ReceiverID} {
			var n int64
			if err := tx.Model(&model.Actor{}).Where("id = ?", id).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return gameerr.ErrActorNotFound.Withf("actor %d not found", id)
			}
		}
		if p.RewardCredits.IsPositive() {
			w, err := ledger.WalletForOwnerTx(tx, p.GiverID, false)
			if errors.Is(err, gameerr.ErrWalletNotFound) {
				return gameerr.ErrInsufficientFundsForReward.Withf("giver has no wallet")
			}
			if err != nil {
				return err
			}
			if w.Balance.LessThan(p.RewardCredits) {
				return gameerr.ErrInsufficientFundsForReward.WithDetails(map[string]string{
					"required": p.RewardCredits.String(),
					"balance":  w.Balance.String(),
				})
			}
		}
		if p.RewardItemID != nil {
			if _, err := item.FindItem(tx, *p.RewardItemID); err != nil {
				return err
			}
			held, err := item.HeldTx(tx, p.GiverID, *p.RewardItemID)
			if err != nil {
				return err
			}
			if held < 1 {
				return gameerr.ErrItemNotOwned
			}
		}
		return tx.Create(m).Error
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Info("mission created",
		zap.Int64("mission_id", m.ID), zap.Int64("giver_id", m.GiverID), zap.Int64("receiver_id", m.ReceiverID))
	return m, nil
}

func lockMission(tx *gorm.DB, id int64) (*model.Mission, error) {
	var m model.Mission
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gameerr.ErrMissionNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Accept starts the mission clock. Only the receiver may accept.
func (svc *Service) Accept(ctx context.Context, missionID, actorID int64) (*model.Mission, error) {
	return svc.respond(ctx, missionID, actorID, model.MissionAccepted)
}

// Decline refuses a pending mission. Only the receiver may decline.
func (svc *Service) Decline(ctx context.Context, missionID, actorID int64) (*model.Mission, error) {
	return svc.respond(ctx, missionID, actorID, model.MissionDeclined)
}

func (svc *Service) respond(ctx context.Context, missionID, actorID int64, to model.MissionStatus) (*model.Mission, error) {
	var out *model.Mission
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := lockMission(tx, missionID)
		if err != nil {
			return err
		}
		if m.ReceiverID != actorID {
			return gameerr.ErrForbidden.Withf("only the receiver may respond to mission %d", missionID)
		}
		if m.Status != model.MissionPending {
			return gameerr.ErrMissionAlreadyProcessed.WithDetails(map[string]string{"status": string(m.Status)})
		}
		updates := map[string]any{"status": to}
		if to == model.MissionAccepted {
			now := svc.now()
			m.StartedAt = &now
			updates["started_at"] = now
		}
		res := tx.Model(&model.Mission{}).Where("id = ? AND status = ?", m.ID, model.MissionPending).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gameerr.ErrMissionAlreadyProcessed
		}
		m.Status = to
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Info("mission answered", zap.Int64("mission_id", missionID), zap.String("status", string(to)))
	return out, nil
}

// Settlement is the result of completing a mission.
type Settlement struct {
	Mission     *model.Mission     `json:"mission"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
	ItemID      *int64             `json:"item_id,omitempty"`
}

// Complete settles an accepted mission after its window. Credits and the
// reward item move in the same transaction as the status change; if the
// giver can no longer pay, nothing changes and the mission stays ACCEPTED.
// Credits owed to a receiver with no wallet are paid to SYSTEM.
func (svc *Service) Complete(ctx context.Context, missionID, actorID int64) (*Settlement, error) {
	var out Settlement
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := lockMission(tx, missionID)
		if err != nil {
			return err
		}
		if actorID != m.GiverID && actorID != m.ReceiverID {
			return gameerr.ErrForbidden.Withf("only the giver or receiver may complete mission %d", missionID)
		}
		if m.Status != model.MissionAccepted {
			return gameerr.ErrMissionNotActive.WithDetails(map[string]string{"status": string(m.Status)})
		}
		now := svc.now()
		if deadline := m.Deadline(); now.Before(deadline) {
			return gameerr.ErrMissionInProgress.WithDetails(map[string]any{
				"ready_at":          deadline,
				"remaining_seconds": int(deadline.Sub(now).Seconds() + 0.999),
			})
		}

		if m.RewardCredits.IsPositive() {
			giver, err := ledger.WalletForOwnerTx(tx, m.GiverID, false)
			if errors.Is(err, gameerr.ErrWalletNotFound) {
				return gameerr.ErrGiverInsolvent.Withf("giver has no wallet")
			}
			if err != nil {
				return err
			}
			memo := "mission reward: " + m.Title
			var rec *model.Transaction
			receiver, err := ledger.WalletForOwnerTx(tx, m.ReceiverID, false)
			switch {
			case err == nil:
				rec, err = ledger.TransferTx(tx, giver.Address, receiver.Address, m.RewardCredits, memo)
			case errors.Is(err, gameerr.ErrWalletNotFound):
				// A receiver without a wallet still settles; the credits leave circulation.
				rec, err = ledger.SinkTx(tx, giver.Address, m.RewardCredits, memo)
			}
			if errors.Is(err, gameerr.ErrInsufficientFunds) {
				return gameerr.ErrGiverInsolvent.WithDetails(map[string]string{"required": m.RewardCredits.String()})
			}
			if err != nil {
				return err
			}
			out.Transaction = rec
		}
		if m.RewardItemID != nil {
			if _, err := item.DebitTx(tx, m.GiverID, *m.RewardItemID, 1); err != nil {
				if errors.Is(err, gameerr.ErrInsufficientItems) {
					return gameerr.ErrGiverLostItem
				}
				return err
			}
			if err := item.CreditTx(tx, m.ReceiverID, *m.RewardItemID, 1); err != nil {
				return err
			}
			out.ItemID = m.RewardItemID
		}

		if err := tx.Model(&model.Mission{}).Where("id = ?", m.ID).
			Updates(map[string]any{"status": model.MissionCompleted, "completed_at": now}).Error; err != nil {
			return err
		}
		m.Status = model.MissionCompleted
		m.CompletedAt = &now
		out.Mission = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Info("mission completed", zap.Int64("mission_id", missionID), zap.Stringer("credits", out.Mission.RewardCredits))
	return &out, nil
}

// Fail closes a pending or accepted mission without settlement. Operators
// use it to resolve missions whose giver became insolvent.
func (svc *Service) Fail(ctx context.Context, missionID int64) (*model.Mission, error) {
	var out *model.Mission
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := lockMission(tx, missionID)
		if err != nil {
			return err
		}
		if m.Status != model.MissionPending && m.Status != model.MissionAccepted {
			return gameerr.ErrMissionAlreadyProcessed.WithDetails(map[string]string{"status": string(m.Status)})
		}
		if err := tx.Model(&model.Mission{}).Where("id = ?", m.ID).Update("status", model.MissionFailed).Error; err != nil {
			return err
		}
		m.Status = model.MissionFailed
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Warn("mission failed", zap.Int64("mission_id", missionID))
	return out, nil
}

// Get loads one mission.
func (svc *Service) Get(ctx context.Context, id int64) (*model.Mission, error) {
	var m model.Mission
	if err := svc.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gameerr.ErrMissionNotFound
		}
		return nil, err
	}
	return &m, nil
}

// List returns missions the actor gave or received, newest first.
func (svc *Service) List(ctx context.Context, actorID int64) ([]model.Mission, error) {
	var out []model.Mission
	err := svc.db.WithContext(ctx).
		Where("giver_id = ? OR receiver_id = ?", actorID, actorID).
		Order("id DESC").Find(&out).Error
	return out, err
}
