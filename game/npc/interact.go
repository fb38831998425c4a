package npc

import (
	"context"
	"fmt"
	"strings"

	"github.com/kasuganosora/fracturesim/game/gameerr"
	"github.com/kasuganosora/fracturesim/game/oracle"
	"github.com/kasuganosora/fracturesim/game/trust"
	"github.com/kasuganosora/fracturesim/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Interaction is the outcome of one actor addressing another.
type Interaction struct {
	SourceID       int64   `json:"source_id"`
	TargetID       int64   `json:"target_id"`
	EventType      string  `json:"event_type"`
	TrustDelta     float64 `json:"trust_delta"`
	SourceTrust    float64 `json:"source_trust"` // source's trust in target afterwards
	TargetTrust    float64 `json:"target_trust"` // target's trust in source afterwards
	Summary        string  `json:"summary"`
	Importance     int     `json:"importance"`
	Provider       string  `json:"provider"`
	Fallback       bool    `json:"fallback"`
	TargetReaction string  `json:"target_reaction"`
}

// Interact records what source said or did to target, shifts trust both
// ways and asks target to react.
func (e *Engine) Interact(ctx context.Context, sourceID, targetID int64, content, eventType, provider string) (*Interaction, error) {
	content = strings.TrimSpace(content)
	eventType = strings.ToUpper(strings.TrimSpace(eventType))
	switch {
	case sourceID == targetID:
		return nil, gameerr.Validationf("an actor cannot interact with itself")
	case content == "":
		return nil, gameerr.Validationf("content is required")
	case eventType == "":
		return nil, gameerr.Validationf("event type is required")
	}
	src, err := e.loadActor(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	dst, err := e.loadActor(ctx, targetID)
	if err != nil {
		return nil, err
	}

	provider = e.provider(provider)
	analysis := e.oracle.AnalyzeMemory(ctx, provider, fmt.Sprintf("Interaction (%s): %s", eventType, content))
	delta := trust.DeltaFor(eventType)
	out := &Interaction{
		SourceID:   sourceID,
		TargetID:   targetID,
		EventType:  eventType,
		TrustDelta: delta,
		Summary:    analysis.Value.Summary,
		Importance: analysis.Value.Importance,
		Provider:   analysis.Provider,
		Fallback:   analysis.Fallback,
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := trust.RecordMemoryTx(tx, trust.Memory{
			ActorID:    dst.ID,
			Raw:        content,
			Summary:    analysis.Value.Summary,
			Importance: analysis.Value.Importance,
			Tags:       analysis.Value.Tags,
		}); err != nil {
			return err
		}
		if _, err := trust.RecordMemoryTx(tx, trust.Memory{
			ActorID:    src.ID,
			Raw:        fmt.Sprintf("I said to %s: %s", dst.Name, content),
			Summary:    analysis.Value.Summary,
			Importance: analysis.Value.Importance,
			Tags:       analysis.Value.Tags,
		}); err != nil {
			return err
		}
		fwd, err := trust.AdjustTx(tx, src.ID, dst.ID, delta, eventType)
		if err != nil {
			return err
		}
		back, err := trust.AdjustTx(tx, dst.ID, src.ID, delta, eventType)
		if err != nil {
			return err
		}
		out.SourceTrust = fwd.ResultingTrust
		out.TargetTrust = back.ResultingTrust
		return nil
	})
	if err != nil {
		return nil, err
	}

	ac, err := e.actorContext(ctx, dst)
	if err != nil {
		return nil, err
	}
	situation := fmt.Sprintf("I was just subjected to %s by %s. They said: %q", eventType, src.Name, content)
	reaction := e.oracle.DecideAction(ctx, provider, ac, situation)
	out.TargetReaction = reaction.Value

	e.logger.Info("interaction",
		zap.Int64("source_id", sourceID), zap.Int64("target_id", targetID),
		zap.String("event_type", eventType), zap.Float64("delta", delta), zap.Bool("fallback", out.Fallback))
	return out, nil
}

// actorContext gathers what a reacting actor knows: recent memories, strong
// memories, its faction and active world events.
func (e *Engine) actorContext(ctx context.Context, a *model.Actor) (oracle.ActorContext, error) {
	ac := oracle.ActorContext{Name: a.Name, Alignment: a.Alignment}
	recent, err := e.trust.Memories(ctx, a.ID, 3)
	if err != nil {
		return ac, err
	}
	strong, err := e.trust.ImportantMemories(ctx, a.ID, 8, 2)
	if err != nil {
		return ac, err
	}
	seen := map[int64]bool{}
	for _, m := range append(recent, strong...) {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		ac.Memories = append(ac.Memories, fmt.Sprintf("[%s] %s (tags: %s)", m.CreatedAt.Format("2006-01-02"), m.Summary, m.Tags))
	}

	if a.FactionID != nil {
		var f model.Faction
		if err := e.db.WithContext(ctx).First(&f, *a.FactionID).Error; err == nil {
			ac.Faction = f.Name + " - " + f.Description
		}
	}
	var events []model.WorldEvent
	if err := e.db.WithContext(ctx).Where("active = ?", true).Order("id DESC").Find(&events).Error; err != nil {
		return ac, err
	}
	for _, ev := range events {
		ac.WorldEvents = append(ac.WorldEvents, ev.Title+": "+ev.Description)
	}
	return ac, nil
}
