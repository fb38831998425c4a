package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kasuganosora/fracturesim/model"
	"github.com/shopspring/decimal"
)

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orNone(lines []string) string {
	if len(lines) == 0 {
		return "None"
	}
	return strings.Join(lines, "; ")
}

// ---- memory ----

type MemoryAnalysis struct {
	Summary    string   `json:"summary"`
	Importance int      `json:"importance"`
	Tags       []string `json:"tags"`
}

type memoryReply struct {
	Summary    string   `json:"summary"`
	Importance float64  `json:"importance"`
	Tags       []string `json:"tags"`
}

// AnalyzeMemory summarizes raw content and scores its importance.
func (o *Oracle) AnalyzeMemory(ctx context.Context, provider, raw string) Result[MemoryAnalysis] {
	req := Request{
		System: "You are an AI oracle. Analyze the following event. Return a JSON object with: " +
			`"summary" (string), "importance" (number 1-10), and "tags" (array of strings).`,
		User:      raw,
		Schema:    memorySchemaText,
		MaxTokens: 150,
	}
	fallback := func() memoryReply {
		return memoryReply{Summary: truncate(raw, 50), Importance: 1, Tags: []string{"stub"}}
	}
	r := structured(ctx, o, "analyze_memory", provider, req, memorySchema, fallback, nil)
	imp := int(r.Value.Importance)
	imp = max(1, min(10, imp))
	tags := r.Value.Tags
	if tags == nil {
		tags = []string{}
	}
	return Result[MemoryAnalysis]{
		Value:    MemoryAnalysis{Summary: r.Value.Summary, Importance: imp, Tags: tags},
		Fallback: r.Fallback,
		Provider: r.Provider,
		Err:      r.Err,
	}
}

// Summarize condenses text into one short passage.
func (o *Oracle) Summarize(ctx context.Context, provider, text string) Result[string] {
	req := Request{
		System:    "You are an AI oracle for a survival simulation. Summarize the following event or memory concisely.",
		User:      text,
		MaxTokens: 100,
	}
	name := o.Resolve(provider)
	return o.text(ctx, "summarize", provider, req, fmt.Sprintf("[Stub] %s summary: %s", name, truncate(text, 60)))
}

// Chat answers an operator query in character.
func (o *Oracle) Chat(ctx context.Context, provider, query string) Result[string] {
	req := Request{
		System: "You are the ORACLE, a sentient system interface for the Fractured Survival simulation. " +
			"You are cold, analytical, and precise. You respond to the OPERATOR. " +
			"Keep responses short, cryptic, and thematic. Do not break character.",
		User:      query,
		MaxTokens: 150,
	}
	return o.text(ctx, "chat", provider, req, "SYSTEM_OFFLINE: AI_CORE_NOT_FOUND")
}

// ---- actor decisions ----

// ActorContext is what an actor knows when reacting to a situation.
type ActorContext struct {
	Name        string
	Alignment   string
	Faction     string
	WorldEvents []string
	Memories    []string
}

// DecideAction returns a one-sentence reaction.
func (o *Oracle) DecideAction(ctx context.Context, provider string, ac ActorContext, situation string) Result[string] {
	faction := "None"
	if ac.Faction != "" {
		faction = ac.Faction
	}
	alignment := ac.Alignment
	if alignment == "" {
		alignment = "Neutral"
	}
	req := Request{
		System: fmt.Sprintf("You are %s, a survivor in a fractured world.\nAlignment: %s.\nFaction: %s.\n"+
			"Global events active: %s.\nYour memories: %s.\n"+
			"Based on your personality, faction, the state of the world, and your past experiences, decide your next action.",
			ac.Name, alignment, faction, orNone(ac.WorldEvents), orNone(ac.Memories)),
		User:      fmt.Sprintf("Situation: %s. What do you do? Respond with a single action sentence.", situation),
		MaxTokens: 100,
	}
	return o.text(ctx, "decide_action", provider, req, "DECISION_STUB: WAIT_AND_OBSERVE")
}

// Tasks an autonomous actor can take on.
const (
	TaskScavenge  = "SCAVENGE"
	TaskSocialize = "SOCIALIZE"
	TaskTrain     = "TRAIN"
	TaskRest      = "REST"
	TaskPatrol    = "PATROL"
)

// NormalizeTask maps free-form task names (RESTING, Scavenging, ...) onto
// the task set.
func NormalizeTask(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, t := range []string{TaskScavenge, TaskSocialize, TaskTrain, TaskRest, TaskPatrol} {
		if strings.HasPrefix(s, t) || strings.HasPrefix(s, strings.TrimSuffix(t, "E")+"ING") {
			return t, true
		}
	}
	return "", false
}

type TaskInput struct {
	Name   string
	Health int
	Job    string
	Skills map[string]int
	Habits []string
}

type TaskPlan struct {
	Task            string `json:"task"`
	DurationMinutes int    `json:"durationMinutes"`
	Reason          string `json:"reason"`
}

// FallbackTask is the deterministic plan used without an oracle.
func FallbackTask(health int) TaskPlan {
	if health < 50 {
		return TaskPlan{Task: TaskRest, DurationMinutes: 60, Reason: "Low health"}
	}
	return TaskPlan{Task: TaskPatrol, DurationMinutes: 30, Reason: "Routine patrol"}
}

// DecideNextTask picks the actor's next task and how long it takes.
func (o *Oracle) DecideNextTask(ctx context.Context, provider string, in TaskInput) Result[TaskPlan] {
	skills, _ := json.Marshal(in.Skills)
	habits, _ := json.Marshal(in.Habits)
	req := Request{
		System: fmt.Sprintf("You are %s. Health %d%%. Job: %s. Skills: %s. Habits: %s.\n"+
			"Decide on your next task, one of SCAVENGE, SOCIALIZE, TRAIN, REST, PATROL.",
			in.Name, in.Health, in.Job, skills, habits),
		User:      "What do you do next?",
		Schema:    taskSchemaText,
		MaxTokens: 120,
	}
	return structured(ctx, o, "decide_next_task", provider, req, taskSchema,
		func() TaskPlan { return FallbackTask(in.Health) },
		func(p *TaskPlan) error {
			t, ok := NormalizeTask(p.Task)
			if !ok {
				return fmt.Errorf("unknown task %q", p.Task)
			}
			p.Task = t
			return nil
		})
}

// ---- economy ----

// Economic decisions.
const (
	EconBuy  = "BUY"
	EconHold = "HOLD"
	EconPoor = "POOR"
)

type EconomicOption struct {
	Name   string          `json:"name"`
	Cost   decimal.Decimal `json:"cost"`
	Weapon bool            `json:"weapon"`
}

type EconomicInput struct {
	Name    string
	Balance decimal.Decimal
	Armed   bool
	Options []EconomicOption
}

type EconomicDecision struct {
	Action string          `json:"action"`
	Choice string          `json:"choice"`
	Cost   decimal.Decimal `json:"cost"`
	Reason string          `json:"reason"`
}

// Affordable filters options to those within balance.
func Affordable(balance decimal.Decimal, options []EconomicOption) []EconomicOption {
	var out []EconomicOption
	for _, opt := range options {
		if opt.Cost.LessThanOrEqual(balance) {
			out = append(out, opt)
		}
	}
	return out
}

// FallbackEconomic buys the cheapest affordable weapon for an unarmed actor
// and holds otherwise.
func FallbackEconomic(in EconomicInput, affordable []EconomicOption) EconomicDecision {
	if !in.Armed {
		var best *EconomicOption
		for i := range affordable {
			opt := &affordable[i]
			if opt.Weapon && (best == nil || opt.Cost.LessThan(best.Cost)) {
				best = opt
			}
		}
		if best != nil {
			return EconomicDecision{Action: EconBuy, Choice: best.Name, Cost: best.Cost, Reason: "Unarmed"}
		}
	}
	return EconomicDecision{Action: EconHold, Reason: "Nothing needed"}
}

// DecideEconomicAction chooses whether to buy one of the options. With no
// affordable option the answer is POOR and no provider is called.
func (o *Oracle) DecideEconomicAction(ctx context.Context, provider string, in EconomicInput) Result[EconomicDecision] {
	affordable := Affordable(in.Balance, in.Options)
	if len(affordable) == 0 {
		return Result[EconomicDecision]{
			Value:    EconomicDecision{Action: EconPoor, Reason: "Nothing affordable"},
			Provider: o.Resolve(provider),
		}
	}
	listing, _ := json.Marshal(affordable)
	req := Request{
		System: fmt.Sprintf("You are %s. Balance: %s credits. Armed: %t.\nAvailable items: %s.\n"+
			"Decide if you want to buy something to help your survival. "+
			`Use action "BUY" with the item name as choice, or "HOLD".`,
			in.Name, in.Balance.String(), in.Armed, listing),
		User:      "Do you make a purchase?",
		Schema:    economySchemaText,
		MaxTokens: 100,
	}
	return structured(ctx, o, "decide_economic_action", provider, req, economySchema,
		func() EconomicDecision { return FallbackEconomic(in, affordable) },
		func(d *EconomicDecision) error {
			if d.Action != EconBuy {
				*d = EconomicDecision{Action: EconHold, Reason: d.Reason}
				return nil
			}
			for _, opt := range affordable {
				if opt.Name == d.Choice {
					d.Cost = opt.Cost
					return nil
				}
			}
			*d = EconomicDecision{Action: EconHold, Reason: "choice not affordable: " + d.Choice}
			return nil
		})
}

// ---- factions ----

// Faction moves.
const (
	MoveExpand   = "EXPAND"
	MoveFortify  = "FORTIFY"
	MoveScavenge = "SCAVENGE"
	MoveRecruit  = "RECRUIT"
	MoveMaintain = "MAINTAIN"
)

type FactionInput struct {
	Name        string
	Description string
	Goals       string
	Resources   int
	Members     int
	WorldEvents []string
}

type FactionMove struct {
	Action    string `json:"action"`
	Reasoning string `json:"reasoning"`
	NewGoal   string `json:"newGoal"`
}

// DecideFactionMove picks the faction's strategic move for the turn.
func (o *Oracle) DecideFactionMove(ctx context.Context, provider string, in FactionInput) Result[FactionMove] {
	req := Request{
		System: fmt.Sprintf("You are the leader of the faction %q.\nDescription: %s.\nCurrent goals: %s.\n"+
			"Resources: %d.\nMembers: %d.\nWorld events: %s.\n\n"+
			"Decide on a strategic move for this turn. Options:\n"+
			"- EXPAND (cost 20, high risk)\n- FORTIFY (cost 10, low risk)\n- SCAVENGE (gain 10-30, medium risk)\n"+
			"- RECRUIT (cost 15, low risk)\n- MAINTAIN (upkeep 5)\n"+
			"Optionally set newGoal to update the faction's goals.",
			in.Name, in.Description, in.Goals, in.Resources, in.Members, orNone(in.WorldEvents)),
		User:      "What is your move?",
		Schema:    factionSchemaText,
		MaxTokens: 150,
	}
	return structured(ctx, o, "decide_faction_move", provider, req, factionSchema,
		func() FactionMove { return FactionMove{Action: MoveMaintain, Reasoning: "Routine maintenance."} },
		nil)
}

// ---- world events ----

type GeneratedEvent struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Type        model.WorldEventType `json:"type"`
}

// FallbackEvent is generated when no provider answers.
func FallbackEvent() GeneratedEvent {
	return GeneratedEvent{
		Title:       "Static Interference",
		Description: "The world simulation experiences a momentary lapse in coherence.",
		Type:        model.EventAnomaly,
	}
}

// GenerateWorldEvent invents the next world event from recent history.
func (o *Oracle) GenerateWorldEvent(ctx context.Context, provider string, recent []model.WorldEvent) Result[GeneratedEvent] {
	lines := make([]string, 0, len(recent))
	for _, ev := range recent {
		lines = append(lines, fmt.Sprintf("%s: %s (%s)", ev.Title, ev.Description, ev.Type))
	}
	history := "None"
	if len(lines) > 0 {
		history = strings.Join(lines, "\n")
	}
	req := Request{
		System: "You are the World Engine for a dystopian survival simulation. Generate a new world event " +
			"based on recent history. Type is one of WEATHER, POLITICAL, INVASION, RESOURCE, ANOMALY.",
		User:      "Recent history:\n" + history + "\n\nGenerate the next event:",
		Schema:    worldEventSchemaText,
		MaxTokens: 200,
	}
	return structured(ctx, o, "generate_world_event", provider, req, worldEventSchema, FallbackEvent,
		func(ev *GeneratedEvent) error {
			if !ev.Type.Valid() {
				return fmt.Errorf("unknown event type %q", ev.Type)
			}
			return nil
		})
}
