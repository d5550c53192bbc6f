// Package npc implements symbolic NPC decision-making: a weighted score
// over a fixed candidate action set, driven by Big-Five personality
// traits, prioritized motivations, relationships, and situational risk.
package npc

import (
	"sort"
)

// Action is one entry of the candidate action set.
type Action string

const (
	ActionAttack     Action = "attack"
	ActionFlee       Action = "flee"
	ActionNegotiate  Action = "negotiate"
	ActionAssist     Action = "assist"
	ActionObserve    Action = "observe"
	ActionUseAbility Action = "use_ability"
	ActionLeave      Action = "leave"
)

// Candidates is the full candidate set in name order. Iteration in this
// order plus a strict > comparison implements the lowest-name tie-break.
var Candidates = []Action{
	ActionAssist,
	ActionAttack,
	ActionFlee,
	ActionLeave,
	ActionNegotiate,
	ActionObserve,
	ActionUseAbility,
}

// Traits are Big-Five personality scores, each 0-100 with 50 neutral.
type Traits struct {
	Openness          int `json:"openness"`
	Conscientiousness int `json:"conscientiousness"`
	Extraversion      int `json:"extraversion"`
	Agreeableness     int `json:"agreeableness"`
	Neuroticism       int `json:"neuroticism"`
}

// Motivation is a long-term drive. Profiles list them in priority order.
type Motivation string

const (
	MotivationSurvival  Motivation = "survival"
	MotivationSafety    Motivation = "safety"
	MotivationWealth    Motivation = "wealth"
	MotivationPower     Motivation = "power"
	MotivationComfort   Motivation = "comfort"
	MotivationLove      Motivation = "love"
	MotivationBelonging Motivation = "belonging"
	MotivationRespect   Motivation = "respect"
	MotivationFame      Motivation = "fame"
	MotivationKnowledge Motivation = "knowledge"
	MotivationJustice   Motivation = "justice"
	MotivationDuty      Motivation = "duty"
	MotivationFaith     Motivation = "faith"
	MotivationRevenge   Motivation = "revenge"
	MotivationArtistry  Motivation = "artistry"
	MotivationLegacy    Motivation = "legacy"
)

// Profile is the persistent personality of one NPC.
type Profile struct {
	EntityID    string       `json:"entity_id"`
	Traits      Traits       `json:"traits"`
	Motivations []Motivation `json:"motivations"`
	SpeechStyle string       `json:"speech_style,omitempty"`
	Quirks      []string     `json:"quirks,omitempty"`
}

// NewProfile builds a neutral profile: every trait at 50, no motivations.
func NewProfile(entityID string) *Profile {
	return &Profile{
		EntityID: entityID,
		Traits: Traits{
			Openness: 50, Conscientiousness: 50, Extraversion: 50,
			Agreeableness: 50, Neuroticism: 50,
		},
	}
}

// PrimaryMotivation is the highest-priority motivation, if any.
func (p *Profile) PrimaryMotivation() (Motivation, bool) {
	if len(p.Motivations) == 0 {
		return "", false
	}
	return p.Motivations[0], true
}

// Stance is the NPC's disposition toward another entity, distilled from
// graph relationships before the decision is scored.
type Stance string

const (
	StanceAllied     Stance = "allied"
	StanceHostile    Stance = "hostile"
	StanceFearful    Stance = "fearful"
	StanceRespectful Stance = "respectful"
	StanceDistrust   Stance = "distrust"
)

// Relationship is one known disposition toward a visible entity.
// Strength runs 0-1.
type Relationship struct {
	TargetID string
	Stance   Stance
	Strength float64
}

// Visible is what the NPC can see of one entity in the scene.
type Visible struct {
	ID        string
	IsPlayer  bool
	Threat    float64 // 0-1 apparent threat
	HPPercent float64 // 0-1, 1 means unhurt
}

// Context is everything the NPC knows when deciding.
type Context struct {
	Danger        int // location danger level
	HPPercent     float64
	EscapeRoutes  int
	InCombat      bool
	Entities      []Visible
	Relationships []Relationship
}

// threatThreshold marks a visible entity as an enemy for risk purposes.
const threatThreshold = 0.5

// Score is the per-action scoring breakdown kept for tests and tracing.
type Score struct {
	Action      Action
	TargetID    string
	Motivation  float64
	Relation    float64
	Personality float64
	Risk        float64
	Total       float64
}

// Decision is the selected action plus every candidate's score.
type Decision struct {
	Chosen Score
	Scores []Score
}

// Component weights of the total score. Risk subtracts.
const (
	motivationWeight  = 0.30
	relationWeight    = 0.25
	personalityWeight = 0.25
	riskWeight        = 0.20
)

// Decide scores every candidate action and returns the best one. The
// result is deterministic: ties go to the lexically lowest action name.
func Decide(p *Profile, ctx Context) Decision {
	scores := make([]Score, 0, len(Candidates))
	for _, action := range Candidates {
		target := selectTarget(action, ctx)
		s := Score{
			Action:      action,
			TargetID:    target,
			Motivation:  scoreMotivation(action, p.Motivations),
			Relation:    scoreRelationship(action, ctx.Relationships, target),
			Personality: scorePersonality(action, p.Traits, ctx),
			Risk:        assessRisk(action, ctx),
		}
		s.Total = motivationWeight*s.Motivation +
			relationWeight*s.Relation +
			personalityWeight*s.Personality -
			riskWeight*s.Risk
		scores = append(scores, s)
	}

	best := scores[0]
	for _, s := range scores[1:] {
		if s.Total > best.Total {
			best = s
		}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Total > scores[j].Total
	})
	return Decision{Chosen: best, Scores: scores}
}

// selectTarget picks a target appropriate to the action: the most
// threatening non-player (falling back to the player) for aggression,
// the most hurt entity for assistance, the player for negotiation.
func selectTarget(action Action, ctx Context) string {
	switch action {
	case ActionAttack, ActionUseAbility:
		var best *Visible
		for i := range ctx.Entities {
			e := &ctx.Entities[i]
			if e.IsPlayer || e.Threat <= threatThreshold {
				continue
			}
			if best == nil || e.Threat > best.Threat {
				best = e
			}
		}
		if best != nil {
			return best.ID
		}
		for _, e := range ctx.Entities {
			if e.IsPlayer {
				return e.ID
			}
		}
	case ActionAssist:
		var best *Visible
		for i := range ctx.Entities {
			e := &ctx.Entities[i]
			if e.HPPercent >= 1.0 {
				continue
			}
			if best == nil || e.HPPercent < best.HPPercent {
				best = e
			}
		}
		if best != nil {
			return best.ID
		}
	case ActionNegotiate:
		for _, e := range ctx.Entities {
			if e.IsPlayer {
				return e.ID
			}
		}
		if len(ctx.Entities) > 0 {
			return ctx.Entities[0].ID
		}
	}
	return ""
}

// motivationPreferences maps each motivation to the actions that serve
// it, best first. Position in the list scales the bonus.
var motivationPreferences = map[Motivation][]Action{
	MotivationSurvival:  {ActionFlee, ActionObserve, ActionLeave},
	MotivationSafety:    {ActionLeave, ActionObserve, ActionFlee},
	MotivationWealth:    {ActionNegotiate, ActionObserve},
	MotivationPower:     {ActionAttack, ActionUseAbility, ActionNegotiate},
	MotivationComfort:   {ActionLeave, ActionObserve},
	MotivationLove:      {ActionAssist, ActionObserve},
	MotivationBelonging: {ActionAssist, ActionNegotiate},
	MotivationRespect:   {ActionNegotiate, ActionAssist},
	MotivationFame:      {ActionAttack, ActionAssist, ActionNegotiate},
	MotivationKnowledge: {ActionObserve, ActionNegotiate},
	MotivationJustice:   {ActionAttack, ActionAssist, ActionUseAbility},
	MotivationDuty:      {ActionAssist, ActionObserve},
	MotivationFaith:     {ActionAssist, ActionNegotiate},
	MotivationRevenge:   {ActionAttack, ActionUseAbility},
	MotivationArtistry:  {ActionObserve, ActionNegotiate},
	MotivationLegacy:    {ActionAssist, ActionNegotiate},
}

// scoreMotivation sums position-weighted matches across the priority
// list: motivation i carries weight 1/(i+1) and preference position j a
// bonus of 1 - 0.2j. Capped at 1.
func scoreMotivation(action Action, motivations []Motivation) float64 {
	score := 0.0
	for i, m := range motivations {
		weight := 1.0 / float64(i+1)
		for j, preferred := range motivationPreferences[m] {
			if preferred == action {
				score += weight * (1.0 - 0.2*float64(j))
				break
			}
		}
	}
	return min(1.0, score)
}

// stanceModifiers lists favored then avoided actions per stance.
var stanceModifiers = map[Stance][2][]Action{
	StanceAllied: {
		{ActionAssist, ActionObserve, ActionNegotiate},
		{ActionAttack, ActionUseAbility, ActionLeave},
	},
	StanceHostile: {
		{ActionAttack, ActionUseAbility, ActionFlee},
		{ActionAssist, ActionNegotiate},
	},
	StanceFearful: {
		{ActionFlee, ActionLeave, ActionObserve},
		{ActionAttack, ActionNegotiate, ActionUseAbility},
	},
	StanceRespectful: {
		{ActionObserve, ActionAssist, ActionNegotiate},
		{ActionAttack, ActionLeave},
	},
	StanceDistrust: {
		{ActionObserve, ActionLeave},
		{ActionAssist, ActionNegotiate},
	},
}

// scoreRelationship is neutral (0.5) without a target or relationship,
// rises to 0.5 + 0.5*strength for favored actions, and falls to
// 0.5 - 0.4*strength for avoided ones.
func scoreRelationship(action Action, relationships []Relationship, targetID string) float64 {
	if targetID == "" {
		return 0.5
	}
	var rel *Relationship
	for i := range relationships {
		if relationships[i].TargetID == targetID {
			rel = &relationships[i]
			break
		}
	}
	if rel == nil {
		return 0.5
	}
	mods, ok := stanceModifiers[rel.Stance]
	if !ok {
		return 0.5
	}
	for _, favored := range mods[0] {
		if favored == action {
			return 0.5 + 0.5*rel.Strength
		}
	}
	for _, avoided := range mods[1] {
		if avoided == action {
			return 0.5 - 0.4*rel.Strength
		}
	}
	return 0.5
}

// scorePersonality starts neutral and shifts by (trait-50)/200 per
// matching trait group, so a single trait moves the score by at most
// 0.25. High danger pushes flee and attack further for neurotic NPCs.
func scorePersonality(action Action, t Traits, ctx Context) float64 {
	score := 0.5

	shift := func(trait int) float64 { return float64(trait-50) / 200 }

	switch action {
	case ActionNegotiate:
		score += shift(t.Extraversion)
		score += shift(t.Openness)
	case ActionObserve:
		score -= shift(t.Extraversion)
		score += shift(t.Conscientiousness)
		score += shift(t.Openness)
	case ActionLeave:
		score -= shift(t.Extraversion)
		score += shift(t.Neuroticism)
	case ActionAssist:
		score += shift(t.Agreeableness)
	case ActionAttack, ActionUseAbility:
		score -= shift(t.Agreeableness)
	case ActionFlee:
		score += shift(t.Neuroticism)
	}

	// Danger makes neurotic NPCs jumpy: fight or flight.
	if (action == ActionFlee || action == ActionAttack) && t.Neuroticism > 50 {
		score += shift(t.Neuroticism) * min(1.0, float64(ctx.Danger)/10)
	}

	return clamp01(score)
}

// assessRisk rates an action 0 (safe) to 1 (reckless) in this context.
func assessRisk(action Action, ctx Context) float64 {
	var risk float64
	switch action {
	case ActionAttack, ActionUseAbility:
		risk = 0.5
	case ActionAssist:
		risk = 0.3
	case ActionFlee, ActionLeave:
		risk = 0.1
	case ActionNegotiate:
		risk = 0.2
	}

	if ctx.HPPercent < 0.5 && action == ActionAttack {
		risk += 0.3
	}
	risk += float64(ctx.Danger) / 40

	enemies := 0
	for _, e := range ctx.Entities {
		if e.Threat > threatThreshold {
			enemies++
		}
	}
	if enemies > 1 {
		risk += 0.1 * float64(enemies)
	}

	// Nowhere to run.
	if action == ActionFlee && ctx.EscapeRoutes == 0 {
		risk = 1.0
	}
	return clamp01(risk)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
