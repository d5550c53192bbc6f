// Package event defines the immutable event log records. Events are the
// sole mechanism by which state changes are recorded; current state is a
// function of the event history.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// Type labels an event from the closed set.
type Type string

const (
	TypeCombatRound         Type = "COMBAT_ROUND"
	TypeDialogue            Type = "DIALOGUE"
	TypeTravel              Type = "TRAVEL"
	TypeWorldTravel         Type = "WORLD_TRAVEL"
	TypeItemTransfer        Type = "ITEM_TRANSFER"
	TypeItemLost            Type = "ITEM_LOST"
	TypeFork                Type = "FORK"
	TypeSkillCheck          Type = "SKILL_CHECK"
	TypeSavingThrow         Type = "SAVING_THROW"
	TypeGMMove              Type = "GM_MOVE"
	TypeConditionApplied    Type = "CONDITION_APPLIED"
	TypeConditionRemoved    Type = "CONDITION_REMOVED"
	TypeConcentrationBroken Type = "CONCENTRATION_BROKEN"
	TypeResourceUsed        Type = "RESOURCE_USED"
	TypeBreakingPoint       Type = "BREAKING_POINT"
	TypeQuestUpdated        Type = "QUEST_UPDATED"
	TypeDeath               Type = "DEATH"
	TypeRest                Type = "REST"
	TypeAdvanceTime         Type = "ADVANCE_TIME"
	TypeEntityCreated       Type = "ENTITY_CREATED"
	TypeEntityModified      Type = "ENTITY_MODIFIED"
)

var validTypes = map[Type]bool{
	TypeCombatRound: true, TypeDialogue: true, TypeTravel: true,
	TypeWorldTravel: true, TypeItemTransfer: true, TypeItemLost: true,
	TypeFork: true, TypeSkillCheck: true, TypeSavingThrow: true,
	TypeGMMove: true, TypeConditionApplied: true, TypeConditionRemoved: true,
	TypeConcentrationBroken: true, TypeResourceUsed: true,
	TypeBreakingPoint: true, TypeQuestUpdated: true, TypeDeath: true,
	TypeRest: true, TypeAdvanceTime: true, TypeEntityCreated: true,
	TypeEntityModified: true,
}

// Outcome labels how the recorded action went.
type Outcome string

const (
	OutcomeHit       Outcome = "HIT"
	OutcomeMiss      Outcome = "MISS"
	OutcomeStrongHit Outcome = "STRONG_HIT"
	OutcomeWeakHit   Outcome = "WEAK_HIT"
	OutcomeSuccess   Outcome = "SUCCESS"
	OutcomeFail      Outcome = "FAIL"
	OutcomeNeutral   Outcome = "NEUTRAL"
)

// Event is one immutable record in a universe's timeline.
type Event struct {
	ID         string `json:"id"`
	UniverseID string `json:"universe_id"`

	// Seq is the per-universe sequence number assigned on append.
	Seq int `json:"seq"`

	GameTime  time.Time `json:"game_time"`
	Timestamp time.Time `json:"timestamp"`

	ActorID    string `json:"actor_id,omitempty"`
	TargetID   string `json:"target_id,omitempty"`
	LocationID string `json:"location_id,omitempty"`

	Type    Type    `json:"type"`
	Outcome Outcome `json:"outcome,omitempty"`
	Roll    *int    `json:"roll,omitempty"`

	// CausedBy links to the event that caused this one, forming a DAG.
	CausedBy string `json:"caused_by,omitempty"`

	PayloadJSON []byte `json:"payload,omitempty"`
}

// Validate checks the structural invariants of an event before append.
func (e *Event) Validate() error {
	if e.UniverseID == "" {
		return apperrors.New(apperrors.CodeUniverseNotFound, "event requires a universe id")
	}
	if !validTypes[e.Type] {
		return apperrors.New(apperrors.CodeIntentUnknownType,
			fmt.Sprintf("unknown event type %q", e.Type))
	}
	return nil
}

// SetPayload marshals a typed payload onto the event.
func (e *Event) SetPayload(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	e.PayloadJSON = data
	return nil
}

// DecodePayload unmarshals the stored payload into v.
func (e *Event) DecodePayload(v any) error {
	if len(e.PayloadJSON) == 0 {
		return fmt.Errorf("event %s has no payload", e.ID)
	}
	if err := json.Unmarshal(e.PayloadJSON, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// ForkPayload records a universe fork, written to both parent and child.
type ForkPayload struct {
	ParentID       string `json:"parent_id"`
	ChildID        string `json:"child_id"`
	Reason         string `json:"reason,omitempty"`
	ForkPointEvent string `json:"fork_point_event,omitempty"`
}

// DamagePayload records damage dealt in combat.
type DamagePayload struct {
	Amount      int    `json:"amount"`
	DamageType  string `json:"damage_type,omitempty"`
	Critical    bool   `json:"critical,omitempty"`
	TargetDeath bool   `json:"target_death,omitempty"`
	Source      string `json:"source,omitempty"` // "attack", "fray", "dot", "gm_move"
}

// TravelPayload records movement between locations.
type TravelPayload struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Direction string `json:"direction,omitempty"`
}

// WorldTravelPayload records movement between universes.
type WorldTravelPayload struct {
	FromUniverse string `json:"from_universe"`
	ToUniverse   string `json:"to_universe"`
	OriginalID   string `json:"original_id"`
	CopyID       string `json:"copy_id"`
	PortalID     string `json:"portal_id,omitempty"`
}

// CheckPayload records a skill check or saving throw.
type CheckPayload struct {
	Skill   string `json:"skill,omitempty"`
	Ability string `json:"ability,omitempty"`
	DC      int    `json:"dc"`
	Total   int    `json:"total"`
	Margin  int    `json:"margin"`
}

// GMMovePayload records a GM move executed on a miss.
type GMMovePayload struct {
	MoveType     string `json:"move_type"`
	Narrative    string `json:"narrative,omitempty"`
	UsedFallback bool   `json:"used_fallback,omitempty"`
	Damage       int    `json:"damage,omitempty"`
	Condition    string `json:"condition,omitempty"`
}

// ConditionPayload records a condition applied or removed.
type ConditionPayload struct {
	Condition string `json:"condition"`
	Duration  string `json:"duration,omitempty"`
	Rounds    int    `json:"rounds,omitempty"`
	Reason    string `json:"reason,omitempty"` // "expired", "save", "rest"
}

// ResourcePayload records a resource debit.
type ResourcePayload struct {
	Resource  string `json:"resource"`
	Mechanism string `json:"mechanism"`
	Remaining int    `json:"remaining,omitempty"`
	Die       string `json:"die,omitempty"`
	Depleted  bool   `json:"depleted,omitempty"`
}

// BreakingPointPayload records stress hitting its cap.
type BreakingPointPayload struct {
	Stress int `json:"stress"`
}

// QuestPayload records quest progress.
type QuestPayload struct {
	QuestID   string `json:"quest_id"`
	Objective int    `json:"objective"`
	Progress  int    `json:"progress"`
	Status    string `json:"status"`
}

// RestPayload records a short or long rest.
type RestPayload struct {
	Kind string `json:"kind"`
}

// DeathPayload records an entity death.
type DeathPayload struct {
	Cause string `json:"cause,omitempty"`
}

// ConcentrationPayload records concentration gained or broken.
type ConcentrationPayload struct {
	AbilityID string `json:"ability_id"`
	SaveTotal int    `json:"save_total,omitempty"`
	SaveDC    int    `json:"save_dc,omitempty"`
}

// ItemPayload records item transfer or loss.
type ItemPayload struct {
	ItemID string `json:"item_id"`
	FromID string `json:"from_id,omitempty"`
	ToID   string `json:"to_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}
