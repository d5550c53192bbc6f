// Package router orchestrates one turn: load context, dispatch the
// intent to the right resolver, apply effects and resource debits,
// record events, and shape the response. A session is single-threaded;
// the router keeps no state between turns beyond what the repositories
// hold.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tta-solo/engine/internal/engine/ability"
	"github.com/tta-solo/engine/internal/engine/dice"
	"github.com/tta-solo/engine/internal/engine/effect"
	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/engine/move"
	"github.com/tta-solo/engine/internal/engine/multiverse"
	"github.com/tta-solo/engine/internal/engine/physics"
	"github.com/tta-solo/engine/internal/engine/skill"
	"github.com/tta-solo/engine/internal/engine/solo"
	"github.com/tta-solo/engine/internal/engine/universe"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/platform/id"
	"github.com/tta-solo/engine/internal/storage"
	"github.com/tta-solo/engine/internal/telemetry"
)

// IntentType is the closed set of player intents the router dispatches.
type IntentType string

const (
	IntentAttack      IntentType = "attack"
	IntentCastSpell   IntentType = "cast_spell"
	IntentUseAbility  IntentType = "use_ability"
	IntentTalk        IntentType = "talk"
	IntentPersuade    IntentType = "persuade"
	IntentIntimidate  IntentType = "intimidate"
	IntentDeceive     IntentType = "deceive"
	IntentMove        IntentType = "move"
	IntentLook        IntentType = "look"
	IntentSearch      IntentType = "search"
	IntentInteract    IntentType = "interact"
	IntentUseItem     IntentType = "use_item"
	IntentPickUp      IntentType = "pick_up"
	IntentDrop        IntentType = "drop"
	IntentGive        IntentType = "give"
	IntentRest        IntentType = "rest"
	IntentWait        IntentType = "wait"
	IntentAskQuestion IntentType = "ask_question"
	IntentFork        IntentType = "fork"
	IntentUnclear     IntentType = "unclear"
)

// Intent is one structured player action, already parsed by the shell.
type Intent struct {
	Type    IntentType `json:"type"`
	ActorID string     `json:"actor_id"`

	Target    string `json:"target,omitempty"`  // entity name or id
	Ability   string `json:"ability,omitempty"` // ability name or id
	Item      string `json:"item,omitempty"`
	Direction string `json:"direction,omitempty"`
	Text      string `json:"text,omitempty"` // utterance, rest kind, fork reason

	ForkName string `json:"fork_name,omitempty"`
}

// SkillResult is the resolved outcome of one intent, structured for a
// narrative layer to describe.
type SkillResult struct {
	Success bool          `json:"success"`
	Reason  string        `json:"reason,omitempty"` // "unclear", or a failure code
	Outcome skill.Outcome `json:"outcome,omitempty"`

	Roll     int  `json:"roll,omitempty"`
	Total    int  `json:"total,omitempty"`
	DC       int  `json:"dc,omitempty"`
	Margin   int  `json:"margin,omitempty"`
	Critical bool `json:"critical,omitempty"`
	Fumble   bool `json:"fumble,omitempty"`

	Damage       int      `json:"damage,omitempty"`
	Narrative    string   `json:"narrative,omitempty"`
	StateChanges []string `json:"state_changes,omitempty"`

	GMMove *move.Result `json:"gm_move,omitempty"`
}

// TurnResult is the router's response for one turn.
type TurnResult struct {
	Intent IntentType   `json:"intent"`
	Result *SkillResult `json:"result"`
}

// TurnContext is everything loaded before a resolver runs.
type TurnContext struct {
	Universe      *universe.Universe
	Actor         *entity.Entity
	Location      *entity.Entity
	Present       []*storage.Node
	Relationships []*storage.Relationship
	Recent        []*event.Event
}

// Danger is the effective danger level where the actor stands.
func (tc *TurnContext) Danger() int {
	if tc.Location != nil && tc.Location.Location != nil {
		return tc.Location.Location.Danger
	}
	return 0
}

// recentEventLimit bounds the context window of recent events.
const recentEventLimit = 10

// Router dispatches intents. One per session; never shared.
type Router struct {
	truth     storage.TruthRepo
	graph     storage.GraphRepo
	states    effect.StateStore
	pipeline  *effect.Pipeline
	moves     *move.Executor
	multi     *multiverse.Service
	abilities map[string]*ability.Ability
	overlays  map[string]*physics.Overlay // universe id -> overlay, nil entry allowed
	cfg       solo.Config
	roller    dice.Roller
	newID     func() (string, error)
	now       func() time.Time
}

// Deps carries the router's collaborators.
type Deps struct {
	Truth  storage.TruthRepo
	Graph  storage.GraphRepo
	States effect.StateStore
	Moves  *move.Executor
	Multi  *multiverse.Service
	Roller dice.Roller
	Config solo.Config
}

// New builds a router over its collaborators.
func New(d Deps) *Router {
	return &Router{
		truth:     d.Truth,
		graph:     d.Graph,
		states:    d.States,
		pipeline:  effect.NewPipeline(d.States),
		moves:     d.Moves,
		multi:     d.Multi,
		abilities: map[string]*ability.Ability{},
		overlays:  map[string]*physics.Overlay{},
		cfg:       d.Config,
		roller:    d.Roller,
		newID:     id.NewID,
		now:       time.Now,
	}
}

// RegisterAbility adds an ability to the lookup table, keyed by id and
// lowercased name. Content loading happens at session start.
func (r *Router) RegisterAbility(ab *ability.Ability) error {
	if err := ab.Validate(); err != nil {
		return err
	}
	if ab.ID != "" {
		r.abilities[ab.ID] = ab
	}
	r.abilities[strings.ToLower(ab.Name)] = ab
	return nil
}

// SetOverlay installs a physics overlay for a universe.
func (r *Router) SetOverlay(universeID string, o *physics.Overlay) {
	r.overlays[universeID] = o
}

// Overlay reports the physics overlay installed for a universe, if any.
func (r *Router) Overlay(universeID string) *physics.Overlay {
	return r.overlays[universeID]
}

// Resolve runs one turn. Version conflicts are retried once with a
// fresh context load; user-caused failures come back as a failed
// SkillResult with nothing consumed.
func (r *Router) Resolve(ctx context.Context, universeID string, intent Intent) (*TurnResult, error) {
	ctx, span := telemetry.StartTurn(ctx, universeID, string(intent.Type))
	defer span.End()

	result, err := r.resolveOnce(ctx, universeID, intent)
	if err != nil && apperrors.KindOf(err) == apperrors.KindConflictState {
		result, err = r.resolveOnce(ctx, universeID, intent)
	}
	if err != nil {
		if userFacing(apperrors.KindOf(err)) {
			return &TurnResult{
				Intent: intent.Type,
				Result: &SkillResult{Success: false, Reason: string(apperrors.CodeOf(err)), Narrative: err.Error()},
			}, nil
		}
		return nil, err
	}
	return result, nil
}

// userFacing reports whether the error kind is the player's problem
// rather than the engine's.
func userFacing(k apperrors.Kind) bool {
	switch k {
	case apperrors.KindBadInput,
		apperrors.KindNotFound,
		apperrors.KindInsufficientResource,
		apperrors.KindInvalidTarget,
		apperrors.KindRuleViolation:
		return true
	}
	return false
}

func (r *Router) resolveOnce(ctx context.Context, universeID string, intent Intent) (*TurnResult, error) {
	if intent.Type == IntentUnclear {
		return unclear(intent), nil
	}

	if err := r.multi.RequireActive(ctx, universeID); err != nil {
		return nil, err
	}
	tc, err := r.loadContext(ctx, universeID, intent.ActorID)
	if err != nil {
		return nil, err
	}

	var result *SkillResult
	switch intent.Type {
	case IntentAttack:
		result, err = r.resolveAttack(ctx, tc, intent)
	case IntentCastSpell, IntentUseAbility:
		result, err = r.resolveAbility(ctx, tc, intent)
	case IntentPersuade:
		result, err = r.resolveCheck(ctx, tc, intent, "persuasion")
	case IntentIntimidate:
		result, err = r.resolveCheck(ctx, tc, intent, "intimidation")
	case IntentDeceive:
		result, err = r.resolveCheck(ctx, tc, intent, "deception")
	case IntentSearch:
		result, err = r.resolveCheck(ctx, tc, intent, "perception")
	case IntentTalk, IntentAskQuestion:
		result, err = r.resolveTalk(ctx, tc, intent)
	case IntentMove:
		result, err = r.resolveMove(ctx, tc, intent)
	case IntentLook:
		result, err = r.resolveLook(ctx, tc)
	case IntentInteract:
		result, err = r.resolveInteract(tc, intent)
	case IntentUseItem:
		result, err = r.resolveUseItem(ctx, tc, intent)
	case IntentPickUp:
		result, err = r.resolvePickUp(ctx, tc, intent)
	case IntentDrop:
		result, err = r.resolveDrop(ctx, tc, intent)
	case IntentGive:
		result, err = r.resolveGive(ctx, tc, intent)
	case IntentRest:
		result, err = r.resolveRest(ctx, tc, intent)
	case IntentWait:
		result, err = r.resolveWait(ctx, tc)
	case IntentFork:
		result, err = r.resolveFork(ctx, tc, intent)
	default:
		return unclear(intent), nil
	}
	if err != nil {
		return nil, err
	}
	return &TurnResult{Intent: intent.Type, Result: result}, nil
}

// unclear yields the no-op result: nothing rolled, nothing consumed,
// nothing recorded.
func unclear(intent Intent) *TurnResult {
	return &TurnResult{
		Intent: intent.Type,
		Result: &SkillResult{Success: false, Reason: "unclear"},
	}
}

// loadContext gathers the actor, their location, who else is there, the
// actor's relationships, and the recent event window.
func (r *Router) loadContext(ctx context.Context, universeID, actorID string) (*TurnContext, error) {
	u, err := r.truth.Universe(ctx, universeID)
	if err != nil {
		return nil, err
	}
	actor, err := r.truth.Entity(ctx, universeID, actorID)
	if err != nil {
		actor, err = r.truth.EntityByName(ctx, universeID, actorID)
		if err != nil {
			return nil, err
		}
	}
	// Saves route to the branch named by UniverseID; an entity read
	// through a fork is claimed by it before any write.
	actor.UniverseID = universeID
	tc := &TurnContext{Universe: u, Actor: actor}

	rels, err := r.graph.Relationships(ctx, universeID, actor.ID)
	if err != nil {
		return nil, err
	}
	tc.Relationships = rels
	for _, rel := range rels {
		if rel.Type == storage.RelLocatedIn && rel.FromID == actor.ID {
			if loc, err := r.truth.Entity(ctx, universeID, rel.ToID); err == nil {
				loc.UniverseID = universeID
				tc.Location = loc
			}
			break
		}
	}
	if tc.Location != nil {
		present, err := r.graph.EntitiesAtLocation(ctx, universeID, tc.Location.ID)
		if err != nil {
			return nil, err
		}
		tc.Present = present
	}

	recent, err := r.truth.ListEvents(ctx, universeID, recentEventLimit)
	if err != nil {
		return nil, err
	}
	tc.Recent = recent
	return tc, nil
}

// findTarget resolves a target reference against the truth store, by id
// first and then by name.
func (r *Router) findTarget(ctx context.Context, universeID, ref string) (*entity.Entity, error) {
	if ref == "" {
		return nil, apperrors.New(apperrors.CodeIntentMissingTarget, "this action needs a target")
	}
	if e, err := r.truth.Entity(ctx, universeID, ref); err == nil {
		e.UniverseID = universeID
		return e, nil
	}
	e, err := r.truth.EntityByName(ctx, universeID, ref)
	if err != nil {
		return nil, apperrors.WithMetadata(apperrors.CodeTargetNotFound,
			fmt.Sprintf("no such target %q", ref),
			map[string]string{"target": ref})
	}
	e.UniverseID = universeID
	return e, nil
}

// checkDC scales a generic difficulty with local danger.
func checkDC(danger int) int {
	return 10 + danger/4
}

// entityWriter is the slice of the truth store entity saves write
// through, satisfied by the repository and a staged transaction.
type entityWriter interface {
	SaveEntity(ctx context.Context, e *entity.Entity) error
}

// saveDiverging writes an entity back and, in a forked universe, pins
// its universe-local graph variant so reads shadow the canonical node
// from the first mutation on. Root universes own their nodes already.
func (r *Router) saveDiverging(ctx context.Context, w entityWriter, tc *TurnContext, e *entity.Entity) error {
	if err := w.SaveEntity(ctx, e); err != nil {
		return err
	}
	if tc.Universe.Root() {
		return nil
	}
	_, err := r.multi.EnsureVariant(ctx, tc.Universe.ID, e.ID)
	return err
}

// newEvent allocates an event stamped for this turn.
func (r *Router) newEvent(tc *TurnContext, t event.Type) (*event.Event, error) {
	eventID, err := r.newID()
	if err != nil {
		return nil, err
	}
	ev := &event.Event{
		ID:         eventID,
		UniverseID: tc.Universe.ID,
		Type:       t,
		ActorID:    tc.Actor.ID,
		Timestamp:  r.now(),
		GameTime:   r.now(),
	}
	if tc.Location != nil {
		ev.LocationID = tc.Location.ID
	}
	return ev, nil
}

// recentSoftMoves counts GM soft moves since the last hard one, used to
// escalate pressure on repeated misses.
func recentSoftMoves(events []*event.Event) int {
	count := 0
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type != event.TypeGMMove {
			continue
		}
		var payload event.GMMovePayload
		if err := events[i].DecodePayload(&payload); err != nil {
			continue
		}
		if skill.GMMoveType(payload.MoveType).IsHard() {
			break
		}
		count++
	}
	return count
}

// runGMMove selects and executes the GM's answer to a miss.
func (r *Router) runGMMove(ctx context.Context, tc *TurnContext, inCombat bool) (*move.Result, error) {
	mv, err := skill.SelectGMMove(tc.Danger(), inCombat, recentSoftMoves(tc.Recent), r.roller)
	if err != nil {
		return nil, err
	}
	return r.moves.Execute(ctx, tc.Universe.ID, tc.Actor, tc.Location, mv)
}
