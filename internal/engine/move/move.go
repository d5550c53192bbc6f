// Package move executes GM moves. Generative moves ask the LLM port for
// new NPCs and locations and fall back to deterministic templates when
// the port fails or times out; effect moves mutate entity state. Every
// mutation is recorded as an event before the entity write, so the log
// stays the ground truth.
package move

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tta-solo/engine/internal/engine/ability"
	"github.com/tta-solo/engine/internal/engine/condition"
	"github.com/tta-solo/engine/internal/engine/effect"
	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/engine/npc"
	"github.com/tta-solo/engine/internal/engine/skill"
	"github.com/tta-solo/engine/internal/llm"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/platform/id"
	"github.com/tta-solo/engine/internal/storage"
)

// captureSaveDC is the strength save to escape a capture.
const captureSaveDC = 12

// Result reports what a GM move did to the world.
type Result struct {
	Success              bool             `json:"success"`
	MoveType             skill.GMMoveType `json:"move_type"`
	Narrative            string           `json:"narrative"`
	EntitiesCreated      []string         `json:"entities_created,omitempty"`
	RelationshipsCreated []string         `json:"relationships_created,omitempty"`
	EntitiesModified     []string         `json:"entities_modified,omitempty"`
	StateChanges         []string         `json:"state_changes,omitempty"`
	UsedFallback         bool             `json:"used_fallback,omitempty"`
}

// Executor runs GM moves against the repositories.
type Executor struct {
	truth  storage.TruthRepo
	graph  storage.GraphRepo
	states effect.StateStore
	gen    llm.Client
	newID  func() (string, error)
	now    func() time.Time
}

// NewExecutor wires a move executor. gen may be nil, in which case every
// generative move uses the template tables.
func NewExecutor(truth storage.TruthRepo, graph storage.GraphRepo, states effect.StateStore, gen llm.Client) *Executor {
	return &Executor{
		truth:  truth,
		graph:  graph,
		states: states,
		gen:    gen,
		newID:  id.NewID,
		now:    time.Now,
	}
}

// Execute dispatches one selected GM move. actor is the character the
// move lands on; location is where they are, and may be nil for moves
// that do not need one.
func (x *Executor) Execute(ctx context.Context, universeID string, actor, location *entity.Entity, mv skill.GMMove) (*Result, error) {
	switch mv.Type {
	case skill.IntroduceNPC:
		return x.introduceNPC(ctx, universeID, actor, location, mv)
	case skill.ChangeEnvironment:
		return x.changeEnvironment(ctx, universeID, actor, location, mv)
	case skill.RevealUnwelcomeTruth:
		return x.revealTruth(ctx, universeID, actor, location, mv)
	case skill.DealDamage, skill.UseMonsterMove:
		return x.dealDamage(ctx, universeID, actor, location, mv)
	case skill.TakeAway:
		return x.takeAway(ctx, universeID, actor, mv)
	case skill.Capture:
		return x.capture(ctx, universeID, actor, location, mv)
	case skill.SeparateThem:
		return x.separate(ctx, universeID, actor, location, mv)
	case skill.ShowDanger, skill.OfferOpportunity, skill.AdvanceTime:
		return x.narrativeOnly(ctx, universeID, actor, location, mv)
	default:
		return nil, apperrors.WithMetadata(apperrors.CodeIntentUnknownType,
			fmt.Sprintf("no generator for GM move %q", mv.Type),
			map[string]string{"move": string(mv.Type)})
	}
}

// locationKind buckets a location into a template key.
func locationKind(location *entity.Entity) string {
	if location == nil || location.Location == nil {
		return "default"
	}
	kind := strings.ToLower(location.Location.Kind)
	switch kind {
	case "tavern", "dungeon", "market", "forest":
		return kind
	}
	name := strings.ToLower(location.Name)
	for _, k := range []string{"tavern", "dungeon", "market", "forest"} {
		if strings.Contains(name, k) {
			return k
		}
	}
	return "default"
}

// generatedNPC is the structured shape requested from the LLM.
type generatedNPC struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Role        string `json:"role"`
}

const npcSchema = `{"name": "string", "description": "string", "role": "string"}`

var fallbackNPCs = map[string]generatedNPC{
	"tavern":  {Name: "Weathered Stranger", Description: "A hooded figure nursing a drink in the corner.", Role: "informant"},
	"dungeon": {Name: "Ragged Prisoner", Description: "A gaunt figure chained to the wall, eyes following you.", Role: "captive"},
	"market":  {Name: "Pushy Merchant", Description: "A trader who has decided you look wealthy.", Role: "merchant"},
	"forest":  {Name: "Silent Hunter", Description: "A ranger watching you from the treeline.", Role: "hunter"},
	"default": {Name: "Curious Onlooker", Description: "Someone drawn by the commotion.", Role: "bystander"},
}

func (x *Executor) introduceNPC(ctx context.Context, universeID string, actor, location *entity.Entity, mv skill.GMMove) (*Result, error) {
	kind := locationKind(location)
	spec := fallbackNPCs[kind]
	usedFallback := true
	if x.gen != nil {
		prompt := fmt.Sprintf("Invent a minor NPC appearing in a %s. Keep the description to one sentence.", kind)
		if raw, err := x.gen.GenerateStructured(ctx, prompt, npcSchema); err == nil {
			var gen generatedNPC
			if err := json.Unmarshal(raw, &gen); err == nil && gen.Name != "" {
				spec = gen
				usedFallback = false
			}
		}
	}

	entityID, err := x.newID()
	if err != nil {
		return nil, err
	}
	narrative := fmt.Sprintf("%s %s appears: %s", mv.Description, spec.Name, spec.Description)
	ev, err := x.gmMoveEvent(universeID, actor, location, mv, narrative, usedFallback)
	if err != nil {
		return nil, err
	}
	if err := x.truth.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	newcomer := &entity.Entity{
		ID:          entityID,
		UniverseID:  universeID,
		Type:        entity.TypeCharacter,
		Name:        spec.Name,
		Description: spec.Description,
		Tags:        []string{"npc", spec.Role},
		Character: &entity.CharacterStats{
			Level: 1, HP: 8, HPMax: 8, AC: 11, Speed: 30,
			Abilities: entity.AbilityScores{
				Strength: 10, Dexterity: 10, Constitution: 10,
				Intelligence: 10, Wisdom: 10, Charisma: 10,
			},
			HitDice: "1d8",
		},
		CreatedAt: x.now(),
		UpdatedAt: x.now(),
	}
	if err := x.truth.SaveEntity(ctx, newcomer); err != nil {
		return nil, err
	}

	profile := npc.NewProfile(entityID)
	profile.Motivations = []npc.Motivation{npc.MotivationKnowledge}
	if err := x.truth.SaveProfile(ctx, universeID, profile); err != nil {
		return nil, err
	}

	result := &Result{
		Success:         true,
		MoveType:        mv.Type,
		Narrative:       narrative,
		EntitiesCreated: []string{entityID},
		UsedFallback:    usedFallback,
	}
	// Entity first, then the edges; a failed edge rolls the node back.
	if err := x.graph.UpsertNode(ctx, &storage.Node{
		ID: entityID, UniverseID: universeID,
		Label: storage.LabelCharacter, Name: spec.Name, Description: spec.Description,
	}); err != nil {
		return nil, err
	}
	if location != nil {
		edgeID, err := x.relate(ctx, universeID, entityID, location.ID, storage.RelLocatedIn)
		if err != nil {
			_ = x.graph.DeleteNode(ctx, universeID, entityID)
			return nil, err
		}
		result.RelationshipsCreated = append(result.RelationshipsCreated, edgeID)
	}
	return result, nil
}

// generatedLocation is the structured shape requested from the LLM.
type generatedLocation struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Danger      int    `json:"danger"`
}

const locationSchema = `{"name": "string", "description": "string", "danger": 0}`

var fallbackLocations = map[string]generatedLocation{
	"tavern":  {Name: "Smoke-Filled Back Room", Description: "A hidden room behind the bar, thick with pipe smoke.", Danger: 3},
	"dungeon": {Name: "Collapsed Passage", Description: "A side tunnel half-buried in rubble.", Danger: 8},
	"market":  {Name: "Shadowed Alley", Description: "A narrow cut between stalls where the crowd thins.", Danger: 5},
	"forest":  {Name: "Overgrown Clearing", Description: "A ring of standing stones swallowed by vines.", Danger: 6},
	"default": {Name: "Unmarked Door", Description: "A way through you had not noticed before.", Danger: 4},
}

func (x *Executor) changeEnvironment(ctx context.Context, universeID string, actor, location *entity.Entity, mv skill.GMMove) (*Result, error) {
	kind := locationKind(location)
	spec := fallbackLocations[kind]
	usedFallback := true
	if x.gen != nil {
		prompt := fmt.Sprintf("Invent a small adjoining area revealed near a %s. One sentence description, danger 0-20.", kind)
		if raw, err := x.gen.GenerateStructured(ctx, prompt, locationSchema); err == nil {
			var gen generatedLocation
			if err := json.Unmarshal(raw, &gen); err == nil && gen.Name != "" {
				spec = gen
				usedFallback = false
			}
		}
	}
	if spec.Danger < 0 {
		spec.Danger = 0
	}
	if spec.Danger > 20 {
		spec.Danger = 20
	}

	placeID, err := x.newID()
	if err != nil {
		return nil, err
	}
	narrative := fmt.Sprintf("%s %s is revealed: %s", mv.Description, spec.Name, spec.Description)
	ev, err := x.gmMoveEvent(universeID, actor, location, mv, narrative, usedFallback)
	if err != nil {
		return nil, err
	}
	if err := x.truth.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	place := &entity.Entity{
		ID:          placeID,
		UniverseID:  universeID,
		Type:        entity.TypeLocation,
		Name:        spec.Name,
		Description: spec.Description,
		Location:    &entity.LocationStats{Danger: spec.Danger, Exits: map[string]string{}},
		CreatedAt:   x.now(),
		UpdatedAt:   x.now(),
	}
	if location != nil {
		place.Location.Exits["back"] = location.ID
	}
	if err := x.truth.SaveEntity(ctx, place); err != nil {
		return nil, err
	}

	result := &Result{
		Success:         true,
		MoveType:        mv.Type,
		Narrative:       narrative,
		EntitiesCreated: []string{placeID},
		UsedFallback:    usedFallback,
	}
	if err := x.graph.UpsertNode(ctx, &storage.Node{
		ID: placeID, UniverseID: universeID,
		Label: storage.LabelLocation, Name: spec.Name, Description: spec.Description,
	}); err != nil {
		return nil, err
	}
	if location != nil {
		edgeID, err := x.relate(ctx, universeID, location.ID, placeID, storage.RelConnectedTo)
		if err != nil {
			_ = x.graph.DeleteNode(ctx, universeID, placeID)
			return nil, err
		}
		result.RelationshipsCreated = append(result.RelationshipsCreated, edgeID)

		// The current location gains an exit into the new area.
		if location.Location != nil {
			if location.Location.Exits == nil {
				location.Location.Exits = map[string]string{}
			}
			location.Location.Exits["beyond"] = placeID
			location.Version++
			if err := x.truth.SaveEntity(ctx, location); err != nil {
				return nil, err
			}
			result.EntitiesModified = append(result.EntitiesModified, location.ID)
		}
	}
	return result, nil
}

var fallbackTruths = map[string]string{
	"tavern":  "The barkeep has been watering down more than the ale: your name is known here.",
	"dungeon": "These markings are fresh. Something else walks these halls, and recently.",
	"market":  "The prices doubled the moment you arrived. Someone warned the traders about you.",
	"forest":  "The birdsong stopped an hour ago and you only just noticed.",
	"default": "The thing you were counting on is not what it seemed.",
}

func (x *Executor) revealTruth(ctx context.Context, universeID string, actor, location *entity.Entity, mv skill.GMMove) (*Result, error) {
	kind := locationKind(location)
	truth := fallbackTruths[kind]
	usedFallback := true
	if x.gen != nil {
		prompt := fmt.Sprintf("Reveal one unwelcome truth the player discovers in a %s. One or two sentences.", kind)
		if text, err := x.gen.GenerateNarrative(ctx, prompt); err == nil && strings.TrimSpace(text) != "" {
			truth = strings.TrimSpace(text)
			usedFallback = false
		}
	}

	conceptID, err := x.newID()
	if err != nil {
		return nil, err
	}
	narrative := fmt.Sprintf("%s %s", mv.Description, truth)
	ev, err := x.gmMoveEvent(universeID, actor, location, mv, narrative, usedFallback)
	if err != nil {
		return nil, err
	}
	if err := x.truth.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	// The truth persists as a concept node so later context loads recall it.
	if err := x.graph.UpsertNode(ctx, &storage.Node{
		ID: conceptID, UniverseID: universeID,
		Label: storage.LabelConcept, Name: "unwelcome truth", Description: truth,
	}); err != nil {
		return nil, err
	}
	result := &Result{
		Success:         true,
		MoveType:        mv.Type,
		Narrative:       narrative,
		EntitiesCreated: []string{conceptID},
		UsedFallback:    usedFallback,
	}
	if actor != nil {
		edgeID, err := x.relate(ctx, universeID, actor.ID, conceptID, storage.RelKnows)
		if err != nil {
			_ = x.graph.DeleteNode(ctx, universeID, conceptID)
			return nil, err
		}
		result.RelationshipsCreated = append(result.RelationshipsCreated, edgeID)
	}
	return result, nil
}

func (x *Executor) dealDamage(ctx context.Context, universeID string, actor, location *entity.Entity, mv skill.GMMove) (*Result, error) {
	if actor == nil || !actor.IsCharacter() {
		return nil, apperrors.New(apperrors.CodeEntityNotCharacter, "damage moves need a character actor")
	}
	damage := mv.Damage
	narrative := fmt.Sprintf("%s You take %d damage.", mv.Description, damage)
	ev, err := x.gmMoveEvent(universeID, actor, location, mv, narrative, false)
	if err != nil {
		return nil, err
	}
	if err := x.truth.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	taken := actor.Character.ApplyDamage(damage)
	if actor.Character.Resources != nil {
		actor.Character.Resources.Meter.Momentum = 0
	}
	actor.Version++
	if err := x.truth.SaveEntity(ctx, actor); err != nil {
		return nil, err
	}

	result := &Result{
		Success:          true,
		MoveType:         mv.Type,
		Narrative:        narrative,
		EntitiesModified: []string{actor.ID},
		StateChanges:     []string{fmt.Sprintf("hp -%d", taken)},
	}
	if actor.Character.Down() {
		result.StateChanges = append(result.StateChanges, "down")
	}
	return result, nil
}

func (x *Executor) takeAway(ctx context.Context, universeID string, actor *entity.Entity, mv skill.GMMove) (*Result, error) {
	if actor == nil {
		return nil, apperrors.New(apperrors.CodeTargetNotFound, "take-away moves need an actor")
	}
	edges, err := x.graph.Relationships(ctx, universeID, actor.ID)
	if err != nil {
		return nil, err
	}
	var held []*storage.Relationship
	for _, r := range edges {
		if r.FromID != actor.ID {
			continue
		}
		switch r.Type {
		case storage.RelCarries, storage.RelWields, storage.RelWears:
			held = append(held, r)
		}
	}
	if len(held) == 0 {
		// Nothing to take: the move degrades to a narrative beat.
		return x.narrativeOnly(ctx, universeID, actor, nil, mv)
	}
	sort.Slice(held, func(i, j int) bool { return held[i].ToID < held[j].ToID })
	lost := held[0]

	narrative := fmt.Sprintf("%s You lose your grip on what you carried.", mv.Description)
	ev, err := x.gmMoveEvent(universeID, actor, nil, mv, narrative, false)
	if err != nil {
		return nil, err
	}
	ev.Type = event.TypeItemLost
	ev.TargetID = lost.ToID
	if err := x.truth.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	result := &Result{
		Success:      true,
		MoveType:     mv.Type,
		Narrative:    narrative,
		StateChanges: []string{fmt.Sprintf("lost %s", lost.ToID)},
	}
	// Item loss is a flag, never a delete.
	if item, err := x.truth.Entity(ctx, universeID, lost.ToID); err == nil && item.Item != nil {
		item.UniverseID = universeID
		item.Item.Active = false
		item.Version++
		if err := x.truth.SaveEntity(ctx, item); err != nil {
			return nil, err
		}
		result.EntitiesModified = append(result.EntitiesModified, item.ID)
	}
	if err := x.graph.DeleteRelationship(ctx, universeID, lost.FromID, lost.ToID, lost.Type); err != nil {
		return nil, err
	}
	return result, nil
}

func (x *Executor) capture(ctx context.Context, universeID string, actor, location *entity.Entity, mv skill.GMMove) (*Result, error) {
	if actor == nil {
		return nil, apperrors.New(apperrors.CodeTargetNotFound, "capture moves need an actor")
	}
	narrative := fmt.Sprintf("%s You are restrained.", mv.Description)
	ev, err := x.gmMoveEvent(universeID, actor, location, mv, narrative, false)
	if err != nil {
		return nil, err
	}
	ev.Type = event.TypeConditionApplied
	if err := x.truth.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	state, err := x.states.CombatState(ctx, universeID, actor.ID)
	if err != nil {
		return nil, err
	}
	instanceID, err := x.newID()
	if err != nil {
		return nil, err
	}
	state.Add(&condition.Instance{
		ID:             instanceID,
		Type:           condition.Restrained,
		Duration:       ability.DurationUntilSave,
		SaveAbility:    "str",
		SaveDC:         captureSaveDC,
		AppliedAtRound: state.Round,
	})
	if err := x.states.SaveCombatState(ctx, state); err != nil {
		return nil, err
	}

	result := &Result{
		Success:          true,
		MoveType:         mv.Type,
		Narrative:        narrative,
		EntitiesModified: []string{actor.ID},
		StateChanges:     []string{"condition restrained"},
	}
	if location != nil {
		edgeID, err := x.relate(ctx, universeID, actor.ID, location.ID, storage.RelTrappedIn)
		if err != nil {
			return nil, err
		}
		result.RelationshipsCreated = append(result.RelationshipsCreated, edgeID)
	}
	return result, nil
}

func (x *Executor) separate(ctx context.Context, universeID string, actor, location *entity.Entity, mv skill.GMMove) (*Result, error) {
	if location == nil || location.Location == nil || len(location.Location.Exits) == 0 {
		return x.narrativeOnly(ctx, universeID, actor, location, mv)
	}
	directions := make([]string, 0, len(location.Location.Exits))
	for d := range location.Location.Exits {
		directions = append(directions, d)
	}
	sort.Strings(directions)
	direction := directions[0]
	destination := location.Location.Exits[direction]

	narrative := fmt.Sprintf("%s You are driven %s.", mv.Description, direction)
	ev, err := x.gmMoveEvent(universeID, actor, location, mv, narrative, false)
	if err != nil {
		return nil, err
	}
	ev.Type = event.TypeTravel
	if perr := ev.SetPayload(event.TravelPayload{From: location.ID, To: destination, Direction: direction}); perr != nil {
		return nil, perr
	}
	if err := x.truth.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	if err := x.graph.DeleteRelationship(ctx, universeID, actor.ID, location.ID, storage.RelLocatedIn); err != nil {
		return nil, err
	}
	if _, err := x.relate(ctx, universeID, actor.ID, destination, storage.RelLocatedIn); err != nil {
		return nil, err
	}
	return &Result{
		Success:          true,
		MoveType:         mv.Type,
		Narrative:        narrative,
		EntitiesModified: []string{actor.ID},
		StateChanges:     []string{fmt.Sprintf("moved to %s", destination)},
	}, nil
}

func (x *Executor) narrativeOnly(ctx context.Context, universeID string, actor, location *entity.Entity, mv skill.GMMove) (*Result, error) {
	ev, err := x.gmMoveEvent(universeID, actor, location, mv, mv.Description, false)
	if err != nil {
		return nil, err
	}
	if mv.Type == skill.AdvanceTime {
		ev.Type = event.TypeAdvanceTime
	}
	if err := x.truth.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}
	return &Result{Success: true, MoveType: mv.Type, Narrative: mv.Description}, nil
}

func (x *Executor) gmMoveEvent(universeID string, actor, location *entity.Entity, mv skill.GMMove, narrative string, usedFallback bool) (*event.Event, error) {
	eventID, err := x.newID()
	if err != nil {
		return nil, err
	}
	ev := &event.Event{
		ID:         eventID,
		UniverseID: universeID,
		Type:       event.TypeGMMove,
		Timestamp:  x.now(),
		GameTime:   x.now(),
	}
	if actor != nil {
		ev.ActorID = actor.ID
	}
	if location != nil {
		ev.LocationID = location.ID
	}
	if err := ev.SetPayload(event.GMMovePayload{
		MoveType:     string(mv.Type),
		Narrative:    narrative,
		UsedFallback: usedFallback,
		Damage:       mv.Damage,
		Condition:    mv.Condition,
	}); err != nil {
		return nil, err
	}
	return ev, nil
}

func (x *Executor) relate(ctx context.Context, universeID, fromID, toID string, t storage.RelType) (string, error) {
	edgeID, err := x.newID()
	if err != nil {
		return "", err
	}
	return edgeID, x.graph.CreateRelationship(ctx, &storage.Relationship{
		ID:         edgeID,
		UniverseID: universeID,
		FromID:     fromID,
		ToID:       toID,
		Type:       t,
	})
}
