package router

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tta-solo/engine/internal/engine/dice"
	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/engine/npc"
	"github.com/tta-solo/engine/internal/engine/resource"
	"github.com/tta-solo/engine/internal/engine/skill"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/storage"
)

// checkValence is the emotional charge a social approach leaves on the
// target, recorded into NPC memory.
var checkValence = map[string]float64{
	"persuasion":   0.3,
	"intimidation": -0.5,
	"deception":    -0.2,
}

func outcomeEvent(o skill.Outcome) event.Outcome {
	switch o {
	case skill.StrongHit:
		return event.OutcomeStrongHit
	case skill.WeakHit:
		return event.OutcomeWeakHit
	default:
		return event.OutcomeMiss
	}
}

// resolveCheck runs a skill check against the local danger DC and maps
// the result onto the graded outcome ladder. Social skills need a
// target; perception does not.
func (r *Router) resolveCheck(ctx context.Context, tc *TurnContext, intent Intent, skillName string) (*SkillResult, error) {
	if !tc.Actor.IsCharacter() {
		return nil, apperrors.New(apperrors.CodeEntityNotCharacter, "only characters make checks")
	}
	var target *entityRef
	if skillName != "perception" {
		t, err := r.findTarget(ctx, tc.Universe.ID, intent.Target)
		if err != nil {
			return nil, err
		}
		target = &entityRef{ID: t.ID, Name: t.Name, NPC: t.IsCharacter()}
	}

	dc := checkDC(tc.Danger())
	pool := ensurePool(tc.Actor.Character)
	res, err := skill.Check(tc.Actor.Character, skillName, dc, dice.Normal, pool.Meter.Penalty(), r.roller)
	if err != nil {
		return nil, err
	}
	outcome := skill.Classify(res.Total, &dc, res.Critical, res.Fumble)

	result := &SkillResult{
		Success:  outcome != skill.Miss,
		Outcome:  outcome,
		Roll:     res.Roll,
		Total:    res.Total,
		DC:       dc,
		Margin:   res.Margin,
		Critical: res.Critical,
		Fumble:   res.Fumble,
	}

	ev, err := r.newEvent(tc, event.TypeSkillCheck)
	if err != nil {
		return nil, err
	}
	roll := res.Roll
	ev.Roll = &roll
	ev.Outcome = outcomeEvent(outcome)
	if target != nil {
		ev.TargetID = target.ID
	}
	if err := ev.SetPayload(event.CheckPayload{
		Skill:  skillName,
		DC:     dc,
		Total:  res.Total,
		Margin: res.Margin,
	}); err != nil {
		return nil, err
	}
	if err := r.truth.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	if target != nil && target.NPC {
		if err := r.recordMemory(ctx, target.ID, intent.Type, tc.Actor.Name, ev, checkValence[skillName]); err != nil {
			return nil, err
		}
	}

	switch outcome {
	case skill.StrongHit:
		result.Narrative = skill.StrongHitBonus(string(intent.Type))
	case skill.WeakHit:
		result.Narrative = skill.WeakHitComplication(string(intent.Type))
	default:
		gm, err := r.runGMMove(ctx, tc, false)
		if err != nil {
			return nil, err
		}
		result.GMMove = gm
		result.Narrative = gm.Narrative
	}
	return result, nil
}

// entityRef is the slim handle check resolution keeps for its target.
type entityRef struct {
	ID   string
	Name string
	NPC  bool
}

// recordMemory lets the NPC remember how the player treated them.
// Insignificant events are forgotten without error.
func (r *Router) recordMemory(ctx context.Context, npcID string, intentType IntentType, actorName string, ev *event.Event, valence float64) error {
	summary := fmt.Sprintf("%s: %s", intentType, actorName)
	mem, formed, err := npc.FormMemory(npcID, summary, ev, valence)
	if err != nil || !formed {
		return err
	}
	return r.truth.SaveMemory(ctx, mem)
}

// reactionLines turns a decided NPC action into one sentence of table
// feedback appended to dialogue.
var reactionLines = map[npc.Action]string{
	npc.ActionAttack:     "%s bristles, a hand drifting toward a weapon.",
	npc.ActionFlee:       "%s keeps edging toward the door.",
	npc.ActionNegotiate:  "%s leans in, ready to talk terms.",
	npc.ActionAssist:     "%s seems eager to help.",
	npc.ActionObserve:    "%s listens carefully and gives little away.",
	npc.ActionUseAbility: "%s mutters something low and rhythmic.",
	npc.ActionLeave:      "%s is already making excuses to go.",
}

// stanceFor distills one social edge into a decision stance: fear edges
// always read as fearful, while trust on KNOWS/DESIRES edges grades from
// hostile through distrust and respect up to allied.
func stanceFor(rel *storage.Relationship) (npc.Relationship, bool) {
	strength := rel.Trust
	if strength < 0 {
		strength = -strength
	}
	if strength == 0 {
		strength = 0.5
	}
	out := npc.Relationship{TargetID: rel.ToID, Strength: strength}
	switch rel.Type {
	case storage.RelFears:
		out.Stance = npc.StanceFearful
	case storage.RelKnows, storage.RelDesires:
		switch {
		case rel.Trust >= 0.5:
			out.Stance = npc.StanceAllied
		case rel.Trust > 0:
			out.Stance = npc.StanceRespectful
		case rel.Trust <= -0.5:
			out.Stance = npc.StanceHostile
		case rel.Trust < 0:
			out.Stance = npc.StanceDistrust
		default:
			return npc.Relationship{}, false
		}
	default:
		return npc.Relationship{}, false
	}
	return out, true
}

// npcContext assembles what one bystander can see of the current scene:
// local danger, their own condition, the exits, everyone present, and
// their stances toward them.
func (r *Router) npcContext(ctx context.Context, tc *TurnContext, subject *entity.Entity) npc.Context {
	nc := npc.Context{Danger: tc.Danger(), HPPercent: 1}
	if c := subject.Character; c != nil && c.HPMax > 0 {
		nc.HPPercent = float64(c.HP) / float64(c.HPMax)
	}
	if tc.Location != nil && tc.Location.Location != nil {
		nc.EscapeRoutes = len(tc.Location.Location.Exits)
	}
	if cs, err := r.states.CombatState(ctx, tc.Universe.ID, subject.ID); err == nil && cs.Round > 0 {
		nc.InCombat = true
	}
	for _, node := range tc.Present {
		if node.ID == subject.ID {
			continue
		}
		vis := npc.Visible{ID: node.ID, HPPercent: 1}
		if node.ID == tc.Actor.ID {
			vis.IsPlayer = true
			if c := tc.Actor.Character; c != nil {
				vis.Threat = float64(c.Level) / 10
				if vis.Threat > 1 {
					vis.Threat = 1
				}
				if c.HPMax > 0 {
					vis.HPPercent = float64(c.HP) / float64(c.HPMax)
				}
			}
		}
		nc.Entities = append(nc.Entities, vis)
	}
	rels, err := r.graph.Relationships(ctx, tc.Universe.ID, subject.ID)
	if err != nil {
		return nc
	}
	for _, rel := range rels {
		if rel.FromID != subject.ID {
			continue
		}
		if sr, ok := stanceFor(rel); ok {
			nc.Relationships = append(nc.Relationships, sr)
		}
	}
	return nc
}

func (r *Router) resolveTalk(ctx context.Context, tc *TurnContext, intent Intent) (*SkillResult, error) {
	target, err := r.findTarget(ctx, tc.Universe.ID, intent.Target)
	if err != nil {
		return nil, err
	}

	ev, err := r.newEvent(tc, event.TypeDialogue)
	if err != nil {
		return nil, err
	}
	ev.TargetID = target.ID
	ev.Outcome = event.OutcomeNeutral
	if err := r.truth.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	narrative := fmt.Sprintf("You speak with %s.", target.Name)
	if target.IsCharacter() {
		summary := intent.Text
		if summary == "" {
			summary = fmt.Sprintf("spoke with %s", tc.Actor.Name)
		}
		mem, formed, err := npc.FormMemory(target.ID, summary, ev, 0.1)
		if err != nil {
			return nil, err
		}
		if formed {
			if err := r.truth.SaveMemory(ctx, mem); err != nil {
				return nil, err
			}
		}

		prof, err := r.truth.Profile(ctx, tc.Universe.ID, target.ID)
		if err != nil {
			if apperrors.KindOf(err) != apperrors.KindNotFound {
				return nil, err
			}
			prof = npc.NewProfile(target.ID)
		}
		dec := npc.Decide(prof, r.npcContext(ctx, tc, target))
		if line, ok := reactionLines[dec.Chosen.Action]; ok {
			narrative += " " + fmt.Sprintf(line, target.Name)
		}
	}

	notes, err := r.advanceQuests(ctx, r.truth, tc, ev.ID, target.ID)
	if err != nil {
		return nil, err
	}
	if len(notes) > 0 {
		tc.Actor.Version++
		if err := r.saveDiverging(ctx, r.truth, tc, tc.Actor); err != nil {
			return nil, err
		}
	}

	return &SkillResult{
		Success:      true,
		Narrative:    narrative,
		StateChanges: notes,
	}, nil
}

func (r *Router) resolveMove(ctx context.Context, tc *TurnContext, intent Intent) (*SkillResult, error) {
	if tc.Location == nil || tc.Location.Location == nil {
		return nil, apperrors.New(apperrors.CodeTargetInvalid, "you are nowhere; there is no way out")
	}
	direction := strings.ToLower(intent.Direction)
	if direction == "" {
		return nil, apperrors.New(apperrors.CodeIntentMissingTarget, "moving needs a direction")
	}
	destID, ok := tc.Location.Location.Exits[direction]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeTargetNotFound,
			fmt.Sprintf("no exit %q from %s", direction, tc.Location.Name),
			map[string]string{"direction": direction})
	}
	dest, err := r.truth.Entity(ctx, tc.Universe.ID, destID)
	if err != nil {
		return nil, err
	}

	ev, err := r.newEvent(tc, event.TypeTravel)
	if err != nil {
		return nil, err
	}
	if err := ev.SetPayload(event.TravelPayload{
		From:      tc.Location.ID,
		To:        dest.ID,
		Direction: direction,
	}); err != nil {
		return nil, err
	}
	if err := r.truth.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	if err := r.graph.DeleteRelationship(ctx, tc.Universe.ID, tc.Actor.ID, tc.Location.ID, storage.RelLocatedIn); err != nil {
		return nil, err
	}
	if err := r.relate(ctx, tc.Universe.ID, tc.Actor.ID, dest.ID, storage.RelLocatedIn); err != nil {
		return nil, err
	}

	changes := []string{fmt.Sprintf("location %s", dest.ID)}
	notes, err := r.advanceQuests(ctx, r.truth, tc, ev.ID, dest.ID)
	if err != nil {
		return nil, err
	}
	if len(notes) > 0 {
		changes = append(changes, notes...)
		tc.Actor.Version++
		if err := r.saveDiverging(ctx, r.truth, tc, tc.Actor); err != nil {
			return nil, err
		}
	}

	return &SkillResult{
		Success:      true,
		Narrative:    fmt.Sprintf("You go %s to %s.", direction, dest.Name),
		StateChanges: changes,
	}, nil
}

// relate creates a graph edge with a fresh id.
func (r *Router) relate(ctx context.Context, universeID, from, to string, t storage.RelType) error {
	edgeID, err := r.newID()
	if err != nil {
		return err
	}
	return r.graph.CreateRelationship(ctx, &storage.Relationship{
		ID:         edgeID,
		UniverseID: universeID,
		FromID:     from,
		ToID:       to,
		Type:       t,
	})
}

// resolveLook is read-only: no roll, no event, nothing consumed.
func (r *Router) resolveLook(_ context.Context, tc *TurnContext) (*SkillResult, error) {
	if tc.Location == nil {
		return &SkillResult{Success: true, Narrative: "You drift in a placeless dark."}, nil
	}

	var b strings.Builder
	b.WriteString(tc.Location.Description)
	var others []string
	for _, n := range tc.Present {
		if n.CanonicalID == tc.Actor.ID || n.ID == tc.Actor.ID {
			continue
		}
		others = append(others, n.Name)
	}
	if len(others) > 0 {
		fmt.Fprintf(&b, " Here: %s.", strings.Join(others, ", "))
	}
	if tc.Location.Location != nil && len(tc.Location.Location.Exits) > 0 {
		dirs := make([]string, 0, len(tc.Location.Location.Exits))
		for d := range tc.Location.Location.Exits {
			dirs = append(dirs, d)
		}
		sort.Strings(dirs)
		fmt.Fprintf(&b, " Exits: %s.", strings.Join(dirs, ", "))
	}
	return &SkillResult{Success: true, Narrative: b.String()}, nil
}

// resolveInteract touches something already in the room; it never
// reaches past what is present.
func (r *Router) resolveInteract(tc *TurnContext, intent Intent) (*SkillResult, error) {
	if intent.Target == "" {
		return nil, apperrors.New(apperrors.CodeIntentMissingTarget, "interact with what?")
	}
	for _, n := range tc.Present {
		if n.ID != intent.Target && !strings.EqualFold(n.Name, intent.Target) {
			continue
		}
		narrative := n.Description
		if narrative == "" {
			narrative = fmt.Sprintf("Nothing about %s responds.", n.Name)
		}
		return &SkillResult{Success: true, Narrative: narrative}, nil
	}
	return nil, apperrors.WithMetadata(apperrors.CodeTargetNotFound,
		fmt.Sprintf("there is no %q here", intent.Target),
		map[string]string{"target": intent.Target})
}

// heldEdges returns the edge types binding an item to the actor's
// person, empty when the actor does not hold it.
func heldEdges(tc *TurnContext, itemID string) []storage.RelType {
	var edges []storage.RelType
	for _, rel := range tc.Relationships {
		if rel.FromID != tc.Actor.ID || rel.ToID != itemID {
			continue
		}
		switch rel.Type {
		case storage.RelCarries, storage.RelWields, storage.RelWears, storage.RelOwns:
			edges = append(edges, rel.Type)
		}
	}
	return edges
}

func (r *Router) itemRef(intent Intent) string {
	if intent.Item != "" {
		return intent.Item
	}
	return intent.Target
}

// resolveUseItem equips wearables and weapons and consumes the rest.
func (r *Router) resolveUseItem(ctx context.Context, tc *TurnContext, intent Intent) (*SkillResult, error) {
	item, err := r.findTarget(ctx, tc.Universe.ID, r.itemRef(intent))
	if err != nil {
		return nil, err
	}
	if !item.IsItem() || !item.Item.Active {
		return nil, apperrors.WithMetadata(apperrors.CodeTargetInvalid,
			fmt.Sprintf("%s cannot be used", item.Name),
			map[string]string{"item_id": item.ID})
	}
	if len(heldEdges(tc, item.ID)) == 0 {
		return nil, apperrors.WithMetadata(apperrors.CodeTargetInvalid,
			fmt.Sprintf("you are not holding %s", item.Name),
			map[string]string{"item_id": item.ID})
	}

	ev, err := r.newEvent(tc, event.TypeEntityModified)
	if err != nil {
		return nil, err
	}
	ev.TargetID = item.ID

	switch {
	case item.Item.ACBonus > 0:
		if err := ev.SetPayload(event.ItemPayload{ItemID: item.ID, Reason: "equipped"}); err != nil {
			return nil, err
		}
		if err := r.truth.AppendEvent(ctx, ev); err != nil {
			return nil, err
		}
		if err := r.relate(ctx, tc.Universe.ID, tc.Actor.ID, item.ID, storage.RelWears); err != nil {
			return nil, err
		}
		return &SkillResult{
			Success:      true,
			Narrative:    fmt.Sprintf("You put on %s.", item.Name),
			StateChanges: []string{fmt.Sprintf("wears %s", item.ID)},
		}, nil

	case item.Item.DamageDice != "":
		if err := ev.SetPayload(event.ItemPayload{ItemID: item.ID, Reason: "equipped"}); err != nil {
			return nil, err
		}
		if err := r.truth.AppendEvent(ctx, ev); err != nil {
			return nil, err
		}
		if err := r.relate(ctx, tc.Universe.ID, tc.Actor.ID, item.ID, storage.RelWields); err != nil {
			return nil, err
		}
		return &SkillResult{
			Success:      true,
			Narrative:    fmt.Sprintf("You ready %s.", item.Name),
			StateChanges: []string{fmt.Sprintf("wields %s", item.ID)},
		}, nil

	default:
		// Consumable: single use, then the item is spent.
		if err := ev.SetPayload(event.ItemPayload{ItemID: item.ID, Reason: "consumed"}); err != nil {
			return nil, err
		}
		if err := r.truth.AppendEvent(ctx, ev); err != nil {
			return nil, err
		}
		item.Item.Active = false
		item.Version++
		if err := r.saveDiverging(ctx, r.truth, tc, item); err != nil {
			return nil, err
		}
		return &SkillResult{
			Success:      true,
			Narrative:    fmt.Sprintf("You use %s.", item.Name),
			StateChanges: []string{fmt.Sprintf("%s consumed", item.ID)},
		}, nil
	}
}

func (r *Router) resolvePickUp(ctx context.Context, tc *TurnContext, intent Intent) (*SkillResult, error) {
	if tc.Location == nil {
		return nil, apperrors.New(apperrors.CodeTargetInvalid, "there is nothing here to take")
	}
	item, err := r.findTarget(ctx, tc.Universe.ID, r.itemRef(intent))
	if err != nil {
		return nil, err
	}
	if !item.IsItem() || !item.Item.Active {
		return nil, apperrors.WithMetadata(apperrors.CodeTargetInvalid,
			fmt.Sprintf("%s cannot be taken", item.Name),
			map[string]string{"item_id": item.ID})
	}

	rels, err := r.graph.Relationships(ctx, tc.Universe.ID, item.ID)
	if err != nil {
		return nil, err
	}
	here := false
	for _, rel := range rels {
		if rel.Type == storage.RelLocatedIn && rel.FromID == item.ID && rel.ToID == tc.Location.ID {
			here = true
			break
		}
	}
	if !here {
		return nil, apperrors.WithMetadata(apperrors.CodeTargetNotFound,
			fmt.Sprintf("%s is not here", item.Name),
			map[string]string{"item_id": item.ID})
	}

	ev, err := r.newEvent(tc, event.TypeItemTransfer)
	if err != nil {
		return nil, err
	}
	ev.TargetID = item.ID
	if err := ev.SetPayload(event.ItemPayload{ItemID: item.ID, ToID: tc.Actor.ID, Reason: "pickup"}); err != nil {
		return nil, err
	}
	if err := r.truth.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	if err := r.graph.DeleteRelationship(ctx, tc.Universe.ID, item.ID, tc.Location.ID, storage.RelLocatedIn); err != nil {
		return nil, err
	}
	if err := r.relate(ctx, tc.Universe.ID, tc.Actor.ID, item.ID, storage.RelCarries); err != nil {
		return nil, err
	}
	return &SkillResult{
		Success:      true,
		Narrative:    fmt.Sprintf("You take %s.", item.Name),
		StateChanges: []string{fmt.Sprintf("carries %s", item.ID)},
	}, nil
}

func (r *Router) resolveDrop(ctx context.Context, tc *TurnContext, intent Intent) (*SkillResult, error) {
	if tc.Location == nil {
		return nil, apperrors.New(apperrors.CodeTargetInvalid, "there is nowhere to drop anything")
	}
	item, err := r.findTarget(ctx, tc.Universe.ID, r.itemRef(intent))
	if err != nil {
		return nil, err
	}
	edges := heldEdges(tc, item.ID)
	if len(edges) == 0 {
		return nil, apperrors.WithMetadata(apperrors.CodeTargetInvalid,
			fmt.Sprintf("you are not carrying %s", item.Name),
			map[string]string{"item_id": item.ID})
	}

	ev, err := r.newEvent(tc, event.TypeItemTransfer)
	if err != nil {
		return nil, err
	}
	ev.TargetID = item.ID
	if err := ev.SetPayload(event.ItemPayload{ItemID: item.ID, FromID: tc.Actor.ID, Reason: "drop"}); err != nil {
		return nil, err
	}
	if err := r.truth.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	for _, t := range edges {
		if err := r.graph.DeleteRelationship(ctx, tc.Universe.ID, tc.Actor.ID, item.ID, t); err != nil {
			return nil, err
		}
	}
	if err := r.relate(ctx, tc.Universe.ID, item.ID, tc.Location.ID, storage.RelLocatedIn); err != nil {
		return nil, err
	}
	return &SkillResult{
		Success:      true,
		Narrative:    fmt.Sprintf("You drop %s.", item.Name),
		StateChanges: []string{fmt.Sprintf("dropped %s", item.ID)},
	}, nil
}

func (r *Router) resolveGive(ctx context.Context, tc *TurnContext, intent Intent) (*SkillResult, error) {
	target, err := r.findTarget(ctx, tc.Universe.ID, intent.Target)
	if err != nil {
		return nil, err
	}
	if !target.IsCharacter() {
		return nil, apperrors.WithMetadata(apperrors.CodeTargetInvalid,
			fmt.Sprintf("%s cannot accept items", target.Name),
			map[string]string{"target_id": target.ID})
	}
	item, err := r.findTarget(ctx, tc.Universe.ID, intent.Item)
	if err != nil {
		return nil, err
	}
	edges := heldEdges(tc, item.ID)
	if len(edges) == 0 {
		return nil, apperrors.WithMetadata(apperrors.CodeTargetInvalid,
			fmt.Sprintf("you are not carrying %s", item.Name),
			map[string]string{"item_id": item.ID})
	}

	ev, err := r.newEvent(tc, event.TypeItemTransfer)
	if err != nil {
		return nil, err
	}
	ev.TargetID = target.ID
	if err := ev.SetPayload(event.ItemPayload{
		ItemID: item.ID,
		FromID: tc.Actor.ID,
		ToID:   target.ID,
		Reason: "gift",
	}); err != nil {
		return nil, err
	}
	if err := r.truth.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	for _, t := range edges {
		if err := r.graph.DeleteRelationship(ctx, tc.Universe.ID, tc.Actor.ID, item.ID, t); err != nil {
			return nil, err
		}
	}
	if err := r.relate(ctx, tc.Universe.ID, target.ID, item.ID, storage.RelCarries); err != nil {
		return nil, err
	}
	if err := r.recordMemory(ctx, target.ID, intent.Type, tc.Actor.Name, ev, 0.5); err != nil {
		return nil, err
	}
	return &SkillResult{
		Success:      true,
		Narrative:    fmt.Sprintf("You give %s to %s.", item.Name, target.Name),
		StateChanges: []string{fmt.Sprintf("%s carries %s", target.ID, item.ID)},
	}, nil
}

func restKind(text string) resource.RestType {
	if strings.Contains(strings.ToLower(text), "long") {
		return resource.LongRest
	}
	return resource.ShortRest
}

func (r *Router) resolveRest(ctx context.Context, tc *TurnContext, intent Intent) (*SkillResult, error) {
	if !tc.Actor.IsCharacter() {
		return nil, apperrors.New(apperrors.CodeEntityNotCharacter, "only characters rest")
	}
	kind := restKind(intent.Text)

	pool := ensurePool(tc.Actor.Character)
	pool.Rest(kind)
	result := &SkillResult{Success: true}
	if kind == resource.LongRest {
		if healed := tc.Actor.Character.Heal(tc.Actor.Character.HPMax); healed > 0 {
			result.StateChanges = append(result.StateChanges, fmt.Sprintf("hp +%d", healed))
		}
		result.Narrative = "You sleep deeply and wake restored."
	} else {
		result.Narrative = "You catch your breath."
	}
	if err := r.pipeline.ExpireOnRest(ctx, tc.Actor); err != nil {
		return nil, err
	}

	ev, err := r.newEvent(tc, event.TypeRest)
	if err != nil {
		return nil, err
	}
	if err := ev.SetPayload(event.RestPayload{Kind: string(kind)}); err != nil {
		return nil, err
	}
	if err := r.truth.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	tc.Actor.Version++
	if err := r.saveDiverging(ctx, r.truth, tc, tc.Actor); err != nil {
		return nil, err
	}
	return result, nil
}

// resolveWait passes the round: conditions tick, effects count down, and
// the action economy resets.
func (r *Router) resolveWait(ctx context.Context, tc *TurnContext) (*SkillResult, error) {
	if !tc.Actor.IsCharacter() {
		return nil, apperrors.New(apperrors.CodeEntityNotCharacter, "only characters wait")
	}
	pool := ensurePool(tc.Actor.Character)
	pool.Solo.ResetRound()

	tick, err := r.pipeline.TickRound(ctx, tc.Actor, pool.Solo.Round, r.roller)
	if err != nil {
		return nil, err
	}
	result := &SkillResult{Success: true, Narrative: "Time passes."}
	if tick.DotDamage > 0 {
		result.Damage = tick.DotDamage
		result.StateChanges = append(result.StateChanges, fmt.Sprintf("hp -%d", tick.DotDamage))
	}
	for _, c := range tick.SavedOff {
		result.StateChanges = append(result.StateChanges, fmt.Sprintf("%s shaken off", c))
	}
	for _, c := range tick.ExpiredConditions {
		result.StateChanges = append(result.StateChanges, fmt.Sprintf("%s expired", c))
	}

	ev, err := r.newEvent(tc, event.TypeAdvanceTime)
	if err != nil {
		return nil, err
	}
	if err := r.truth.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}

	tc.Actor.Version++
	if err := r.saveDiverging(ctx, r.truth, tc, tc.Actor); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Router) resolveFork(ctx context.Context, tc *TurnContext, intent Intent) (*SkillResult, error) {
	name := intent.ForkName
	if name == "" {
		name = fmt.Sprintf("%s (fork)", tc.Universe.Name)
	}
	child, err := r.multi.Fork(ctx, tc.Universe.ID, name, intent.Text, tc.Actor.ID)
	if err != nil {
		return nil, err
	}
	return &SkillResult{
		Success:      true,
		Narrative:    fmt.Sprintf("The timeline splits. %q branches off from here.", child.Name),
		StateChanges: []string{fmt.Sprintf("universe %s", child.ID)},
	}, nil
}
