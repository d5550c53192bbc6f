package router

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tta-solo/engine/internal/engine/ability"
	"github.com/tta-solo/engine/internal/engine/dice"
	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/engine/move"
	"github.com/tta-solo/engine/internal/engine/multiverse"
	"github.com/tta-solo/engine/internal/engine/npc"
	"github.com/tta-solo/engine/internal/engine/resource"
	"github.com/tta-solo/engine/internal/engine/skill"
	"github.com/tta-solo/engine/internal/engine/solo"
	"github.com/tta-solo/engine/internal/engine/universe"
	"github.com/tta-solo/engine/internal/llm"
	"github.com/tta-solo/engine/internal/storage"
	"github.com/tta-solo/engine/internal/storage/memory"
)

const testUniverse = "u-main"

type fixture struct {
	r      *Router
	truth  *memory.TruthStore
	graph  *memory.GraphStore
	states *memory.StateStore
}

// newFixture seeds a small world: Aria and the goblin Snag in a tavern
// with a coin on the floor, a street to the north, and a sword and ring
// in Aria's pack. The LLM is an empty script, so GM moves take the
// template fallback path.
func newFixture(t *testing.T, roller dice.Roller) *fixture {
	t.Helper()
	ctx := context.Background()

	truth := memory.NewTruthStore()
	graph := memory.NewGraphStore()
	states := memory.NewStateStore()
	moves := move.NewExecutor(truth, graph, states, llm.NewScripted())
	multi := multiverse.NewService(truth, graph)

	r := New(Deps{
		Truth:  truth,
		Graph:  graph,
		States: states,
		Moves:  moves,
		Multi:  multi,
		Roller: roller,
		Config: solo.DefaultConfig(),
	})

	u := universe.NewRoot(testUniverse, "Prime", "player", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err := truth.SaveUniverse(ctx, &u); err != nil {
		t.Fatalf("save universe: %v", err)
	}

	pool := resource.NewPool()
	pool.Meter.Stress = 5
	entities := []*entity.Entity{
		{
			ID: "hero", UniverseID: testUniverse, Type: entity.TypeCharacter, Name: "Aria",
			Character: &entity.CharacterStats{
				Level: 3, HP: 12, HPMax: 20, AC: 14,
				Abilities: entity.AbilityScores{
					Strength: 16, Dexterity: 12, Constitution: 14,
					Intelligence: 10, Wisdom: 10, Charisma: 14,
				},
				Resources: pool,
			},
		},
		{
			ID: "gob", UniverseID: testUniverse, Type: entity.TypeCharacter, Name: "Snag",
			Character: &entity.CharacterStats{
				Level: 1, HP: 7, HPMax: 7, AC: 12,
				Abilities: entity.AbilityScores{
					Strength: 12, Dexterity: 10, Constitution: 10,
					Intelligence: 10, Wisdom: 10, Charisma: 10,
				},
			},
		},
		{
			ID: "tavern", UniverseID: testUniverse, Type: entity.TypeLocation, Name: "The Bent Copper",
			Description: "A low-ceilinged taproom thick with pipe smoke.",
			Location:    &entity.LocationStats{Kind: "tavern", Exits: map[string]string{"north": "street"}},
		},
		{
			ID: "street", UniverseID: testUniverse, Type: entity.TypeLocation, Name: "Cobbled Street",
			Location: &entity.LocationStats{Kind: "market", Exits: map[string]string{"south": "tavern"}},
		},
		{
			ID: "sword", UniverseID: testUniverse, Type: entity.TypeItem, Name: "Shortsword",
			Item: &entity.ItemStats{DamageDice: "1d8", DamageType: "slashing", Active: true},
		},
		{
			ID: "ring", UniverseID: testUniverse, Type: entity.TypeItem, Name: "Brass Ring",
			Item: &entity.ItemStats{Value: 5, Active: true},
		},
		{
			ID: "coin", UniverseID: testUniverse, Type: entity.TypeItem, Name: "Silver Coin",
			Item: &entity.ItemStats{Value: 1, Active: true},
		},
	}
	for _, e := range entities {
		if err := truth.SaveEntity(ctx, e); err != nil {
			t.Fatalf("seed %s: %v", e.ID, err)
		}
		label := storage.LabelCharacter
		switch e.Type {
		case entity.TypeLocation:
			label = storage.LabelLocation
		case entity.TypeItem:
			label = storage.LabelItem
		}
		node := &storage.Node{ID: e.ID, UniverseID: testUniverse, Label: label, Name: e.Name, Description: e.Description}
		if err := graph.UpsertNode(ctx, node); err != nil {
			t.Fatalf("seed node %s: %v", e.ID, err)
		}
	}

	edges := []struct {
		id, from, to string
		t            storage.RelType
	}{
		{"e-hero-loc", "hero", "tavern", storage.RelLocatedIn},
		{"e-gob-loc", "gob", "tavern", storage.RelLocatedIn},
		{"e-coin-loc", "coin", "tavern", storage.RelLocatedIn},
		{"e-hero-sword", "hero", "sword", storage.RelCarries},
		{"e-hero-ring", "hero", "ring", storage.RelCarries},
	}
	for _, e := range edges {
		rel := &storage.Relationship{ID: e.id, UniverseID: testUniverse, FromID: e.from, ToID: e.to, Type: e.t}
		if err := graph.CreateRelationship(ctx, rel); err != nil {
			t.Fatalf("seed edge %s: %v", e.id, err)
		}
	}

	return &fixture{r: r, truth: truth, graph: graph, states: states}
}

func (f *fixture) resolve(t *testing.T, intent Intent) *TurnResult {
	t.Helper()
	intent.ActorID = "hero"
	res, err := f.r.Resolve(context.Background(), testUniverse, intent)
	if err != nil {
		t.Fatalf("resolve %s: %v", intent.Type, err)
	}
	return res
}

func (f *fixture) entity(t *testing.T, id string) *entity.Entity {
	t.Helper()
	e, err := f.truth.Entity(context.Background(), testUniverse, id)
	if err != nil {
		t.Fatalf("load %s: %v", id, err)
	}
	return e
}

// seedCharacter drops another character into the tavern mid-test.
func (f *fixture) seedCharacter(t *testing.T, id, name string, level, hp int) {
	t.Helper()
	ctx := context.Background()
	e := &entity.Entity{
		ID: id, UniverseID: testUniverse, Type: entity.TypeCharacter, Name: name,
		Character: &entity.CharacterStats{
			Level: level, HP: hp, HPMax: hp, AC: 10,
			Abilities: entity.AbilityScores{
				Strength: 10, Dexterity: 10, Constitution: 10,
				Intelligence: 10, Wisdom: 10, Charisma: 10,
			},
		},
	}
	if err := f.truth.SaveEntity(ctx, e); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	node := &storage.Node{ID: id, UniverseID: testUniverse, Label: storage.LabelCharacter, Name: name}
	if err := f.graph.UpsertNode(ctx, node); err != nil {
		t.Fatalf("seed node %s: %v", id, err)
	}
	rel := &storage.Relationship{ID: "e-" + id + "-loc", UniverseID: testUniverse, FromID: id, ToID: "tavern", Type: storage.RelLocatedIn}
	if err := f.graph.CreateRelationship(ctx, rel); err != nil {
		t.Fatalf("seed edge %s: %v", id, err)
	}
}

func (f *fixture) events(t *testing.T) []*event.Event {
	t.Helper()
	evs, err := f.truth.ListEvents(context.Background(), testUniverse, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	return evs
}

func (f *fixture) lastEvent(t *testing.T) *event.Event {
	t.Helper()
	evs := f.events(t)
	if len(evs) == 0 {
		t.Fatal("no events recorded")
	}
	return evs[len(evs)-1]
}

func hasChange(changes []string, want string) bool {
	for _, c := range changes {
		if c == want {
			return true
		}
	}
	return false
}

func TestAttackHitAppliesDamage(t *testing.T) {
	// d20=10 (+3 str, +2 prof, -1 stress penalty = 14 vs AC 12), unarmed 1d4=3.
	f := newFixture(t, dice.NewScripted(10, 3))

	res := f.resolve(t, Intent{Type: IntentAttack, Target: "gob"})
	if !res.Result.Success || res.Result.Outcome != skill.WeakHit {
		t.Fatalf("expected weak hit, got %+v", res.Result)
	}
	if res.Result.Damage != 6 {
		t.Fatalf("expected 6 damage (1d4=3 +3 str), got %d", res.Result.Damage)
	}

	gob := f.entity(t, "gob")
	if gob.Character.HP != 1 {
		t.Fatalf("expected goblin at 1 hp, got %d", gob.Character.HP)
	}

	ev := f.lastEvent(t)
	if ev.Type != event.TypeCombatRound || ev.Outcome != event.OutcomeHit || ev.TargetID != "gob" {
		t.Fatalf("unexpected combat event %+v", ev)
	}
	var payload event.DamagePayload
	if err := ev.DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Amount != 6 || payload.TargetDeath {
		t.Fatalf("unexpected damage payload %+v", payload)
	}

	hero := f.entity(t, "hero")
	if !hero.Character.Resources.Solo.ActionUsed {
		t.Fatal("attack should consume the action")
	}
}

func TestAttackTwiceInOneRoundFails(t *testing.T) {
	f := newFixture(t, dice.NewScripted(10, 3))

	f.resolve(t, Intent{Type: IntentAttack, Target: "gob"})
	res := f.resolve(t, Intent{Type: IntentAttack, Target: "gob"})
	if res.Result.Success {
		t.Fatal("second attack in the round should fail")
	}
	if res.Result.Reason != "ACTION_ALREADY_USED" {
		t.Fatalf("expected action-already-used, got %q", res.Result.Reason)
	}
}

func TestAttackCritDropsTarget(t *testing.T) {
	// Natural 20: doubled unarmed dice 2d4=4+2, +3 str = 9 against 7 hp.
	f := newFixture(t, dice.NewScripted(20, 4, 2))

	res := f.resolve(t, Intent{Type: IntentAttack, Target: "gob"})
	if !res.Result.Critical || res.Result.Outcome != skill.StrongHit {
		t.Fatalf("expected critical strong hit, got %+v", res.Result)
	}
	if !hasChange(res.Result.StateChanges, "momentum +1") {
		t.Fatalf("crit should grant momentum, got %v", res.Result.StateChanges)
	}
	if !hasChange(res.Result.StateChanges, "Snag down") {
		t.Fatalf("expected the goblin down, got %v", res.Result.StateChanges)
	}

	gob := f.entity(t, "gob")
	if gob.Character.HP != 0 {
		t.Fatalf("expected goblin at 0 hp, got %d", gob.Character.HP)
	}
	evs := f.events(t)
	if len(evs) < 2 {
		t.Fatalf("expected combat and death events, got %d", len(evs))
	}
	var payload event.DamagePayload
	if err := evs[len(evs)-2].DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !payload.Critical || !payload.TargetDeath {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if death := evs[len(evs)-1]; death.Type != event.TypeDeath || death.TargetID != "gob" {
		t.Fatalf("expected a death event for the goblin, got %+v", death)
	}

	hero := f.entity(t, "hero")
	if hero.Character.Resources.Meter.Momentum != 1 {
		t.Fatalf("expected momentum 1, got %d", hero.Character.Resources.Meter.Momentum)
	}
}

func TestAttackMissLeavesTargetUntouched(t *testing.T) {
	// d20=3 totals 7 against AC 12: a plain miss, no fumble, no GM move.
	f := newFixture(t, dice.NewScripted(3))

	res := f.resolve(t, Intent{Type: IntentAttack, Target: "gob"})
	if res.Result.Success || res.Result.Outcome != skill.Miss || res.Result.GMMove != nil {
		t.Fatalf("expected quiet miss, got %+v", res.Result)
	}

	gob := f.entity(t, "gob")
	if gob.Character.HP != 7 {
		t.Fatalf("miss should not damage, got hp %d", gob.Character.HP)
	}
	if ev := f.lastEvent(t); ev.Outcome != event.OutcomeMiss {
		t.Fatalf("expected MISS outcome, got %q", ev.Outcome)
	}
}

func TestUseItemEquipsWeaponForAttacks(t *testing.T) {
	// Equip consumes no dice; then d20=10 hits and 1d8=5 +3 str = 8.
	f := newFixture(t, dice.NewScripted(10, 5))

	res := f.resolve(t, Intent{Type: IntentUseItem, Item: "sword"})
	if !res.Result.Success || !hasChange(res.Result.StateChanges, "wields sword") {
		t.Fatalf("expected sword wielded, got %+v", res.Result)
	}

	res = f.resolve(t, Intent{Type: IntentAttack, Target: "gob"})
	if res.Result.Damage != 8 {
		t.Fatalf("expected 8 damage with the sword, got %d", res.Result.Damage)
	}
}

func TestSearchMissHandsTheGMAMove(t *testing.T) {
	// d20=2 misses DC 10; the soft-move pick lands on the third entry,
	// reveal_unwelcome_truth, resolved via the template fallback.
	f := newFixture(t, dice.NewScripted(2, 3))

	res := f.resolve(t, Intent{Type: IntentSearch})
	if res.Result.Success {
		t.Fatalf("expected a miss, got %+v", res.Result)
	}
	gm := res.Result.GMMove
	if gm == nil {
		t.Fatal("a missed check owes the GM a move")
	}
	if gm.MoveType != skill.RevealUnwelcomeTruth || !gm.UsedFallback {
		t.Fatalf("unexpected GM move %+v", gm)
	}

	evs := f.events(t)
	if len(evs) < 2 || evs[len(evs)-2].Type != event.TypeSkillCheck || evs[len(evs)-1].Type != event.TypeGMMove {
		t.Fatalf("expected check then GM move in the log, got %d events", len(evs))
	}
}

func TestPersuadeStrongHitNarrates(t *testing.T) {
	// d20=13 +2 cha -1 stress = 14... needs margin 5; use 14 for total 15.
	f := newFixture(t, dice.NewScripted(14))

	res := f.resolve(t, Intent{Type: IntentPersuade, Target: "gob"})
	if res.Result.Outcome != skill.StrongHit {
		t.Fatalf("expected strong hit, got %+v", res.Result)
	}
	if res.Result.Narrative != skill.StrongHitBonus("persuade") {
		t.Fatalf("unexpected narrative %q", res.Result.Narrative)
	}
	if ev := f.lastEvent(t); ev.Type != event.TypeSkillCheck || ev.TargetID != "gob" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestTalkLogsDialogueAndMemory(t *testing.T) {
	f := newFixture(t, dice.NewScripted())

	res := f.resolve(t, Intent{Type: IntentTalk, Target: "Snag", Text: "asked about the cellar"})
	if !res.Result.Success {
		t.Fatalf("talk failed: %+v", res.Result)
	}
	if ev := f.lastEvent(t); ev.Type != event.TypeDialogue || ev.TargetID != "gob" {
		t.Fatalf("unexpected event %+v", ev)
	}

	mems, err := f.truth.ListMemories(context.Background(), testUniverse, "gob", 0)
	if err != nil {
		t.Fatalf("list memories: %v", err)
	}
	if len(mems) != 1 || mems[0].Summary != "asked about the cellar" {
		t.Fatalf("expected one memory of the talk, got %+v", mems)
	}
}

func TestTalkReactionFollowsProfile(t *testing.T) {
	f := newFixture(t, dice.NewScripted())
	ctx := context.Background()

	// Without a saved profile Snag falls back to a neutral one and
	// just watches.
	res := f.resolve(t, Intent{Type: IntentTalk, Target: "Snag"})
	if !strings.Contains(res.Result.Narrative, "Snag listens carefully") {
		t.Fatalf("expected a neutral reaction, got %q", res.Result.Narrative)
	}

	prof := npc.NewProfile("gob")
	prof.Traits.Agreeableness = 10
	prof.Motivations = []npc.Motivation{npc.MotivationRevenge}
	if err := f.truth.SaveProfile(ctx, testUniverse, prof); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	grudge := &storage.Relationship{
		ID: "e-gob-grudge", UniverseID: testUniverse,
		FromID: "gob", ToID: "hero", Type: storage.RelKnows, Trust: -0.8,
	}
	if err := f.graph.CreateRelationship(ctx, grudge); err != nil {
		t.Fatalf("seed grudge: %v", err)
	}

	res = f.resolve(t, Intent{Type: IntentTalk, Target: "Snag"})
	if !strings.Contains(res.Result.Narrative, "Snag bristles") {
		t.Fatalf("expected a hostile reaction, got %q", res.Result.Narrative)
	}
}

func TestMoveFollowsExit(t *testing.T) {
	f := newFixture(t, dice.NewScripted())

	res := f.resolve(t, Intent{Type: IntentMove, Direction: "north"})
	if !res.Result.Success {
		t.Fatalf("move failed: %+v", res.Result)
	}

	rels, err := f.graph.Relationships(context.Background(), testUniverse, "hero")
	if err != nil {
		t.Fatalf("relationships: %v", err)
	}
	located := ""
	for _, rel := range rels {
		if rel.Type == storage.RelLocatedIn && rel.FromID == "hero" {
			located = rel.ToID
		}
	}
	if located != "street" {
		t.Fatalf("expected hero on the street, got %q", located)
	}

	var payload event.TravelPayload
	if err := f.lastEvent(t).DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.From != "tavern" || payload.To != "street" || payload.Direction != "north" {
		t.Fatalf("unexpected travel payload %+v", payload)
	}
}

func TestMoveWithoutExitFails(t *testing.T) {
	f := newFixture(t, dice.NewScripted())

	res := f.resolve(t, Intent{Type: IntentMove, Direction: "up"})
	if res.Result.Success || res.Result.Reason != "TARGET_NOT_FOUND" {
		t.Fatalf("expected target-not-found, got %+v", res.Result)
	}
	if len(f.events(t)) != 0 {
		t.Fatal("failed move must not record events")
	}
}

func TestLookIsReadOnly(t *testing.T) {
	f := newFixture(t, dice.NewScripted())

	res := f.resolve(t, Intent{Type: IntentLook})
	if !res.Result.Success {
		t.Fatalf("look failed: %+v", res.Result)
	}
	narrative := res.Result.Narrative
	for _, want := range []string{"Snag", "north", "pipe smoke"} {
		if !contains(narrative, want) {
			t.Fatalf("narrative missing %q: %s", want, narrative)
		}
	}
	if len(f.events(t)) != 0 {
		t.Fatal("look must not record events")
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestPickUpThenDrop(t *testing.T) {
	f := newFixture(t, dice.NewScripted())
	ctx := context.Background()

	res := f.resolve(t, Intent{Type: IntentPickUp, Item: "coin"})
	if !res.Result.Success || !hasChange(res.Result.StateChanges, "carries coin") {
		t.Fatalf("pickup failed: %+v", res.Result)
	}
	if ev := f.lastEvent(t); ev.Type != event.TypeItemTransfer {
		t.Fatalf("expected item transfer, got %+v", ev)
	}

	res = f.resolve(t, Intent{Type: IntentDrop, Item: "coin"})
	if !res.Result.Success {
		t.Fatalf("drop failed: %+v", res.Result)
	}
	rels, err := f.graph.Relationships(ctx, testUniverse, "coin")
	if err != nil {
		t.Fatalf("relationships: %v", err)
	}
	back := false
	for _, rel := range rels {
		if rel.Type == storage.RelCarries {
			t.Fatalf("coin still carried: %+v", rel)
		}
		if rel.Type == storage.RelLocatedIn && rel.ToID == "tavern" {
			back = true
		}
	}
	if !back {
		t.Fatal("dropped coin should lie in the tavern")
	}
}

func TestGiveTransfersAndLeavesMemory(t *testing.T) {
	f := newFixture(t, dice.NewScripted())
	ctx := context.Background()

	res := f.resolve(t, Intent{Type: IntentGive, Target: "gob", Item: "ring"})
	if !res.Result.Success {
		t.Fatalf("give failed: %+v", res.Result)
	}

	rels, err := f.graph.Relationships(ctx, testUniverse, "ring")
	if err != nil {
		t.Fatalf("relationships: %v", err)
	}
	holder := ""
	for _, rel := range rels {
		if rel.Type == storage.RelCarries {
			holder = rel.FromID
		}
	}
	if holder != "gob" {
		t.Fatalf("expected the goblin holding the ring, got %q", holder)
	}

	mems, err := f.truth.ListMemories(ctx, testUniverse, "gob", 0)
	if err != nil {
		t.Fatalf("list memories: %v", err)
	}
	if len(mems) != 1 || mems[0].Valence <= 0 {
		t.Fatalf("a gift should leave a fond memory, got %+v", mems)
	}
}

func TestLongRestRestoresBody(t *testing.T) {
	f := newFixture(t, dice.NewScripted())

	res := f.resolve(t, Intent{Type: IntentRest, Text: "long rest by the fire"})
	if !res.Result.Success || !hasChange(res.Result.StateChanges, "hp +8") {
		t.Fatalf("unexpected rest result %+v", res.Result)
	}

	hero := f.entity(t, "hero")
	if hero.Character.HP != 20 {
		t.Fatalf("expected full hp, got %d", hero.Character.HP)
	}
	if hero.Character.Resources.Meter.Stress != 0 {
		t.Fatalf("long rest should clear stress, got %d", hero.Character.Resources.Meter.Stress)
	}

	var payload event.RestPayload
	if err := f.lastEvent(t).DecodePayload(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Kind != string(resource.LongRest) {
		t.Fatalf("expected long rest recorded, got %q", payload.Kind)
	}
}

func TestSecondWindHealsSelf(t *testing.T) {
	f := newFixture(t, dice.NewScripted(3)) // 1d4=3, +2 flat
	ab := &ability.Ability{
		ID: "second-wind", Name: "Second Wind", Description: "A burst of resolve knits flesh.",
		Source: ability.SourceMartial, Mechanism: ability.MechanismFree,
		Healing:   &ability.HealingEffect{Dice: "1d4", Flat: 2},
		Targeting: ability.TargetSelf, Cost: ability.CostBonus,
	}
	if err := f.r.RegisterAbility(ab); err != nil {
		t.Fatalf("register: %v", err)
	}

	res := f.resolve(t, Intent{Type: IntentUseAbility, Ability: "second wind"})
	if !res.Result.Success || !hasChange(res.Result.StateChanges, "hero hp +5") {
		t.Fatalf("unexpected result %+v", res.Result)
	}
	hero := f.entity(t, "hero")
	if hero.Character.HP != 17 {
		t.Fatalf("expected 17 hp, got %d", hero.Character.HP)
	}
	if ev := f.lastEvent(t); ev.Type != event.TypeResourceUsed {
		t.Fatalf("expected resource event, got %+v", ev)
	}
}

func TestForkSplitsTimeline(t *testing.T) {
	f := newFixture(t, dice.NewScripted())
	ctx := context.Background()

	res := f.resolve(t, Intent{Type: IntentFork, ForkName: "What if we ran", Text: "avoid the fight"})
	if !res.Result.Success {
		t.Fatalf("fork failed: %+v", res.Result)
	}

	all, err := f.truth.ListUniverses(ctx)
	if err != nil {
		t.Fatalf("list universes: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two universes, got %d", len(all))
	}
	var child *universe.Universe
	for _, u := range all {
		if u.ID != testUniverse {
			child = u
		}
	}
	if child == nil || child.ParentID != testUniverse || child.Name != "What if we ran" {
		t.Fatalf("unexpected child %+v", child)
	}
	if f.lastEvent(t).Type != event.TypeFork {
		t.Fatal("fork should log to the parent timeline")
	}
}

func TestUnclearConsumesNothing(t *testing.T) {
	f := newFixture(t, dice.NewScripted())

	res := f.resolve(t, Intent{Type: IntentUnclear, Text: "mumble"})
	if res.Result.Success || res.Result.Reason != "unclear" {
		t.Fatalf("unexpected result %+v", res.Result)
	}
	if len(f.events(t)) != 0 {
		t.Fatal("unclear intents must not touch the log")
	}
}

func TestArchivedUniverseRefusesTurns(t *testing.T) {
	f := newFixture(t, dice.NewScripted())
	ctx := context.Background()

	u, err := f.truth.Universe(ctx, testUniverse)
	if err != nil {
		t.Fatalf("load universe: %v", err)
	}
	u.Status = universe.StatusArchived
	if err := f.truth.SaveUniverse(ctx, u); err != nil {
		t.Fatalf("archive: %v", err)
	}

	res := f.resolve(t, Intent{Type: IntentLook})
	if res.Result.Success || res.Result.Reason != "UNIVERSE_NOT_ACTIVE" {
		t.Fatalf("expected refusal, got %+v", res.Result)
	}
}
