package effect

import (
	"context"
	"testing"

	"github.com/tta-solo/engine/internal/engine/ability"
	"github.com/tta-solo/engine/internal/engine/condition"
	"github.com/tta-solo/engine/internal/engine/dice"
	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/physics"
	"github.com/tta-solo/engine/internal/engine/resource"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

type fakeStore struct {
	states map[string]*condition.CombatState
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: map[string]*condition.CombatState{}}
}

func (f *fakeStore) key(universeID, entityID string) string { return universeID + "/" + entityID }

func (f *fakeStore) CombatState(_ context.Context, universeID, entityID string) (*condition.CombatState, error) {
	if s, ok := f.states[f.key(universeID, entityID)]; ok {
		return s, nil
	}
	return &condition.CombatState{UniverseID: universeID, EntityID: entityID}, nil
}

func (f *fakeStore) SaveCombatState(_ context.Context, state *condition.CombatState) error {
	f.states[f.key(state.UniverseID, state.EntityID)] = state
	return nil
}

func (f *fakeStore) ListCombatStates(_ context.Context, universeID string) ([]*condition.CombatState, error) {
	var out []*condition.CombatState
	for _, s := range f.states {
		if s.UniverseID == universeID {
			out = append(out, s)
		}
	}
	return out, nil
}

func character(entityID string, level, hp int, scores entity.AbilityScores) *entity.Entity {
	return &entity.Entity{
		ID:         entityID,
		UniverseID: "u1",
		Type:       entity.TypeCharacter,
		Name:       entityID,
		Character: &entity.CharacterStats{
			Level: level, HP: hp, HPMax: hp, AC: 12,
			Abilities: scores,
			Resources: resource.NewPool(),
		},
	}
}

func wizard() *entity.Entity {
	return character("wizard", 5, 22, entity.AbilityScores{
		Strength: 8, Dexterity: 14, Constitution: 10,
		Intelligence: 16, Wisdom: 12, Charisma: 10,
	})
}

func goblin(entityID string) *entity.Entity {
	return character(entityID, 1, 20, entity.AbilityScores{
		Strength: 10, Dexterity: 12, Constitution: 10,
		Intelligence: 8, Wisdom: 10, Charisma: 8,
	})
}

func fireball() *ability.Ability {
	return &ability.Ability{
		ID: "fireball", Name: "Fireball", Source: ability.SourceMagic,
		Mechanism: ability.MechanismFree,
		Damage: &ability.DamageEffect{
			Dice: "2d6", DamageType: "fire",
			SaveAbility: "dex", SaveForHalf: true,
		},
		Targeting: ability.TargetAreaSphere, AreaFt: 20,
		Cost: ability.CostAction, CastingStat: "int",
	}
}

func TestApplyDamageSaveForHalf(t *testing.T) {
	pipeline := NewPipeline(newFakeStore())
	caster := wizard()
	saved := goblin("saved")
	failed := goblin("failed")
	failed.Character.Resources.Meter.Momentum = 3

	// Damage dice 4+5=9; first save 14+1=15 vs DC 14, second 5+1=6.
	result, err := pipeline.Apply(context.Background(), caster,
		[]*entity.Entity{saved, failed}, fireball(), nil, 1, dice.NewScripted(4, 5, 14, 5))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.SaveDC != 14 || result.DamageRoll != 9 {
		t.Fatalf("expected DC 14 roll 9, got %+v", result)
	}
	if !result.Targets[0].Saved || result.Targets[0].DamageTaken != 4 {
		t.Fatalf("expected half damage 4, got %+v", result.Targets[0])
	}
	if result.Targets[1].Saved || result.Targets[1].DamageTaken != 9 {
		t.Fatalf("expected full damage 9, got %+v", result.Targets[1])
	}
	if saved.Character.HP != 16 || failed.Character.HP != 11 {
		t.Fatalf("unexpected hp %d and %d", saved.Character.HP, failed.Character.HP)
	}
	if failed.Character.Resources.Meter.Momentum != 0 {
		t.Fatal("expected momentum reset on damage")
	}
}

func TestApplyTracksDamageThisRound(t *testing.T) {
	store := newFakeStore()
	pipeline := NewPipeline(store)
	target := goblin("g1")

	_, err := pipeline.Apply(context.Background(), wizard(),
		[]*entity.Entity{target}, fireball(), nil, 1, dice.NewScripted(4, 5, 5))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	ts, _ := store.CombatState(context.Background(), "u1", "g1")
	if ts.DamageThisRound != 9 {
		t.Fatalf("expected 9 damage recorded, got %d", ts.DamageThisRound)
	}
}

func holdPerson() *ability.Ability {
	return &ability.Ability{
		ID: "hold_person", Name: "Hold Person", Source: ability.SourceMagic,
		Mechanism: ability.MechanismFree,
		Condition: &ability.ConditionEffect{
			Condition: "paralyzed", Duration: ability.DurationUntilSave,
			SaveAbility: "wis",
		},
		Targeting: ability.TargetSingle,
		Cost:      ability.CostAction, CastingStat: "int", Concentration: true,
	}
}

func TestApplyConditionSaveNegates(t *testing.T) {
	store := newFakeStore()
	pipeline := NewPipeline(store)
	target := goblin("g1")

	// Save 15+0 beats DC 14: nothing applied.
	result, err := pipeline.Apply(context.Background(), wizard(),
		[]*entity.Entity{target}, holdPerson(), nil, 1, dice.NewScripted(15))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Targets[0].ConditionApplied {
		t.Fatalf("expected negated condition, got %+v", result.Targets[0])
	}
	ts, _ := store.CombatState(context.Background(), "u1", "g1")
	if ts.Has(condition.Paralyzed) {
		t.Fatal("expected no paralyzed condition")
	}
}

func TestApplyConditionOnFailedSave(t *testing.T) {
	store := newFakeStore()
	pipeline := NewPipeline(store)
	target := goblin("g1")

	result, err := pipeline.Apply(context.Background(), wizard(),
		[]*entity.Entity{target}, holdPerson(), nil, 1, dice.NewScripted(5))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !result.Targets[0].ConditionApplied || result.Targets[0].Condition != condition.Paralyzed {
		t.Fatalf("expected paralyzed applied, got %+v", result.Targets[0])
	}
	ts, _ := store.CombatState(context.Background(), "u1", "g1")
	if !ts.Has(condition.Paralyzed) {
		t.Fatal("expected paralyzed on stored state")
	}

	// The saved instance keeps the DC for its end-of-turn saves.
	if ts.Conditions[0].SaveDC != 14 || ts.Conditions[0].SaveAbility != "wis" {
		t.Fatalf("unexpected instance %+v", ts.Conditions[0])
	}
}

func bless() *ability.Ability {
	return &ability.Ability{
		ID: "bless", Name: "Bless", Source: ability.SourceMagic,
		Mechanism: ability.MechanismFree,
		StatModifier: &ability.StatModifierEffect{
			Stat: "attack", Dice: "1d4",
			Duration: ability.DurationMinutes, Rounds: 1,
		},
		Targeting: ability.TargetSingle,
		Cost:      ability.CostAction, CastingStat: "int", Concentration: true,
	}
}

func TestApplyModifierStartsConcentration(t *testing.T) {
	store := newFakeStore()
	pipeline := NewPipeline(store)
	caster := wizard()
	target := goblin("fighter")

	_, err := pipeline.Apply(context.Background(), caster,
		[]*entity.Entity{target}, bless(), nil, 1, dice.NewScripted())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	ts, _ := store.CombatState(context.Background(), "u1", "fighter")
	if len(ts.Effects) != 1 {
		t.Fatalf("expected one effect, got %d", len(ts.Effects))
	}
	e := ts.Effects[0]
	if e.Dice != "1d4" || !e.Concentration || e.Remaining != 10 {
		t.Fatalf("unexpected effect %+v", e)
	}
	if got := ts.BonusDice("attack"); len(got) != 1 || got[0] != "1d4" {
		t.Fatalf("expected attack rider, got %v", got)
	}

	cs, _ := store.CombatState(context.Background(), "u1", "wizard")
	if cs.ConcentratingOn != "bless" {
		t.Fatalf("expected concentration on bless, got %q", cs.ConcentratingOn)
	}
}

func TestConcentrationSwapDropsOldEffects(t *testing.T) {
	store := newFakeStore()
	pipeline := NewPipeline(store)
	caster := wizard()
	target := goblin("fighter")
	ctx := context.Background()

	if _, err := pipeline.Apply(ctx, caster, []*entity.Entity{target}, bless(), nil, 1, dice.NewScripted()); err != nil {
		t.Fatalf("bless: %v", err)
	}

	// Casting hold person swaps concentration; bless ends everywhere.
	result, err := pipeline.Apply(ctx, caster, []*entity.Entity{target}, holdPerson(), nil, 2, dice.NewScripted(5))
	if err != nil {
		t.Fatalf("hold person: %v", err)
	}
	if result.SwappedFrom != "bless" {
		t.Fatalf("expected swap from bless, got %q", result.SwappedFrom)
	}
	ts, _ := store.CombatState(ctx, "u1", "fighter")
	if len(ts.Effects) != 0 {
		t.Fatalf("expected bless dropped, got %+v", ts.Effects)
	}
	cs, _ := store.CombatState(ctx, "u1", "wizard")
	if cs.ConcentratingOn != "hold_person" {
		t.Fatalf("expected concentration swapped, got %q", cs.ConcentratingOn)
	}
}

func TestCheckConcentrationBreaksOnFailedSave(t *testing.T) {
	store := newFakeStore()
	pipeline := NewPipeline(store)
	caster := wizard()
	target := goblin("fighter")
	ctx := context.Background()

	if _, err := pipeline.Apply(ctx, caster, []*entity.Entity{target}, bless(), nil, 1, dice.NewScripted()); err != nil {
		t.Fatalf("bless: %v", err)
	}

	// 18 damage: DC is max(10, 9) = 10; save 4+0 fails.
	cs, _ := store.CombatState(ctx, "u1", "wizard")
	result, err := pipeline.CheckConcentration(ctx, caster, cs, 18, dice.NewScripted(4))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.Broken || result.DC != 10 || result.EffectsDropped != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if cs.ConcentratingOn != "" {
		t.Fatal("expected concentration cleared")
	}
	ts, _ := store.CombatState(ctx, "u1", "fighter")
	if len(ts.Effects) != 0 {
		t.Fatalf("expected effects removed, got %+v", ts.Effects)
	}
}

func TestCheckConcentrationDCScalesWithDamage(t *testing.T) {
	store := newFakeStore()
	pipeline := NewPipeline(store)
	caster := wizard()
	target := goblin("fighter")
	ctx := context.Background()

	if _, err := pipeline.Apply(ctx, caster, []*entity.Entity{target}, bless(), nil, 1, dice.NewScripted()); err != nil {
		t.Fatalf("bless: %v", err)
	}
	cs, _ := store.CombatState(ctx, "u1", "wizard")
	result, err := pipeline.CheckConcentration(ctx, caster, cs, 44, dice.NewScripted(5))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.DC != 22 || !result.Broken {
		t.Fatalf("expected DC 22 failure, got %+v", result)
	}
}

func TestApplyForbiddenSource(t *testing.T) {
	pipeline := NewPipeline(newFakeStore())
	overlay := &physics.Overlay{UniverseID: "u1", Forbidden: []ability.Source{ability.SourceMagic}}

	_, err := pipeline.Apply(context.Background(), wizard(),
		[]*entity.Entity{goblin("g1")}, fireball(), overlay, 1, dice.NewScripted())
	if apperrors.CodeOf(err) != apperrors.CodeAbilityForbiddenSource {
		t.Fatalf("expected forbidden-source code, got %v", err)
	}
}

func TestApplyEnhancedSourceAddsDie(t *testing.T) {
	pipeline := NewPipeline(newFakeStore())
	overlay := &physics.Overlay{UniverseID: "u1", Enhanced: []ability.Source{ability.SourceMagic}}
	target := goblin("g1")

	// 2d6 becomes 3d6: 1+2+3=6; save 2+1 fails.
	result, err := pipeline.Apply(context.Background(), wizard(),
		[]*entity.Entity{target}, fireball(), overlay, 1, dice.NewScripted(1, 2, 3, 2))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.DamageRoll != 6 || result.Targets[0].DamageTaken != 6 {
		t.Fatalf("expected enhanced 3d6 for 6, got %+v", result)
	}
}

func TestApplyRestrictedSourceShiftsDC(t *testing.T) {
	pipeline := NewPipeline(newFakeStore())
	overlay := &physics.Overlay{UniverseID: "u1", Restricted: []ability.Source{ability.SourceMagic}}

	result, err := pipeline.Apply(context.Background(), wizard(),
		[]*entity.Entity{goblin("g1")}, fireball(), overlay, 1, dice.NewScripted(4, 5, 11))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// DC 14 shifted to 12; save 11+1 makes it.
	if result.SaveDC != 12 || !result.Targets[0].Saved {
		t.Fatalf("expected shifted DC 12 save, got %+v", result)
	}
}

func TestApplyRejectsNonCharacterTarget(t *testing.T) {
	pipeline := NewPipeline(newFakeStore())
	door := &entity.Entity{ID: "door", UniverseID: "u1", Type: entity.TypeObject, Name: "door"}

	_, err := pipeline.Apply(context.Background(), wizard(),
		[]*entity.Entity{door}, fireball(), nil, 1, dice.NewScripted())
	if apperrors.CodeOf(err) != apperrors.CodeTargetInvalid {
		t.Fatalf("expected invalid-target code, got %v", err)
	}
}

func TestApplyHealing(t *testing.T) {
	pipeline := NewPipeline(newFakeStore())
	target := goblin("g1")
	target.Character.HP = 5

	cure := &ability.Ability{
		ID: "cure_wounds", Name: "Cure Wounds", Source: ability.SourceMagic,
		Mechanism: ability.MechanismFree,
		Healing:   &ability.HealingEffect{Dice: "1d8", Flat: 3},
		Targeting: ability.TargetSingle, Cost: ability.CostAction,
	}
	result, err := pipeline.Apply(context.Background(), wizard(),
		[]*entity.Entity{target}, cure, nil, 1, dice.NewScripted(6))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Targets[0].Healed != 9 || target.Character.HP != 14 {
		t.Fatalf("expected 9 healed to 14 hp, got %+v", result.Targets[0])
	}
}
