package condition

import (
	"testing"

	"github.com/tta-solo/engine/internal/engine/ability"
	"github.com/tta-solo/engine/internal/engine/dice"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

func TestParseType(t *testing.T) {
	if _, err := ParseType("prone"); err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err := ParseType("sleepy")
	if apperrors.CodeOf(err) != apperrors.CodeConditionUnknown {
		t.Fatalf("expected unknown-condition code, got %v", err)
	}
}

func withConditions(types ...Type) *CombatState {
	s := &CombatState{}
	for _, c := range types {
		s.Add(&Instance{Type: c})
	}
	return s
}

func TestHasAndRemove(t *testing.T) {
	s := withConditions(Prone, Poisoned)
	if !s.Has(Prone) {
		t.Fatal("expected prone")
	}
	if !s.Remove(Prone) {
		t.Fatal("expected removal to report true")
	}
	if s.Has(Prone) {
		t.Fatal("expected prone gone")
	}
	if s.Remove(Prone) {
		t.Fatal("expected second removal to report false")
	}
	if !s.Has(Poisoned) {
		t.Fatal("expected poisoned untouched")
	}
}

func TestAttackInteraction(t *testing.T) {
	cases := []struct {
		name     string
		attacker *CombatState
		target   *CombatState
		melee    bool
		mode     dice.Mode
		autoCrit bool
	}{
		{"clean", nil, nil, true, dice.Normal, false},
		{"blinded attacker", withConditions(Blinded), nil, true, dice.WithDisadvantage, false},
		{"invisible attacker", withConditions(Invisible), nil, true, dice.WithAdvantage, false},
		{"target blinded", nil, withConditions(Blinded), false, dice.WithAdvantage, false},
		{"target invisible", nil, withConditions(Invisible), false, dice.WithDisadvantage, false},
		{"prone target melee", nil, withConditions(Prone), true, dice.WithAdvantage, false},
		{"prone target ranged", nil, withConditions(Prone), false, dice.WithDisadvantage, false},
		{"paralyzed target melee", nil, withConditions(Paralyzed), true, dice.WithAdvantage, true},
		{"paralyzed target ranged", nil, withConditions(Paralyzed), false, dice.WithAdvantage, false},
		{"unconscious target melee", nil, withConditions(Unconscious), true, dice.WithAdvantage, true},
		{"cancel out", withConditions(Poisoned), withConditions(Stunned), true, dice.Normal, false},
	}
	for _, tc := range cases {
		mode, autoCrit := AttackInteraction(tc.attacker, tc.target, tc.melee)
		if mode != tc.mode || autoCrit != tc.autoCrit {
			t.Fatalf("%s: expected mode %v autocrit %v, got %v %v",
				tc.name, tc.mode, tc.autoCrit, mode, autoCrit)
		}
	}
}

func TestCanAct(t *testing.T) {
	if !withConditions(Prone, Poisoned).CanAct() {
		t.Fatal("expected prone+poisoned to act")
	}
	for _, c := range []Type{Incapacitated, Paralyzed, Petrified, Stunned, Unconscious} {
		if withConditions(c).CanAct() {
			t.Fatalf("expected %s to prevent acting", c)
		}
	}
}

func TestStatModifier(t *testing.T) {
	s := &CombatState{Effects: []*Effect{
		{Stat: "ac", Modifier: 2, Type: ability.ModifierBonus},
		{Stat: "ac", Modifier: 1, Type: ability.ModifierPenalty},
		{Stat: "attack", Modifier: 3, Type: ability.ModifierBonus},
	}}
	if got := s.StatModifier("ac"); got != 1 {
		t.Fatalf("expected ac modifier 1, got %d", got)
	}
	if got := s.StatModifier("speed"); got != 0 {
		t.Fatalf("expected zero for untouched stat, got %d", got)
	}
}

func TestStatModifierSetOverrides(t *testing.T) {
	s := &CombatState{Effects: []*Effect{
		{Stat: "speed", Modifier: 10, Type: ability.ModifierBonus},
		{Stat: "speed", Modifier: 0, Type: ability.ModifierSet},
	}}
	if got := s.StatModifier("speed"); got != 0 {
		t.Fatalf("expected set to override, got %d", got)
	}
}

func TestBonusDice(t *testing.T) {
	s := &CombatState{Effects: []*Effect{
		{Stat: "attack", Dice: "1d4", SourceAbilityID: "bless"},
		{Stat: "save", Dice: "1d4", SourceAbilityID: "bless"},
	}}
	got := s.BonusDice("attack")
	if len(got) != 1 || got[0] != "1d4" {
		t.Fatalf("expected one 1d4 rider, got %v", got)
	}
}

func TestRemoveEffectsFrom(t *testing.T) {
	s := &CombatState{Effects: []*Effect{
		{ID: "e1", SourceEntityID: "caster", SourceAbilityID: "bless"},
		{ID: "e2", SourceEntityID: "caster", SourceAbilityID: "shield"},
		{ID: "e3", SourceEntityID: "other", SourceAbilityID: "bless"},
	}}
	removed := s.RemoveEffectsFrom("caster", "bless")
	if len(removed) != 1 || removed[0].ID != "e1" {
		t.Fatalf("expected e1 removed, got %v", removed)
	}
	if len(s.Effects) != 2 {
		t.Fatalf("expected 2 effects left, got %d", len(s.Effects))
	}
}
