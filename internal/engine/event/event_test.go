package event

import (
	"testing"

	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

func TestValidate(t *testing.T) {
	e := &Event{UniverseID: "u1", Type: TypeCombatRound}
	if err := e.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	e = &Event{Type: TypeCombatRound}
	if err := e.Validate(); err == nil {
		t.Fatal("expected error for missing universe")
	}

	e = &Event{UniverseID: "u1", Type: "PARTY"}
	if apperrors.CodeOf(e.Validate()) != apperrors.CodeIntentUnknownType {
		t.Fatal("expected unknown-type error")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	e := &Event{ID: "e1", UniverseID: "u1", Type: TypeFork}
	in := ForkPayload{ParentID: "u1", ChildID: "u2", Reason: "what if", ForkPointEvent: "e42"}
	if err := e.SetPayload(in); err != nil {
		t.Fatalf("set payload: %v", err)
	}

	var out ForkPayload
	if err := e.DecodePayload(&out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if out != in {
		t.Fatalf("payload mismatch: %+v vs %+v", out, in)
	}
}

func TestDecodeEmptyPayloadFails(t *testing.T) {
	e := &Event{ID: "e1"}
	var out ForkPayload
	if err := e.DecodePayload(&out); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
