package multiverse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/engine/universe"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/storage"
	"github.com/tta-solo/engine/internal/storage/memory"
)

var testTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// seqIDs replaces random ids with a deterministic counter.
func seqIDs(prefix string) func() (string, error) {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("%s-%d", prefix, n), nil
	}
}

func newTestService(t *testing.T) (*Service, *memory.TruthStore, *memory.GraphStore) {
	t.Helper()
	truth := memory.NewTruthStore()
	graph := memory.NewGraphStore()
	s := NewService(truth, graph)
	s.newID = seqIDs("id")
	s.now = func() time.Time { return testTime }
	return s, truth, graph
}

func seedRoot(t *testing.T, truth *memory.TruthStore) *universe.Universe {
	t.Helper()
	u := universe.NewRoot("u-root", "Prime", "owner-1", testTime)
	if err := truth.SaveUniverse(context.Background(), &u); err != nil {
		t.Fatalf("SaveUniverse: %v", err)
	}
	return &u
}

func seedHero(t *testing.T, truth *memory.TruthStore, universeID string) *entity.Entity {
	t.Helper()
	hero := &entity.Entity{
		ID:         "hero",
		UniverseID: universeID,
		Type:       entity.TypeCharacter,
		Name:       "Astra",
		Character: &entity.CharacterStats{
			Level: 3, HP: 20, HPMax: 20, AC: 14,
			Abilities: entity.AbilityScores{Strength: 12, Dexterity: 14, Constitution: 12, Intelligence: 10, Wisdom: 10, Charisma: 10},
		},
	}
	if err := truth.SaveEntity(context.Background(), hero); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}
	return hero
}

func TestForkBranchesStateAndLogsBothSides(t *testing.T) {
	ctx := context.Background()
	s, truth, graph := newTestService(t)
	seedRoot(t, truth)
	seedHero(t, truth, "u-root")
	if err := truth.AppendEvent(ctx, &event.Event{ID: "e-start", UniverseID: "u-root", Type: event.TypeTravel}); err != nil {
		t.Fatalf("seed event: %v", err)
	}
	if err := graph.UpsertNode(ctx, &storage.Node{
		ID: "tavern", UniverseID: "u-root", Label: storage.LabelLocation, Name: "Tavern",
	}); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}

	child, err := s.Fork(ctx, "u-root", "What If", "the coin landed tails", "hero")
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if child.ParentID != "u-root" || child.Depth != 1 || child.Branch != child.ID {
		t.Fatalf("child = %+v", child)
	}
	if child.ForkPoint != "e-start" {
		t.Fatalf("fork point = %q", child.ForkPoint)
	}

	// The child's branch carries the parent's entities.
	if _, err := truth.Entity(ctx, child.ID, "hero"); err != nil {
		t.Fatalf("child entity read: %v", err)
	}
	// Graph lineage lets the child see undiverged nodes.
	if _, err := graph.Node(ctx, child.ID, "tavern"); err != nil {
		t.Fatalf("child graph read: %v", err)
	}

	// A FORK event lands on both sides, cross-referencing each other.
	for _, universeID := range []string{"u-root", child.ID} {
		events, err := truth.ListEvents(ctx, universeID, 1)
		if err != nil {
			t.Fatalf("ListEvents(%s): %v", universeID, err)
		}
		if len(events) != 1 || events[0].Type != event.TypeFork {
			t.Fatalf("%s last event = %+v", universeID, events)
		}
		var payload event.ForkPayload
		if err := events[0].DecodePayload(&payload); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if payload.ParentID != "u-root" || payload.ChildID != child.ID {
			t.Fatalf("payload = %+v", payload)
		}
	}
}

func TestForkRefusesArchivedParent(t *testing.T) {
	ctx := context.Background()
	s, truth, _ := newTestService(t)
	seedRoot(t, truth)
	if err := s.Archive(ctx, "u-root"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	_, err := s.Fork(ctx, "u-root", "Too Late", "", "hero")
	if apperrors.CodeOf(err) != apperrors.CodeUniverseNotActive {
		t.Fatalf("err = %v, want not active", err)
	}
}

func TestEnsureVariantCreatesOnceThenShadows(t *testing.T) {
	ctx := context.Background()
	s, truth, graph := newTestService(t)
	root := seedRoot(t, truth)
	if err := graph.UpsertNode(ctx, &storage.Node{
		ID: "tavern", UniverseID: "u-root", Label: storage.LabelLocation, Name: "Tavern",
	}); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}
	child, err := s.Fork(ctx, root.ID, "What If", "", "hero")
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}

	variant, err := s.EnsureVariant(ctx, child.ID, "tavern")
	if err != nil {
		t.Fatalf("EnsureVariant: %v", err)
	}
	if variant.ID == "tavern" || variant.UniverseID != child.ID || variant.CanonicalID != "tavern" {
		t.Fatalf("variant = %+v", variant)
	}

	// The variant now shadows the canonical for this universe.
	resolved, err := graph.ResolveEntity(ctx, child.ID, "tavern")
	if err != nil {
		t.Fatalf("ResolveEntity: %v", err)
	}
	if resolved.ID != variant.ID {
		t.Fatalf("resolved %q, want variant", resolved.ID)
	}

	// Mutating again reuses the existing variant.
	again, err := s.EnsureVariant(ctx, child.ID, "tavern")
	if err != nil {
		t.Fatalf("second EnsureVariant: %v", err)
	}
	if again.ID != variant.ID {
		t.Fatalf("second call made a new variant %q", again.ID)
	}

	// The canonical universe is untouched.
	canonical, err := graph.ResolveEntity(ctx, "u-root", "tavern")
	if err != nil {
		t.Fatalf("canonical read: %v", err)
	}
	if canonical.ID != "tavern" {
		t.Fatalf("canonical resolved to %q", canonical.ID)
	}
}

func TestTravelCopiesCharacterAndPossessions(t *testing.T) {
	ctx := context.Background()
	s, truth, graph := newTestService(t)
	seedRoot(t, truth)
	hero := seedHero(t, truth, "u-root")
	other := universe.NewRoot("u-other", "Mirror", "owner-1", testTime)
	if err := truth.SaveUniverse(ctx, &other); err != nil {
		t.Fatalf("save other: %v", err)
	}

	for _, n := range []*storage.Node{
		{ID: "hero", UniverseID: "u-root", Label: storage.LabelCharacter, Name: "Astra"},
		{ID: "sword", UniverseID: "u-root", Label: storage.LabelItem, Name: "Sword"},
		{ID: "grim", UniverseID: "u-root", Label: storage.LabelCharacter, Name: "Grim"},
	} {
		if err := graph.UpsertNode(ctx, n); err != nil {
			t.Fatalf("UpsertNode: %v", err)
		}
	}
	for i, r := range []*storage.Relationship{
		{UniverseID: "u-root", FromID: "hero", ToID: "sword", Type: storage.RelCarries},
		{UniverseID: "u-root", FromID: "hero", ToID: "grim", Type: storage.RelKnows, Trust: 0.5},
	} {
		r.ID = fmt.Sprintf("seed-r%d", i)
		if err := graph.CreateRelationship(ctx, r); err != nil {
			t.Fatalf("CreateRelationship: %v", err)
		}
	}

	traveler, err := s.Travel(ctx, hero.ID, "u-root", "u-other", "Mirror Gate")
	if err != nil {
		t.Fatalf("Travel: %v", err)
	}
	if traveler.ID == hero.ID || traveler.UniverseID != "u-other" || traveler.CanonicalID != hero.ID {
		t.Fatalf("traveler = %+v", traveler)
	}

	// The copy is stored in the destination; the original stays put.
	if _, err := truth.Entity(ctx, "u-other", traveler.ID); err != nil {
		t.Fatalf("copy read: %v", err)
	}
	if _, err := truth.Entity(ctx, "u-root", hero.ID); err != nil {
		t.Fatalf("original read: %v", err)
	}

	// Possessions came along; social edges did not.
	rels, err := graph.Relationships(ctx, "u-other", traveler.ID)
	if err != nil {
		t.Fatalf("Relationships: %v", err)
	}
	var hasCarries, hasKnows, hasLocated bool
	for _, r := range rels {
		switch r.Type {
		case storage.RelCarries:
			hasCarries = true
		case storage.RelKnows:
			hasKnows = true
		case storage.RelLocatedIn:
			hasLocated = true
		}
	}
	if !hasCarries || !hasLocated || hasKnows {
		t.Fatalf("edges carries=%v located=%v knows=%v", hasCarries, hasLocated, hasKnows)
	}

	// WORLD_TRAVEL recorded in both universes.
	for _, universeID := range []string{"u-root", "u-other"} {
		events, _ := truth.ListEvents(ctx, universeID, 1)
		if len(events) != 1 || events[0].Type != event.TypeWorldTravel {
			t.Fatalf("%s events = %+v", universeID, events)
		}
	}
}

func TestTravelRejectsSameUniverse(t *testing.T) {
	s, truth, _ := newTestService(t)
	seedRoot(t, truth)
	_, err := s.Travel(context.Background(), "hero", "u-root", "u-root", "")
	if apperrors.CodeOf(err) != apperrors.CodeTravelSameUniverse {
		t.Fatalf("err = %v", err)
	}
}

func TestTravelRefusesArchivedDestination(t *testing.T) {
	ctx := context.Background()
	s, truth, _ := newTestService(t)
	seedRoot(t, truth)
	seedHero(t, truth, "u-root")
	other := universe.NewRoot("u-other", "Mirror", "owner-1", testTime)
	other.Status = universe.StatusArchived
	if err := truth.SaveUniverse(ctx, &other); err != nil {
		t.Fatalf("save other: %v", err)
	}
	_, err := s.Travel(ctx, "hero", "u-root", "u-other", "")
	if apperrors.CodeOf(err) != apperrors.CodeUniverseNotActive {
		t.Fatalf("err = %v", err)
	}
}

func TestLineageWalksToRoot(t *testing.T) {
	ctx := context.Background()
	s, truth, _ := newTestService(t)
	root := seedRoot(t, truth)
	child, err := s.Fork(ctx, root.ID, "Gen 1", "", "hero")
	if err != nil {
		t.Fatalf("first fork: %v", err)
	}
	grandchild, err := s.Fork(ctx, child.ID, "Gen 2", "", "hero")
	if err != nil {
		t.Fatalf("second fork: %v", err)
	}

	line, err := s.Lineage(ctx, grandchild.ID)
	if err != nil {
		t.Fatalf("Lineage: %v", err)
	}
	if len(line) != 3 || line[0].ID != grandchild.ID || line[2].ID != root.ID {
		t.Fatalf("lineage = %+v", line)
	}
	if line[1].Depth != 1 || line[0].Depth != 2 {
		t.Fatalf("depths = %d, %d", line[1].Depth, line[0].Depth)
	}
}
