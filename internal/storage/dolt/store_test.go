package dolt

import (
	"context"
	"testing"
	"time"

	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/engine/npc"
	"github.com/tta-solo/engine/internal/engine/universe"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// The embedded Dolt engine initializes a full repository per store;
// keep these out of short runs.
const testTimeout = 30 * time.Second

var testTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping embedded dolt store test in short mode")
	}
	store, err := Open(testContext(t), Config{
		Path:           t.TempDir(),
		Database:       "testdb",
		CommitterName:  "test",
		CommitterEmail: "test@example.com",
	})
	if err != nil {
		t.Fatalf("open dolt store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func rootUniverse(t *testing.T, s *Store, id string) *universe.Universe {
	t.Helper()
	u := universe.NewRoot(id, "Prime", "owner-1", testTime)
	if err := s.SaveUniverse(context.Background(), &u); err != nil {
		t.Fatalf("SaveUniverse: %v", err)
	}
	return &u
}

func forkUniverse(t *testing.T, s *Store, parent *universe.Universe, childID string) *universe.Universe {
	t.Helper()
	ctx := context.Background()
	child, err := parent.Fork(childID, "What If", "test fork", "", testTime)
	if err != nil {
		t.Fatalf("Fork: %v", err)
	}
	if err := s.CreateBranch(ctx, child.Branch, parent.Branch); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := s.SaveUniverse(ctx, &child); err != nil {
		t.Fatalf("SaveUniverse: %v", err)
	}
	return &child
}

func testEntity(id, universeID string, version int) *entity.Entity {
	return &entity.Entity{
		ID:         id,
		UniverseID: universeID,
		Type:       entity.TypeObject,
		Name:       id,
		Version:    version,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestUniverseRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := testContext(t)
	u := rootUniverse(t, s, "u-root")

	got, err := s.Universe(ctx, u.ID)
	if err != nil {
		t.Fatalf("Universe: %v", err)
	}
	if got.Name != "Prime" || got.Branch != universe.RootBranch || got.Status != universe.StatusActive {
		t.Fatalf("universe = %+v", got)
	}

	if _, err := s.Universe(ctx, "no-such"); apperrors.CodeOf(err) != apperrors.CodeUniverseNotFound {
		t.Fatalf("missing universe err = %v", err)
	}

	all, err := s.ListUniverses(ctx)
	if err != nil {
		t.Fatalf("ListUniverses: %v", err)
	}
	if len(all) != 1 || all[0].ID != "u-root" {
		t.Fatalf("universes = %+v", all)
	}
}

func TestSaveEntityVersionProtocol(t *testing.T) {
	s := setupTestStore(t)
	ctx := testContext(t)
	rootUniverse(t, s, "u-root")

	// A fresh entity with version 0 is stored at version 1.
	if err := s.SaveEntity(ctx, testEntity("hero", "u-root", 0)); err != nil {
		t.Fatalf("first save: %v", err)
	}
	got, err := s.Entity(ctx, "u-root", "hero")
	if err != nil {
		t.Fatalf("Entity: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("stored version = %d, want 1", got.Version)
	}

	// Resaving the stored version is a no-op, not a conflict.
	resave := testEntity("hero", "u-root", 1)
	resave.Name = "renamed"
	if err := s.SaveEntity(ctx, resave); err != nil {
		t.Fatalf("idempotent resave: %v", err)
	}
	got, _ = s.Entity(ctx, "u-root", "hero")
	if got.Name != "hero" {
		t.Fatalf("no-op resave changed stored entity: name = %q", got.Name)
	}

	// version+1 applies.
	next := testEntity("hero", "u-root", 2)
	next.Name = "renamed"
	if err := s.SaveEntity(ctx, next); err != nil {
		t.Fatalf("incremented save: %v", err)
	}
	got, _ = s.Entity(ctx, "u-root", "hero")
	if got.Version != 2 || got.Name != "renamed" {
		t.Fatalf("after increment got version %d name %q", got.Version, got.Name)
	}

	// Anything else is a version conflict.
	err = s.SaveEntity(ctx, testEntity("hero", "u-root", 5))
	if apperrors.CodeOf(err) != apperrors.CodeEntityVersionConflict {
		t.Fatalf("stale save error = %v, want version conflict", err)
	}
}

func TestAppendEventAssignsSequence(t *testing.T) {
	s := setupTestStore(t)
	ctx := testContext(t)
	rootUniverse(t, s, "u-root")

	for i := 0; i < 3; i++ {
		ev := &event.Event{ID: string(rune('a' + i)), UniverseID: "u-root", Type: event.TypeTravel}
		if err := s.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
		if ev.Seq != i+1 {
			t.Fatalf("event %d assigned seq %d", i, ev.Seq)
		}
	}

	events, err := s.ListEvents(ctx, "u-root", 2)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 || events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("limited list = %+v", events)
	}

	since, err := s.ListEventsSince(ctx, "u-root", 1)
	if err != nil {
		t.Fatalf("ListEventsSince: %v", err)
	}
	if len(since) != 2 || since[0].Seq != 2 {
		t.Fatalf("since list = %+v", since)
	}
}

func TestBranchCopyIsolatesFork(t *testing.T) {
	s := setupTestStore(t)
	ctx := testContext(t)
	root := rootUniverse(t, s, "u-root")
	if err := s.SaveEntity(ctx, testEntity("hero", "u-root", 0)); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}

	child := forkUniverse(t, s, root, "u-child")

	// The fork sees the parent's entity through its branch copy.
	got, err := s.Entity(ctx, child.ID, "hero")
	if err != nil {
		t.Fatalf("fork read: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("fork copy version = %d", got.Version)
	}

	// Writes in the fork do not leak back to the parent.
	got.UniverseID = child.ID
	got.Name = "dark hero"
	got.Version = 2
	if err := s.SaveEntity(ctx, got); err != nil {
		t.Fatalf("fork write: %v", err)
	}
	parent, err := s.Entity(ctx, "u-root", "hero")
	if err != nil {
		t.Fatalf("parent read: %v", err)
	}
	if parent.Name != "hero" || parent.Version != 1 {
		t.Fatalf("fork write leaked into parent: %+v", parent)
	}
}

func TestCreateBranchIdempotentAndMissingSource(t *testing.T) {
	s := setupTestStore(t)
	ctx := testContext(t)
	root := rootUniverse(t, s, "u-root")
	forkUniverse(t, s, root, "u-child")

	// Re-creating the same branch is a no-op so forks can be retried.
	if err := s.CreateBranch(ctx, "u-child", universe.RootBranch); err != nil {
		t.Fatalf("repeat CreateBranch: %v", err)
	}

	err := s.CreateBranch(ctx, "orphan", "no-such-branch")
	if apperrors.CodeOf(err) != apperrors.CodeBranchMissing {
		t.Fatalf("err = %v, want branch missing", err)
	}
}

func TestSnapshotAtReconstructsEntityState(t *testing.T) {
	s := setupTestStore(t)
	ctx := testContext(t)
	rootUniverse(t, s, "u-root")

	if err := s.SaveEntity(ctx, testEntity("hero", "u-root", 0)); err != nil {
		t.Fatalf("save v1: %v", err)
	}
	if err := s.AppendEvent(ctx, &event.Event{ID: "e1", UniverseID: "u-root", Type: event.TypeTravel}); err != nil {
		t.Fatalf("append e1: %v", err)
	}

	wounded := testEntity("hero", "u-root", 2)
	wounded.Name = "wounded hero"
	if err := s.SaveEntity(ctx, wounded); err != nil {
		t.Fatalf("save v2: %v", err)
	}
	if err := s.AppendEvent(ctx, &event.Event{ID: "e2", UniverseID: "u-root", Type: event.TypeCombatRound}); err != nil {
		t.Fatalf("append e2: %v", err)
	}

	snap, err := s.SnapshotAt(ctx, "u-root", "e1")
	if err != nil {
		t.Fatalf("SnapshotAt: %v", err)
	}
	if len(snap.Entities) != 1 {
		t.Fatalf("snapshot has %d entities", len(snap.Entities))
	}
	if snap.Entities[0].Name != "hero" || snap.Entities[0].Version != 1 {
		t.Fatalf("snapshot at e1 = %+v, want pre-wound state", snap.Entities[0])
	}

	if _, err := s.SnapshotAt(ctx, "u-root", "no-such-event"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("missing event err = %v", err)
	}
}

func TestTxCommitAppliesAllOrNothing(t *testing.T) {
	s := setupTestStore(t)
	ctx := testContext(t)
	rootUniverse(t, s, "u-root")
	if err := s.SaveEntity(ctx, testEntity("hero", "u-root", 0)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.SaveEntity(ctx, testEntity("sidekick", "u-root", 0)); err != nil {
		t.Fatalf("stage sidekick: %v", err)
	}
	// Stale version: the whole transaction must fail without applying
	// the sidekick.
	if err := tx.SaveEntity(ctx, testEntity("hero", "u-root", 9)); err != nil {
		t.Fatalf("stage stale hero: %v", err)
	}
	if err := tx.AppendEvent(ctx, &event.Event{ID: "e1", UniverseID: "u-root", Type: event.TypeCombatRound}); err != nil {
		t.Fatalf("stage event: %v", err)
	}

	if err := tx.Commit(ctx); apperrors.CodeOf(err) != apperrors.CodeEntityVersionConflict {
		t.Fatalf("commit err = %v, want version conflict", err)
	}
	if _, err := s.Entity(ctx, "u-root", "sidekick"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("sidekick applied despite failed commit")
	}
	if events, _ := s.ListEvents(ctx, "u-root", 0); len(events) != 0 {
		t.Fatalf("events applied despite failed commit: %d", len(events))
	}
}

func TestTxCommitSuccess(t *testing.T) {
	s := setupTestStore(t)
	ctx := testContext(t)
	rootUniverse(t, s, "u-root")

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.SaveEntity(ctx, testEntity("hero", "u-root", 0)); err != nil {
		t.Fatalf("stage entity: %v", err)
	}
	if err := tx.AppendEvent(ctx, &event.Event{ID: "e1", UniverseID: "u-root", Type: event.TypeSkillCheck}); err != nil {
		t.Fatalf("stage event: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := s.Entity(ctx, "u-root", "hero"); err != nil {
		t.Fatalf("entity not applied: %v", err)
	}
	events, _ := s.ListEvents(ctx, "u-root", 0)
	if len(events) != 1 || events[0].Seq != 1 {
		t.Fatalf("events after commit = %+v", events)
	}

	// A finished transaction refuses further use.
	if err := tx.Commit(ctx); apperrors.CodeOf(err) != apperrors.CodeTxClosed {
		t.Fatalf("double commit err = %v", err)
	}
}

func TestListMemoriesNewestFirstWithLimit(t *testing.T) {
	s := setupTestStore(t)
	ctx := testContext(t)
	rootUniverse(t, s, "u-root")

	for i, summary := range []string{"met the hero", "was robbed", "fled the fire"} {
		m := &npc.Memory{
			ID:         summary,
			NPCID:      "grim",
			UniverseID: "u-root",
			Summary:    summary,
			Strength:   0.5,
			CreatedAt:  testTime.Add(time.Duration(i) * time.Hour),
		}
		if err := s.SaveMemory(ctx, m); err != nil {
			t.Fatalf("SaveMemory: %v", err)
		}
	}

	got, err := s.ListMemories(ctx, "u-root", "grim", 2)
	if err != nil {
		t.Fatalf("ListMemories: %v", err)
	}
	if len(got) != 2 || got[0].Summary != "fled the fire" || got[1].Summary != "was robbed" {
		t.Fatalf("memories = %+v", got)
	}
}

func TestEntityByNameIsCaseInsensitive(t *testing.T) {
	s := setupTestStore(t)
	ctx := testContext(t)
	rootUniverse(t, s, "u-root")
	e := testEntity("hero-1", "u-root", 0)
	e.Name = "Grim the Bold"
	if err := s.SaveEntity(ctx, e); err != nil {
		t.Fatalf("SaveEntity: %v", err)
	}

	got, err := s.EntityByName(ctx, "u-root", "grim the bold")
	if err != nil {
		t.Fatalf("EntityByName: %v", err)
	}
	if got.ID != "hero-1" {
		t.Fatalf("got %q", got.ID)
	}
}
