package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func graphWithFork(t *testing.T) *Store {
	t.Helper()
	g := openTempStore(t)
	if err := g.LinkUniverse(context.Background(), "u-child", "u-root"); err != nil {
		t.Fatalf("LinkUniverse: %v", err)
	}
	return g
}

func mustUpsert(t *testing.T, g *Store, n *storage.Node) {
	t.Helper()
	if err := g.UpsertNode(context.Background(), n); err != nil {
		t.Fatalf("UpsertNode %s: %v", n.ID, err)
	}
}

func mustRelate(t *testing.T, g *Store, r *storage.Relationship) {
	t.Helper()
	if err := g.CreateRelationship(context.Background(), r); err != nil {
		t.Fatalf("CreateRelationship %s->%s: %v", r.FromID, r.ToID, err)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestEmbeddingBlobRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	out := decodeEmbedding(encodeEmbedding(in))
	if len(out) != len(in) {
		t.Fatalf("decoded %d values, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("value %d = %v, want %v", i, out[i], in[i])
		}
	}
	if decodeEmbedding(nil) != nil {
		t.Fatal("nil blob should decode to nil")
	}
	if decodeEmbedding([]byte{1, 2, 3}) != nil {
		t.Fatal("truncated blob should decode to nil")
	}
}

func TestForkReadsFallBackToParent(t *testing.T) {
	ctx := context.Background()
	g := graphWithFork(t)
	mustUpsert(t, g, &storage.Node{ID: "tavern", UniverseID: "u-root", Label: storage.LabelLocation, Name: "The Tavern"})

	// Nothing diverged yet: the child sees the canonical node.
	got, err := g.Node(ctx, "u-child", "tavern")
	if err != nil {
		t.Fatalf("child read: %v", err)
	}
	if got.Name != "The Tavern" || got.CanonicalID != "tavern" {
		t.Fatalf("child read = %+v", got)
	}
}

func TestVariantShadowsCanonical(t *testing.T) {
	ctx := context.Background()
	g := graphWithFork(t)
	mustUpsert(t, g, &storage.Node{ID: "tavern", UniverseID: "u-root", Label: storage.LabelLocation, Name: "The Tavern"})
	mustUpsert(t, g, &storage.Node{
		ID: "tavern-burned", UniverseID: "u-child", CanonicalID: "tavern",
		Label: storage.LabelLocation, Name: "The Burned Tavern",
	})
	mustRelate(t, g, &storage.Relationship{
		ID: "r1", UniverseID: "u-child",
		FromID: "tavern-burned", ToID: "tavern", Type: storage.RelVariantOf,
	})

	// Resolving the canonical id in the child returns the variant.
	got, err := g.ResolveEntity(ctx, "u-child", "tavern")
	if err != nil {
		t.Fatalf("ResolveEntity: %v", err)
	}
	if got.ID != "tavern-burned" {
		t.Fatalf("child resolved to %q, want variant", got.ID)
	}

	// The parent keeps seeing the canonical.
	got, err = g.ResolveEntity(ctx, "u-root", "tavern")
	if err != nil {
		t.Fatalf("parent ResolveEntity: %v", err)
	}
	if got.ID != "tavern" {
		t.Fatalf("parent resolved to %q", got.ID)
	}
}

func TestCreateRelationshipValidatesType(t *testing.T) {
	g := openTempStore(t)
	err := g.CreateRelationship(context.Background(), &storage.Relationship{
		ID: "r1", UniverseID: "u-root", FromID: "a", ToID: "b", Type: "BEFRIENDS",
	})
	if apperrors.CodeOf(err) != apperrors.CodeGraphInvalidEdge {
		t.Fatalf("err = %v, want invalid edge", err)
	}
}

func TestVariantEdgesRejectCycles(t *testing.T) {
	g := graphWithFork(t)
	mustRelate(t, g, &storage.Relationship{
		ID: "r1", UniverseID: "u-child", FromID: "b", ToID: "a", Type: storage.RelVariantOf,
	})
	mustRelate(t, g, &storage.Relationship{
		ID: "r2", UniverseID: "u-child", FromID: "c", ToID: "b", Type: storage.RelVariantOf,
	})

	err := g.CreateRelationship(context.Background(), &storage.Relationship{
		ID: "r3", UniverseID: "u-child", FromID: "a", ToID: "c", Type: storage.RelVariantOf,
	})
	if apperrors.CodeOf(err) != apperrors.CodeGraphVariantCycle {
		t.Fatalf("err = %v, want variant cycle", err)
	}
}

func TestDeleteInheritedEdgeLeavesTombstone(t *testing.T) {
	ctx := context.Background()
	g := graphWithFork(t)
	mustUpsert(t, g, &storage.Node{ID: "grim", UniverseID: "u-root", Label: storage.LabelCharacter, Name: "Grim"})
	mustUpsert(t, g, &storage.Node{ID: "tavern", UniverseID: "u-root", Label: storage.LabelLocation, Name: "The Tavern"})
	mustRelate(t, g, &storage.Relationship{
		ID: "r1", UniverseID: "u-root", FromID: "grim", ToID: "tavern", Type: storage.RelLocatedIn,
	})

	// The child inherits the parent's edge.
	at, err := g.EntitiesAtLocation(ctx, "u-child", "tavern")
	if err != nil {
		t.Fatalf("EntitiesAtLocation: %v", err)
	}
	if len(at) != 1 || at[0].ID != "grim" {
		t.Fatalf("inherited occupants = %+v", at)
	}

	// Deleting it in the child hides the inherited copy but leaves the
	// parent untouched.
	if err := g.DeleteRelationship(ctx, "u-child", "grim", "tavern", storage.RelLocatedIn); err != nil {
		t.Fatalf("DeleteRelationship: %v", err)
	}
	at, _ = g.EntitiesAtLocation(ctx, "u-child", "tavern")
	if len(at) != 0 {
		t.Fatalf("child still sees %d occupants", len(at))
	}
	at, _ = g.EntitiesAtLocation(ctx, "u-root", "tavern")
	if len(at) != 1 {
		t.Fatalf("parent lost its edge")
	}

	// Re-creating the edge in the child clears the tombstone.
	mustRelate(t, g, &storage.Relationship{
		ID: "r2", UniverseID: "u-child", FromID: "grim", ToID: "tavern", Type: storage.RelLocatedIn,
	})
	at, _ = g.EntitiesAtLocation(ctx, "u-child", "tavern")
	if len(at) != 1 {
		t.Fatalf("re-created edge not visible")
	}
}

func TestChildEdgeShadowsParentCopy(t *testing.T) {
	ctx := context.Background()
	g := graphWithFork(t)
	mustRelate(t, g, &storage.Relationship{
		ID: "r1", UniverseID: "u-root", FromID: "grim", ToID: "hero", Type: storage.RelKnows, Trust: 0.2,
	})
	mustRelate(t, g, &storage.Relationship{
		ID: "r2", UniverseID: "u-child", FromID: "grim", ToID: "hero", Type: storage.RelKnows, Trust: -0.8,
	})

	rels, err := g.Relationships(ctx, "u-child", "grim")
	if err != nil {
		t.Fatalf("Relationships: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("got %d edges, want the child copy only", len(rels))
	}
	if rels[0].Trust != -0.8 {
		t.Fatalf("child edge trust = %v", rels[0].Trust)
	}

	rels, _ = g.Relationships(ctx, "u-root", "grim")
	if len(rels) != 1 || rels[0].Trust != 0.2 {
		t.Fatalf("parent edges = %+v", rels)
	}
}

func TestEntitiesAtLocationResolvesVariants(t *testing.T) {
	ctx := context.Background()
	g := graphWithFork(t)
	mustUpsert(t, g, &storage.Node{ID: "grim", UniverseID: "u-root", Label: storage.LabelCharacter, Name: "Grim"})
	mustUpsert(t, g, &storage.Node{ID: "tavern", UniverseID: "u-root", Label: storage.LabelLocation, Name: "The Tavern"})
	mustRelate(t, g, &storage.Relationship{
		ID: "r1", UniverseID: "u-root", FromID: "grim", ToID: "tavern", Type: storage.RelLocatedIn,
	})
	// Grim diverged in the child; occupancy queries should surface the
	// variant, not the canonical.
	mustUpsert(t, g, &storage.Node{
		ID: "grim-scarred", UniverseID: "u-child", CanonicalID: "grim",
		Label: storage.LabelCharacter, Name: "Grim, Scarred",
	})

	at, err := g.EntitiesAtLocation(ctx, "u-child", "tavern")
	if err != nil {
		t.Fatalf("EntitiesAtLocation: %v", err)
	}
	if len(at) != 1 || at[0].ID != "grim-scarred" {
		t.Fatalf("occupants = %+v, want variant", at)
	}
}

func TestQueryByVectorRanksByCosine(t *testing.T) {
	ctx := context.Background()
	g := graphWithFork(t)
	mustUpsert(t, g, &storage.Node{
		ID: "forge", UniverseID: "u-root", Label: storage.LabelLocation,
		Name: "Forge", Embedding: []float32{1, 0, 0},
	})
	mustUpsert(t, g, &storage.Node{
		ID: "library", UniverseID: "u-root", Label: storage.LabelLocation,
		Name: "Library", Embedding: []float32{0, 1, 0},
	})
	mustUpsert(t, g, &storage.Node{
		ID: "smithy", UniverseID: "u-child", Label: storage.LabelLocation,
		Name: "Smithy", Embedding: []float32{0.9, 0.1, 0},
	})
	// No embedding: excluded from vector queries.
	mustUpsert(t, g, &storage.Node{ID: "void", UniverseID: "u-root", Label: storage.LabelConcept, Name: "Void"})

	got, err := g.QueryByVector(ctx, "u-child", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("QueryByVector: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results", len(got))
	}
	if got[0].ID != "forge" || got[1].ID != "smithy" {
		t.Fatalf("ranking = [%s %s], want [forge smithy]", got[0].ID, got[1].ID)
	}

	// The parent cannot see the child's nodes.
	got, _ = g.QueryByVector(ctx, "u-root", []float32{1, 0, 0}, 10)
	for _, n := range got {
		if n.ID == "smithy" {
			t.Fatalf("parent query surfaced child node")
		}
	}
}

func TestDeleteNodeRemovesItsEdges(t *testing.T) {
	ctx := context.Background()
	g := openTempStore(t)
	mustUpsert(t, g, &storage.Node{ID: "grim", UniverseID: "u-root", Label: storage.LabelCharacter, Name: "Grim"})
	mustUpsert(t, g, &storage.Node{ID: "sword", UniverseID: "u-root", Label: storage.LabelItem, Name: "Sword"})
	mustRelate(t, g, &storage.Relationship{
		ID: "r1", UniverseID: "u-root", FromID: "grim", ToID: "sword", Type: storage.RelWields,
	})

	if err := g.DeleteNode(ctx, "u-root", "sword"); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	if _, err := g.Node(ctx, "u-root", "sword"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("node err = %v", err)
	}
	rels, _ := g.Relationships(ctx, "u-root", "grim")
	if len(rels) != 0 {
		t.Fatalf("dangling edges = %+v", rels)
	}
}

func TestUpsertNodeReplacesExisting(t *testing.T) {
	ctx := context.Background()
	g := openTempStore(t)
	mustUpsert(t, g, &storage.Node{ID: "grim", UniverseID: "u-root", Label: storage.LabelCharacter, Name: "Grim"})
	mustUpsert(t, g, &storage.Node{
		ID: "grim", UniverseID: "u-root", Label: storage.LabelCharacter,
		Name: "Grim the Grey", Description: "older now", Embedding: []float32{0.5, 0.5},
	})

	got, err := g.Node(ctx, "u-root", "grim")
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if got.Name != "Grim the Grey" || got.Description != "older now" {
		t.Fatalf("node = %+v", got)
	}
	if len(got.Embedding) != 2 || got.Embedding[0] != 0.5 {
		t.Fatalf("embedding = %v", got.Embedding)
	}
}
