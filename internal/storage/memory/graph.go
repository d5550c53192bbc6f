package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/storage"
)

// GraphStore is the in-memory GraphRepo. Nodes and edges are stored per
// universe; reads walk the fork lineage so a child universe sees its
// ancestors' world until it diverges. Deleting an inherited edge leaves
// a tombstone in the child so the ancestor copy stays hidden.
type GraphStore struct {
	mu      sync.RWMutex
	parents map[string]string
	nodes   map[string]map[string]*storage.Node
	edges   map[string][]*storage.Relationship
	tombs   map[string]map[string]bool
}

// NewGraphStore returns an empty graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		parents: map[string]string{},
		nodes:   map[string]map[string]*storage.Node{},
		edges:   map[string][]*storage.Relationship{},
		tombs:   map[string]map[string]bool{},
	}
}

func (g *GraphStore) LinkUniverse(_ context.Context, universeID, parentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.parents[universeID] = parentID
	return nil
}

// chain lists the universe and its ancestors, nearest first.
func (g *GraphStore) chain(universeID string) []string {
	out := []string{universeID}
	seen := map[string]bool{universeID: true}
	for {
		parent, ok := g.parents[out[len(out)-1]]
		if !ok || parent == "" || seen[parent] {
			return out
		}
		out = append(out, parent)
		seen[parent] = true
	}
}

func copyNode(n *storage.Node) *storage.Node {
	out := *n
	out.Embedding = append([]float32(nil), n.Embedding...)
	return &out
}

func (g *GraphStore) UpsertNode(_ context.Context, n *storage.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	copied := copyNode(n)
	if copied.CanonicalID == "" {
		copied.CanonicalID = copied.ID
	}
	if g.nodes[n.UniverseID] == nil {
		g.nodes[n.UniverseID] = map[string]*storage.Node{}
	}
	g.nodes[n.UniverseID][n.ID] = copied
	return nil
}

// resolveLocked applies the variant rule: the universe's own node wins,
// then a local variant of the id, then the canonical found up the
// lineage or anywhere in the store.
func (g *GraphStore) resolveLocked(universeID, id string) (*storage.Node, bool) {
	if n, ok := g.nodes[universeID][id]; ok {
		return n, true
	}
	for _, n := range g.nodes[universeID] {
		if n.CanonicalID == id && n.ID != id {
			return n, true
		}
	}
	for _, ancestor := range g.chain(universeID)[1:] {
		if n, ok := g.nodes[ancestor][id]; ok {
			return n, true
		}
	}
	for _, universeNodes := range g.nodes {
		if n, ok := universeNodes[id]; ok {
			return n, true
		}
	}
	return nil, false
}

func (g *GraphStore) Node(_ context.Context, universeID, id string) (*storage.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.resolveLocked(universeID, id)
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("node %s not found", id),
			map[string]string{"node_id": id, "universe_id": universeID})
	}
	return copyNode(n), nil
}

func (g *GraphStore) ResolveEntity(ctx context.Context, universeID, canonicalID string) (*storage.Node, error) {
	return g.Node(ctx, universeID, canonicalID)
}

func (g *GraphStore) DeleteNode(_ context.Context, universeID, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.nodes[universeID], id)
	kept := g.edges[universeID][:0]
	for _, r := range g.edges[universeID] {
		if r.FromID == id || r.ToID == id {
			continue
		}
		kept = append(kept, r)
	}
	g.edges[universeID] = kept
	return nil
}

func edgeKey(fromID, toID string, t storage.RelType) string {
	return fromID + "|" + toID + "|" + string(t)
}

func (g *GraphStore) CreateRelationship(_ context.Context, r *storage.Relationship) error {
	if !storage.RelTypes[r.Type] {
		return apperrors.WithMetadata(apperrors.CodeGraphInvalidEdge,
			fmt.Sprintf("unknown relationship type %q", r.Type),
			map[string]string{"type": string(r.Type)})
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	// VARIANT_OF edges must stay acyclic.
	if r.Type == storage.RelVariantOf && g.variantReachesLocked(r.ToID, r.FromID) {
		return apperrors.WithMetadata(apperrors.CodeGraphVariantCycle,
			fmt.Sprintf("variant edge %s -> %s would close a cycle", r.FromID, r.ToID),
			map[string]string{"from": r.FromID, "to": r.ToID})
	}

	copied := *r
	g.edges[r.UniverseID] = append(g.edges[r.UniverseID], &copied)
	delete(g.tombs[r.UniverseID], edgeKey(r.FromID, r.ToID, r.Type))
	return nil
}

// variantReachesLocked reports whether following VARIANT_OF edges from
// start ever arrives at goal.
func (g *GraphStore) variantReachesLocked(start, goal string) bool {
	seen := map[string]bool{}
	frontier := []string{start}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		if id == goal {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		for _, edges := range g.edges {
			for _, r := range edges {
				if r.Type == storage.RelVariantOf && r.FromID == id {
					frontier = append(frontier, r.ToID)
				}
			}
		}
	}
	return false
}

func (g *GraphStore) DeleteRelationship(_ context.Context, universeID, fromID, toID string, t storage.RelType) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.edges[universeID][:0]
	for _, r := range g.edges[universeID] {
		if r.FromID == fromID && r.ToID == toID && r.Type == t {
			continue
		}
		kept = append(kept, r)
	}
	g.edges[universeID] = kept

	// Hide any inherited copy of the edge.
	if g.tombs[universeID] == nil {
		g.tombs[universeID] = map[string]bool{}
	}
	g.tombs[universeID][edgeKey(fromID, toID, t)] = true
	return nil
}

// visibleEdgesLocked walks the lineage nearest first; nearer edges and
// tombstones shadow farther copies of the same edge.
func (g *GraphStore) visibleEdgesLocked(universeID string) []*storage.Relationship {
	var out []*storage.Relationship
	seen := map[string]bool{}
	for _, u := range g.chain(universeID) {
		for key := range g.tombs[u] {
			seen[key] = true
		}
		for _, r := range g.edges[u] {
			key := edgeKey(r.FromID, r.ToID, r.Type)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, r)
		}
	}
	return out
}

func (g *GraphStore) canonicalLocked(universeID, id string) string {
	if n, ok := g.resolveLocked(universeID, id); ok {
		return n.CanonicalID
	}
	return id
}

func (g *GraphStore) EntitiesAtLocation(_ context.Context, universeID, locationID string) ([]*storage.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	loc := g.canonicalLocked(universeID, locationID)
	var out []*storage.Node
	added := map[string]bool{}
	for _, r := range g.visibleEdgesLocked(universeID) {
		if r.Type != storage.RelLocatedIn {
			continue
		}
		if g.canonicalLocked(universeID, r.ToID) != loc {
			continue
		}
		n, ok := g.resolveLocked(universeID, r.FromID)
		if !ok || added[n.ID] {
			continue
		}
		added[n.ID] = true
		out = append(out, copyNode(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *GraphStore) Relationships(_ context.Context, universeID, nodeID string) ([]*storage.Relationship, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	canonical := g.canonicalLocked(universeID, nodeID)
	var out []*storage.Relationship
	for _, r := range g.visibleEdgesLocked(universeID) {
		if g.canonicalLocked(universeID, r.FromID) != canonical &&
			g.canonicalLocked(universeID, r.ToID) != canonical {
			continue
		}
		copied := *r
		out = append(out, &copied)
	}
	return out, nil
}

// QueryByVector ranks visible nodes by cosine similarity to the query
// embedding, best first. Nodes without embeddings are skipped.
func (g *GraphStore) QueryByVector(_ context.Context, universeID string, embedding []float32, limit int) ([]*storage.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	type scored struct {
		node  *storage.Node
		score float64
	}
	var candidates []scored
	added := map[string]bool{}
	for _, u := range g.chain(universeID) {
		for id := range g.nodes[u] {
			n, ok := g.resolveLocked(universeID, id)
			if !ok || added[n.ID] || len(n.Embedding) == 0 {
				continue
			}
			added[n.ID] = true
			candidates = append(candidates, scored{node: n, score: cosine(embedding, n.Embedding)})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].node.ID < candidates[j].node.ID
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]*storage.Node, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, copyNode(c.node))
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
