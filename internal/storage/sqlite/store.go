// Package sqlite provides a SQLite-backed graph store. Nodes and edges
// live in universe-scoped tables; reads walk the fork lineage recorded
// in universe_links so a child universe sees its ancestors' world until
// it diverges, with the same variant and tombstone rules as the
// in-memory store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/storage"
	"github.com/tta-solo/engine/internal/storage/sqlite/migrations"
)

// Store persists the world graph in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite graph store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, apperrors.New(apperrors.CodeRepoUnready, "storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepoUnready, "open sqlite db", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, apperrors.Wrap(apperrors.CodeRepoUnready, "ping sqlite db", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, apperrors.Wrap(apperrors.CodeRepoUnready, "run migrations", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready() error {
	if s == nil || s.sqlDB == nil {
		return apperrors.New(apperrors.CodeRepoUnready, "graph storage is not configured")
	}
	return nil
}

const nodeColumns = `id, universe_id, canonical_id, label, name, description, embedding`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*storage.Node, error) {
	var n storage.Node
	var label string
	var embedding []byte
	if err := row.Scan(&n.ID, &n.UniverseID, &n.CanonicalID, &label, &n.Name, &n.Description, &embedding); err != nil {
		return nil, err
	}
	n.Label = storage.Label(label)
	n.Embedding = decodeEmbedding(embedding)
	return &n, nil
}

// Embeddings are stored as packed little-endian float32 blobs.
func encodeEmbedding(values []float32) []byte {
	if len(values) == 0 {
		return nil
	}
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func decodeEmbedding(payload []byte) []float32 {
	if len(payload) == 0 || len(payload)%4 != 0 {
		return nil
	}
	out := make([]float32, len(payload)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	return out
}

// LinkUniverse records a fork's parent for lineage reads.
func (s *Store) LinkUniverse(ctx context.Context, universeID, parentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO universe_links (universe_id, parent_id) VALUES (?, ?)
		 ON CONFLICT(universe_id) DO UPDATE SET parent_id = excluded.parent_id`,
		universeID, parentID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal, "link universe", err)
	}
	return nil
}

// chain lists the universe and its ancestors, nearest first.
func (s *Store) chain(ctx context.Context, universeID string) ([]string, error) {
	out := []string{universeID}
	seen := map[string]bool{universeID: true}
	for {
		var parent string
		err := s.sqlDB.QueryRowContext(ctx,
			`SELECT parent_id FROM universe_links WHERE universe_id = ?`,
			out[len(out)-1]).Scan(&parent)
		if errors.Is(err, sql.ErrNoRows) {
			return out, nil
		}
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "load universe lineage", err)
		}
		if parent == "" || seen[parent] {
			return out, nil
		}
		out = append(out, parent)
		seen[parent] = true
	}
}

// UpsertNode writes a node into its universe. An empty canonical id
// marks the node canonical.
func (s *Store) UpsertNode(ctx context.Context, n *storage.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	canonicalID := n.CanonicalID
	if canonicalID == "" {
		canonicalID = n.ID
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO nodes (id, universe_id, canonical_id, label, name, description, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(universe_id, id) DO UPDATE SET
		   canonical_id = excluded.canonical_id,
		   label = excluded.label,
		   name = excluded.name,
		   description = excluded.description,
		   embedding = excluded.embedding`,
		n.ID, n.UniverseID, canonicalID, string(n.Label), n.Name, n.Description,
		encodeEmbedding(n.Embedding))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal,
			fmt.Sprintf("upsert node %s", n.ID), err)
	}
	return nil
}

// resolve applies the variant rule: the universe's own node wins, then
// a local variant of the id, then the canonical found up the lineage or
// anywhere in the store.
func (s *Store) resolve(ctx context.Context, universeID, id string) (*storage.Node, bool, error) {
	own, err := s.nodeRow(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE universe_id = ? AND id = ?`,
		universeID, id)
	if err != nil {
		return nil, false, err
	}
	if own != nil {
		return own, true, nil
	}

	variant, err := s.nodeRow(ctx,
		`SELECT `+nodeColumns+` FROM nodes
		 WHERE universe_id = ? AND canonical_id = ? AND id <> ?
		 ORDER BY id LIMIT 1`,
		universeID, id, id)
	if err != nil {
		return nil, false, err
	}
	if variant != nil {
		return variant, true, nil
	}

	lineage, err := s.chain(ctx, universeID)
	if err != nil {
		return nil, false, err
	}
	for _, ancestor := range lineage[1:] {
		inherited, err := s.nodeRow(ctx,
			`SELECT `+nodeColumns+` FROM nodes WHERE universe_id = ? AND id = ?`,
			ancestor, id)
		if err != nil {
			return nil, false, err
		}
		if inherited != nil {
			return inherited, true, nil
		}
	}

	anywhere, err := s.nodeRow(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE id = ? ORDER BY universe_id LIMIT 1`,
		id)
	if err != nil {
		return nil, false, err
	}
	if anywhere != nil {
		return anywhere, true, nil
	}
	return nil, false, nil
}

func (s *Store) nodeRow(ctx context.Context, query string, args ...any) (*storage.Node, error) {
	n, err := scanNode(s.sqlDB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "load node", err)
	}
	return n, nil
}

// Node loads a node visible from the universe.
func (s *Store) Node(ctx context.Context, universeID, id string) (*storage.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	n, ok, err := s.resolve(ctx, universeID, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("node %s not found", id),
			map[string]string{"node_id": id, "universe_id": universeID})
	}
	return n, nil
}

// ResolveEntity applies the variant rule for a canonical id.
func (s *Store) ResolveEntity(ctx context.Context, universeID, canonicalID string) (*storage.Node, error) {
	return s.Node(ctx, universeID, canonicalID)
}

// DeleteNode removes a universe's own copy of a node and its local
// edges. Inherited copies up the lineage are untouched.
func (s *Store) DeleteNode(ctx context.Context, universeID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM nodes WHERE universe_id = ? AND id = ?`, universeID, id); err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal, "delete node", err)
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM edges WHERE universe_id = ? AND (from_id = ? OR to_id = ?)`,
		universeID, id, id); err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal, "delete node edges", err)
	}
	return nil
}

// CreateRelationship writes a typed edge. VARIANT_OF edges must stay
// acyclic; creating an edge clears any tombstone hiding an inherited
// copy of the same edge.
func (s *Store) CreateRelationship(ctx context.Context, r *storage.Relationship) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if !storage.RelTypes[r.Type] {
		return apperrors.WithMetadata(apperrors.CodeGraphInvalidEdge,
			fmt.Sprintf("unknown relationship type %q", r.Type),
			map[string]string{"type": string(r.Type)})
	}
	if r.Type == storage.RelVariantOf {
		reaches, err := s.variantReaches(ctx, r.ToID, r.FromID)
		if err != nil {
			return err
		}
		if reaches {
			return apperrors.WithMetadata(apperrors.CodeGraphVariantCycle,
				fmt.Sprintf("variant edge %s -> %s would close a cycle", r.FromID, r.ToID),
				map[string]string{"from": r.FromID, "to": r.ToID})
		}
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO edges (id, universe_id, from_id, to_id, rel_type, trust)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(universe_id, from_id, to_id, rel_type) DO UPDATE SET
		   id = excluded.id,
		   trust = excluded.trust`,
		r.ID, r.UniverseID, r.FromID, r.ToID, string(r.Type), r.Trust)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal, "create relationship", err)
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM edge_tombstones
		 WHERE universe_id = ? AND from_id = ? AND to_id = ? AND rel_type = ?`,
		r.UniverseID, r.FromID, r.ToID, string(r.Type)); err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal, "clear edge tombstone", err)
	}
	return nil
}

// variantReaches reports whether following VARIANT_OF edges from start
// ever arrives at goal, across every universe.
func (s *Store) variantReaches(ctx context.Context, start, goal string) (bool, error) {
	seen := map[string]bool{}
	frontier := []string{start}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		if id == goal {
			return true, nil
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		rows, err := s.sqlDB.QueryContext(ctx,
			`SELECT to_id FROM edges WHERE rel_type = ? AND from_id = ?`,
			string(storage.RelVariantOf), id)
		if err != nil {
			return false, apperrors.Wrap(apperrors.CodeRepoInternal, "walk variant edges", err)
		}
		for rows.Next() {
			var toID string
			if err := rows.Scan(&toID); err != nil {
				_ = rows.Close()
				return false, apperrors.Wrap(apperrors.CodeRepoInternal, "scan variant edge", err)
			}
			frontier = append(frontier, toID)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return false, apperrors.Wrap(apperrors.CodeRepoInternal, "walk variant edges", err)
		}
		_ = rows.Close()
	}
	return false, nil
}

// DeleteRelationship removes a universe's own copy of an edge and
// leaves a tombstone so inherited copies stay hidden.
func (s *Store) DeleteRelationship(ctx context.Context, universeID, fromID, toID string, t storage.RelType) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM edges
		 WHERE universe_id = ? AND from_id = ? AND to_id = ? AND rel_type = ?`,
		universeID, fromID, toID, string(t)); err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal, "delete relationship", err)
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR REPLACE INTO edge_tombstones (universe_id, from_id, to_id, rel_type)
		 VALUES (?, ?, ?, ?)`,
		universeID, fromID, toID, string(t)); err != nil {
		return apperrors.Wrap(apperrors.CodeRepoInternal, "tombstone relationship", err)
	}
	return nil
}

func edgeKey(fromID, toID string, t storage.RelType) string {
	return fromID + "|" + toID + "|" + string(t)
}

// visibleEdges walks the lineage nearest first; nearer edges and
// tombstones shadow farther copies of the same edge.
func (s *Store) visibleEdges(ctx context.Context, universeID string) ([]*storage.Relationship, error) {
	lineage, err := s.chain(ctx, universeID)
	if err != nil {
		return nil, err
	}
	var out []*storage.Relationship
	seen := map[string]bool{}
	for _, u := range lineage {
		tombs, err := s.tombstones(ctx, u)
		if err != nil {
			return nil, err
		}
		for key := range tombs {
			seen[key] = true
		}
		edges, err := s.universeEdges(ctx, u)
		if err != nil {
			return nil, err
		}
		for _, r := range edges {
			key := edgeKey(r.FromID, r.ToID, r.Type)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) tombstones(ctx context.Context, universeID string) (map[string]bool, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT from_id, to_id, rel_type FROM edge_tombstones WHERE universe_id = ?`,
		universeID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "load tombstones", err)
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var fromID, toID, relType string
		if err := rows.Scan(&fromID, &toID, &relType); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "scan tombstone", err)
		}
		out[edgeKey(fromID, toID, storage.RelType(relType))] = true
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "load tombstones", err)
	}
	return out, nil
}

func (s *Store) universeEdges(ctx context.Context, universeID string) ([]*storage.Relationship, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, universe_id, from_id, to_id, rel_type, trust
		 FROM edges WHERE universe_id = ? ORDER BY rowid`,
		universeID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "load edges", err)
	}
	defer rows.Close()
	var out []*storage.Relationship
	for rows.Next() {
		var r storage.Relationship
		var relType string
		if err := rows.Scan(&r.ID, &r.UniverseID, &r.FromID, &r.ToID, &relType, &r.Trust); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "scan edge", err)
		}
		r.Type = storage.RelType(relType)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "load edges", err)
	}
	return out, nil
}

func (s *Store) canonicalOf(ctx context.Context, universeID, id string) (string, error) {
	n, ok, err := s.resolve(ctx, universeID, id)
	if err != nil {
		return "", err
	}
	if !ok {
		return id, nil
	}
	return n.CanonicalID, nil
}

// EntitiesAtLocation lists the nodes LOCATED_IN the location, after
// variant resolution, ordered by id.
func (s *Store) EntitiesAtLocation(ctx context.Context, universeID, locationID string) ([]*storage.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	loc, err := s.canonicalOf(ctx, universeID, locationID)
	if err != nil {
		return nil, err
	}
	edges, err := s.visibleEdges(ctx, universeID)
	if err != nil {
		return nil, err
	}
	var out []*storage.Node
	added := map[string]bool{}
	for _, r := range edges {
		if r.Type != storage.RelLocatedIn {
			continue
		}
		target, err := s.canonicalOf(ctx, universeID, r.ToID)
		if err != nil {
			return nil, err
		}
		if target != loc {
			continue
		}
		n, ok, err := s.resolve(ctx, universeID, r.FromID)
		if err != nil {
			return nil, err
		}
		if !ok || added[n.ID] {
			continue
		}
		added[n.ID] = true
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Relationships lists the visible edges touching a node, matching
// either endpoint after variant resolution.
func (s *Store) Relationships(ctx context.Context, universeID, nodeID string) ([]*storage.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	canonical, err := s.canonicalOf(ctx, universeID, nodeID)
	if err != nil {
		return nil, err
	}
	edges, err := s.visibleEdges(ctx, universeID)
	if err != nil {
		return nil, err
	}
	var out []*storage.Relationship
	for _, r := range edges {
		from, err := s.canonicalOf(ctx, universeID, r.FromID)
		if err != nil {
			return nil, err
		}
		if from == canonical {
			out = append(out, r)
			continue
		}
		to, err := s.canonicalOf(ctx, universeID, r.ToID)
		if err != nil {
			return nil, err
		}
		if to == canonical {
			out = append(out, r)
		}
	}
	return out, nil
}

// QueryByVector ranks visible nodes by cosine similarity to the query
// embedding, best first. Similarity is computed in-process over the
// stored embeddings; nodes without embeddings are skipped.
func (s *Store) QueryByVector(ctx context.Context, universeID string, embedding []float32, limit int) ([]*storage.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	lineage, err := s.chain(ctx, universeID)
	if err != nil {
		return nil, err
	}

	type scored struct {
		node  *storage.Node
		score float64
	}
	var candidates []scored
	added := map[string]bool{}
	for _, u := range lineage {
		ids, err := s.universeNodeIDs(ctx, u)
		if err != nil {
			return nil, err
		}
		for _, nodeID := range ids {
			n, ok, err := s.resolve(ctx, universeID, nodeID)
			if err != nil {
				return nil, err
			}
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
		out = append(out, c.node)
	}
	return out, nil
}

func (s *Store) universeNodeIDs(ctx context.Context, universeID string) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id FROM nodes WHERE universe_id = ? ORDER BY id`, universeID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "list node ids", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "scan node id", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRepoInternal, "list node ids", err)
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
