package storage

import (
	"context"

	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/engine/npc"
	"github.com/tta-solo/engine/internal/engine/quest"
	"github.com/tta-solo/engine/internal/engine/universe"
)

// TruthRepo is the versioned system-of-record: universes, entities,
// quests, NPC profiles and memories, and the append-only event log.
// Each universe maps to a branch; branch operations copy parent state
// the way a version-control checkout would.
//
// SaveEntity is idempotent given (id, version): saving the stored
// version again is a no-op, saving version+1 applies, and anything else
// fails with a version-conflict error.
type TruthRepo interface {
	SaveUniverse(ctx context.Context, u *universe.Universe) error
	Universe(ctx context.Context, id string) (*universe.Universe, error)
	ListUniverses(ctx context.Context) ([]*universe.Universe, error)

	SaveEntity(ctx context.Context, e *entity.Entity) error
	Entity(ctx context.Context, universeID, id string) (*entity.Entity, error)
	EntityByName(ctx context.Context, universeID, name string) (*entity.Entity, error)
	ListEntities(ctx context.Context, universeID string) ([]*entity.Entity, error)

	// AppendEvent assigns the next per-universe sequence number.
	AppendEvent(ctx context.Context, ev *event.Event) error
	ListEvents(ctx context.Context, universeID string, limit int) ([]*event.Event, error)
	ListEventsSince(ctx context.Context, universeID string, seq int) ([]*event.Event, error)

	SaveQuest(ctx context.Context, q *quest.Quest) error
	Quest(ctx context.Context, universeID, id string) (*quest.Quest, error)
	ListQuests(ctx context.Context, universeID string) ([]*quest.Quest, error)

	SaveProfile(ctx context.Context, universeID string, p *npc.Profile) error
	Profile(ctx context.Context, universeID, entityID string) (*npc.Profile, error)

	SaveMemory(ctx context.Context, m *npc.Memory) error
	ListMemories(ctx context.Context, universeID, npcID string, limit int) ([]*npc.Memory, error)

	// CreateBranch copies the source branch's state under a new name.
	CreateBranch(ctx context.Context, name, from string) error
	CheckoutBranch(ctx context.Context, name string) error
	Commit(ctx context.Context, message string) error

	// SnapshotAt reconstructs a universe's entities as of the event.
	SnapshotAt(ctx context.Context, universeID, eventID string) (*Snapshot, error)

	Begin(ctx context.Context) (Tx, error)
}

// Tx stages writes that land atomically at Commit. A failed or
// abandoned transaction discards everything staged.
type Tx interface {
	SaveEntity(ctx context.Context, e *entity.Entity) error
	AppendEvent(ctx context.Context, ev *event.Event) error
	SaveQuest(ctx context.Context, q *quest.Quest) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Snapshot is a universe's entity state valid up to an event.
type Snapshot struct {
	UniverseID string
	EventID    string
	Seq        int
	Entities   []*entity.Entity
}

// Label classifies graph nodes.
type Label string

const (
	LabelEntity    Label = "Entity"
	LabelCharacter Label = "Character"
	LabelLocation  Label = "Location"
	LabelItem      Label = "Item"
	LabelConcept   Label = "Concept"
	LabelMemory    Label = "Memory"
)

// RelType is the closed set of graph relationship types.
type RelType string

const (
	RelKnows         RelType = "KNOWS"
	RelFears         RelType = "FEARS"
	RelDesires       RelType = "DESIRES"
	RelLocatedIn     RelType = "LOCATED_IN"
	RelOwns          RelType = "OWNS"
	RelWields        RelType = "WIELDS"
	RelWears         RelType = "WEARS"
	RelCarries       RelType = "CARRIES"
	RelContains      RelType = "CONTAINS"
	RelConnectedTo   RelType = "CONNECTED_TO"
	RelTrappedIn     RelType = "TRAPPED_IN"
	RelVariantOf     RelType = "VARIANT_OF"
	RelHasAtmosphere RelType = "HAS_ATMOSPHERE"
	RelCaused        RelType = "CAUSED"
)

// RelTypes is every relationship type, for validation.
var RelTypes = map[RelType]bool{
	RelKnows: true, RelFears: true, RelDesires: true, RelLocatedIn: true,
	RelOwns: true, RelWields: true, RelWears: true, RelCarries: true,
	RelContains: true, RelConnectedTo: true, RelTrappedIn: true,
	RelVariantOf: true, RelHasAtmosphere: true, RelCaused: true,
}

// Node is a graph-store node. CanonicalID links a variant back to the
// node it diverged from; it equals ID for canonical nodes.
type Node struct {
	ID          string
	UniverseID  string
	CanonicalID string
	Label       Label
	Name        string
	Description string
	Embedding   []float32 // 1536-d description embedding, optional
}

// Relationship is a typed, directed edge between nodes.
type Relationship struct {
	ID         string
	UniverseID string
	FromID     string
	ToID       string
	Type       RelType
	Trust      float64 // -1..1, social edges only
}

// GraphRepo is the semantic world-model store. Reads are parameterized
// by universe and honour the lazy-divergence rule: a node belonging to
// the queried universe shadows the canonical node it is a VARIANT_OF;
// absent a variant, the canonical is returned as-is.
type GraphRepo interface {
	// LinkUniverse registers a fork's lineage so reads in the child can
	// fall back to ancestor universes until nodes and edges diverge.
	LinkUniverse(ctx context.Context, universeID, parentID string) error

	UpsertNode(ctx context.Context, n *Node) error
	Node(ctx context.Context, universeID, id string) (*Node, error)
	// ResolveEntity applies the variant rule for a canonical id.
	ResolveEntity(ctx context.Context, universeID, canonicalID string) (*Node, error)
	DeleteNode(ctx context.Context, universeID, id string) error

	CreateRelationship(ctx context.Context, r *Relationship) error
	DeleteRelationship(ctx context.Context, universeID, fromID, toID string, t RelType) error

	EntitiesAtLocation(ctx context.Context, universeID, locationID string) ([]*Node, error)
	Relationships(ctx context.Context, universeID, nodeID string) ([]*Relationship, error)

	// QueryByVector returns the nodes nearest the embedding by cosine
	// similarity, best first.
	QueryByVector(ctx context.Context, universeID string, embedding []float32, limit int) ([]*Node, error)
}
