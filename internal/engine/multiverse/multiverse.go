// Package multiverse branches universes and moves characters between
// them. Forks copy truth-store state via a branch and leave the graph
// store alone; graph nodes diverge lazily, one variant at a time, as a
// universe first mutates them.
package multiverse

import (
	"context"
	"fmt"
	"time"

	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/engine/universe"
	apperrors "github.com/tta-solo/engine/internal/platform/errors"
	"github.com/tta-solo/engine/internal/platform/id"
	"github.com/tta-solo/engine/internal/storage"
)

// Service coordinates the truth and graph stores for forks, variants,
// and world travel.
type Service struct {
	truth storage.TruthRepo
	graph storage.GraphRepo
	newID func() (string, error)
	now   func() time.Time
}

// NewService wires a multiverse service over the two repositories.
func NewService(truth storage.TruthRepo, graph storage.GraphRepo) *Service {
	return &Service{truth: truth, graph: graph, newID: id.NewID, now: time.Now}
}

// Fork branches a child universe off an active parent. The truth store
// copies the parent's branch; the graph store only records lineage. A
// FORK event lands in both timelines, each referencing the other side.
func (s *Service) Fork(ctx context.Context, parentID, name, reason, actorID string) (*universe.Universe, error) {
	parent, err := s.truth.Universe(ctx, parentID)
	if err != nil {
		return nil, err
	}

	forkPoint := ""
	if recent, err := s.truth.ListEvents(ctx, parentID, 1); err == nil && len(recent) > 0 {
		forkPoint = recent[0].ID
	}

	childID, err := s.newID()
	if err != nil {
		return nil, err
	}
	child, err := parent.Fork(childID, name, reason, forkPoint, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.truth.CreateBranch(ctx, child.Branch, parent.Branch); err != nil {
		return nil, err
	}
	if err := s.truth.SaveUniverse(ctx, &child); err != nil {
		return nil, err
	}
	if err := s.graph.LinkUniverse(ctx, child.ID, parent.ID); err != nil {
		return nil, err
	}

	payload := event.ForkPayload{
		ParentID:       parent.ID,
		ChildID:        child.ID,
		Reason:         reason,
		ForkPointEvent: forkPoint,
	}
	for _, universeID := range []string{parent.ID, child.ID} {
		ev, err := s.newEvent(universeID, event.TypeFork, actorID)
		if err != nil {
			return nil, err
		}
		ev.CausedBy = forkPoint
		if err := ev.SetPayload(payload); err != nil {
			return nil, err
		}
		if err := s.truth.AppendEvent(ctx, ev); err != nil {
			return nil, err
		}
	}
	return &child, nil
}

// EnsureVariant makes a universe-local variant of a canonical graph node
// on its first mutation in that universe. Once the variant exists it
// shadows the canonical, so repeat calls return the existing variant.
func (s *Service) EnsureVariant(ctx context.Context, universeID, nodeID string) (*storage.Node, error) {
	n, err := s.graph.ResolveEntity(ctx, universeID, nodeID)
	if err != nil {
		return nil, err
	}
	if n.UniverseID == universeID {
		return n, nil
	}

	variantID, err := s.newID()
	if err != nil {
		return nil, err
	}
	variant := &storage.Node{
		ID:          variantID,
		UniverseID:  universeID,
		CanonicalID: n.CanonicalID,
		Label:       n.Label,
		Name:        n.Name,
		Description: n.Description,
		Embedding:   n.Embedding,
	}
	if err := s.graph.UpsertNode(ctx, variant); err != nil {
		return nil, err
	}
	edgeID, err := s.newID()
	if err != nil {
		return nil, err
	}
	err = s.graph.CreateRelationship(ctx, &storage.Relationship{
		ID:         edgeID,
		UniverseID: universeID,
		FromID:     variant.ID,
		ToID:       n.ID,
		Type:       storage.RelVariantOf,
	})
	if err != nil {
		// Leave no orphan variant behind.
		_ = s.graph.DeleteNode(ctx, universeID, variant.ID)
		return nil, err
	}
	return variant, nil
}

// Travel copies a character into another universe. The copy gets new
// ids, lands at a portal location, and keeps only its possessions:
// OWNS and CARRIES edges move with it, social edges stay behind.
func (s *Service) Travel(ctx context.Context, characterID, fromUniverseID, toUniverseID, portalName string) (*entity.Entity, error) {
	if fromUniverseID == toUniverseID {
		return nil, apperrors.New(apperrors.CodeTravelSameUniverse,
			"travel requires a different destination universe")
	}
	if err := s.RequireActive(ctx, toUniverseID); err != nil {
		return nil, err
	}

	original, err := s.truth.Entity(ctx, fromUniverseID, characterID)
	if err != nil {
		return nil, err
	}
	if !original.IsCharacter() {
		return nil, apperrors.WithMetadata(apperrors.CodeEntityNotCharacter,
			"only characters travel between universes",
			map[string]string{"entity_id": characterID})
	}

	copyID, err := s.newID()
	if err != nil {
		return nil, err
	}
	traveler := original.Clone()
	traveler.ID = copyID
	traveler.UniverseID = toUniverseID
	if traveler.CanonicalID == "" {
		traveler.CanonicalID = original.ID
	}
	traveler.Version = 0
	traveler.UpdatedAt = s.now()
	if err := s.truth.SaveEntity(ctx, traveler); err != nil {
		return nil, err
	}

	portal, err := s.ensurePortal(ctx, toUniverseID, portalName)
	if err != nil {
		return nil, err
	}
	if err := s.graph.UpsertNode(ctx, &storage.Node{
		ID:          traveler.ID,
		UniverseID:  toUniverseID,
		CanonicalID: traveler.CanonicalID,
		Label:       storage.LabelCharacter,
		Name:        traveler.Name,
		Description: traveler.Description,
	}); err != nil {
		return nil, err
	}
	if err := s.relate(ctx, toUniverseID, traveler.ID, portal.ID, storage.RelLocatedIn); err != nil {
		return nil, err
	}

	// Possessions follow the traveler; KNOWS/FEARS edges are
	// universe-local and stay behind.
	edges, err := s.graph.Relationships(ctx, fromUniverseID, original.ID)
	if err != nil {
		return nil, err
	}
	for _, r := range edges {
		if r.FromID != original.ID {
			continue
		}
		if r.Type != storage.RelOwns && r.Type != storage.RelCarries {
			continue
		}
		if err := s.relate(ctx, toUniverseID, traveler.ID, r.ToID, r.Type); err != nil {
			return nil, err
		}
	}

	payload := event.WorldTravelPayload{
		FromUniverse: fromUniverseID,
		ToUniverse:   toUniverseID,
		OriginalID:   original.ID,
		CopyID:       traveler.ID,
		PortalID:     portal.ID,
	}
	for _, universeID := range []string{fromUniverseID, toUniverseID} {
		ev, err := s.newEvent(universeID, event.TypeWorldTravel, original.ID)
		if err != nil {
			return nil, err
		}
		if err := ev.SetPayload(payload); err != nil {
			return nil, err
		}
		if err := s.truth.AppendEvent(ctx, ev); err != nil {
			return nil, err
		}
	}
	return traveler, nil
}

// ensurePortal finds or creates the arrival location in the destination.
func (s *Service) ensurePortal(ctx context.Context, universeID, name string) (*storage.Node, error) {
	if name == "" {
		name = "Shimmering Portal"
	}
	portalID, err := s.newID()
	if err != nil {
		return nil, err
	}
	portal := &storage.Node{
		ID:          portalID,
		UniverseID:  universeID,
		Label:       storage.LabelLocation,
		Name:        name,
		Description: fmt.Sprintf("%s, a crossing point between worlds", name),
	}
	if err := s.graph.UpsertNode(ctx, portal); err != nil {
		return nil, err
	}
	return portal, nil
}

func (s *Service) relate(ctx context.Context, universeID, fromID, toID string, t storage.RelType) error {
	edgeID, err := s.newID()
	if err != nil {
		return err
	}
	return s.graph.CreateRelationship(ctx, &storage.Relationship{
		ID:         edgeID,
		UniverseID: universeID,
		FromID:     fromID,
		ToID:       toID,
		Type:       t,
	})
}

// Archive retires a universe. Archived universes keep their history but
// refuse writes and forks; nothing is ever deleted.
func (s *Service) Archive(ctx context.Context, universeID string) error {
	u, err := s.truth.Universe(ctx, universeID)
	if err != nil {
		return err
	}
	if u.Status == universe.StatusArchived {
		return nil
	}
	u.Status = universe.StatusArchived
	u.UpdatedAt = s.now()
	return s.truth.SaveUniverse(ctx, u)
}

// Lineage walks from the universe to its root, nearest first.
func (s *Service) Lineage(ctx context.Context, universeID string) ([]*universe.Universe, error) {
	var out []*universe.Universe
	seen := map[string]bool{}
	for id := universeID; id != "" && !seen[id]; {
		seen[id] = true
		u, err := s.truth.Universe(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
		id = u.ParentID
	}
	return out, nil
}

// RequireActive fails unless the universe accepts writes.
func (s *Service) RequireActive(ctx context.Context, universeID string) error {
	u, err := s.truth.Universe(ctx, universeID)
	if err != nil {
		return err
	}
	if !u.Active() {
		return apperrors.WithMetadata(apperrors.CodeUniverseNotActive,
			fmt.Sprintf("universe %s is %s", universeID, u.Status),
			map[string]string{"universe_id": universeID, "status": string(u.Status)})
	}
	return nil
}

func (s *Service) newEvent(universeID string, t event.Type, actorID string) (*event.Event, error) {
	eventID, err := s.newID()
	if err != nil {
		return nil, err
	}
	return &event.Event{
		ID:         eventID,
		UniverseID: universeID,
		Type:       t,
		ActorID:    actorID,
		Timestamp:  s.now(),
		GameTime:   s.now(),
	}, nil
}
