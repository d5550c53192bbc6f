// Package universe defines universe records and fork derivation. Universes
// form a DAG by parent reference; each maps to a branch in the truth store.
package universe

import (
	"strings"
	"time"

	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// Status is the universe lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusMerged   Status = "merged"
)

// RootBranch is the truth-store branch of a root universe.
const RootBranch = "main"

// Universe is one timeline. The root has no parent; every fork's depth is
// its parent's depth plus one.
type Universe struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Branch string `json:"branch"`

	ParentID  string `json:"parent_id,omitempty"`
	ForkPoint string `json:"fork_point,omitempty"` // event id the fork branched at
	Depth     int    `json:"depth"`

	Status  Status `json:"status"`
	OwnerID string `json:"owner_id,omitempty"`
	Reason  string `json:"reason,omitempty"` // why this fork exists

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRoot creates a root universe on the main branch.
func NewRoot(id, name, ownerID string, now time.Time) Universe {
	return Universe{
		ID:        id,
		Name:      name,
		Branch:    RootBranch,
		Status:    StatusActive,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Fork derives a child universe record. The child's branch is its own id,
// which keeps branch names unique in the truth store.
func (u Universe) Fork(childID, name, reason, forkPoint string, now time.Time) (Universe, error) {
	if u.Status != StatusActive {
		return Universe{}, apperrors.WithMetadata(apperrors.CodeUniverseNotActive,
			"cannot fork an inactive universe", map[string]string{"universe_id": u.ID})
	}
	if strings.TrimSpace(name) == "" {
		return Universe{}, apperrors.New(apperrors.CodeUniverseEmptyName, "fork name is required")
	}
	return Universe{
		ID:        childID,
		Name:      name,
		Branch:    childID,
		ParentID:  u.ID,
		ForkPoint: forkPoint,
		Depth:     u.Depth + 1,
		Status:    StatusActive,
		OwnerID:   u.OwnerID,
		Reason:    reason,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Active reports whether the universe accepts writes and forks.
func (u Universe) Active() bool {
	return u.Status == StatusActive
}

// Root reports whether the universe has no parent.
func (u Universe) Root() bool {
	return u.ParentID == ""
}

// Validate checks the depth and parent invariants.
func (u *Universe) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return apperrors.New(apperrors.CodeUniverseEmptyName, "universe name is required")
	}
	if u.Root() && u.Depth != 0 {
		return apperrors.New(apperrors.CodeForkInvalidForkPoint, "root universe must have depth 0")
	}
	if !u.Root() && u.Depth < 1 {
		return apperrors.New(apperrors.CodeForkInvalidForkPoint, "forked universe must have depth >= 1")
	}
	return nil
}
