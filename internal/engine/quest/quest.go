// Package quest models quests, ordered objectives, and quest chains.
package quest

import (
	"fmt"
	"time"

	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// Status is the quest lifecycle state.
type Status string

const (
	StatusAvailable Status = "available"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

// transitions is the status machine: available -> active -> terminal.
var transitions = map[Status][]Status{
	StatusAvailable: {StatusActive, StatusAbandoned},
	StatusActive:    {StatusCompleted, StatusFailed, StatusAbandoned},
}

// Objective is one ordered step of a quest.
type Objective struct {
	Description string `json:"description"`
	TargetID    string `json:"target_id,omitempty"` // entity or location
	Required    int    `json:"required"`            // quantity needed
	Progress    int    `json:"progress"`
}

// Done reports whether the objective has met its quantity.
func (o Objective) Done() bool {
	return o.Progress >= o.Required
}

// Reward is granted on completion.
type Reward struct {
	XP         int            `json:"xp,omitempty"`
	Gold       int            `json:"gold,omitempty"`
	ItemIDs    []string       `json:"item_ids,omitempty"`
	Reputation map[string]int `json:"reputation,omitempty"` // faction id -> standing delta
}

// Quest is a chain-linkable objective sequence.
type Quest struct {
	ID         string `json:"id"`
	UniverseID string `json:"universe_id"`
	GiverID    string `json:"giver_id,omitempty"`

	Title      string      `json:"title"`
	Objectives []Objective `json:"objectives"`
	Current    int         `json:"current"` // index of the active objective

	Status Status `json:"status"`
	Reward Reward `json:"reward"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	ParentID  string     `json:"parent_id,omitempty"` // chain links
	NextID    string     `json:"next_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the structural invariants of a quest.
func (q *Quest) Validate() error {
	if len(q.Objectives) == 0 {
		return apperrors.New(apperrors.CodeQuestNoObjectives, "quest requires at least one objective")
	}
	if q.Current < 0 || q.Current >= len(q.Objectives) {
		return apperrors.New(apperrors.CodeQuestObjectiveOutside,
			fmt.Sprintf("current objective %d outside [0, %d)", q.Current, len(q.Objectives)))
	}
	return nil
}

// Transition moves the quest to a new status, enforcing the machine.
func (q *Quest) Transition(to Status) error {
	for _, allowed := range transitions[q.Status] {
		if allowed == to {
			q.Status = to
			return nil
		}
	}
	return apperrors.WithMetadata(apperrors.CodeQuestInvalidStatus,
		fmt.Sprintf("cannot transition quest from %s to %s", q.Status, to),
		map[string]string{"quest_id": q.ID})
}

// Advance adds progress to the current objective. Finishing an objective
// moves to the next; finishing the last completes the quest. It reports
// whether the quest completed.
func (q *Quest) Advance(amount int) (completed bool, err error) {
	if q.Status != StatusActive {
		return false, apperrors.New(apperrors.CodeQuestInvalidStatus,
			fmt.Sprintf("quest %s is not active", q.ID))
	}
	if err := q.Validate(); err != nil {
		return false, err
	}

	obj := &q.Objectives[q.Current]
	obj.Progress += amount
	if obj.Progress > obj.Required {
		obj.Progress = obj.Required
	}
	if !obj.Done() {
		return false, nil
	}
	if q.Current == len(q.Objectives)-1 {
		q.Status = StatusCompleted
		return true, nil
	}
	q.Current++
	return false, nil
}

// Expired reports whether the quest has an expiry in the past.
func (q *Quest) Expired(now time.Time) bool {
	return q.ExpiresAt != nil && now.After(*q.ExpiresAt)
}
