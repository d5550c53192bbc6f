package router

import (
	"context"
	"fmt"
	"sort"

	"github.com/tta-solo/engine/internal/engine/event"
	"github.com/tta-solo/engine/internal/engine/quest"
	"github.com/tta-solo/engine/internal/storage"
)

// questWriter is the slice of the truth store quest progress writes
// through; both the repository and a staged transaction satisfy it.
type questWriter interface {
	SaveQuest(ctx context.Context, q *quest.Quest) error
	AppendEvent(ctx context.Context, ev *event.Event) error
}

// advanceQuests pushes one point of progress on every active quest whose
// current objective points at targetID: a defeated enemy, a reached
// location, a spoken-to giver. Each advance writes the quest back and
// records a QUEST_UPDATED event caused by the triggering event.
// Completion grants the reward to the actor and activates the next
// quest in the chain. Returned strings are state-change notes.
func (r *Router) advanceQuests(ctx context.Context, w questWriter, tc *TurnContext, causedBy, targetID string) ([]string, error) {
	quests, err := r.truth.ListQuests(ctx, tc.Universe.ID)
	if err != nil {
		return nil, err
	}

	var notes []string
	for _, q := range quests {
		if q.Status != quest.StatusActive {
			continue
		}
		q.UniverseID = tc.Universe.ID
		if q.Expired(r.now()) {
			if err := q.Transition(quest.StatusFailed); err != nil {
				return nil, err
			}
			if err := w.SaveQuest(ctx, q); err != nil {
				return nil, err
			}
			notes = append(notes, fmt.Sprintf("quest failed: %s", q.Title))
			continue
		}
		if q.Objectives[q.Current].TargetID != targetID {
			continue
		}

		idx := q.Current
		completed, err := q.Advance(1)
		if err != nil {
			return nil, err
		}

		ev, err := r.newEvent(tc, event.TypeQuestUpdated)
		if err != nil {
			return nil, err
		}
		ev.CausedBy = causedBy
		if err := ev.SetPayload(event.QuestPayload{
			QuestID:   q.ID,
			Objective: idx,
			Progress:  q.Objectives[idx].Progress,
			Status:    string(q.Status),
		}); err != nil {
			return nil, err
		}
		if err := w.AppendEvent(ctx, ev); err != nil {
			return nil, err
		}
		if err := w.SaveQuest(ctx, q); err != nil {
			return nil, err
		}

		obj := q.Objectives[idx]
		notes = append(notes, fmt.Sprintf("quest %s: %s %d/%d", q.Title, obj.Description, obj.Progress, obj.Required))
		if !completed {
			continue
		}

		notes = append(notes, fmt.Sprintf("quest complete: %s", q.Title))
		rewardNotes, err := r.grantReward(ctx, tc, q.Reward)
		if err != nil {
			return nil, err
		}
		notes = append(notes, rewardNotes...)

		if q.NextID != "" {
			next, err := r.activateNextQuest(ctx, w, tc.Universe.ID, q.NextID)
			if err != nil {
				return nil, err
			}
			if next != nil {
				notes = append(notes, fmt.Sprintf("quest accepted: %s", next.Title))
			}
		}
	}
	return notes, nil
}

// grantReward pays a completed quest out to the acting character:
// experience, gold, and faction standing onto the sheet, items into
// the pack.
func (r *Router) grantReward(ctx context.Context, tc *TurnContext, reward quest.Reward) ([]string, error) {
	var notes []string
	if tc.Actor.Character != nil {
		if reward.XP > 0 {
			tc.Actor.Character.Experience += reward.XP
			notes = append(notes, fmt.Sprintf("xp +%d", reward.XP))
		}
		if reward.Gold > 0 {
			tc.Actor.Character.Gold += reward.Gold
			notes = append(notes, fmt.Sprintf("gold +%d", reward.Gold))
		}
		if len(reward.Reputation) > 0 {
			if tc.Actor.Character.Reputation == nil {
				tc.Actor.Character.Reputation = map[string]int{}
			}
			factions := make([]string, 0, len(reward.Reputation))
			for fid := range reward.Reputation {
				factions = append(factions, fid)
			}
			sort.Strings(factions)
			for _, fid := range factions {
				delta := reward.Reputation[fid]
				tc.Actor.Character.Reputation[fid] += delta
				name := fid
				if f, err := r.truth.Entity(ctx, tc.Universe.ID, fid); err == nil {
					name = f.Name
				}
				notes = append(notes, fmt.Sprintf("reputation with %s %+d", name, delta))
			}
		}
	}
	for _, itemID := range reward.ItemIDs {
		item, err := r.truth.Entity(ctx, tc.Universe.ID, itemID)
		if err != nil {
			return nil, err
		}
		if err := r.relate(ctx, tc.Universe.ID, tc.Actor.ID, item.ID, storage.RelCarries); err != nil {
			return nil, err
		}
		notes = append(notes, fmt.Sprintf("received %s", item.Name))
	}
	return notes, nil
}

// activateNextQuest moves the chained follow-up from available to
// active. A follow-up already past available is left alone.
func (r *Router) activateNextQuest(ctx context.Context, w questWriter, universeID, questID string) (*quest.Quest, error) {
	next, err := r.truth.Quest(ctx, universeID, questID)
	if err != nil {
		return nil, err
	}
	next.UniverseID = universeID
	if next.Status != quest.StatusAvailable {
		return nil, nil
	}
	if err := next.Transition(quest.StatusActive); err != nil {
		return nil, err
	}
	if err := w.SaveQuest(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}
