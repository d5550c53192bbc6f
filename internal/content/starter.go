// Package content seeds a playable starter world: a market town on the
// edge of the Bramblewood, a handful of people worth talking to, a
// goblin problem, and a quest chain leading from the taproom to the
// crypt. Everything uses fixed ids so reseeding a fresh store is
// deterministic.
package content

import (
	"context"
	"time"

	"github.com/tta-solo/engine/internal/engine/ability"
	"github.com/tta-solo/engine/internal/engine/entity"
	"github.com/tta-solo/engine/internal/engine/npc"
	"github.com/tta-solo/engine/internal/engine/quest"
	"github.com/tta-solo/engine/internal/engine/resource"
	"github.com/tta-solo/engine/internal/engine/universe"
	"github.com/tta-solo/engine/internal/storage"
)

// UniverseID is the id and branch seed of the starter universe.
const UniverseID = "eldervale"

// PlayerID is the id of the seeded player character.
const PlayerID = "player"

// StartLocationID is where a fresh session begins.
const StartLocationID = "tavern"

// World reports what a freshly seeded world contains.
type World struct {
	UniverseID string
	PlayerID   string
	StartID    string
}

// SeedStarterWorld writes the starter universe into the given stores:
// truth entities, quests, and NPC profiles alongside their graph nodes
// and edges. The player begins in the tavern carrying basic gear.
func SeedStarterWorld(ctx context.Context, truth storage.TruthRepo, graph storage.GraphRepo, playerName string, now time.Time) (*World, error) {
	if playerName == "" {
		playerName = "Hero"
	}

	u := universe.NewRoot(UniverseID, "Eldervale", PlayerID, now)
	if err := truth.SaveUniverse(ctx, &u); err != nil {
		return nil, err
	}

	locations := []*entity.Entity{
		location("tavern", "The Gilded Tankard",
			"A low-beamed taproom warmed by a river-stone hearth. Regulars trade gossip over dark ale while the kitchen smokes and spits.",
			"tavern", 1, map[string]string{"east": "market", "north": "forest"}, now),
		location("market", "Millstone Market",
			"Stalls crowd the old mill square, loud with haggling and the smell of spice, wool, and fresh bread.",
			"market", 2, map[string]string{"west": "tavern", "north": "alley"}, now),
		location("alley", "Ropewalk Alley",
			"A narrow cut between warehouses where the lamplight never quite reaches. Footsteps here sound closer than they are.",
			"alley", 6, map[string]string{"south": "market"}, now),
		location("forest", "Bramblewood Trail",
			"A rutted track under old oaks, hedged in by briars. Cart traffic has thinned since the raids began.",
			"forest", 5, map[string]string{"south": "tavern", "east": "crypt"}, now),
		location("crypt", "The Sunken Crypt",
			"Stone steps descend to doors half-swallowed by the hillside. Cold air seeps out, carrying the smell of wet earth and candle tallow.",
			"dungeon", 10, map[string]string{"west": "forest"}, now),
	}

	characters := []*entity.Entity{
		playerCharacter(playerName, now),
		character("keeper", "Maren Oakhall",
			"The Tankard's keeper, broad-shouldered and unhurried, with a memory for every face that has passed her bar.",
			5, 28, 14, entity.AbilityScores{Strength: 10, Dexterity: 14, Constitution: 12, Intelligence: 13, Wisdom: 14, Charisma: 16}, now),
		character("stranger", "the Hooded Stranger",
			"A cloaked figure alone at the corner table, nursing a drink that never seems to empty. You feel watched.",
			6, 45, 16, entity.AbilityScores{Strength: 14, Dexterity: 16, Constitution: 14, Intelligence: 16, Wisdom: 15, Charisma: 10}, now),
		character("merchant", "Tobbin Farworth",
			"A round, breathless trader whose cart holds more than it reasonably should. Every item has a story, most of them true.",
			2, 15, 11, entity.AbilityScores{Strength: 9, Dexterity: 12, Constitution: 10, Intelligence: 14, Wisdom: 13, Charisma: 17}, now),
		character("thief", "Wren",
			"A wiry figure in patched leather, always nearest the exit. Her hands are steadier than her eyes.",
			3, 22, 15, entity.AbilityScores{Strength: 10, Dexterity: 18, Constitution: 12, Intelligence: 13, Wisdom: 11, Charisma: 14}, now),
		character("smith", "Branna Irontooth",
			"The market smith, soot to the elbows, who judges strangers by the state of their blades.",
			4, 35, 13, entity.AbilityScores{Strength: 18, Dexterity: 10, Constitution: 16, Intelligence: 12, Wisdom: 14, Charisma: 10}, now),
		character("raider", "Goblin Raider",
			"A small green-skinned creature with a rusted blade and quick, hungry eyes.",
			1, 7, 15, entity.AbilityScores{Strength: 8, Dexterity: 14, Constitution: 10, Intelligence: 10, Wisdom: 8, Charisma: 8}, now),
		character("skirmisher", "Goblin Skirmisher",
			"A scarred goblin hanging back from the track, sling already loaded.",
			1, 7, 15, entity.AbilityScores{Strength: 8, Dexterity: 14, Constitution: 10, Intelligence: 10, Wisdom: 8, Charisma: 8}, now),
		character("redtooth", "Redtooth",
			"The raiders' boss, bigger and meaner than his pack, with a necklace of cart-horse teeth.",
			3, 21, 15, entity.AbilityScores{Strength: 14, Dexterity: 14, Constitution: 12, Intelligence: 10, Wisdom: 9, Charisma: 10}, now),
	}

	factions := []*entity.Entity{
		faction("traders", "The Millstone Charter",
			"The merchant league that runs the market and keeps the roads worth travelling.",
			"neutral", 55, now),
	}

	items := []*entity.Entity{
		item("shortsword", "Worn Shortsword",
			"A serviceable blade past its best years. It still holds an edge.",
			&entity.ItemStats{Weight: 2, Value: 10, DamageDice: "1d6", DamageType: "slashing", Active: true}, now),
		item("draught", "Healing Draught",
			"A stoppered vial of red liquid that glows faintly in the dark.",
			&entity.ItemStats{Weight: 0.5, Value: 5, Active: true}, now),
		item("torch", "Pine Torch",
			"A resin-soaked torch good for an hour of light.",
			&entity.ItemStats{Weight: 1, Value: 1, Active: true}, now),
		item("rope", "Hemp Rope",
			"Fifty feet of sturdy rope, coiled and tarred.",
			&entity.ItemStats{Weight: 10, Value: 1, Active: true}, now),
		item("longsword", "Steel Longsword",
			"Branna's finest work this season, balanced and keen.",
			&entity.ItemStats{Weight: 3, Value: 15, DamageDice: "1d8", DamageType: "slashing", Active: true}, now),
		item("crypt-key", "Tarnished Crypt Key",
			"A heavy iron key, green with age. The wards on the crypt doors answer to it.",
			&entity.ItemStats{Weight: 0.1, Value: 0, Active: true}, now),
	}

	for _, group := range [][]*entity.Entity{locations, characters, factions, items} {
		for _, e := range group {
			if err := truth.SaveEntity(ctx, e); err != nil {
				return nil, err
			}
			if err := graph.UpsertNode(ctx, nodeFor(e)); err != nil {
				return nil, err
			}
		}
	}

	placements := map[string]string{
		PlayerID:     StartLocationID,
		"keeper":     "tavern",
		"stranger":   "tavern",
		"merchant":   "market",
		"smith":      "market",
		"thief":      "alley",
		"raider":     "forest",
		"skirmisher": "forest",
		"redtooth":   "forest",
	}
	for who, where := range placements {
		if err := edge(ctx, graph, "e-"+who+"-loc", who, where, storage.RelLocatedIn); err != nil {
			return nil, err
		}
	}
	for _, carried := range []string{"shortsword", "draught", "torch", "rope"} {
		if err := edge(ctx, graph, "e-player-"+carried, PlayerID, carried, storage.RelCarries); err != nil {
			return nil, err
		}
	}
	if err := edge(ctx, graph, "e-smith-longsword", "smith", "longsword", storage.RelCarries); err != nil {
		return nil, err
	}
	for _, loc := range locations {
		for _, dest := range loc.Location.Exits {
			if err := edge(ctx, graph, "e-"+loc.ID+"-"+dest, loc.ID, dest, storage.RelConnectedTo); err != nil {
				return nil, err
			}
		}
	}

	for _, p := range starterProfiles() {
		if err := truth.SaveProfile(ctx, UniverseID, p); err != nil {
			return nil, err
		}
	}

	for _, q := range starterQuests(now) {
		if err := truth.SaveQuest(ctx, q); err != nil {
			return nil, err
		}
	}

	return &World{UniverseID: UniverseID, PlayerID: PlayerID, StartID: StartLocationID}, nil
}

// StarterAbilities is the martial kit every new character knows.
func StarterAbilities() []*ability.Ability {
	return []*ability.Ability{
		{
			ID:          "second-wind",
			Name:        "Second Wind",
			Description: "Draw on your reserves to close a wound mid-fight.",
			Source:      ability.SourceMartial,
			Mechanism:   ability.MechanismCooldown,
			Details:     ability.MechanismDetails{MaxUses: 1},
			Healing:     &ability.HealingEffect{Dice: "1d10", Flat: 1},
			Targeting:   ability.TargetSelf,
			Cost:        ability.CostBonus,
		},
		{
			ID:          "power-strike",
			Name:        "Power Strike",
			Description: "Put your whole weight behind one heavy blow.",
			Source:      ability.SourceMartial,
			Mechanism:   ability.MechanismFree,
			Damage:      &ability.DamageEffect{Dice: "1d8", DamageType: "bludgeoning"},
			Targeting:   ability.TargetSingle,
			RangeFt:     5,
			Cost:        ability.CostAction,
		},
	}
}

func starterProfiles() []*npc.Profile {
	keeper := npc.NewProfile("keeper")
	keeper.Traits = npc.Traits{Openness: 70, Conscientiousness: 65, Extraversion: 75, Agreeableness: 60, Neuroticism: 30}
	keeper.Motivations = []npc.Motivation{npc.MotivationDuty, npc.MotivationBelonging, npc.MotivationKnowledge}
	keeper.SpeechStyle = "warm but wry"
	keeper.Quirks = []string{"tells stories of her caravan days", "protective of regulars"}

	stranger := npc.NewProfile("stranger")
	stranger.Traits = npc.Traits{Openness: 40, Conscientiousness: 80, Extraversion: 20, Agreeableness: 35, Neuroticism: 45}
	stranger.Motivations = []npc.Motivation{npc.MotivationKnowledge, npc.MotivationPower, npc.MotivationSurvival}
	stranger.SpeechStyle = "quiet and exact"
	stranger.Quirks = []string{"answers questions with questions", "knows things they shouldn't"}

	merchant := npc.NewProfile("merchant")
	merchant.Traits = npc.Traits{Openness: 85, Conscientiousness: 50, Extraversion: 90, Agreeableness: 70, Neuroticism: 25}
	merchant.Motivations = []npc.Motivation{npc.MotivationWealth, npc.MotivationFame, npc.MotivationBelonging}
	merchant.SpeechStyle = "breathless and theatrical"
	merchant.Quirks = []string{"exaggerates wildly", "always has just the thing"}

	thief := npc.NewProfile("thief")
	thief.Traits = npc.Traits{Openness: 55, Conscientiousness: 35, Extraversion: 45, Agreeableness: 40, Neuroticism: 65}
	thief.Motivations = []npc.Motivation{npc.MotivationSurvival, npc.MotivationWealth, npc.MotivationSafety}
	thief.SpeechStyle = "clipped and wary"
	thief.Quirks = []string{"never sits with her back to a door", "knows all the shortcuts"}

	smith := npc.NewProfile("smith")
	smith.Traits = npc.Traits{Openness: 30, Conscientiousness: 90, Extraversion: 35, Agreeableness: 55, Neuroticism: 20}
	smith.Motivations = []npc.Motivation{npc.MotivationDuty, npc.MotivationArtistry, npc.MotivationRespect}
	smith.SpeechStyle = "gruff but fair"
	smith.Quirks = []string{"judges people by their weapons", "respects hard work"}

	redtooth := npc.NewProfile("redtooth")
	redtooth.Traits = npc.Traits{Openness: 25, Conscientiousness: 40, Extraversion: 60, Agreeableness: 10, Neuroticism: 55}
	redtooth.Motivations = []npc.Motivation{npc.MotivationPower, npc.MotivationWealth, npc.MotivationRevenge}
	redtooth.SpeechStyle = "snarling"

	return []*npc.Profile{keeper, stranger, merchant, thief, smith, redtooth}
}

func starterQuests(now time.Time) []*quest.Quest {
	return []*quest.Quest{
		{
			ID:         "q-welcome",
			UniverseID: UniverseID,
			GiverID:    "keeper",
			Title:      "A Lay of the Land",
			Objectives: []quest.Objective{
				{Description: "Visit Millstone Market", TargetID: "market", Required: 1},
				{Description: "Talk to Tobbin Farworth", TargetID: "merchant", Required: 1},
			},
			Status:    quest.StatusActive,
			Reward:    quest.Reward{XP: 50, Gold: 25, Reputation: map[string]int{"traders": 10}},
			NextID:    "q-errand",
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:         "q-errand",
			UniverseID: UniverseID,
			GiverID:    "stranger",
			Title:      "The Stranger's Errand",
			Objectives: []quest.Objective{
				{Description: "Speak with the Hooded Stranger", TargetID: "stranger", Required: 1},
				{Description: "Reach the Sunken Crypt", TargetID: "crypt", Required: 1},
			},
			Status:    quest.StatusAvailable,
			Reward:    quest.Reward{XP: 150, Gold: 100, ItemIDs: []string{"crypt-key"}},
			NextID:    "q-raiders",
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:         "q-raiders",
			UniverseID: UniverseID,
			GiverID:    "merchant",
			Title:      "Raiders on the Bramblewood",
			Objectives: []quest.Objective{
				{Description: "Travel the Bramblewood Trail", TargetID: "forest", Required: 1},
				{Description: "Put down Redtooth", TargetID: "redtooth", Required: 1},
			},
			Status:    quest.StatusAvailable,
			Reward:    quest.Reward{XP: 200, Gold: 75, Reputation: map[string]int{"traders": 25}},
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func playerCharacter(name string, now time.Time) *entity.Entity {
	pool := resource.NewPool()
	pool.Cooldowns["second-wind"] = resource.NewCooldown(1, resource.ShortRest)
	return &entity.Entity{
		ID:          PlayerID,
		UniverseID:  UniverseID,
		Type:        entity.TypeCharacter,
		Name:        name,
		Description: "A newcomer to Eldervale with more nerve than coin.",
		Character: &entity.CharacterStats{
			Level: 1, HP: 12, HPMax: 12, AC: 14, Speed: 30, Gold: 50,
			HitDice: "1d10",
			Abilities: entity.AbilityScores{
				Strength: 14, Dexterity: 13, Constitution: 14,
				Intelligence: 10, Wisdom: 12, Charisma: 11,
			},
			SkillProficiencies: []string{"athletics", "perception"},
			SaveProficiencies:  []string{"str", "con"},
			Resources:          pool,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func character(id, name, desc string, level, hp, ac int, scores entity.AbilityScores, now time.Time) *entity.Entity {
	return &entity.Entity{
		ID:          id,
		UniverseID:  UniverseID,
		Type:        entity.TypeCharacter,
		Name:        name,
		Description: desc,
		Character: &entity.CharacterStats{
			Level: level, HP: hp, HPMax: hp, AC: ac, Speed: 30,
			Abilities: scores,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func faction(id, name, desc, alignment string, influence int, now time.Time) *entity.Entity {
	return &entity.Entity{
		ID:          id,
		UniverseID:  UniverseID,
		Type:        entity.TypeFaction,
		Name:        name,
		Description: desc,
		Faction:     &entity.FactionStats{Alignment: alignment, Influence: influence},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func location(id, name, desc, kind string, danger int, exits map[string]string, now time.Time) *entity.Entity {
	return &entity.Entity{
		ID:          id,
		UniverseID:  UniverseID,
		Type:        entity.TypeLocation,
		Name:        name,
		Description: desc,
		Location:    &entity.LocationStats{Kind: kind, Danger: danger, Exits: exits},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func item(id, name, desc string, stats *entity.ItemStats, now time.Time) *entity.Entity {
	return &entity.Entity{
		ID:          id,
		UniverseID:  UniverseID,
		Type:        entity.TypeItem,
		Name:        name,
		Description: desc,
		Item:        stats,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func nodeFor(e *entity.Entity) *storage.Node {
	var label storage.Label
	switch e.Type {
	case entity.TypeCharacter:
		label = storage.LabelCharacter
	case entity.TypeLocation:
		label = storage.LabelLocation
	case entity.TypeItem:
		label = storage.LabelItem
	default:
		label = storage.LabelEntity
	}
	return &storage.Node{
		ID:          e.ID,
		UniverseID:  e.UniverseID,
		Label:       label,
		Name:        e.Name,
		Description: e.Description,
	}
}

func edge(ctx context.Context, graph storage.GraphRepo, id, from, to string, t storage.RelType) error {
	return graph.CreateRelationship(ctx, &storage.Relationship{
		ID:         id,
		UniverseID: UniverseID,
		FromID:     from,
		ToID:       to,
		Type:       t,
	})
}
