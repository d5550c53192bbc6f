// Package errors provides structured error handling for the engine.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Dice errors
	CodeDiceInvalidNotation Code = "DICE_INVALID_NOTATION"
	CodeDiceCountOutOfRange Code = "DICE_COUNT_OUT_OF_RANGE"
	CodeDiceSidesOutOfRange Code = "DICE_SIDES_OUT_OF_RANGE"
	CodeDiceKeepExceedsPool Code = "DICE_KEEP_EXCEEDS_POOL"

	// Entity errors
	CodeEntityEmptyName       Code = "ENTITY_EMPTY_NAME"
	CodeEntityInvalidType     Code = "ENTITY_INVALID_TYPE"
	CodeEntityMissingStats    Code = "ENTITY_MISSING_STATS"
	CodeEntityUnknownAbility  Code = "ENTITY_UNKNOWN_ABILITY"
	CodeEntityUnknownSkill    Code = "ENTITY_UNKNOWN_SKILL"
	CodeEntityNotCharacter    Code = "ENTITY_NOT_CHARACTER"
	CodeEntityInvalidHP       Code = "ENTITY_INVALID_HP"
	CodeEntityWrongUniverse   Code = "ENTITY_WRONG_UNIVERSE"
	CodeEntityVersionConflict Code = "ENTITY_VERSION_CONFLICT"

	// Ability (UAO) errors
	CodeAbilityEmptyName        Code = "ABILITY_EMPTY_NAME"
	CodeAbilityInvalidSource    Code = "ABILITY_INVALID_SOURCE"
	CodeAbilityInvalidMechanism Code = "ABILITY_INVALID_MECHANISM"
	CodeAbilityInvalidTargeting Code = "ABILITY_INVALID_TARGETING"
	CodeAbilityInvalidCost      Code = "ABILITY_INVALID_COST"
	CodeAbilityNoEffects        Code = "ABILITY_NO_EFFECTS"
	CodeAbilityForbiddenSource  Code = "ABILITY_FORBIDDEN_SOURCE"

	// Resource errors
	CodeResourceUnknown      Code = "RESOURCE_UNKNOWN"
	CodeResourceDepleted     Code = "RESOURCE_DEPLETED"
	CodeResourceInvalidDie   Code = "RESOURCE_INVALID_DIE"
	CodeResourceSlotExpended Code = "RESOURCE_SLOT_EXPENDED"
	CodeResourceOnCooldown   Code = "RESOURCE_ON_COOLDOWN"
	CodeDefyDeathExhausted   Code = "DEFY_DEATH_EXHAUSTED"

	// Combat/condition errors
	CodeConditionUnknown     Code = "CONDITION_UNKNOWN"
	CodeTargetInvalid        Code = "TARGET_INVALID"
	CodeTargetNotFound       Code = "TARGET_NOT_FOUND"
	CodeTargetOutOfScope     Code = "TARGET_OUT_OF_SCOPE"
	CodeActionAlreadyUsed    Code = "ACTION_ALREADY_USED"
	CodeConcentrationMissing Code = "CONCENTRATION_MISSING"

	// Universe/fork errors
	CodeUniverseNotFound     Code = "UNIVERSE_NOT_FOUND"
	CodeUniverseNotActive    Code = "UNIVERSE_NOT_ACTIVE"
	CodeUniverseEmptyName    Code = "UNIVERSE_EMPTY_NAME"
	CodeForkInvalidForkPoint Code = "FORK_INVALID_FORK_POINT"
	CodeTravelSameUniverse   Code = "TRAVEL_SAME_UNIVERSE"

	// Quest errors
	CodeQuestInvalidStatus    Code = "QUEST_INVALID_STATUS"
	CodeQuestNoObjectives     Code = "QUEST_NO_OBJECTIVES"
	CodeQuestObjectiveOutside Code = "QUEST_OBJECTIVE_OUT_OF_RANGE"

	// Intent/router errors
	CodeIntentUnclear       Code = "INTENT_UNCLEAR"
	CodeIntentUnknownType   Code = "INTENT_UNKNOWN_TYPE"
	CodeIntentMissingTarget Code = "INTENT_MISSING_TARGET"

	// Storage errors
	CodeNotFound          Code = "NOT_FOUND"
	CodeRepoUnready       Code = "REPO_UNREADY"
	CodeRepoInternal      Code = "REPO_INTERNAL"
	CodeTxClosed          Code = "TX_CLOSED"
	CodeBranchMissing     Code = "BRANCH_MISSING"
	CodeGraphInvalidEdge  Code = "GRAPH_INVALID_EDGE"
	CodeGraphVariantCycle Code = "GRAPH_VARIANT_CYCLE"

	// LLM errors
	CodeLLMTimeout     Code = "LLM_TIMEOUT"
	CodeLLMUnavailable Code = "LLM_UNAVAILABLE"
	CodeLLMBadResponse Code = "LLM_BAD_RESPONSE"

	// Random/seed errors
	CodeSeedOutOfRange Code = "SEED_OUT_OF_RANGE"
)

// Kind is the coarse error category callers branch on.
type Kind string

const (
	KindBadInput             Kind = "bad_input"
	KindNotFound             Kind = "not_found"
	KindInsufficientResource Kind = "insufficient_resource"
	KindInvalidTarget        Kind = "invalid_target"
	KindRuleViolation        Kind = "rule_violation"
	KindConflictState        Kind = "conflict_state"
	KindTimeout              Kind = "timeout"
	KindRepoError            Kind = "repo_error"
)

// Kind maps fine-grained codes to the coarse category.
func (c Code) Kind() Kind {
	switch c {
	case CodeDiceInvalidNotation,
		CodeDiceCountOutOfRange,
		CodeDiceSidesOutOfRange,
		CodeDiceKeepExceedsPool,
		CodeEntityEmptyName,
		CodeEntityInvalidType,
		CodeEntityMissingStats,
		CodeEntityUnknownAbility,
		CodeEntityUnknownSkill,
		CodeEntityInvalidHP,
		CodeAbilityEmptyName,
		CodeAbilityInvalidSource,
		CodeAbilityInvalidMechanism,
		CodeAbilityInvalidTargeting,
		CodeAbilityInvalidCost,
		CodeAbilityNoEffects,
		CodeUniverseEmptyName,
		CodeQuestNoObjectives,
		CodeQuestObjectiveOutside,
		CodeIntentUnclear,
		CodeIntentUnknownType,
		CodeIntentMissingTarget,
		CodeResourceInvalidDie,
		CodeGraphInvalidEdge,
		CodeSeedOutOfRange:
		return KindBadInput

	case CodeNotFound,
		CodeUniverseNotFound,
		CodeTargetNotFound,
		CodeBranchMissing:
		return KindNotFound

	case CodeResourceDepleted,
		CodeResourceSlotExpended,
		CodeResourceOnCooldown,
		CodeDefyDeathExhausted:
		return KindInsufficientResource

	case CodeTargetInvalid,
		CodeTargetOutOfScope,
		CodeEntityNotCharacter:
		return KindInvalidTarget

	case CodeAbilityForbiddenSource,
		CodeActionAlreadyUsed,
		CodeConditionUnknown,
		CodeResourceUnknown,
		CodeConcentrationMissing,
		CodeQuestInvalidStatus,
		CodeUniverseNotActive,
		CodeForkInvalidForkPoint,
		CodeTravelSameUniverse,
		CodeGraphVariantCycle:
		return KindRuleViolation

	case CodeEntityVersionConflict,
		CodeEntityWrongUniverse,
		CodeTxClosed:
		return KindConflictState

	case CodeLLMTimeout:
		return KindTimeout

	case CodeRepoUnready,
		CodeRepoInternal,
		CodeLLMUnavailable,
		CodeLLMBadResponse:
		return KindRepoError

	default:
		return KindRepoError
	}
}

// ExitCode maps error kinds to CLI process exit codes: user-caused errors
// exit 1, internal and infrastructure errors exit 2.
func (c Code) ExitCode() int {
	switch c.Kind() {
	case KindBadInput,
		KindNotFound,
		KindInsufficientResource,
		KindInvalidTarget,
		KindRuleViolation,
		KindConflictState:
		return 1
	default:
		return 2
	}
}
