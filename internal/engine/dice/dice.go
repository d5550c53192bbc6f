// Package dice implements d20 dice notation parsing and rolling.
//
// Notation follows the NdX form with optional keep-highest/keep-lowest
// selectors and flat modifiers, joined by + and -: "2d6", "4d6kh3",
// "1d20+5", "2d8+1d6-2". Dice counts and sides are capped at 1000.
package dice

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// MaxDice caps the dice count and sides of a single term.
const MaxDice = 1000

// Keep selects which dice of a term count toward the total.
type Keep int

const (
	KeepAll Keep = iota
	KeepHighest
	KeepLowest
)

// Term is a single NdX[khK|klK] group inside an expression.
type Term struct {
	Sign  int // +1 or -1
	Count int
	Sides int
	Keep  Keep
	KeepN int
}

// Expression is a parsed dice expression: dice terms plus a flat modifier.
type Expression struct {
	Terms    []Term
	Modifier int
}

// Result captures one evaluation of an expression.
type Result struct {
	Notation string
	Rolls    []int // every die rolled, in term order
	Kept     []int // dice that counted after keep selection
	Modifier int
	Total    int
}

var termPattern = regexp.MustCompile(`^(\d+)d(\d+)(?:(kh|kl)(\d+))?$`)

// Parse parses dice notation into an Expression.
func Parse(notation string) (Expression, error) {
	compact := strings.ToLower(strings.ReplaceAll(notation, " ", ""))
	if compact == "" {
		return Expression{}, apperrors.New(apperrors.CodeDiceInvalidNotation, "empty dice notation")
	}

	var expr Expression
	sign := 1
	if compact[0] == '-' {
		sign = -1
		compact = compact[1:]
	} else if compact[0] == '+' {
		compact = compact[1:]
	}

	for len(compact) > 0 {
		end := strings.IndexAny(compact, "+-")
		part := compact
		next := ""
		nextSign := 0
		if end >= 0 {
			part = compact[:end]
			next = compact[end+1:]
			if compact[end] == '-' {
				nextSign = -1
			} else {
				nextSign = 1
			}
		}
		if part == "" {
			return Expression{}, invalidNotation(notation)
		}

		if flat, err := strconv.Atoi(part); err == nil {
			expr.Modifier += sign * flat
		} else {
			term, err := parseTerm(part, sign)
			if err != nil {
				return Expression{}, err
			}
			expr.Terms = append(expr.Terms, term)
		}

		if end < 0 {
			break
		}
		if next == "" {
			return Expression{}, invalidNotation(notation)
		}
		compact = next
		sign = nextSign
	}

	if len(expr.Terms) == 0 {
		return Expression{}, apperrors.WithMetadata(apperrors.CodeDiceInvalidNotation,
			"notation has no dice terms", map[string]string{"notation": notation})
	}
	return expr, nil
}

func parseTerm(part string, sign int) (Term, error) {
	m := termPattern.FindStringSubmatch(part)
	if m == nil {
		return Term{}, invalidNotation(part)
	}

	count, _ := strconv.Atoi(m[1])
	sides, _ := strconv.Atoi(m[2])
	if count < 1 || count > MaxDice {
		return Term{}, apperrors.WithMetadata(apperrors.CodeDiceCountOutOfRange,
			fmt.Sprintf("dice count %d outside 1-%d", count, MaxDice),
			map[string]string{"term": part})
	}
	if sides < 1 || sides > MaxDice {
		return Term{}, apperrors.WithMetadata(apperrors.CodeDiceSidesOutOfRange,
			fmt.Sprintf("dice sides %d outside 1-%d", sides, MaxDice),
			map[string]string{"term": part})
	}

	term := Term{Sign: sign, Count: count, Sides: sides, Keep: KeepAll}
	if m[3] != "" {
		keepN, _ := strconv.Atoi(m[4])
		if keepN < 1 || keepN > count {
			return Term{}, apperrors.WithMetadata(apperrors.CodeDiceKeepExceedsPool,
				fmt.Sprintf("keep %d outside 1-%d", keepN, count),
				map[string]string{"term": part})
		}
		if m[3] == "kh" {
			term.Keep = KeepHighest
		} else {
			term.Keep = KeepLowest
		}
		term.KeepN = keepN
	}
	return term, nil
}

func invalidNotation(notation string) *apperrors.Error {
	return apperrors.WithMetadata(apperrors.CodeDiceInvalidNotation,
		fmt.Sprintf("invalid dice notation %q", notation),
		map[string]string{"notation": notation})
}

// Notation returns the canonical notation for the expression: terms in
// order, flat modifier last.
func (e Expression) Notation() string {
	var b strings.Builder
	for i, t := range e.Terms {
		switch {
		case i == 0 && t.Sign < 0:
			b.WriteByte('-')
		case i > 0 && t.Sign < 0:
			b.WriteByte('-')
		case i > 0:
			b.WriteByte('+')
		}
		fmt.Fprintf(&b, "%dd%d", t.Count, t.Sides)
		switch t.Keep {
		case KeepHighest:
			fmt.Fprintf(&b, "kh%d", t.KeepN)
		case KeepLowest:
			fmt.Fprintf(&b, "kl%d", t.KeepN)
		}
	}
	if e.Modifier > 0 {
		fmt.Fprintf(&b, "+%d", e.Modifier)
	} else if e.Modifier < 0 {
		fmt.Fprintf(&b, "%d", e.Modifier)
	}
	return b.String()
}

// Doubled returns a copy of the expression with every dice count doubled
// and the modifier unchanged. Used for critical-hit damage.
func (e Expression) Doubled() Expression {
	doubled := Expression{Modifier: e.Modifier, Terms: make([]Term, len(e.Terms))}
	copy(doubled.Terms, e.Terms)
	for i := range doubled.Terms {
		doubled.Terms[i].Count *= 2
	}
	return doubled
}

// Roll evaluates the expression with the provided roller.
func (e Expression) Roll(roller Roller) (Result, error) {
	result := Result{
		Notation: e.Notation(),
		Modifier: e.Modifier,
		Total:    e.Modifier,
	}
	for _, t := range e.Terms {
		values, err := roller.Roll(t.Count, t.Sides)
		if err != nil {
			return Result{}, err
		}
		result.Rolls = append(result.Rolls, values...)

		kept := keepDice(values, t.Keep, t.KeepN)
		result.Kept = append(result.Kept, kept...)
		for _, v := range kept {
			result.Total += t.Sign * v
		}
	}
	return result, nil
}

// Roll parses and evaluates notation in one step.
func Roll(notation string, roller Roller) (Result, error) {
	expr, err := Parse(notation)
	if err != nil {
		return Result{}, err
	}
	return expr.Roll(roller)
}

// Format returns the canonical notation of a result. A formatted result
// parses back to the expression that produced it.
func Format(r Result) string {
	return r.Notation
}

func keepDice(values []int, keep Keep, n int) []int {
	if keep == KeepAll {
		return values
	}
	sorted := make([]int, len(values))
	copy(sorted, values)
	if keep == KeepHighest {
		sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	} else {
		sort.Ints(sorted)
	}
	return sorted[:n]
}

// D20Roll is a single d20 check roll with its natural die preserved for
// critical detection.
type D20Roll struct {
	Natural  int
	Modifier int
	Total    int
	Rolls    []int
}

// Critical reports whether the natural die is a 20.
func (r D20Roll) Critical() bool { return r.Natural == 20 }

// Fumble reports whether the natural die is a 1.
func (r D20Roll) Fumble() bool { return r.Natural == 1 }

// Mode selects advantage state for a d20 roll.
type Mode int

const (
	Normal Mode = iota
	WithAdvantage
	WithDisadvantage
)

// Combine merges two advantage states: advantage and disadvantage cancel.
func Combine(a, b Mode) Mode {
	if a == b {
		return a
	}
	if a == Normal {
		return b
	}
	if b == Normal {
		return a
	}
	return Normal
}

// RollD20 rolls a d20 with a modifier under the given advantage mode.
// Advantage rolls 2d20kh1, disadvantage 2d20kl1.
func RollD20(modifier int, mode Mode, roller Roller) (D20Roll, error) {
	count := 1
	if mode != Normal {
		count = 2
	}
	values, err := roller.Roll(count, 20)
	if err != nil {
		return D20Roll{}, err
	}

	natural := values[0]
	for _, v := range values[1:] {
		if mode == WithAdvantage && v > natural {
			natural = v
		}
		if mode == WithDisadvantage && v < natural {
			natural = v
		}
	}
	return D20Roll{
		Natural:  natural,
		Modifier: modifier,
		Total:    natural + modifier,
		Rolls:    values,
	}, nil
}
