package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"

	apperrors "github.com/tta-solo/engine/internal/platform/errors"
)

// Roller is the randomness port. All engine randomness flows through it so
// tests can inject deterministic rollers.
type Roller interface {
	Roll(count, sides int) ([]int, error)
}

// CryptoRoller draws dice from crypto/rand. It is the default for live play.
type CryptoRoller struct{}

// Roll returns count uniform values in [1, sides].
func (CryptoRoller) Roll(count, sides int) ([]int, error) {
	values := make([]int, count)
	var buf [8]byte
	for i := range values {
		if _, err := crand.Read(buf[:]); err != nil {
			return nil, fmt.Errorf("read random bytes: %w", err)
		}
		values[i] = int(binary.LittleEndian.Uint64(buf[:])%uint64(sides)) + 1
	}
	return values, nil
}

// SeededRoller draws dice from a seeded math/rand source. Given the same
// seed and the same sequence of calls it reproduces the same dice.
type SeededRoller struct {
	rng *rand.Rand
}

// NewSeeded returns a roller seeded with the provided value.
func NewSeeded(seed int64) *SeededRoller {
	return &SeededRoller{rng: rand.New(rand.NewSource(seed))}
}

// Roll returns count values in [1, sides] from the seeded source.
func (r *SeededRoller) Roll(count, sides int) ([]int, error) {
	values := make([]int, count)
	for i := range values {
		values[i] = r.rng.Intn(sides) + 1
	}
	return values, nil
}

// ScriptedRoller replays a fixed sequence of die values. Tests use it to
// force exact rolls regardless of dice sizes.
type ScriptedRoller struct {
	values []int
	next   int
}

// NewScripted returns a roller that yields the provided values in order.
func NewScripted(values ...int) *ScriptedRoller {
	return &ScriptedRoller{values: values}
}

// Roll pops the next count scripted values. It fails when the script runs
// out rather than inventing dice.
func (r *ScriptedRoller) Roll(count, sides int) ([]int, error) {
	if r.next+count > len(r.values) {
		return nil, apperrors.New(apperrors.CodeUnknown,
			fmt.Sprintf("scripted roller exhausted: want %d values, have %d", count, len(r.values)-r.next))
	}
	values := make([]int, count)
	for i := range values {
		v := r.values[r.next]
		r.next++
		if v < 1 || v > sides {
			return nil, apperrors.New(apperrors.CodeUnknown,
				fmt.Sprintf("scripted value %d outside d%d", v, sides))
		}
		values[i] = v
	}
	return values, nil
}

// Remaining reports how many scripted values are left unconsumed.
func (r *ScriptedRoller) Remaining() int {
	return len(r.values) - r.next
}
