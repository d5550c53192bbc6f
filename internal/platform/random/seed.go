// Package random draws cryptographic seeds for the session RNG.
package random

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// NewSeed draws a seed from crypto/rand. Seeds are non-negative so the
// one printed for a session can be re-entered verbatim to replay it.
func NewSeed() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("draw seed: %w", err)
	}
	return int64(binary.BigEndian.Uint64(buf[:]) &^ (1 << 63)), nil
}
