package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// entropyBytes per generated id. 16 bytes keeps ids short enough for URLs
// and log lines while leaving collisions out of practical reach.
const entropyBytes = 16

// Generator creates opaque IDs suitable for external references.
type Generator interface {
	NewID() (string, error)
}

// RandomGenerator issues lowercase hex ids from crypto/rand.
type RandomGenerator struct{}

func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{}
}

func (g *RandomGenerator) NewID() (string, error) {
	var buf [entropyBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate id entropy: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
