package augment

import (
	"fmt"
	"math/rand/v2"
)

// ToneExamples is the slice of the catalog the sampler and tone engine need.
type ToneExamples interface {
	ToneExamples(id string) ([]string, error)
}

// Sampler picks one example passage for a tone.
type Sampler interface {
	Sample(toneID string) (string, error)
}

// ToneExampleSampler picks uniformly at random, with replacement, from a tone's example pool.
// It keeps no state between calls.
type ToneExampleSampler struct {
	examples ToneExamples
	intN     func(n int) int
}

func NewToneExampleSampler(examples ToneExamples) *ToneExampleSampler {
	return &ToneExampleSampler{examples: examples, intN: rand.IntN}
}

func (s *ToneExampleSampler) Sample(toneID string) (string, error) {
	pool, err := s.examples.ToneExamples(toneID)
	if err != nil {
		return "", err
	}
	if len(pool) == 0 {
		return "", fmt.Errorf("%w: tone %q has no examples", ErrUnknownKey, toneID)
	}
	return pool[s.intN(len(pool))], nil
}
