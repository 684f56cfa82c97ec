package roll

import "math/rand"

// Source produces die faces. Roll returns a uniformly distributed integer
// in [1, sides]. Implementations need not be safe for concurrent use: give
// each goroutine its own Source.
type Source interface {
	Roll(sides int) int
}

type randSource struct {
	rng *rand.Rand
}

// NewSource returns a pseudo-random Source. Equal seeds produce equal
// sequences of faces.
func NewSource(seed int64) Source {
	return &randSource{rng: rand.New(rand.NewSource(seed))}
}

func (s *randSource) Roll(sides int) int {
	if sides <= 0 {
		return 0
	}
	return s.rng.Intn(sides) + 1
}

// Sequence replays fixed faces in order, starting over when exhausted.
// Faces are returned as given, without regard to the requested size.
type Sequence struct {
	values []int
	next   int
}

func NewSequence(values ...int) *Sequence {
	return &Sequence{values: values}
}

func (s *Sequence) Roll(int) int {
	if len(s.values) == 0 {
		return 1
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

// Drawn returns how many faces have been consumed.
func (s *Sequence) Drawn() int {
	return s.next
}
