package chess

import (
	"errors"
	"fmt"
	"strings"

	"github.com/park285/chess-ascension/internal/chess/uci"
)

var ErrUnknownStrength = errors.New("unknown strength")

// Strength selects how hard the opponent plays.
type Strength string

const (
	Beginner     Strength = "beginner"
	Intermediate Strength = "intermediate"
	Advanced     Strength = "advanced"
)

// Preset is the search configuration behind a Strength.
type Preset struct {
	Strength   Strength
	Depth      int
	SkillLevel int
}

var presets = map[Strength]Preset{
	Beginner:     {Strength: Beginner, Depth: 5, SkillLevel: 3},
	Intermediate: {Strength: Intermediate, Depth: 10, SkillLevel: 10},
	Advanced:     {Strength: Advanced, Depth: 15, SkillLevel: 20},
}

// ParseStrength accepts a strength name. The empty string is Intermediate.
func ParseStrength(name string) (Strength, error) {
	s := Strength(strings.ToLower(strings.TrimSpace(name)))
	if s == "" {
		return Intermediate, nil
	}
	if _, ok := presets[s]; !ok {
		return Intermediate, fmt.Errorf("%w %q", ErrUnknownStrength, name)
	}
	return s, nil
}

func (s Strength) Valid() bool {
	_, ok := presets[s]
	return ok
}

// Preset returns the table entry for s; unknown values fall back to Intermediate.
func (s Strength) Preset() Preset {
	if p, ok := presets[s]; ok {
		return p
	}
	return presets[Intermediate]
}

func (s Strength) Depth() int {
	return s.Preset().Depth
}

func (p Preset) limits() uci.Limits {
	return uci.Limits{Depth: p.Depth}
}
