package progression

import (
	"fmt"
	"sort"
	"strings"
)

// Rank is the banded title derived from level.
type Rank string

const (
	RankPawn   Rank = "Pawn"
	RankKnight Rank = "Knight"
	RankBishop Rank = "Bishop"
	RankRook   Rank = "Rook"
	RankQueen  Rank = "Queen"
)

const scorePerExperience = 10

// Unlock maps a level threshold to an item.
type Unlock struct {
	Level int    `yaml:"level"`
	Item  string `yaml:"item"`
}

// Curve is the tunable part of progression: level step and unlock tables.
type Curve struct {
	Name      string   `yaml:"name"`
	LevelStep int      `yaml:"levelStep"`
	Cosmetics []Unlock `yaml:"cosmetics"`
	Abilities []Unlock `yaml:"abilities"`
}

var defaultCosmetics = []Unlock{
	{Level: 1, Item: "Classic"},
	{Level: 3, Item: "Monochrome"},
	{Level: 5, Item: "Neon"},
	{Level: 7, Item: "Gold"},
}

var defaultAbilities = []Unlock{
	{Level: 5, Item: "Shield"},
}

// Standard is the production curve: one level per 100 experience.
func Standard() Curve {
	return Curve{
		Name:      "standard",
		LevelStep: 100,
		Cosmetics: append([]Unlock(nil), defaultCosmetics...),
		Abilities: append([]Unlock(nil), defaultAbilities...),
	}
}

// Demo levels up every 2 experience so unlocks show within a few games.
func Demo() Curve {
	c := Standard()
	c.Name = "demo"
	c.LevelStep = 2
	return c
}

// Named resolves a curve preset by name.
func Named(name string) (Curve, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard":
		return Standard(), nil
	case "demo", "fast":
		return Demo(), nil
	default:
		return Curve{}, fmt.Errorf("unknown progression curve %q", name)
	}
}

func (c Curve) Validate() error {
	if c.LevelStep <= 0 {
		return fmt.Errorf("levelStep must be > 0: %d", c.LevelStep)
	}
	for _, table := range [][]Unlock{c.Cosmetics, c.Abilities} {
		for _, u := range table {
			if u.Level < 1 {
				return fmt.Errorf("unlock %q threshold must be >= 1: %d", u.Item, u.Level)
			}
			if strings.TrimSpace(u.Item) == "" {
				return fmt.Errorf("unlock at level %d has empty item", u.Level)
			}
		}
	}
	return nil
}

func ExperienceFromScore(score int) int {
	if score < 0 {
		return 0
	}
	return score / scorePerExperience
}

func (c Curve) LevelFromExperience(experience int) int {
	if experience < 0 || c.LevelStep <= 0 {
		return 1
	}
	return experience/c.LevelStep + 1
}

func RankFromLevel(level int) Rank {
	switch {
	case level <= 2:
		return RankPawn
	case level <= 4:
		return RankKnight
	case level <= 6:
		return RankBishop
	case level <= 8:
		return RankRook
	default:
		return RankQueen
	}
}

func (c Curve) CosmeticsUnlockedAtLevel(level int) []string {
	return unlockedAt(c.Cosmetics, level)
}

func (c Curve) AbilitiesUnlockedAtLevel(level int) []string {
	return unlockedAt(c.Abilities, level)
}

func unlockedAt(table []Unlock, level int) []string {
	if level < 1 {
		return []string{}
	}
	sorted := append([]Unlock(nil), table...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })
	out := make([]string, 0, len(sorted))
	for _, u := range sorted {
		if u.Level > level {
			break
		}
		out = append(out, u.Item)
	}
	return out
}

// UnionForward keeps every previously stored item and appends computed items
// not yet present, preserving order.
func UnionForward(stored, computed []string) []string {
	out := make([]string, 0, len(stored)+len(computed))
	seen := make(map[string]struct{}, len(stored)+len(computed))
	for _, list := range [][]string{stored, computed} {
		for _, item := range list {
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

// NewlyUnlocked returns items in next that are absent from previous.
func NewlyUnlocked(previous, next []string) []string {
	had := make(map[string]struct{}, len(previous))
	for _, item := range previous {
		had[item] = struct{}{}
	}
	out := make([]string, 0)
	for _, item := range next {
		if _, ok := had[item]; !ok {
			out = append(out, item)
		}
	}
	return out
}

// WinRate is a rounded percentage of decisive games won; ok is false when no
// decisive game has been played.
func WinRate(wins, losses, gamesPlayed int) (rate int, ok bool) {
	decisive := wins + losses
	if gamesPlayed <= 0 || decisive <= 0 {
		return 0, false
	}
	return (wins*100 + decisive/2) / decisive, true
}
