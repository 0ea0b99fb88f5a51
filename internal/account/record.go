package account

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/park285/chess-ascension/internal/progression"
)

const (
	minNicknameLen = 3
	maxNicknameLen = 20
)

var (
	ErrInvalidNickname = errors.New("nickname must be 3-20 letters, digits or spaces")
	ErrCosmeticLocked  = errors.New("cosmetic is not unlocked")
)

// Record is the durable account. Level, rank and unlock sets derive from
// experience and are recomputed on load.
type Record struct {
	ID                string           `json:"id"`
	Nickname          string           `json:"nickname"`
	Experience        int              `json:"experience"`
	Level             int              `json:"level"`
	Rank              progression.Rank `json:"rank"`
	UnlockedCosmetics []string         `json:"unlockedCosmetics"`
	UnlockedAbilities []string         `json:"unlockedAbilities"`
	SelectedCosmetic  string           `json:"selectedCosmetic"`
	BestScore         int              `json:"bestScore"`
	GamesPlayed       int              `json:"gamesPlayed"`
	Wins              int              `json:"wins"`
	Losses            int              `json:"losses"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

func ValidateNickname(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	if n < minNicknameLen || n > maxNicknameLen {
		return "", ErrInvalidNickname
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ' ' {
			return "", ErrInvalidNickname
		}
	}
	return name, nil
}

// NewRecord creates a level-one account.
func NewRecord(id, nickname string, curve progression.Curve, now time.Time) (Record, error) {
	name, err := ValidateNickname(nickname)
	if err != nil {
		return Record{}, err
	}
	r := Record{
		ID:        id,
		Nickname:  name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.Recompute(curve), nil
}

// Recompute derives level, rank and unlocks from experience, keeping every
// previously unlocked item.
func (r Record) Recompute(curve progression.Curve) Record {
	if r.Experience < 0 {
		r.Experience = 0
	}
	r.Level = curve.LevelFromExperience(r.Experience)
	r.Rank = progression.RankFromLevel(r.Level)
	r.UnlockedCosmetics = progression.UnionForward(r.UnlockedCosmetics, curve.CosmeticsUnlockedAtLevel(r.Level))
	r.UnlockedAbilities = progression.UnionForward(r.UnlockedAbilities, curve.AbilitiesUnlockedAtLevel(r.Level))
	if !slices.Contains(r.UnlockedCosmetics, r.SelectedCosmetic) {
		r.SelectedCosmetic = ""
		if len(r.UnlockedCosmetics) > 0 {
			r.SelectedCosmetic = r.UnlockedCosmetics[0]
		}
	}
	return r
}

func (r Record) SelectCosmetic(name string) (Record, error) {
	if !slices.Contains(r.UnlockedCosmetics, name) {
		return r, fmt.Errorf("%w: %q", ErrCosmeticLocked, name)
	}
	r.SelectedCosmetic = name
	return r, nil
}

// WinRate is the rounded percentage of decisive games won.
func (r Record) WinRate() (int, bool) {
	return progression.WinRate(r.Wins, r.Losses, r.GamesPlayed)
}

func (r Record) clone() Record {
	r.UnlockedCosmetics = append([]string(nil), r.UnlockedCosmetics...)
	r.UnlockedAbilities = append([]string(nil), r.UnlockedAbilities...)
	return r
}
