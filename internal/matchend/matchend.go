// Package matchend converts a finished match into account progression.
package matchend

import (
	"time"

	"github.com/park285/chess-ascension/internal/account"
	"github.com/park285/chess-ascension/internal/match"
	"github.com/park285/chess-ascension/internal/progression"
)

type Result string

const (
	Win  Result = "win"
	Loss Result = "loss"
	Draw Result = "draw"
)

// Input is what the processor needs from the terminal match.
type Input struct {
	Score     int
	Status    match.Status
	LastMover match.Side
}

type Report struct {
	Result            Result
	Score             int
	ExperienceGained  int
	LeveledUp         bool
	PreviousLevel     int
	NewLevel          int
	PreviousRank      progression.Rank
	NewRank           progression.Rank
	NewCosmetics      []string
	NewAbilities      []string
	NewBestScore      bool
	TotalExperience   int
	GamesPlayed       int
	Persisted         bool
	PersistenceFailed string
}

func (r Report) RankChanged() bool {
	return r.PreviousRank != r.NewRank
}

// ResultOf attributes a terminal status. Checkmate belongs to the side that
// made the last move.
func ResultOf(status match.Status, lastMover match.Side) Result {
	if status == match.StatusCheckmate {
		if lastMover == match.Human {
			return Win
		}
		return Loss
	}
	return Draw
}

// Process applies one finished match to rec. The returned record and report
// derive from the same before/after pair.
func Process(rec account.Record, in Input, curve progression.Curve, now time.Time) (account.Record, Report) {
	before := rec.Recompute(curve)
	after := before

	gained := progression.ExperienceFromScore(in.Score)
	after.Experience += gained
	after = after.Recompute(curve)

	result := ResultOf(in.Status, in.LastMover)
	after.GamesPlayed++
	switch result {
	case Win:
		after.Wins++
	case Loss:
		after.Losses++
	}
	newBest := in.Score > after.BestScore
	if newBest {
		after.BestScore = in.Score
	}
	after.UpdatedAt = now

	report := Report{
		Result:           result,
		Score:            in.Score,
		ExperienceGained: gained,
		LeveledUp:        after.Level > before.Level,
		PreviousLevel:    before.Level,
		NewLevel:         after.Level,
		PreviousRank:     before.Rank,
		NewRank:          after.Rank,
		NewCosmetics:     progression.NewlyUnlocked(before.UnlockedCosmetics, after.UnlockedCosmetics),
		NewAbilities:     progression.NewlyUnlocked(before.UnlockedAbilities, after.UnlockedAbilities),
		NewBestScore:     newBest,
		TotalExperience:  after.Experience,
		GamesPlayed:      after.GamesPlayed,
	}
	return after, report
}
