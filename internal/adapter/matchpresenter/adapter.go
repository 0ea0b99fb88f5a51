package matchpresenter

import (
	"github.com/park285/chess-ascension/internal/account"
	"github.com/park285/chess-ascension/internal/match"
	"github.com/park285/chess-ascension/internal/matchend"
	"github.com/park285/chess-ascension/internal/scoring"
	"github.com/park285/chess-ascension/pkg/matchdto"
)

func ToDTOState(s match.Snapshot) *matchdto.MatchState {
	out := &matchdto.MatchState{
		ID:              s.ID,
		Phase:           string(s.Phase),
		Position:        s.Position,
		Status:          string(s.Status),
		Turn:            string(s.Turn),
		Score:           s.Score,
		TurnNumber:      s.TurnNumber,
		CaptureHistory:  toDTOCaptures(s.CaptureHistory),
		Combo:           toDTOCombo(s.Combo),
		Strength:        string(s.Strength),
		Moves:           append([]string{}, s.Moves...),
		OpponentPending: s.OpponentPending,
		OpponentError:   s.OpponentError,
		Finalized:       s.Finalized,
		OpeningCode:     s.OpeningCode,
		OpeningTitle:    s.OpeningTitle,
		StartedAt:       s.StartedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	return out
}

func ToDTOMove(r match.MoveReport, s match.Snapshot) *matchdto.MoveResult {
	return &matchdto.MoveResult{
		Move:     r.Move,
		Captured: string(r.Captured),
		Points:   r.Points,
		Combo:    toDTOCombo(r.Combo),
		Status:   string(r.Status),
		Score:    r.Score,
		State:    ToDTOState(s),
	}
}

func toDTOCaptures(list []scoring.Capture) []matchdto.Capture {
	out := make([]matchdto.Capture, 0, len(list))
	for _, c := range list {
		out = append(out, matchdto.Capture{Turn: c.Turn, Unit: string(c.Unit)})
	}
	return out
}

func toDTOCombo(c *scoring.Combo) *matchdto.Combo {
	if c == nil {
		return nil
	}
	return &matchdto.Combo{Streak: c.Streak, Bonus: c.Bonus}
}

// profile
func ToDTOProfile(r account.Record, storageWarning string) *matchdto.Profile {
	p := &matchdto.Profile{
		Nickname:          r.Nickname,
		Experience:        r.Experience,
		Level:             r.Level,
		Rank:              string(r.Rank),
		UnlockedCosmetics: append([]string{}, r.UnlockedCosmetics...),
		UnlockedAbilities: append([]string{}, r.UnlockedAbilities...),
		SelectedCosmetic:  r.SelectedCosmetic,
		BestScore:         r.BestScore,
		GamesPlayed:       r.GamesPlayed,
		Wins:              r.Wins,
		Losses:            r.Losses,
		StorageWarning:    storageWarning,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if rate, ok := r.WinRate(); ok {
		p.WinRate = &rate
	}
	return p
}

func ToDTOReport(r matchend.Report, summary []string) *matchdto.Report {
	return &matchdto.Report{
		Result:            string(r.Result),
		Score:             r.Score,
		ExperienceGained:  r.ExperienceGained,
		LeveledUp:         r.LeveledUp,
		PreviousLevel:     r.PreviousLevel,
		NewLevel:          r.NewLevel,
		PreviousRank:      string(r.PreviousRank),
		NewRank:           string(r.NewRank),
		NewCosmetics:      append([]string{}, r.NewCosmetics...),
		NewAbilities:      append([]string{}, r.NewAbilities...),
		NewBestScore:      r.NewBestScore,
		TotalExperience:   r.TotalExperience,
		GamesPlayed:       r.GamesPlayed,
		Persisted:         r.Persisted,
		PersistenceFailed: r.PersistenceFailed,
		Summary:           append([]string{}, summary...),
	}
}
