package matchdto

import "time"

type Capture struct {
	Turn int    `json:"turn"`
	Unit string `json:"unit"`
}

type Combo struct {
	Streak int `json:"streak"`
	Bonus  int `json:"bonus"`
}

// MatchState is the read model of the current match.
type MatchState struct {
	ID              string    `json:"id,omitempty"`
	Phase           string    `json:"phase"`
	Position        string    `json:"position,omitempty"`
	Status          string    `json:"status,omitempty"`
	Turn            string    `json:"turn,omitempty"`
	Score           int       `json:"score"`
	TurnNumber      int       `json:"turnNumber"`
	CaptureHistory  []Capture `json:"captureHistory"`
	Combo           *Combo    `json:"combo,omitempty"`
	Strength        string    `json:"strength,omitempty"`
	Moves           []string  `json:"moves"`
	OpponentPending bool      `json:"opponentPending"`
	OpponentError   string    `json:"opponentError,omitempty"`
	Finalized       bool      `json:"finalized"`
	OpeningCode     string    `json:"openingCode,omitempty"`
	OpeningTitle    string    `json:"openingTitle,omitempty"`
	StartedAt       time.Time `json:"startedAt,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt,omitempty"`
}

// MoveResult is returned after a human move has been applied.
type MoveResult struct {
	Move     string      `json:"move"`
	Captured string      `json:"captured,omitempty"`
	Points   int         `json:"points"`
	Combo    *Combo      `json:"combo,omitempty"`
	Status   string      `json:"status"`
	Score    int         `json:"score"`
	State    *MatchState `json:"state"`
}

type Destinations struct {
	Square  string   `json:"square"`
	Targets []string `json:"targets"`
}

// Report is the outcome of a finished match as credited to the profile.
type Report struct {
	Result            string   `json:"result"`
	Score             int      `json:"score"`
	ExperienceGained  int      `json:"experienceGained"`
	LeveledUp         bool     `json:"leveledUp"`
	PreviousLevel     int      `json:"previousLevel"`
	NewLevel          int      `json:"newLevel"`
	PreviousRank      string   `json:"previousRank"`
	NewRank           string   `json:"newRank"`
	NewCosmetics      []string `json:"newCosmetics"`
	NewAbilities      []string `json:"newAbilities"`
	NewBestScore      bool     `json:"newBestScore"`
	TotalExperience   int      `json:"totalExperience"`
	GamesPlayed       int      `json:"gamesPlayed"`
	Persisted         bool     `json:"persisted"`
	PersistenceFailed string   `json:"persistenceFailed,omitempty"`
	Summary           []string `json:"summary"`
}
