package matchdto

import "time"

type Profile struct {
	Nickname          string    `json:"nickname"`
	Experience        int       `json:"experience"`
	Level             int       `json:"level"`
	Rank              string    `json:"rank"`
	UnlockedCosmetics []string  `json:"unlockedCosmetics"`
	UnlockedAbilities []string  `json:"unlockedAbilities"`
	SelectedCosmetic  string    `json:"selectedCosmetic,omitempty"`
	BestScore         int       `json:"bestScore"`
	GamesPlayed       int       `json:"gamesPlayed"`
	Wins              int       `json:"wins"`
	Losses            int       `json:"losses"`
	WinRate           *int      `json:"winRate,omitempty"`
	StorageWarning    string    `json:"storageWarning,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}
