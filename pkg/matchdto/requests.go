package matchdto

type CreateProfileRequest struct {
	Nickname string `json:"nickname"`
}

type SelectCosmeticRequest struct {
	Name string `json:"name"`
}

type StartMatchRequest struct {
	Strength string `json:"strength"`
}

type MoveRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type Health struct {
	Status string `json:"status"`
}
