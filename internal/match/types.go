package match

import (
	"context"
	"errors"
	"time"

	"github.com/park285/chess-ascension/internal/chess"
	"github.com/park285/chess-ascension/internal/chess/rules"
	"github.com/park285/chess-ascension/internal/scoring"
)

var (
	ErrNotStarted  = errors.New("match not started")
	ErrMatchOver   = errors.New("match is over")
	ErrNotYourTurn = errors.New("not your turn")
	ErrIllegalMove = errors.New("illegal move")
	ErrEngineBusy  = errors.New("opponent is thinking")
	ErrClosed      = errors.New("match session closed")
)

type Status string

const (
	StatusNormal    Status = "normal"
	StatusCheck     Status = "check"
	StatusCheckmate Status = "checkmate"
	StatusStalemate Status = "stalemate"
	StatusDraw      Status = "draw"
)

func (s Status) Terminal() bool {
	return s == StatusCheckmate || s == StatusStalemate || s == StatusDraw
}

// Side is a participant. The human always plays white.
type Side string

const (
	Human    Side = "human"
	Opponent Side = "opponent"
)

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseActive   Phase = "active"
	PhaseTerminal Phase = "terminal"
)

// Rules is the rules-engine contract the session relies on.
type Rules interface {
	Execute(position, from, to, promotion string) (rules.Result, error)
	ExecuteUCI(position, move string) (rules.Result, error)
	LegalDestinations(position, square string) ([]string, error)
	OpeningLabel(moves []string) (code, title string)
}

// MoveSource produces opponent moves.
type MoveSource interface {
	RequestMove(ctx context.Context, fen string, strength chess.Strength) (chess.Reply, error)
}

// Snapshot is a copy of session state safe to hand to readers.
type Snapshot struct {
	ID              string
	Phase           Phase
	Position        string
	Status          Status
	Turn            Side
	Score           int
	TurnNumber      int
	CaptureHistory  []scoring.Capture
	Combo           *scoring.Combo
	Strength        chess.Strength
	Moves           []string
	LastMover       Side
	OpponentPending bool
	OpponentError   string
	Finalized       bool
	OpeningCode     string
	OpeningTitle    string
	StartedAt       time.Time
	UpdatedAt       time.Time
}

// MoveReport describes one applied human move.
type MoveReport struct {
	Move     string
	Captured scoring.Unit
	Points   int
	Combo    *scoring.Combo
	Status   Status
	Score    int
}

// Event is delivered to the observer after every applied move and after an
// opponent failure.
type Event struct {
	Side     Side
	Move     string
	Err      error
	Snapshot Snapshot
}

type Observer func(Event)
