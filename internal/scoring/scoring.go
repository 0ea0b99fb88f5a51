package scoring

import (
	"strings"
	"time"

	"github.com/park285/chess-ascension/internal/obslog"
	"go.uber.org/zap"
)

// Unit is a captured piece kind in lowercase algebraic form ("p", "n", "b", "r", "q", "k").
type Unit string

const (
	Pawn   Unit = "p"
	Knight Unit = "n"
	Bishop Unit = "b"
	Rook   Unit = "r"
	Queen  Unit = "q"
	King   Unit = "k"
)

const (
	maxHistory = 3

	pairBonus   = 10
	tripleBonus = 20
)

var pointTable = map[Unit]int{
	Pawn:   10,
	Knight: 20,
	Bishop: 20,
	Rook:   40,
	Queen:  60,
	King:   0,
}

// Capture is one entry of the capture history.
type Capture struct {
	Turn int
	Unit Unit
	At   time.Time
}

// Combo is the active streak shown after consecutive capturing turns.
type Combo struct {
	Streak int
	Bonus  int
}

func normalize(u Unit) Unit {
	return Unit(strings.ToLower(strings.TrimSpace(string(u))))
}

// PointsForCapture returns the base points for capturing u. Unknown kinds score 0.
func PointsForCapture(u Unit) int {
	pts, ok := pointTable[normalize(u)]
	if !ok {
		obslog.L().Warn("unknown unit kind for capture scoring", zap.String("unit", string(u)))
		return 0
	}
	return pts
}

// RecordCapture appends a capture and keeps only the most recent entries.
func RecordCapture(history []Capture, turn int, u Unit, at time.Time) []Capture {
	next := make([]Capture, 0, maxHistory)
	start := 0
	if len(history) >= maxHistory {
		start = len(history) - maxHistory + 1
	}
	next = append(next, history[start:]...)
	next = append(next, Capture{Turn: turn, Unit: normalize(u), At: at})
	return next
}

// DetectStreak reports 3 for three consecutive capturing turns at the tail of
// history, 2 for two, and 0 otherwise.
func DetectStreak(history []Capture) int {
	n := len(history)
	if n >= 3 {
		a, b, c := history[n-3].Turn, history[n-2].Turn, history[n-1].Turn
		if b == a+1 && c == b+1 {
			return 3
		}
	}
	if n >= 2 && history[n-1].Turn == history[n-2].Turn+1 {
		return 2
	}
	return 0
}

func ComboBonus(streak int) int {
	switch streak {
	case 2:
		return pairBonus
	case 3:
		return tripleBonus
	default:
		return 0
	}
}

// Award is the outcome of scoring one capturing human move.
type Award struct {
	Base    int
	Bonus   int
	Combo   *Combo
	History []Capture
}

// Total is base points plus any combo bonus.
func (a Award) Total() int { return a.Base + a.Bonus }

// ScoreCapture records the capture and evaluates the streak it completes.
func ScoreCapture(history []Capture, turn int, u Unit, at time.Time) Award {
	next := RecordCapture(history, turn, u, at)
	streak := DetectStreak(next)
	award := Award{
		Base:    PointsForCapture(u),
		Bonus:   ComboBonus(streak),
		History: next,
	}
	if award.Bonus > 0 {
		award.Combo = &Combo{Streak: streak, Bonus: award.Bonus}
	}
	return award
}
