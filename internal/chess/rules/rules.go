package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
	"github.com/park285/chess-ascension/internal/scoring"
)

var (
	ErrInvalidPosition = errors.New("invalid position")
	ErrInvalidSquare   = errors.New("invalid square")
	ErrIllegalMove     = errors.New("illegal move")
)

type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Result describes the position reached by one executed move.
type Result struct {
	Position    string
	Move        string
	Captured    scoring.Unit
	InCheck     bool
	IsCheckmate bool
	IsStalemate bool
	IsDraw      bool
	SideToMove  Color
}

func (r Result) Terminal() bool {
	return r.IsCheckmate || r.IsStalemate || r.IsDraw
}

// Engine evaluates moves on FEN positions. The zero value is ready to use.
type Engine struct {
	bookOnce sync.Once
	book     *opening.BookECO
}

func New() *Engine {
	return &Engine{}
}

func StartPosition() string {
	return nchess.NewGame().FEN()
}

func loadGame(position string) (*nchess.Game, error) {
	position = strings.TrimSpace(position)
	if position == "" || position == "startpos" {
		return nchess.NewGame(), nil
	}
	option, err := nchess.FEN(position)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, err)
	}
	return nchess.NewGame(option), nil
}

func parseSquare(s string) (nchess.Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSquare, s)
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), nil
}

// uciMove builds the UCI text for from/to, filling in a queen promotion when
// a pawn reaches the last rank without one.
func uciMove(pos *nchess.Position, from, to, promotion string) (string, error) {
	s1, err := parseSquare(from)
	if err != nil {
		return "", err
	}
	s2, err := parseSquare(to)
	if err != nil {
		return "", err
	}
	text := s1.String() + s2.String()
	promotion = strings.ToLower(strings.TrimSpace(promotion))
	if promotion == "" && promotes(pos, s1, s2) {
		promotion = "q"
	}
	if promotion != "" {
		if !strings.Contains("qrbn", promotion) || len(promotion) != 1 {
			return "", fmt.Errorf("%w: promotion %q", ErrIllegalMove, promotion)
		}
		text += promotion
	}
	return text, nil
}

func promotes(pos *nchess.Position, s1, s2 nchess.Square) bool {
	piece := pos.Board().Piece(s1)
	if piece == nchess.NoPiece || piece.Type() != nchess.Pawn {
		return false
	}
	rank := s2.Rank()
	return rank == nchess.Rank8 || rank == nchess.Rank1
}

func (e *Engine) Validate(position, from, to, promotion string) bool {
	_, err := e.Execute(position, from, to, promotion)
	return err == nil
}

func (e *Engine) Execute(position, from, to, promotion string) (Result, error) {
	game, err := loadGame(position)
	if err != nil {
		return Result{}, err
	}
	text, err := uciMove(game.Position(), from, to, promotion)
	if err != nil {
		return Result{}, err
	}
	return apply(game, text)
}

// ExecuteUCI applies a move given in UCI long algebraic form, e.g. "e7e5".
func (e *Engine) ExecuteUCI(position, move string) (Result, error) {
	game, err := loadGame(position)
	if err != nil {
		return Result{}, err
	}
	move = strings.ToLower(strings.TrimSpace(move))
	if len(move) != 4 && len(move) != 5 {
		return Result{}, fmt.Errorf("%w: %q", ErrIllegalMove, move)
	}
	return apply(game, move)
}

func apply(game *nchess.Game, text string) (Result, error) {
	before := game.Position()
	mv, err := nchess.UCINotation{}.Decode(before, text)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, text, err)
	}
	captured := capturedUnit(before, mv.S1(), mv.S2())
	if err := game.Move(mv, nil); err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, text, err)
	}

	res := Result{
		Position:   game.FEN(),
		Move:       text,
		Captured:   captured,
		SideToMove: colorOf(game.Position().Turn()),
	}
	if moves := game.Moves(); len(moves) > 0 {
		res.InCheck = moves[len(moves)-1].HasTag(nchess.Check)
	}
	if game.Outcome() != nchess.NoOutcome {
		switch game.Method() {
		case nchess.Checkmate:
			res.IsCheckmate = true
			res.InCheck = true
		case nchess.Stalemate:
			res.IsStalemate = true
		default:
			res.IsDraw = true
		}
		return res, nil
	}
	// 50수 규칙은 라이브러리에서 선언 가능 무승부일 뿐이라 여기서 종료 처리한다.
	for _, method := range game.EligibleDraws() {
		if method == nchess.FiftyMoveRule {
			res.IsDraw = true
		}
	}
	return res, nil
}

// RepetitionKey reduces a FEN to the fields that define a repeated position:
// placement, side to move, castling rights and en passant square.
func RepetitionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

// ResetsRepetition reports whether the move that produced fen was a capture
// or pawn move, after which no earlier position can recur.
func ResetsRepetition(fen string) bool {
	fields := strings.Fields(fen)
	return len(fields) > 4 && fields[4] == "0"
}

// capturedUnit reads the board before the move; en passant lands on an
// empty square.
func capturedUnit(pos *nchess.Position, s1, s2 nchess.Square) scoring.Unit {
	board := pos.Board()
	if target := board.Piece(s2); target != nchess.NoPiece {
		return unitOf(target.Type())
	}
	mover := board.Piece(s1)
	if mover != nchess.NoPiece && mover.Type() == nchess.Pawn && s1.File() != s2.File() {
		return scoring.Pawn
	}
	return ""
}

func unitOf(pt nchess.PieceType) scoring.Unit {
	switch pt {
	case nchess.Pawn:
		return scoring.Pawn
	case nchess.Knight:
		return scoring.Knight
	case nchess.Bishop:
		return scoring.Bishop
	case nchess.Rook:
		return scoring.Rook
	case nchess.Queen:
		return scoring.Queen
	case nchess.King:
		return scoring.King
	default:
		return ""
	}
}

func colorOf(c nchess.Color) Color {
	if c == nchess.Black {
		return Black
	}
	return White
}

// SideToMove reports whose turn it is in position.
func SideToMove(position string) (Color, error) {
	game, err := loadGame(position)
	if err != nil {
		return "", err
	}
	return colorOf(game.Position().Turn()), nil
}

// LegalDestinations lists target squares reachable from square, sorted.
// An empty or opponent-owned square yields an empty list.
func (e *Engine) LegalDestinations(position, square string) ([]string, error) {
	game, err := loadGame(position)
	if err != nil {
		return nil, err
	}
	from, err := parseSquare(square)
	if err != nil {
		return nil, err
	}

	seen := make(map[nchess.Square]struct{}, 8)
	out := make([]string, 0, 8)
	for _, mv := range game.ValidMoves() {
		if mv.S1() != from {
			continue
		}
		// 승격은 기물별로 수가 나뉘므로 도착 칸 기준으로 한 번만 담는다.
		if _, dup := seen[mv.S2()]; dup {
			continue
		}
		seen[mv.S2()] = struct{}{}
		out = append(out, mv.S2().String())
	}
	sort.Strings(out)
	return out, nil
}

// OpeningLabel names the ECO opening reached by moves played from the start
// position. Unknown lines return empty strings.
func (e *Engine) OpeningLabel(moves []string) (code, title string) {
	if len(moves) == 0 {
		return "", ""
	}
	e.bookOnce.Do(func() { e.book = opening.NewBookECO() })
	if e.book == nil {
		return "", ""
	}
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			break
		}
	}
	if eco := e.book.Find(game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}
