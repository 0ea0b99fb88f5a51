package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/chess-ascension/internal/chess"
	"github.com/park285/chess-ascension/internal/chess/rules"
	"github.com/park285/chess-ascension/internal/obslog"
	"github.com/park285/chess-ascension/internal/scoring"
	"go.uber.org/zap"
)

type Option func(*Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithObserver(fn Observer) Option {
	return func(s *Session) { s.observer = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Session is one single-player match. Methods are safe for concurrent use;
// opponent searches run on a goroutine owned by the session.
type Session struct {
	rules    Rules
	opponent MoveSource
	logger   *zap.Logger
	now      func() time.Time
	observer Observer

	mu         sync.Mutex
	id         string
	phase      Phase
	position   string
	status     Status
	turn       Side
	score      int
	turnNumber int
	history    []scoring.Capture
	combo      *scoring.Combo
	strength   chess.Strength
	moves      []string
	lastMover  Side
	startedAt  time.Time
	updatedAt  time.Time
	finalized  bool
	closed     bool

	// repetitions counts positions since the last capture or pawn move.
	repetitions map[string]int
	// unsettled holds ids of terminal matches not yet finalized, including
	// ones already replaced by a reset.
	unsettled map[string]struct{}

	gen     uint64
	pending chan struct{}
	cancel  context.CancelFunc
	oppErr  error
}

func New(r Rules, opponent MoveSource, opts ...Option) *Session {
	s := &Session{
		rules:    r,
		opponent: opponent,
		logger:   obslog.L().Named("match"),
		now:      time.Now,
		phase:    PhaseIdle,
		status:   StatusNormal,
		turn:     Human,

		unsettled: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start enters Active from the standard position. Calling it again replays.
func (s *Session) Start(strength chess.Strength) (Snapshot, error) {
	return s.Reset(strength)
}

// Reset abandons the current game, including any in-flight opponent search,
// and starts a fresh one.
func (s *Session) Reset(strength chess.Strength) (Snapshot, error) {
	if !strength.Valid() {
		strength = chess.Intermediate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	s.abandonLocked()

	now := s.now()
	s.id = uuid.NewString()
	s.phase = PhaseActive
	s.position = rules.StartPosition()
	s.status = StatusNormal
	s.turn = Human
	s.score = 0
	s.turnNumber = 0
	s.history = nil
	s.combo = nil
	s.strength = strength
	s.moves = nil
	s.lastMover = ""
	s.startedAt = now
	s.updatedAt = now
	s.finalized = false
	s.oppErr = nil
	s.repetitions = map[string]int{rules.RepetitionKey(s.position): 1}

	s.logger.Info("match started", zap.String("match_id", s.id), zap.String("strength", string(strength)))
	return s.snapshotLocked(), nil
}

// abandonLocked cancels the in-flight search; its result will be dropped.
func (s *Session) abandonLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.pending = nil
}

func (s *Session) ApplyHumanMove(from, to, promotion string) (MoveReport, error) {
	s.mu.Lock()
	if err := s.acceptLocked(Human); err != nil {
		s.mu.Unlock()
		return MoveReport{}, err
	}

	res, err := s.rules.Execute(s.position, from, to, promotion)
	if err != nil {
		s.mu.Unlock()
		return MoveReport{}, fmt.Errorf("%w: %s%s: %v", ErrIllegalMove, from, to, err)
	}

	s.turnNumber++
	report := MoveReport{Move: res.Move, Captured: res.Captured}
	if res.Captured != "" {
		award := scoring.ScoreCapture(s.history, s.turnNumber, res.Captured, s.now())
		s.score += award.Total()
		s.history = award.History
		s.combo = award.Combo
		report.Points = award.Total()
	} else {
		s.history = nil
		s.combo = nil
	}
	s.commitLocked(res, Human)
	report.Combo = cloneCombo(s.combo)
	report.Status = s.status
	report.Score = s.score

	if s.phase == PhaseActive && s.turn == Opponent {
		s.scheduleLocked()
	}
	ev := Event{Side: Human, Move: res.Move, Snapshot: s.snapshotLocked()}
	s.mu.Unlock()

	s.notify(ev)
	return report, nil
}

// ApplyEngineMove plays a UCI move for the opponent. Opponent captures never
// score.
func (s *Session) ApplyEngineMove(move string) error {
	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return ErrEngineBusy
	}
	if err := s.applyEngineMoveLocked(move); err != nil {
		s.mu.Unlock()
		return err
	}
	ev := Event{Side: Opponent, Move: move, Snapshot: s.snapshotLocked()}
	s.mu.Unlock()

	s.notify(ev)
	return nil
}

func (s *Session) applyEngineMoveLocked(move string) error {
	if err := s.acceptLocked(Opponent); err != nil {
		return err
	}
	res, err := s.rules.ExecuteUCI(s.position, move)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIllegalMove, move, err)
	}
	s.commitLocked(res, Opponent)
	return nil
}

func (s *Session) acceptLocked(side Side) error {
	switch {
	case s.closed:
		return ErrClosed
	case s.phase == PhaseIdle:
		return ErrNotStarted
	case s.phase == PhaseTerminal:
		return ErrMatchOver
	case side == Human && s.pending != nil:
		return ErrEngineBusy
	case s.turn != side:
		return ErrNotYourTurn
	}
	return nil
}

func (s *Session) commitLocked(res rules.Result, mover Side) {
	s.position = res.Position
	s.moves = append(s.moves, res.Move)
	s.lastMover = mover
	s.updatedAt = s.now()

	if rules.ResetsRepetition(res.Position) {
		clear(s.repetitions)
	}
	key := rules.RepetitionKey(res.Position)
	s.repetitions[key]++

	switch {
	case res.IsCheckmate:
		s.status = StatusCheckmate
	case res.IsStalemate:
		s.status = StatusStalemate
	case res.IsDraw, s.repetitions[key] >= 3:
		s.status = StatusDraw
	case res.InCheck:
		s.status = StatusCheck
	default:
		s.status = StatusNormal
	}
	if res.SideToMove == rules.White {
		s.turn = Human
	} else {
		s.turn = Opponent
	}
	if s.status.Terminal() {
		s.phase = PhaseTerminal
		s.unsettled[s.id] = struct{}{}
		s.logger.Info("match reached terminal status",
			zap.String("match_id", s.id),
			zap.String("status", string(s.status)),
			zap.String("last_mover", string(mover)),
			zap.Int("score", s.score),
		)
	}
}

func (s *Session) scheduleLocked() {
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.pending = done
	s.cancel = cancel
	s.oppErr = nil

	go s.runOpponent(ctx, gen, done, s.position, s.strength)
}

func (s *Session) runOpponent(ctx context.Context, gen uint64, done chan struct{}, fen string, strength chess.Strength) {
	defer close(done)

	reply, err := s.opponent.RequestMove(ctx, fen, strength)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("dropping stale opponent result", zap.Uint64("generation", gen))
		return
	}
	s.cancel()
	s.cancel = nil
	s.pending = nil

	ev := Event{Side: Opponent, Move: reply.Move}
	if err == nil {
		err = s.applyEngineMoveLocked(reply.Move)
	}
	if err != nil {
		s.oppErr = err
		ev.Err = err
		s.logger.Warn("opponent move skipped",
			zap.String("match_id", s.id),
			zap.String("strength", string(strength)),
			zap.Error(err),
		)
	}
	ev.Snapshot = s.snapshotLocked()
	s.mu.Unlock()

	s.notify(ev)
}

func (s *Session) notify(ev Event) {
	if s.observer != nil {
		s.observer(ev)
	}
}

// RetryOpponent re-issues an opponent request skipped after a failure.
func (s *Session) RetryOpponent() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return ErrEngineBusy
	}
	if err := s.acceptLocked(Opponent); err != nil {
		return err
	}
	s.scheduleLocked()
	return nil
}

// AwaitOpponent blocks until no opponent search is in flight.
func (s *Session) AwaitOpponent(ctx context.Context) error {
	for {
		s.mu.Lock()
		done := s.pending
		s.mu.Unlock()
		if done == nil {
			return nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// OpponentError is the failure that caused the last opponent move to be skipped.
func (s *Session) OpponentError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.oppErr
}

// MarkFinalized reports true exactly once for each match id that reached a
// terminal state, even after the session has moved on to a newer match.
func (s *Session) MarkFinalized(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.unsettled[id]; !ok {
		return false
	}
	delete(s.unsettled, id)
	if id == s.id {
		s.finalized = true
	}
	return true
}

func (s *Session) LegalDestinations(square string) ([]string, error) {
	s.mu.Lock()
	phase, turn, position, busy := s.phase, s.turn, s.position, s.pending != nil
	s.mu.Unlock()
	if phase != PhaseActive || turn != Human || busy {
		return []string{}, nil
	}
	dests, err := s.rules.LegalDestinations(position, square)
	if err != nil {
		if errors.Is(err, rules.ErrInvalidSquare) {
			return nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
		}
		return nil, err
	}
	return dests, nil
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if len(snap.Moves) > 0 {
		snap.OpeningCode, snap.OpeningTitle = s.rules.OpeningLabel(snap.Moves)
	}
	return snap
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:              s.id,
		Phase:           s.phase,
		Position:        s.position,
		Status:          s.status,
		Turn:            s.turn,
		Score:           s.score,
		TurnNumber:      s.turnNumber,
		CaptureHistory:  append([]scoring.Capture(nil), s.history...),
		Combo:           cloneCombo(s.combo),
		Strength:        s.strength,
		Moves:           append([]string(nil), s.moves...),
		LastMover:       s.lastMover,
		OpponentPending: s.pending != nil,
		Finalized:       s.finalized,
		StartedAt:       s.startedAt,
		UpdatedAt:       s.updatedAt,
	}
	if s.oppErr != nil {
		snap.OpponentError = s.oppErr.Error()
	}
	return snap
}

func cloneCombo(c *scoring.Combo) *scoring.Combo {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Close cancels outstanding work. Later calls fail with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.abandonLocked()
	s.closed = true
}
