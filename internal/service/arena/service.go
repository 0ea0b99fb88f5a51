// Package arena ties one match session to the player's account.
package arena

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/park285/chess-ascension/internal/account"
	"github.com/park285/chess-ascension/internal/chess"
	"github.com/park285/chess-ascension/internal/match"
	"github.com/park285/chess-ascension/internal/matchend"
	"go.uber.org/zap"
)

var (
	ErrProfileExists = errors.New("profile already exists")
	// ErrStoredProfileConflict means a profile built while storage was
	// unreachable would overwrite one that turned up later.
	ErrStoredProfileConflict = errors.New("stored profile found after outage; not overwriting")
)

const persistTimeout = 5 * time.Second

// Opponent is the move source plus the per-game reset hook.
type Opponent interface {
	match.MoveSource
	NewGame(ctx context.Context) error
}

type Config struct {
	DefaultStrength chess.Strength
}

type Service struct {
	accounts *account.Manager
	opponent Opponent
	session  *match.Session
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	record     *account.Record
	lastReport *matchend.Report
	storageErr error
	// unread is set when the stored profile could not be read, so saves must
	// check the store first.
	unread bool
}

func NewService(accounts *account.Manager, rules match.Rules, opponent Opponent, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.DefaultStrength.Valid() {
		cfg.DefaultStrength = chess.Intermediate
	}
	s := &Service{
		accounts: accounts,
		opponent: opponent,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
	s.session = match.New(rules, opponent,
		match.WithLogger(logger.Named("match")),
		match.WithObserver(s.onEvent),
	)
	return s
}

// Profile returns the loaded account, reading the store on first use.
func (s *Service) Profile(ctx context.Context) (account.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileLocked(ctx)
}

func (s *Service) profileLocked(ctx context.Context) (account.Record, error) {
	if s.record != nil {
		return *s.record, nil
	}
	rec, err := s.accounts.Load(ctx)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrUnavailable):
			s.unread = true
			s.noteStorage(err)
		case errors.Is(err, account.ErrNotFound):
			s.unread = false
		default:
			s.unread = true
		}
		return account.Record{}, err
	}
	s.unread = false
	s.record = &rec
	return rec, nil
}

// persistLocked saves rec unless the store holds a profile this process never
// read.
func (s *Service) persistLocked(ctx context.Context, rec account.Record) error {
	if s.unread {
		_, err := s.accounts.Load(ctx)
		switch {
		case err == nil:
			return ErrStoredProfileConflict
		case errors.Is(err, account.ErrUnavailable), !errors.Is(err, account.ErrNotFound):
			return err
		}
		s.unread = false
	}
	return s.accounts.Save(ctx, rec)
}

func (s *Service) CreateProfile(ctx context.Context, nickname string) (account.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.profileLocked(ctx); err == nil {
		return account.Record{}, ErrProfileExists
	} else if !errors.Is(err, account.ErrNotFound) {
		s.logger.Warn("profile lookup failed; creating in memory", zap.Error(err))
	}

	rec, err := s.accounts.Draft(nickname)
	if err != nil {
		return account.Record{}, err
	}
	s.record = &rec
	s.noteStorage(s.persistLocked(ctx, rec))
	s.logger.Info("profile created", zap.String("nickname", rec.Nickname), zap.Bool("persisted", s.storageErr == nil))
	return rec, nil
}

func (s *Service) DeleteProfile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = nil
	s.lastReport = nil
	s.storageErr = nil
	if err := s.accounts.Clear(ctx); err != nil {
		s.unread = true
		return fmt.Errorf("clear profile: %w", err)
	}
	s.unread = false
	return nil
}

func (s *Service) SelectCosmetic(ctx context.Context, name string) (account.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.profileLocked(ctx)
	if err != nil {
		return account.Record{}, err
	}
	rec, err = rec.SelectCosmetic(name)
	if err != nil {
		return account.Record{}, err
	}
	s.record = &rec
	s.noteStorage(s.persistLocked(ctx, rec))
	return rec, nil
}

// StorageError is the last persistence failure, cleared by the next success.
func (s *Service) StorageError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storageErr
}

func (s *Service) noteStorage(err error) {
	if err != nil {
		s.logger.Warn("profile persistence failed; keeping progress in memory", zap.Error(err))
	}
	s.storageErr = err
}

// StartMatch begins a new game, abandoning any game in progress. A profile
// must exist.
func (s *Service) StartMatch(ctx context.Context, strength string) (match.Snapshot, error) {
	if _, err := s.Profile(ctx); err != nil {
		return match.Snapshot{}, err
	}
	level := s.cfg.DefaultStrength
	if strength != "" {
		parsed, err := chess.ParseStrength(strength)
		if err != nil {
			return match.Snapshot{}, err
		}
		level = parsed
	}
	if err := s.opponent.NewGame(ctx); err != nil {
		s.logger.Warn("opponent new game failed", zap.Error(err))
	}
	s.mu.Lock()
	s.lastReport = nil
	s.mu.Unlock()
	return s.session.Start(level)
}

func (s *Service) Move(from, to, promotion string) (match.MoveReport, error) {
	return s.session.ApplyHumanMove(from, to, promotion)
}

func (s *Service) Match() match.Snapshot {
	return s.session.Snapshot()
}

func (s *Service) Destinations(square string) ([]string, error) {
	return s.session.LegalDestinations(square)
}

func (s *Service) RetryOpponent() error {
	return s.session.RetryOpponent()
}

func (s *Service) AwaitOpponent(ctx context.Context) error {
	return s.session.AwaitOpponent(ctx)
}

func (s *Service) OpponentError() error {
	return s.session.OpponentError()
}

// LastReport is the finalization report of the most recent finished match.
func (s *Service) LastReport() (matchend.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastReport == nil {
		return matchend.Report{}, false
	}
	return *s.lastReport, true
}

func (s *Service) onEvent(ev match.Event) {
	if ev.Snapshot.Phase == match.PhaseTerminal {
		s.finalize(ev.Snapshot)
	}
}

// finalize runs once per finished game. Persistence failures are recorded on
// the report and never block it.
func (s *Service) finalize(snap match.Snapshot) {
	if !s.session.MarkFinalized(snap.ID) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.profileLocked(ctx)
	if err != nil {
		s.logger.Warn("finished match has no profile to credit", zap.String("match_id", snap.ID), zap.Error(err))
		return
	}

	updated, report := matchend.Process(rec, matchend.Input{
		Score:     snap.Score,
		Status:    snap.Status,
		LastMover: snap.LastMover,
	}, s.accounts.Curve(), s.now())
	s.record = &updated

	err = s.persistLocked(ctx, updated)
	s.noteStorage(err)
	if err != nil {
		report.PersistenceFailed = err.Error()
	} else {
		report.Persisted = true
	}
	s.lastReport = &report

	s.logger.Info("match finalized",
		zap.String("match_id", snap.ID),
		zap.String("result", string(report.Result)),
		zap.Int("score", report.Score),
		zap.Int("xp_gained", report.ExperienceGained),
		zap.Int("level", report.NewLevel),
		zap.Bool("persisted", report.Persisted),
	)
}

// Close cancels outstanding opponent work.
func (s *Service) Close() {
	s.session.Close()
}
