package arena

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/chess-ascension/internal/account"
	"github.com/park285/chess-ascension/internal/chess"
	"github.com/park285/chess-ascension/internal/chess/rules"
	"github.com/park285/chess-ascension/internal/chess/uci"
	"github.com/park285/chess-ascension/internal/match"
	"github.com/park285/chess-ascension/internal/matchend"
	"github.com/park285/chess-ascension/internal/progression"
	"github.com/redis/go-redis/v9"
)

type scriptOpponent struct {
	mu       sync.Mutex
	replies  []string
	newGames int
}

func (o *scriptOpponent) RequestMove(_ context.Context, _ string, _ chess.Strength) (chess.Reply, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.replies) == 0 {
		return chess.Reply{}, uci.ErrNoLegalMoves
	}
	mv := o.replies[0]
	o.replies = o.replies[1:]
	return chess.Reply{Move: mv}, nil
}

func (o *scriptOpponent) NewGame(context.Context) error {
	o.mu.Lock()
	o.newGames++
	o.mu.Unlock()
	return nil
}

func newTestService(t *testing.T, store account.Store, opp *scriptOpponent) *Service {
	t.Helper()
	curve := progression.Curve{LevelStep: 10, Cosmetics: progression.Standard().Cosmetics, Abilities: progression.Standard().Abilities}
	svc := NewService(account.NewManager(store, "local", curve), rules.New(), opp, Config{DefaultStrength: chess.Beginner}, nil)
	t.Cleanup(svc.Close)
	return svc
}

func newRedisStore(t *testing.T) (*account.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return account.NewRedisStore(rdb), mr
}

func playScholarsMate(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	for _, mv := range [][2]string{{"e2", "e4"}, {"f1", "c4"}, {"d1", "h5"}, {"h5", "f7"}} {
		if _, err := svc.Move(mv[0], mv[1], ""); err != nil {
			t.Fatalf("Move %s%s: %v", mv[0], mv[1], err)
		}
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := svc.AwaitOpponent(waitCtx)
		cancel()
		if err != nil {
			t.Fatalf("AwaitOpponent: %v", err)
		}
	}
}

func TestStartMatchRequiresProfile(t *testing.T) {
	svc := newTestService(t, account.NewMemoryStore(), &scriptOpponent{})
	if _, err := svc.StartMatch(context.Background(), ""); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateProfileOnce(t *testing.T) {
	svc := newTestService(t, account.NewMemoryStore(), &scriptOpponent{})
	ctx := context.Background()
	if _, err := svc.CreateProfile(ctx, "!!"); !errors.Is(err, account.ErrInvalidNickname) {
		t.Fatalf("expected ErrInvalidNickname, got %v", err)
	}
	if _, err := svc.CreateProfile(ctx, "Climber"); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if _, err := svc.CreateProfile(ctx, "Climber Two"); !errors.Is(err, ErrProfileExists) {
		t.Fatalf("expected ErrProfileExists, got %v", err)
	}
	if err := svc.DeleteProfile(ctx); err != nil {
		t.Fatalf("DeleteProfile: %v", err)
	}
	if _, err := svc.Profile(ctx); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestWinIsFinalizedOnceAndPersisted(t *testing.T) {
	store, _ := newRedisStore(t)
	opp := &scriptOpponent{replies: []string{"e7e5", "b8c6", "g8f6"}}
	svc := newTestService(t, store, opp)
	ctx := context.Background()

	if _, err := svc.CreateProfile(ctx, "Scholar"); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	snap, err := svc.StartMatch(ctx, "")
	if err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	if snap.Strength != chess.Beginner || opp.newGames != 1 {
		t.Fatalf("unexpected start %+v newGames=%d", snap, opp.newGames)
	}

	playScholarsMate(t, svc)

	report, ok := svc.LastReport()
	if !ok {
		t.Fatalf("expected a finalization report")
	}
	if report.Result != matchend.Win || report.Score != 10 || report.ExperienceGained != 1 || !report.Persisted {
		t.Fatalf("unexpected report %+v", report)
	}

	svc.onEvent(match.Event{Snapshot: svc.Match()})

	stored, err := store.Load(ctx, "local")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stored.GamesPlayed != 1 || stored.Wins != 1 || stored.Experience != 1 || stored.BestScore != 10 {
		t.Fatalf("unexpected stored record %+v", stored)
	}
	if !svc.Match().Finalized {
		t.Fatalf("snapshot should report finalized")
	}
}

func TestPersistenceFailureDoesNotBlockReport(t *testing.T) {
	store, mr := newRedisStore(t)
	opp := &scriptOpponent{replies: []string{"e7e5", "b8c6", "g8f6"}}
	svc := newTestService(t, store, opp)
	ctx := context.Background()

	if _, err := svc.CreateProfile(ctx, "Offline"); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if _, err := svc.StartMatch(ctx, "advanced"); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	mr.Close()

	playScholarsMate(t, svc)

	report, ok := svc.LastReport()
	if !ok || report.Persisted || report.PersistenceFailed == "" {
		t.Fatalf("expected unpersisted report, got %+v", report)
	}
	if !errors.Is(svc.StorageError(), account.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", svc.StorageError())
	}
	rec, err := svc.Profile(ctx)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if rec.GamesPlayed != 1 || rec.Wins != 1 {
		t.Fatalf("in-memory record not updated: %+v", rec)
	}
}

func TestSelectCosmetic(t *testing.T) {
	svc := newTestService(t, account.NewMemoryStore(), &scriptOpponent{})
	ctx := context.Background()
	if _, err := svc.CreateProfile(ctx, "Stylist"); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if _, err := svc.SelectCosmetic(ctx, "Gold"); !errors.Is(err, account.ErrCosmeticLocked) {
		t.Fatalf("expected ErrCosmeticLocked, got %v", err)
	}
	rec, err := svc.SelectCosmetic(ctx, "Classic")
	if err != nil || rec.SelectedCosmetic != "Classic" {
		t.Fatalf("SelectCosmetic = %+v, %v", rec, err)
	}
}

func TestUnknownStrengthRejected(t *testing.T) {
	svc := newTestService(t, account.NewMemoryStore(), &scriptOpponent{})
	ctx := context.Background()
	if _, err := svc.CreateProfile(ctx, "Picky"); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if _, err := svc.StartMatch(ctx, "godlike"); err == nil {
		t.Fatalf("expected strength error")
	}
}

func TestUnreachableStoreReadsAsNoProfile(t *testing.T) {
	store, mr := newRedisStore(t)
	opp := &scriptOpponent{replies: []string{"e7e5", "b8c6", "g8f6"}}
	svc := newTestService(t, store, opp)
	ctx := context.Background()
	mr.Close()

	if _, err := svc.StartMatch(ctx, ""); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !errors.Is(svc.StorageError(), account.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable to be kept, got %v", svc.StorageError())
	}

	if _, err := svc.CreateProfile(ctx, "Offline"); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if _, err := svc.StartMatch(ctx, ""); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	playScholarsMate(t, svc)

	report, ok := svc.LastReport()
	if !ok || report.Persisted || report.PersistenceFailed == "" || report.Result != matchend.Win {
		t.Fatalf("expected unpersisted win, got %+v", report)
	}
}

func TestStoredProfileSurvivesOutage(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	veteran := account.Record{ID: "local", Nickname: "Veteran", Experience: 40, GamesPlayed: 40, Wins: 40}
	if err := store.Save(ctx, veteran); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newTestService(t, store, &scriptOpponent{})

	mr.Close()
	if _, err := svc.Profile(ctx); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected ErrNotFound during outage, got %v", err)
	}
	if _, err := svc.CreateProfile(ctx, "Newcomer"); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if err := mr.Restart(); err != nil {
		t.Fatalf("restart: %v", err)
	}

	if _, err := svc.SelectCosmetic(ctx, "Classic"); err != nil {
		t.Fatalf("SelectCosmetic: %v", err)
	}
	if !errors.Is(svc.StorageError(), ErrStoredProfileConflict) {
		t.Fatalf("expected ErrStoredProfileConflict, got %v", svc.StorageError())
	}
	stored, err := store.Load(ctx, "local")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stored.Nickname != "Veteran" || stored.Wins != 40 {
		t.Fatalf("stored profile overwritten: %+v", stored)
	}
}

func TestProfileCreatedDuringOutageSavesOnceStoreIsEmpty(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	svc := newTestService(t, store, &scriptOpponent{})

	mr.Close()
	if _, err := svc.CreateProfile(ctx, "Patient"); err != nil {
		t.Fatalf("CreateProfile: %v", err)
	}
	if err := mr.Restart(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if _, err := svc.SelectCosmetic(ctx, "Classic"); err != nil {
		t.Fatalf("SelectCosmetic: %v", err)
	}
	if err := svc.StorageError(); err != nil {
		t.Fatalf("expected save to succeed, got %v", err)
	}
	stored, err := store.Load(ctx, "local")
	if err != nil || stored.Nickname != "Patient" {
		t.Fatalf("Load = %+v, %v", stored, err)
	}
}
