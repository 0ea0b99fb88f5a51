package account

import (
	"context"
	"database/sql/driver"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/lib/pq"
	"github.com/park285/chess-ascension/internal/progression"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr
}

func TestValidateNickname(t *testing.T) {
	valid := map[string]string{"  Ann  ": "Ann", "Player 42": "Player 42", "체스왕": "체스왕"}
	for in, want := range valid {
		got, err := ValidateNickname(in)
		if err != nil || got != want {
			t.Fatalf("ValidateNickname(%q) = %q, %v", in, got, err)
		}
	}
	for _, in := range []string{"", "ab", "this nickname is far too long", "bad!name", "tab\tname"} {
		if _, err := ValidateNickname(in); !errors.Is(err, ErrInvalidNickname) {
			t.Fatalf("ValidateNickname(%q) should fail, got %v", in, err)
		}
	}
}

func TestNewRecordStartsAtLevelOne(t *testing.T) {
	rec, err := NewRecord("local", "Tester", progression.Standard(), time.Unix(0, 0))
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	if rec.Level != 1 || rec.Rank != progression.RankPawn || rec.SelectedCosmetic != "Classic" {
		t.Fatalf("unexpected new record %+v", rec)
	}
	if !reflect.DeepEqual(rec.UnlockedCosmetics, []string{"Classic"}) || len(rec.UnlockedAbilities) != 0 {
		t.Fatalf("unexpected unlocks %+v", rec)
	}
}

func TestRecomputeKeepsStoredUnlocks(t *testing.T) {
	rec := Record{
		Nickname:          "Keeper",
		Experience:        150,
		Level:             9,
		UnlockedCosmetics: []string{"Classic", "Legacy"},
		SelectedCosmetic:  "Legacy",
	}
	got := rec.Recompute(progression.Standard())
	if got.Level != 2 || got.Rank != progression.RankPawn {
		t.Fatalf("stale derived fields not recomputed: %+v", got)
	}
	if !reflect.DeepEqual(got.UnlockedCosmetics, []string{"Classic", "Legacy"}) {
		t.Fatalf("unlocks pruned: %v", got.UnlockedCosmetics)
	}
	if got.SelectedCosmetic != "Legacy" {
		t.Fatalf("selection lost: %q", got.SelectedCosmetic)
	}

	if _, err := got.SelectCosmetic("Gold"); !errors.Is(err, ErrCosmeticLocked) {
		t.Fatalf("expected ErrCosmeticLocked, got %v", err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if _, err := s.Load(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	rec := Record{ID: "a", Nickname: "Alpha", UnlockedCosmetics: []string{"Classic"}}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec.UnlockedCosmetics[0] = "mutated"
	got, err := s.Load(ctx, "a")
	if err != nil || got.UnlockedCosmetics[0] != "Classic" {
		t.Fatalf("Load = %+v, %v", got, err)
	}
	if err := s.Clear(ctx, "a"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := s.Load(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestRedis(t)
	rec := Record{ID: "local", Nickname: "Redis Fan", Experience: 42, BestScore: 300, UnlockedCosmetics: []string{"Classic"}}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, "local")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Nickname != rec.Nickname || got.Experience != 42 || got.BestScore != 300 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if err := s.Clear(ctx, "local"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := s.Load(ctx, "local"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreErrors(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedis(t)

	if err := mr.Set(redisKeyPrefix+"broken", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.Load(ctx, "broken"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}

	mr.SetError("OOM command not allowed when used memory > 'maxmemory'")
	if err := s.Save(ctx, Record{ID: "x", Nickname: "Full"}); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	mr.SetError("")

	mr.Close()
	if err := s.Save(ctx, Record{ID: "x", Nickname: "Gone"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{&pq.Error{Code: "53100"}, ErrQuotaExceeded},
		{&pq.Error{Code: "53200"}, ErrQuotaExceeded},
		{&pq.Error{Code: "08006"}, ErrUnavailable},
		{driver.ErrBadConn, ErrUnavailable},
	}
	for _, tc := range tests {
		if got := mapPostgresError("save", tc.err); !errors.Is(got, tc.want) {
			t.Fatalf("mapPostgresError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
	got := mapPostgresError("save", &pq.Error{Code: "23505"})
	if errors.Is(got, ErrQuotaExceeded) || errors.Is(got, ErrUnavailable) {
		t.Fatalf("unique violation misclassified: %v", got)
	}
}

func TestManagerTreatsCorruptAsNotFound(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedis(t)
	m := NewManager(s, "local", progression.Standard())

	if _, err := m.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mr.Set(redisKeyPrefix+"local", `{"nickname":`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := m.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("corrupt record should read as not found, got %v", err)
	}

	if _, err := m.Create(ctx, "x"); !errors.Is(err, ErrInvalidNickname) {
		t.Fatalf("expected ErrInvalidNickname, got %v", err)
	}
	created, err := m.Create(ctx, "Fresh Start")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	loaded, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Nickname != created.Nickname || loaded.Level != 1 {
		t.Fatalf("unexpected loaded record %+v", loaded)
	}
}

func TestManagerTreatsUnreachableAsNotFound(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedis(t)
	m := NewManager(s, "local", progression.Standard())
	if _, err := m.Create(ctx, "Stored"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	mr.Close()
	_, err := m.Load(ctx)
	if !errors.Is(err, ErrNotFound) || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrNotFound wrapping ErrUnavailable, got %v", err)
	}

	if err := mr.Restart(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	rec, err := m.Load(ctx)
	if err != nil || rec.Nickname != "Stored" {
		t.Fatalf("Load after restart = %+v, %v", rec, err)
	}
}

func TestDraftDoesNotSave(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), "local", progression.Standard())
	rec, err := m.Draft("Unsaved")
	if err != nil || rec.Nickname != "Unsaved" || rec.Level != 1 {
		t.Fatalf("Draft = %+v, %v", rec, err)
	}
	if _, err := m.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("draft must not be stored, got %v", err)
	}
}
