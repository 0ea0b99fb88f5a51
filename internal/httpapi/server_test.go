package httpapi

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/park285/chess-ascension/internal/account"
	"github.com/park285/chess-ascension/internal/chess"
	"github.com/park285/chess-ascension/internal/chess/rules"
	"github.com/park285/chess-ascension/internal/chess/uci"
	"github.com/park285/chess-ascension/internal/progression"
	"github.com/park285/chess-ascension/internal/service/arena"
	"github.com/park285/chess-ascension/pkg/matchdto"
	"github.com/valyala/fasthttp"
)

type queueOpponent struct {
	mu      sync.Mutex
	replies []string
	errs    []error
}

func (o *queueOpponent) RequestMove(context.Context, string, chess.Strength) (chess.Reply, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.errs) > 0 {
		err := o.errs[0]
		o.errs = o.errs[1:]
		if err != nil {
			return chess.Reply{}, err
		}
	}
	if len(o.replies) == 0 {
		return chess.Reply{}, uci.ErrNoLegalMoves
	}
	mv := o.replies[0]
	o.replies = o.replies[1:]
	return chess.Reply{Move: mv}, nil
}

func (o *queueOpponent) NewGame(context.Context) error { return nil }

func newTestServer(t *testing.T, opp *queueOpponent) *Server {
	t.Helper()
	mgr := account.NewManager(account.NewMemoryStore(), "local", progression.Demo())
	a := arena.NewService(mgr, rules.New(), opp, arena.Config{DefaultStrength: chess.Beginner}, nil)
	t.Cleanup(a.Close)
	return NewServer(a, nil, Config{}, nil)
}

func do(t *testing.T, s *Server, method, uri, body string) (int, []byte) {
	t.Helper()
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if body != "" {
		ctx.Request.Header.SetContentType("application/json")
		ctx.Request.SetBodyString(body)
	}
	s.Handler(&ctx)
	return ctx.Response.StatusCode(), append([]byte(nil), ctx.Response.Body()...)
}

func decodeInto(t *testing.T, raw []byte, dst any) {
	t.Helper()
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

func expectError(t *testing.T, status int, raw []byte, wantStatus int, wantCode string) matchdto.DomainError {
	t.Helper()
	if status != wantStatus {
		t.Fatalf("status = %d, want %d (body %s)", status, wantStatus, raw)
	}
	var de matchdto.DomainError
	decodeInto(t, raw, &de)
	if de.Code != wantCode || de.Message == "" {
		t.Fatalf("unexpected error body %+v", de)
	}
	return de
}

func TestHealthAndRouting(t *testing.T) {
	s := newTestServer(t, &queueOpponent{})
	if status, _ := do(t, s, "GET", "/healthz", ""); status != fasthttp.StatusOK {
		t.Fatalf("healthz status %d", status)
	}
	status, body := do(t, s, "GET", "/nope", "")
	expectError(t, status, body, fasthttp.StatusNotFound, "not_found")
	status, body = do(t, s, "PUT", "/match", "")
	expectError(t, status, body, fasthttp.StatusMethodNotAllowed, "method_not_allowed")
}

func TestProfileLifecycle(t *testing.T) {
	s := newTestServer(t, &queueOpponent{})

	status, body := do(t, s, "GET", "/profile", "")
	expectError(t, status, body, fasthttp.StatusNotFound, "profile_not_found")

	status, body = do(t, s, "POST", "/profile", `{"nickname":"x"}`)
	expectError(t, status, body, fasthttp.StatusUnprocessableEntity, "invalid_nickname")

	status, body = do(t, s, "POST", "/profile", `{"nickname":"Rook Lifter"}`)
	if status != fasthttp.StatusCreated {
		t.Fatalf("create status %d body %s", status, body)
	}
	var p matchdto.Profile
	decodeInto(t, body, &p)
	if p.Nickname != "Rook Lifter" || p.Level != 1 || p.Rank != "Pawn" || p.WinRate != nil {
		t.Fatalf("unexpected profile %+v", p)
	}

	status, body = do(t, s, "POST", "/profile", `{"nickname":"Another"}`)
	expectError(t, status, body, fasthttp.StatusConflict, "profile_exists")

	status, body = do(t, s, "POST", "/profile/cosmetic", `{"name":"Neon"}`)
	de := expectError(t, status, body, fasthttp.StatusUnprocessableEntity, "cosmetic_locked")
	if de.Message != "Neon is not unlocked yet." {
		t.Fatalf("unexpected message %q", de.Message)
	}

	if status, _ = do(t, s, "DELETE", "/profile", ""); status != fasthttp.StatusNoContent {
		t.Fatalf("delete status %d", status)
	}
	status, body = do(t, s, "GET", "/profile", "")
	expectError(t, status, body, fasthttp.StatusNotFound, "profile_not_found")
}

func TestMatchFlowThroughHandlers(t *testing.T) {
	s := newTestServer(t, &queueOpponent{replies: []string{"e7e5", "b8c6", "g8f6"}})

	status, body := do(t, s, "POST", "/match", `{"strength":"beginner"}`)
	expectError(t, status, body, fasthttp.StatusNotFound, "profile_not_found")

	if status, body = do(t, s, "POST", "/profile", `{"nickname":"Scholar"}`); status != fasthttp.StatusCreated {
		t.Fatalf("create profile %d %s", status, body)
	}

	status, body = do(t, s, "POST", "/match/move", `{"from":"e2","to":"e4"}`)
	expectError(t, status, body, fasthttp.StatusConflict, "not_started")

	status, body = do(t, s, "POST", "/match", `{"strength":"godlike"}`)
	expectError(t, status, body, fasthttp.StatusBadRequest, "unknown_strength")

	status, body = do(t, s, "POST", "/match", `{"strength":"beginner"}`)
	if status != fasthttp.StatusCreated {
		t.Fatalf("start status %d %s", status, body)
	}
	var st matchdto.MatchState
	decodeInto(t, body, &st)
	if st.Phase != "active" || st.Turn != "human" || st.Strength != "beginner" {
		t.Fatalf("unexpected start state %+v", st)
	}

	status, body = do(t, s, "GET", "/match/moves?square=e2", "")
	var dests matchdto.Destinations
	decodeInto(t, body, &dests)
	if status != fasthttp.StatusOK || len(dests.Targets) != 2 {
		t.Fatalf("destinations %d %+v", status, dests)
	}
	status, body = do(t, s, "GET", "/match/moves", "")
	expectError(t, status, body, fasthttp.StatusBadRequest, "bad_request")

	status, body = do(t, s, "POST", "/match/move", `{"from":"e2","to":"e5"}`)
	expectError(t, status, body, fasthttp.StatusUnprocessableEntity, "illegal_move")

	status, body = do(t, s, "GET", "/match/report", "")
	expectError(t, status, body, fasthttp.StatusNotFound, "no_report")

	for _, mv := range []string{`{"from":"e2","to":"e4"}`, `{"from":"f1","to":"c4"}`, `{"from":"d1","to":"h5"}`} {
		status, body = do(t, s, "POST", "/match/move?wait=1", mv)
		if status != fasthttp.StatusOK {
			t.Fatalf("move %s: %d %s", mv, status, body)
		}
		var res matchdto.MoveResult
		decodeInto(t, body, &res)
		if res.State == nil || res.State.OpponentPending || res.State.Turn != "human" {
			t.Fatalf("opponent did not answer %s: %+v", mv, res.State)
		}
	}

	status, body = do(t, s, "POST", "/match/move", `{"from":"h5","to":"f7"}`)
	var res matchdto.MoveResult
	decodeInto(t, body, &res)
	if status != fasthttp.StatusOK || res.Status != "checkmate" || res.Captured != "p" || res.Points != 10 {
		t.Fatalf("mating move %d %+v", status, res)
	}

	status, body = do(t, s, "POST", "/match/move", `{"from":"e1","to":"e2"}`)
	expectError(t, status, body, fasthttp.StatusConflict, "match_over")

	status, body = do(t, s, "GET", "/match/report", "")
	if status != fasthttp.StatusOK {
		t.Fatalf("report status %d %s", status, body)
	}
	var rep matchdto.Report
	decodeInto(t, body, &rep)
	if rep.Result != "win" || rep.ExperienceGained != 1 || !rep.Persisted || len(rep.Summary) == 0 {
		t.Fatalf("unexpected report %+v", rep)
	}

	status, body = do(t, s, "GET", "/profile", "")
	var p matchdto.Profile
	decodeInto(t, body, &p)
	if status != fasthttp.StatusOK || p.Wins != 1 || p.GamesPlayed != 1 || p.WinRate == nil || *p.WinRate != 100 {
		t.Fatalf("profile after win %d %+v", status, p)
	}
}

func TestOpponentFailureIsRetryable(t *testing.T) {
	opp := &queueOpponent{replies: []string{"e7e5"}, errs: []error{uci.ErrSearchTimeout}}
	s := newTestServer(t, opp)
	do(t, s, "POST", "/profile", `{"nickname":"Patient"}`)
	do(t, s, "POST", "/match", "")

	status, body := do(t, s, "POST", "/match/move?wait=true", `{"from":"e2","to":"e4"}`)
	var res matchdto.MoveResult
	decodeInto(t, body, &res)
	if status != fasthttp.StatusOK || res.State.OpponentError == "" || res.State.Turn != "opponent" {
		t.Fatalf("expected recorded opponent failure, got %d %+v", status, res.State)
	}

	status, body = do(t, s, "POST", "/match/move", `{"from":"d2","to":"d4"}`)
	expectError(t, status, body, fasthttp.StatusConflict, "not_your_turn")

	status, body = do(t, s, "POST", "/match/retry?wait=1", "")
	var st matchdto.MatchState
	decodeInto(t, body, &st)
	if status != fasthttp.StatusAccepted || st.Turn != "human" || st.OpponentError != "" || len(st.Moves) != 2 {
		t.Fatalf("retry result %d %+v", status, st)
	}
}

func TestDomainErrorMapping(t *testing.T) {
	cases := []struct {
		err       error
		status    int
		code      string
		retryable bool
	}{
		{uci.ErrSearchTimeout, fasthttp.StatusServiceUnavailable, "opponent_timeout", true},
		{uci.ErrNoLegalMoves, fasthttp.StatusServiceUnavailable, "opponent_no_moves", false},
		{uci.ErrEngineBusy, fasthttp.StatusConflict, "engine_busy", true},
		{account.ErrQuotaExceeded, fasthttp.StatusInsufficientStorage, "storage_quota", false},
		{context.DeadlineExceeded, fasthttp.StatusInternalServerError, "internal", false},
	}
	s := newTestServer(t, &queueOpponent{})
	for _, tc := range cases {
		status, de := toDomainError(s.formatter.Catalog(), tc.err, nil)
		if status != tc.status || de.Code != tc.code || de.Retryable != tc.retryable {
			t.Fatalf("%v: got %d %+v", tc.err, status, de)
		}
	}
}
