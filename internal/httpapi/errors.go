package httpapi

import (
	"errors"

	"github.com/park285/chess-ascension/internal/account"
	"github.com/park285/chess-ascension/internal/chess"
	"github.com/park285/chess-ascension/internal/chess/uci"
	"github.com/park285/chess-ascension/internal/match"
	"github.com/park285/chess-ascension/internal/msgcat"
	"github.com/park285/chess-ascension/internal/service/arena"
	"github.com/park285/chess-ascension/pkg/matchdto"
	"github.com/valyala/fasthttp"
)

type errorRule struct {
	target    error
	status    int
	code      string
	retryable bool
}

// First match wins.
var errorRules = []errorRule{
	{match.ErrNotYourTurn, fasthttp.StatusConflict, "not_your_turn", false},
	{match.ErrEngineBusy, fasthttp.StatusConflict, "engine_busy", true},
	{uci.ErrEngineBusy, fasthttp.StatusConflict, "engine_busy", true},
	{match.ErrMatchOver, fasthttp.StatusConflict, "match_over", false},
	{match.ErrNotStarted, fasthttp.StatusConflict, "not_started", false},
	{arena.ErrProfileExists, fasthttp.StatusConflict, "profile_exists", false},
	{match.ErrIllegalMove, fasthttp.StatusUnprocessableEntity, "illegal_move", false},
	{account.ErrInvalidNickname, fasthttp.StatusUnprocessableEntity, "invalid_nickname", false},
	{account.ErrCosmeticLocked, fasthttp.StatusUnprocessableEntity, "cosmetic_locked", false},
	{chess.ErrUnknownStrength, fasthttp.StatusBadRequest, "unknown_strength", false},
	{account.ErrNotFound, fasthttp.StatusNotFound, "profile_not_found", false},
	{uci.ErrSearchTimeout, fasthttp.StatusServiceUnavailable, "opponent_timeout", true},
	{uci.ErrNoLegalMoves, fasthttp.StatusServiceUnavailable, "opponent_no_moves", false},
	{uci.ErrInitTimeout, fasthttp.StatusServiceUnavailable, "opponent_unavailable", true},
	{uci.ErrEngineExited, fasthttp.StatusServiceUnavailable, "opponent_unavailable", true},
	{uci.ErrCanceled, fasthttp.StatusServiceUnavailable, "opponent_unavailable", true},
	{chess.ErrOpponentClosed, fasthttp.StatusServiceUnavailable, "opponent_unavailable", false},
	{account.ErrQuotaExceeded, fasthttp.StatusInsufficientStorage, "storage_quota", false},
	{account.ErrUnavailable, fasthttp.StatusServiceUnavailable, "storage_unavailable", true},
	{match.ErrClosed, fasthttp.StatusServiceUnavailable, "internal", false},
}

// toDomainError maps err to an HTTP status and a catalog-backed error body.
func toDomainError(cat *msgcat.Catalog, err error, data map[string]any) (int, matchdto.DomainError) {
	var bad badRequestError
	if errors.As(err, &bad) {
		return fasthttp.StatusBadRequest, matchdto.DomainError{
			Code:    "bad_request",
			Message: cat.Text("errors.bad_request", map[string]any{"Detail": bad.detail}),
		}
	}
	for _, r := range errorRules {
		if errors.Is(err, r.target) {
			return r.status, matchdto.DomainError{
				Code:      r.code,
				Message:   cat.Text("errors."+r.code, data),
				Retryable: r.retryable,
			}
		}
	}
	return fasthttp.StatusInternalServerError, matchdto.DomainError{
		Code:    "internal",
		Message: cat.Text("errors.internal", nil),
	}
}

type badRequestError struct{ detail string }

func (e badRequestError) Error() string { return "bad request: " + e.detail }

func badRequest(detail string) error { return badRequestError{detail: detail} }

// storageWarning renders a non-fatal persistence failure for profile bodies.
func storageWarning(cat *msgcat.Catalog, err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, account.ErrQuotaExceeded) {
		return cat.Text("errors.storage_quota", nil)
	}
	return cat.Text("errors.storage_unavailable", nil)
}
