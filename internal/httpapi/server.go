// Package httpapi exposes the arena over a JSON HTTP API served by fasthttp.
package httpapi

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/park285/chess-ascension/internal/account"
	"github.com/park285/chess-ascension/internal/adapter/matchpresenter"
	"github.com/park285/chess-ascension/internal/match"
	"github.com/park285/chess-ascension/internal/matchend"
	"github.com/park285/chess-ascension/pkg/matchdto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	maxBodyBytes    = 4 << 10
)

// Arena is the application surface the handlers drive.
type Arena interface {
	Profile(ctx context.Context) (account.Record, error)
	CreateProfile(ctx context.Context, nickname string) (account.Record, error)
	DeleteProfile(ctx context.Context) error
	SelectCosmetic(ctx context.Context, name string) (account.Record, error)
	StorageError() error
	StartMatch(ctx context.Context, strength string) (match.Snapshot, error)
	Move(from, to, promotion string) (match.MoveReport, error)
	Match() match.Snapshot
	Destinations(square string) ([]string, error)
	RetryOpponent() error
	AwaitOpponent(ctx context.Context) error
	LastReport() (matchend.Report, bool)
}

type Config struct {
	// RequestTimeout bounds store access and opponent waits per request.
	RequestTimeout time.Duration
}

type Server struct {
	arena     Arena
	formatter *matchpresenter.Formatter
	cfg       Config
	logger    *zap.Logger
	srv       *fasthttp.Server
}

func NewServer(a Arena, formatter *matchpresenter.Formatter, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if formatter == nil {
		formatter = matchpresenter.NewFormatter(nil)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	s := &Server{arena: a, formatter: formatter, cfg: cfg, logger: logger}
	s.srv = &fasthttp.Server{
		Handler:            s.Handler,
		Name:               "chess-ascension",
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       cfg.RequestTimeout + 5*time.Second,
		MaxRequestBodySize: maxBodyBytes,
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("http listening", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

// Handler routes a request. It is exported so tests can drive a bare RequestCtx.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	method := string(ctx.Method())
	path := strings.TrimRight(string(ctx.Path()), "/")

	switch path {
	case "/healthz":
		s.only(ctx, method, fasthttp.MethodGet, s.health)
	case "/profile":
		switch method {
		case fasthttp.MethodGet:
			s.getProfile(ctx)
		case fasthttp.MethodPost:
			s.createProfile(ctx)
		case fasthttp.MethodDelete:
			s.deleteProfile(ctx)
		default:
			s.methodNotAllowed(ctx)
		}
	case "/profile/cosmetic":
		s.only(ctx, method, fasthttp.MethodPost, s.selectCosmetic)
	case "/match":
		switch method {
		case fasthttp.MethodGet:
			s.getMatch(ctx)
		case fasthttp.MethodPost:
			s.startMatch(ctx)
		default:
			s.methodNotAllowed(ctx)
		}
	case "/match/move":
		s.only(ctx, method, fasthttp.MethodPost, s.move)
	case "/match/moves":
		s.only(ctx, method, fasthttp.MethodGet, s.destinations)
	case "/match/retry":
		s.only(ctx, method, fasthttp.MethodPost, s.retry)
	case "/match/report":
		s.only(ctx, method, fasthttp.MethodGet, s.report)
	default:
		s.writeJSON(ctx, fasthttp.StatusNotFound, matchdto.DomainError{
			Code:    "not_found",
			Message: s.formatter.Catalog().Text("errors.not_found", nil),
		})
	}

	s.logger.Debug("http request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", ctx.Response.StatusCode()),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (s *Server) only(ctx *fasthttp.RequestCtx, method, want string, h fasthttp.RequestHandler) {
	if method != want {
		s.methodNotAllowed(ctx)
		return
	}
	h(ctx)
}

func (s *Server) methodNotAllowed(ctx *fasthttp.RequestCtx) {
	s.writeJSON(ctx, fasthttp.StatusMethodNotAllowed, matchdto.DomainError{
		Code:    "method_not_allowed",
		Message: s.formatter.Catalog().Text("errors.method_not_allowed", nil),
	})
}

func (s *Server) health(ctx *fasthttp.RequestCtx) {
	s.writeJSON(ctx, fasthttp.StatusOK, matchdto.Health{Status: "ok"})
}

func (s *Server) getProfile(ctx *fasthttp.RequestCtx) {
	rctx, cancel := s.requestContext()
	defer cancel()
	rec, err := s.arena.Profile(rctx)
	if err != nil {
		s.writeError(ctx, err, nil)
		return
	}
	s.writeProfile(ctx, fasthttp.StatusOK, rec)
}

func (s *Server) createProfile(ctx *fasthttp.RequestCtx) {
	var req matchdto.CreateProfileRequest
	if err := decodeBody(ctx, &req); err != nil {
		s.writeError(ctx, err, nil)
		return
	}
	rctx, cancel := s.requestContext()
	defer cancel()
	rec, err := s.arena.CreateProfile(rctx, req.Nickname)
	if err != nil {
		s.writeError(ctx, err, nil)
		return
	}
	s.writeProfile(ctx, fasthttp.StatusCreated, rec)
}

func (s *Server) deleteProfile(ctx *fasthttp.RequestCtx) {
	rctx, cancel := s.requestContext()
	defer cancel()
	if err := s.arena.DeleteProfile(rctx); err != nil {
		s.writeError(ctx, err, nil)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) selectCosmetic(ctx *fasthttp.RequestCtx) {
	var req matchdto.SelectCosmeticRequest
	if err := decodeBody(ctx, &req); err != nil {
		s.writeError(ctx, err, nil)
		return
	}
	rctx, cancel := s.requestContext()
	defer cancel()
	rec, err := s.arena.SelectCosmetic(rctx, req.Name)
	if err != nil {
		s.writeError(ctx, err, map[string]any{"Name": req.Name})
		return
	}
	s.writeProfile(ctx, fasthttp.StatusOK, rec)
}

func (s *Server) startMatch(ctx *fasthttp.RequestCtx) {
	var req matchdto.StartMatchRequest
	if len(ctx.PostBody()) > 0 {
		if err := decodeBody(ctx, &req); err != nil {
			s.writeError(ctx, err, nil)
			return
		}
	}
	rctx, cancel := s.requestContext()
	defer cancel()
	snap, err := s.arena.StartMatch(rctx, req.Strength)
	if err != nil {
		s.writeError(ctx, err, nil)
		return
	}
	s.writeJSON(ctx, fasthttp.StatusCreated, matchpresenter.ToDTOState(snap))
}

func (s *Server) getMatch(ctx *fasthttp.RequestCtx) {
	s.writeJSON(ctx, fasthttp.StatusOK, matchpresenter.ToDTOState(s.arena.Match()))
}

// move applies a human move. With ?wait=1 the response is held until the
// opponent has answered or the request timeout passes.
func (s *Server) move(ctx *fasthttp.RequestCtx) {
	var req matchdto.MoveRequest
	if err := decodeBody(ctx, &req); err != nil {
		s.writeError(ctx, err, nil)
		return
	}
	if req.From == "" || req.To == "" {
		s.writeError(ctx, badRequest("from and to are required"), nil)
		return
	}
	report, err := s.arena.Move(req.From, req.To, req.Promotion)
	if err != nil {
		s.writeError(ctx, err, nil)
		return
	}
	if wantsWait(ctx) {
		rctx, cancel := s.requestContext()
		if werr := s.arena.AwaitOpponent(rctx); werr != nil {
			s.logger.Debug("opponent wait ended early", zap.Error(werr))
		}
		cancel()
	}
	s.writeJSON(ctx, fasthttp.StatusOK, matchpresenter.ToDTOMove(report, s.arena.Match()))
}

func (s *Server) destinations(ctx *fasthttp.RequestCtx) {
	square := strings.TrimSpace(string(ctx.QueryArgs().Peek("square")))
	if square == "" {
		s.writeError(ctx, badRequest("square is required"), nil)
		return
	}
	targets, err := s.arena.Destinations(square)
	if err != nil {
		s.writeError(ctx, err, nil)
		return
	}
	if targets == nil {
		targets = []string{}
	}
	s.writeJSON(ctx, fasthttp.StatusOK, matchdto.Destinations{Square: square, Targets: targets})
}

func (s *Server) retry(ctx *fasthttp.RequestCtx) {
	if err := s.arena.RetryOpponent(); err != nil {
		s.writeError(ctx, err, nil)
		return
	}
	if wantsWait(ctx) {
		rctx, cancel := s.requestContext()
		_ = s.arena.AwaitOpponent(rctx)
		cancel()
	}
	s.writeJSON(ctx, fasthttp.StatusAccepted, matchpresenter.ToDTOState(s.arena.Match()))
}

func (s *Server) report(ctx *fasthttp.RequestCtx) {
	r, ok := s.arena.LastReport()
	if !ok {
		s.writeJSON(ctx, fasthttp.StatusNotFound, matchdto.DomainError{
			Code:    "no_report",
			Message: s.formatter.Catalog().Text("errors.no_report", nil),
		})
		return
	}
	s.writeJSON(ctx, fasthttp.StatusOK, matchpresenter.ToDTOReport(r, s.formatter.Summary(r)))
}

func (s *Server) writeProfile(ctx *fasthttp.RequestCtx, status int, rec account.Record) {
	warning := storageWarning(s.formatter.Catalog(), s.arena.StorageError())
	s.writeJSON(ctx, status, matchpresenter.ToDTOProfile(rec, warning))
}

func (s *Server) writeError(ctx *fasthttp.RequestCtx, err error, data map[string]any) {
	status, body := toDomainError(s.formatter.Catalog(), err, data)
	if status >= fasthttp.StatusInternalServerError {
		s.logger.Warn("request failed", zap.String("path", string(ctx.Path())), zap.String("code", body.Code), zap.Error(err))
	}
	s.writeJSON(ctx, status, body)
}

func (s *Server) writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode response", zap.Error(err))
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType(contentTypeJSON)
	ctx.SetBody(b)
}

func (s *Server) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
}

func decodeBody(ctx *fasthttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return badRequest("empty body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return badRequest(err.Error())
	}
	return nil
}

func wantsWait(ctx *fasthttp.RequestCtx) bool {
	switch strings.ToLower(string(ctx.QueryArgs().Peek("wait"))) {
	case "1", "true", "yes":
		return true
	}
	return false
}
