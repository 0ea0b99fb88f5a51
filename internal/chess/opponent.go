package chess

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/park285/chess-ascension/internal/chess/uci"
	"github.com/park285/chess-ascension/internal/obslog"
	"go.uber.org/zap"
)

var ErrOpponentClosed = errors.New("opponent closed")

// Engine is the part of uci.Session the opponent drives.
type Engine interface {
	Search(ctx context.Context, req uci.SearchRequest) (uci.SearchResponse, error)
	SetOption(name, value string) error
	NewGame(ctx context.Context) error
	Close() error
}

// Launcher starts a ready engine.
type Launcher func(ctx context.Context, opt uci.Options) (Engine, error)

// BinaryLauncher runs the UCI binary at path.
func BinaryLauncher(path string) Launcher {
	return func(ctx context.Context, opt uci.Options) (Engine, error) {
		s, err := uci.NewSession(ctx, path, opt)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

type Reply struct {
	Move     string
	Depth    int
	EvalCP   int
	Duration time.Duration
}

// Opponent owns one engine process. The process starts on first use and is
// relaunched after it exits.
type Opponent struct {
	launch Launcher
	opt    uci.Options
	logger *zap.Logger

	mu       sync.Mutex
	engine   Engine
	skill    int
	inflight bool
	closed   bool
}

func NewOpponent(launch Launcher, opt uci.Options) *Opponent {
	return &Opponent{
		launch: launch,
		opt:    opt,
		logger: obslog.L().Named("opponent"),
		skill:  -1,
	}
}

func (o *Opponent) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	o.logger = l
}

// Start launches the engine eagerly so handshake failures surface at boot.
func (o *Opponent) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.engineLocked(ctx)
	return err
}

func (o *Opponent) engineLocked(ctx context.Context) (Engine, error) {
	if o.closed {
		return nil, ErrOpponentClosed
	}
	if o.engine != nil {
		return o.engine, nil
	}
	eng, err := o.launch(ctx, o.opt)
	if err != nil {
		return nil, fmt.Errorf("launch engine: %w", err)
	}
	o.engine = eng
	o.skill = o.opt.SkillLevel
	return eng, nil
}

// RequestMove asks the engine for a move in the FEN position at the given
// strength. Only one request may be in flight.
func (o *Opponent) RequestMove(ctx context.Context, fen string, strength Strength) (Reply, error) {
	preset := strength.Preset()

	eng, err := o.begin(ctx, preset)
	if err != nil {
		return Reply{}, err
	}
	defer o.end()

	resp, err := eng.Search(ctx, uci.SearchRequest{FEN: fen, Limits: preset.limits()})
	if err != nil {
		if errors.Is(err, uci.ErrEngineExited) {
			o.discard(eng)
		}
		return Reply{}, err
	}

	o.logger.Debug("opponent move",
		zap.String("strength", string(preset.Strength)),
		zap.String("move", resp.BestMove),
		zap.Int("depth", resp.Info.Depth),
		zap.Int("eval_cp", resp.Info.EvalCP),
		zap.Duration("took", resp.Duration),
	)
	return Reply{
		Move:     resp.BestMove,
		Depth:    resp.Info.Depth,
		EvalCP:   resp.Info.EvalCP,
		Duration: resp.Duration,
	}, nil
}

func (o *Opponent) begin(ctx context.Context, preset Preset) (Engine, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight {
		return nil, uci.ErrEngineBusy
	}
	eng, err := o.engineLocked(ctx)
	if err != nil {
		return nil, err
	}
	if o.skill != preset.SkillLevel {
		if err := eng.SetOption("Skill Level", strconv.Itoa(preset.SkillLevel)); err != nil {
			return nil, fmt.Errorf("set skill level: %w", err)
		}
		o.skill = preset.SkillLevel
	}
	o.inflight = true
	return eng, nil
}

func (o *Opponent) end() {
	o.mu.Lock()
	o.inflight = false
	o.mu.Unlock()
}

func (o *Opponent) discard(eng Engine) {
	o.mu.Lock()
	if o.engine == eng {
		o.engine = nil
		o.skill = -1
	}
	o.mu.Unlock()
	o.logger.Warn("engine exited; will relaunch on next request")
	_ = eng.Close()
}

// NewGame resets engine-side state between matches. A missing engine is not
// started here.
func (o *Opponent) NewGame(ctx context.Context) error {
	o.mu.Lock()
	eng := o.engine
	o.mu.Unlock()
	if eng == nil {
		return nil
	}
	return eng.NewGame(ctx)
}

// Close terminates the engine; an in-flight request fails with uci.ErrCanceled.
func (o *Opponent) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	eng := o.engine
	o.engine = nil
	o.mu.Unlock()
	if eng == nil {
		return nil
	}
	return eng.Close()
}
