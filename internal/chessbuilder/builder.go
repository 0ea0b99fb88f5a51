package chessbuilder

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/park285/chess-ascension/internal/account"
	"github.com/park285/chess-ascension/internal/adapter/matchpresenter"
	corechess "github.com/park285/chess-ascension/internal/chess"
	"github.com/park285/chess-ascension/internal/chess/rules"
	"github.com/park285/chess-ascension/internal/chess/uci"
	"github.com/park285/chess-ascension/internal/config"
	"github.com/park285/chess-ascension/internal/httpapi"
	"github.com/park285/chess-ascension/internal/msgcat"
	"github.com/park285/chess-ascension/internal/progression"
	"github.com/park285/chess-ascension/internal/service/arena"
	"go.uber.org/zap"
)

const storeConnectTimeout = 5 * time.Second

type Deps struct {
	Arena    *arena.Service
	Opponent *corechess.Opponent
	Store    account.Store
	Server   *httpapi.Server
	Curve    progression.Curve

	closers []io.Closer
}

// New wires the application from cfg. The engine process starts lazily on
// the first opponent request.
func New(cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.StockfishPath) == "" {
		return nil, fmt.Errorf("STOCKFISH_PATH is required for the opponent engine")
	}

	curve, err := BuildCurve(cfg)
	if err != nil {
		return nil, err
	}

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	deps := &Deps{Curve: curve}

	store, closer, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	deps.Store = store
	if closer != nil {
		deps.closers = append(deps.closers, closer)
	}

	opponent := corechess.NewOpponent(corechess.BinaryLauncher(cfg.StockfishPath), uci.Options{
		Threads:       cfg.EngineThreads,
		HashMB:        cfg.EngineHashMB,
		InitTimeout:   cfg.EngineInitTimeout,
		SearchTimeout: cfg.EngineSearchTimeout,
	})
	opponent.SetLogger(logger.Named("opponent"))
	deps.Opponent = opponent

	strength, err := corechess.ParseStrength(cfg.DefaultStrength)
	if err != nil {
		logger.Warn("unknown DEFAULT_STRENGTH; using intermediate", zap.String("value", cfg.DefaultStrength))
	}

	accounts := account.NewManager(store, cfg.ProfileID, curve)
	deps.Arena = arena.NewService(accounts, rules.New(), opponent, arena.Config{DefaultStrength: strength}, logger.Named("arena"))
	deps.Server = httpapi.NewServer(deps.Arena, matchpresenter.NewFormatter(catalog), httpapi.Config{
		RequestTimeout: cfg.EngineSearchTimeout + 5*time.Second,
	}, logger.Named("http"))

	logger.Info("dependencies ready",
		zap.String("profile_store", cfg.ProfileStore),
		zap.String("curve", curve.Name),
		zap.Int("level_step", curve.LevelStep),
		zap.String("default_strength", string(strength)),
	)
	return deps, nil
}

// BuildCurve resolves the named curve and applies PROGRESSION_FILE on top.
func BuildCurve(cfg *config.AppConfig) (progression.Curve, error) {
	curve, err := progression.Named(cfg.ProgressionCurve)
	if err != nil {
		return progression.Curve{}, err
	}
	if cfg.ProgressionFile == "" {
		return curve, nil
	}
	return progression.LoadCurve(cfg.ProgressionFile, curve)
}

func openStore(cfg *config.AppConfig) (account.Store, io.Closer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
	defer cancel()

	switch cfg.ProfileStore {
	case config.StoreRedis:
		s, err := account.NewRedisStoreFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("init redis store: %w", err)
		}
		return s, s, nil
	case config.StorePostgres:
		s, err := account.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		return s, s, nil
	default:
		return account.NewMemoryStore(), nil, nil
	}
}

// Close stops the arena, terminates the engine process and releases stores.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var first error
	if d.Arena != nil {
		d.Arena.Close()
	}
	if d.Opponent != nil {
		if err := d.Opponent.Close(); err != nil {
			first = err
		}
	}
	for _, c := range d.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
