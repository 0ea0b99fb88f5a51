package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park285/chess-ascension/internal/obslog"
	"github.com/park285/chess-ascension/internal/progression"
	"go.uber.org/zap"
)

// Manager binds a Store to one account id and a progression curve.
type Manager struct {
	store  Store
	id     string
	curve  progression.Curve
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(store Store, id string, curve progression.Curve) *Manager {
	if id == "" {
		id = "local"
	}
	return &Manager{
		store:  store,
		id:     id,
		curve:  curve,
		logger: obslog.L().Named("account"),
		now:    time.Now,
	}
}

func (m *Manager) Curve() progression.Curve { return m.curve }

// Load returns the account with derived fields recomputed. A corrupt record is
// logged and reported as ErrNotFound. An unreachable store also reads as
// ErrNotFound, with ErrUnavailable kept in the chain.
func (m *Manager) Load(ctx context.Context) (Record, error) {
	rec, err := m.store.Load(ctx, m.id)
	if err != nil {
		switch {
		case errors.Is(err, ErrCorrupt):
			m.logger.Warn("discarding corrupt account record", zap.String("account_id", m.id), zap.Error(err))
			return Record{}, ErrNotFound
		case errors.Is(err, ErrUnavailable):
			m.logger.Warn("account storage unreachable; treating as no account", zap.String("account_id", m.id), zap.Error(err))
			return Record{}, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return Record{}, err
	}
	rec.ID = m.id
	return rec.Recompute(m.curve), nil
}

// Draft builds a new account without saving it.
func (m *Manager) Draft(nickname string) (Record, error) {
	return NewRecord(m.id, nickname, m.curve, m.now())
}

func (m *Manager) Create(ctx context.Context, nickname string) (Record, error) {
	rec, err := m.Draft(nickname)
	if err != nil {
		return Record{}, err
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return rec, err
	}
	m.logger.Info("account created", zap.String("account_id", m.id), zap.String("nickname", rec.Nickname))
	return rec, nil
}

func (m *Manager) Save(ctx context.Context, rec Record) error {
	rec.ID = m.id
	rec.UpdatedAt = m.now()
	return m.store.Save(ctx, rec)
}

func (m *Manager) Clear(ctx context.Context) error {
	return m.store.Clear(ctx, m.id)
}
