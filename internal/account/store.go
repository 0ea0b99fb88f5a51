package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("account not found")
	ErrQuotaExceeded = errors.New("account storage quota exceeded")
	ErrUnavailable   = errors.New("account storage unavailable")
	ErrCorrupt       = errors.New("account record corrupt")
)

// Store persists account records keyed by id.
type Store interface {
	Load(ctx context.Context, id string) (Record, error)
	Save(ctx context.Context, rec Record) error
	Clear(ctx context.Context, id string) error
}

func encodeRecord(rec Record) ([]byte, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal account: %w", err)
	}
	return raw, nil
}

func decodeRecord(raw []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if strings.TrimSpace(rec.Nickname) == "" {
		return Record{}, fmt.Errorf("%w: missing nickname", ErrCorrupt)
	}
	return rec, nil
}
