// Package daily persists the calendar-day request log under a single key.
package daily

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/replyguard/internal/db"
	"github.com/kailas-cloud/replyguard/internal/domain/quota"
)

// ErrCorruptRecord is quota.ErrCorruptRecord, so the tracker can tell a bad
// payload from an unreachable backend.
var ErrCorruptRecord = quota.ErrCorruptRecord

const keySuffix = "daily_requests"

// store is the consumer interface for record persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Store reads and writes the daily record on top of a KV backend.
type Store struct {
	store store
	key   string
	ttl   time.Duration
}

// New creates a daily record store.
// ttl bounds how long a stale record lingers once nobody writes it (recommended: 48h).
func New(s store, keyPrefix string, ttl time.Duration) *Store {
	return &Store{
		store: s,
		key:   keyPrefix + keySuffix,
		ttl:   ttl,
	}
}

// Key returns the storage key.
func (s *Store) Key() string { return s.key }

// Load returns the stored record. ok is false when nothing is stored.
func (s *Store) Load(ctx context.Context) (quota.DailyRecord, bool, error) {
	data, err := s.store.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return quota.DailyRecord{}, false, nil
		}
		return quota.DailyRecord{}, false, fmt.Errorf("daily GET %s: %w", s.key, err)
	}

	var dto recordDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return quota.DailyRecord{}, false, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	rec, err := fromDTO(dto)
	if err != nil {
		return quota.DailyRecord{}, false, err
	}
	return rec, true, nil
}

// Save overwrites the stored record.
func (s *Store) Save(ctx context.Context, rec quota.DailyRecord) error {
	data, err := json.Marshal(toDTO(rec))
	if err != nil {
		return fmt.Errorf("daily encode: %w", err)
	}
	if err := s.store.SetWithTTL(ctx, s.key, data, s.ttl); err != nil {
		return fmt.Errorf("daily SET %s: %w", s.key, err)
	}
	return nil
}
