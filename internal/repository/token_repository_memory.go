package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/auth-gate/internal/domain"
)

// memoryTokenRepository keeps records in process memory. Records are copied on
// the way in and out so callers never share state with the store.
type memoryTokenRepository struct {
	mu      sync.RWMutex
	records map[string]domain.TokenRecord
	now     func() time.Time
}

// NewMemoryTokenRepository returns an in-process registry for tests and development.
func NewMemoryTokenRepository() TokenRepository {
	return &memoryTokenRepository{
		records: make(map[string]domain.TokenRecord),
		now:     time.Now,
	}
}

func (r *memoryTokenRepository) Create(ctx context.Context, record *domain.TokenRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.Token]; exists {
		return ErrTokenExists
	}
	if record.ID == "" {
		record.ID = newID()
	}
	record.CreatedAt = r.now()
	r.records[record.Token] = cloneRecord(*record)
	return nil
}

func (r *memoryTokenRepository) GetByToken(ctx context.Context, token string) (*domain.TokenRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	out := cloneRecord(record)
	return &out, nil
}

func (r *memoryTokenRepository) Touch(ctx context.Context, record *domain.TokenRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.records[record.Token]
	if !ok {
		return ErrTokenNotFound
	}
	now := r.now()
	if stored.LastUsedAt == nil || stored.LastUsedAt.Before(now) {
		stored.LastUsedAt = &now
		r.records[record.Token] = stored
	}
	lastUsed := *stored.LastUsedAt
	record.LastUsedAt = &lastUsed
	return nil
}

func (r *memoryTokenRepository) DeleteByToken(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[token]; !ok {
		return ErrTokenNotFound
	}
	delete(r.records, token)
	return nil
}

func (r *memoryTokenRepository) DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for token, record := range r.records {
		if record.ExpiresAt.Before(before) {
			delete(r.records, token)
			removed++
		}
	}
	return removed, nil
}

func cloneRecord(record domain.TokenRecord) domain.TokenRecord {
	if record.LastUsedAt != nil {
		lastUsed := *record.LastUsedAt
		record.LastUsedAt = &lastUsed
	}
	return record
}

func newID() string {
	return uuid.NewString()
}
