package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bejimenez/magus/internal/domain"
	"github.com/bejimenez/magus/internal/repositories"
)

const defaultListLimit = 20

// NameRepository is an in-process GeneratedNameRepository used when Firestore is disabled.
type NameRepository struct {
	mu    sync.RWMutex
	names map[string]domain.StoredName
	now   func() time.Time
}

var _ repositories.GeneratedNameRepository = (*NameRepository)(nil)

// NewNameRepository constructs an empty repository. A nil clock uses time.Now.
func NewNameRepository(now func() time.Time) *NameRepository {
	if now == nil {
		now = time.Now
	}
	return &NameRepository{names: make(map[string]domain.StoredName), now: now}
}

func (r *NameRepository) RecordUsage(ctx context.Context, record domain.NameRecord) (domain.StoredName, error) {
	if err := ctx.Err(); err != nil {
		return domain.StoredName{}, err
	}
	id, err := nameKey(record.Culture, record.Name)
	if err != nil {
		return domain.StoredName{}, err
	}
	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.names[id]
	if !ok {
		stored = domain.StoredName{
			ID:        id,
			Name:      record.Name,
			Culture:   strings.ToLower(record.Culture),
			Gender:    record.Gender,
			Syllables: append([]string(nil), record.Syllables...),
			Score:     record.Score,
			CreatedAt: now,
		}
	}
	stored.UsageCount++
	stored.UpdatedAt = now
	r.names[id] = stored
	return cloneStored(stored), nil
}

func (r *NameRepository) Get(ctx context.Context, culture, name string) (domain.StoredName, error) {
	id, err := nameKey(culture, name)
	if err != nil {
		return domain.StoredName{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.names[id]
	if !ok {
		return domain.StoredName{}, repositories.NewNotFoundError("names.get", fmt.Errorf("name %s not found", id))
	}
	return cloneStored(stored), nil
}

func (r *NameRepository) ListByCulture(ctx context.Context, culture string, limit int) ([]domain.StoredName, error) {
	culture = strings.ToLower(strings.TrimSpace(culture))
	if culture == "" {
		return nil, errors.New("names: culture is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	r.mu.RLock()
	out := make([]domain.StoredName, 0)
	for _, stored := range r.names {
		if stored.Culture == culture {
			out = append(out, cloneStored(stored))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func nameKey(culture, name string) (string, error) {
	culture = strings.ToLower(strings.TrimSpace(culture))
	name = strings.ToLower(strings.TrimSpace(name))
	if culture == "" || name == "" {
		return "", errors.New("names: culture and name are required")
	}
	return culture + "_" + name, nil
}

func cloneStored(stored domain.StoredName) domain.StoredName {
	stored.Syllables = append([]string(nil), stored.Syllables...)
	return stored
}
