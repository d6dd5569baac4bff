package firestore

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bejimenez/magus/internal/domain"
	pfirestore "github.com/bejimenez/magus/internal/platform/firestore"
	"github.com/bejimenez/magus/internal/repositories"
)

const defaultRequestLogCollection = "name_requests"

type requestLogDocument struct {
	RequestID      string    `firestore:"requestId"`
	Culture        string    `firestore:"culture"`
	Gender         string    `firestore:"gender,omitempty"`
	Count          int       `firestore:"count"`
	Returned       int       `firestore:"returned"`
	MinScore       float64   `firestore:"minScore"`
	ResponseTimeMs float64   `firestore:"responseTimeMs"`
	CacheHit       bool      `firestore:"cacheHit"`
	Success        bool      `firestore:"success"`
	CreatedAt      time.Time `firestore:"createdAt"`
}

// RequestLogRepository appends one document per generation request.
type RequestLogRepository struct {
	logs *pfirestore.Collection[requestLogDocument]
	now  func() time.Time
}

var _ repositories.RequestLogRepository = (*RequestLogRepository)(nil)

// NewRequestLogRepository constructs a Firestore-backed request log. An empty collection uses the default.
func NewRequestLogRepository(provider *pfirestore.Provider, collection string) (*RequestLogRepository, error) {
	if provider == nil {
		return nil, errors.New("request log repository requires firestore provider")
	}
	if strings.TrimSpace(collection) == "" {
		collection = defaultRequestLogCollection
	}
	return &RequestLogRepository{
		logs: pfirestore.NewCollection[requestLogDocument](provider, collection),
		now:  time.Now,
	}, nil
}

// Append stores entry keyed by its request ID, minting a ULID when the ID is empty.
func (r *RequestLogRepository) Append(ctx context.Context, entry domain.RequestLog) error {
	id := strings.TrimSpace(entry.RequestID)
	if id == "" {
		id = ulid.MustNew(ulid.Now(), rand.Reader).String()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}
	return r.logs.Create(ctx, id, requestLogDocument{
		RequestID:      id,
		Culture:        entry.Culture,
		Gender:         string(entry.Gender),
		Count:          entry.Count,
		Returned:       entry.Returned,
		MinScore:       entry.MinScore,
		ResponseTimeMs: entry.ResponseTimeMs,
		CacheHit:       entry.CacheHit,
		Success:        entry.Success,
		CreatedAt:      createdAt.UTC(),
	})
}
