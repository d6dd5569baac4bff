package memory

import (
	"context"
	"sync"

	"github.com/bejimenez/magus/internal/domain"
	"github.com/bejimenez/magus/internal/repositories"
)

const defaultLogCapacity = 1000

// RequestLogRepository keeps the most recent request logs in a ring buffer.
type RequestLogRepository struct {
	mu      sync.Mutex
	entries []domain.RequestLog
	next    int
	full    bool
}

var _ repositories.RequestLogRepository = (*RequestLogRepository)(nil)

// NewRequestLogRepository constructs a ring buffer of the given capacity.
func NewRequestLogRepository(capacity int) *RequestLogRepository {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &RequestLogRepository{entries: make([]domain.RequestLog, capacity)}
}

func (r *RequestLogRepository) Append(ctx context.Context, entry domain.RequestLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = entry
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

// Recent returns the retained entries, oldest first.
func (r *RequestLogRepository) Recent() []domain.RequestLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]domain.RequestLog(nil), r.entries[:r.next]...)
	}
	out := make([]domain.RequestLog, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}
