package memory

import (
	"context"

	"github.com/bejimenez/magus/internal/repositories"
)

// Registry bundles the in-memory repositories.
type Registry struct {
	names *NameRepository
	logs  *RequestLogRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs empty in-memory repositories.
func NewRegistry() *Registry {
	return &Registry{
		names: NewNameRepository(nil),
		logs:  NewRequestLogRepository(0),
	}
}

func (r *Registry) Names() repositories.GeneratedNameRepository { return r.names }

func (r *Registry) RequestLogs() repositories.RequestLogRepository { return r.logs }

func (r *Registry) Close(context.Context) error { return nil }
