package firestore

import (
	"context"
	"errors"

	"github.com/bejimenez/magus/internal/platform/config"
	pfirestore "github.com/bejimenez/magus/internal/platform/firestore"
	"github.com/bejimenez/magus/internal/repositories"
)

// Registry bundles the Firestore repositories over one shared provider.
type Registry struct {
	provider *pfirestore.Provider
	names    *GeneratedNameRepository
	logs     *RequestLogRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every Firestore repository from cfg.
func NewRegistry(provider *pfirestore.Provider, cfg config.FirestoreConfig) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	names, err := NewGeneratedNameRepository(provider, WithNamesCollection(cfg.NamesCollection))
	if err != nil {
		return nil, err
	}
	logs, err := NewRequestLogRepository(provider, cfg.RequestLogCollection)
	if err != nil {
		return nil, err
	}
	return &Registry{provider: provider, names: names, logs: logs}, nil
}

func (r *Registry) Names() repositories.GeneratedNameRepository { return r.names }

func (r *Registry) RequestLogs() repositories.RequestLogRepository { return r.logs }

// Close releases the shared provider.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
