package repositories

import (
	"context"
	"errors"

	"github.com/bejimenez/magus/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Names() GeneratedNameRepository
	RequestLogs() RequestLogRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// GeneratedNameRepository persists generated names keyed by culture and name.
type GeneratedNameRepository interface {
	// RecordUsage inserts the name on first sight and increments its usage count otherwise.
	RecordUsage(ctx context.Context, record domain.NameRecord) (domain.StoredName, error)
	Get(ctx context.Context, culture, name string) (domain.StoredName, error)
	// ListByCulture returns the most used names of a culture, highest usage first.
	ListByCulture(ctx context.Context, culture string, limit int) ([]domain.StoredName, error)
}

// RequestLogRepository appends generation request summaries.
type RequestLogRepository interface {
	Append(ctx context.Context, entry domain.RequestLog) error
}

// HealthRepository aggregates dependency probes for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// IsNotFound reports whether err is a repository not-found failure.
func IsNotFound(err error) bool {
	repoErr, ok := asRepositoryError(err)
	return ok && repoErr.IsNotFound()
}

// IsUnavailable reports whether err is a transient repository outage.
func IsUnavailable(err error) bool {
	repoErr, ok := asRepositoryError(err)
	return ok && repoErr.IsUnavailable()
}

func asRepositoryError(err error) (RepositoryError, bool) {
	var repoErr RepositoryError
	if err != nil && errors.As(err, &repoErr) {
		return repoErr, true
	}
	return nil, false
}
