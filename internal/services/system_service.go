package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bejimenez/magus/internal/domain"
	"github.com/bejimenez/magus/internal/repositories"
)

const templatesCheck = "templates"

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
// At least one of Catalog or HealthRepository must be set.
type SystemServiceDeps struct {
	Catalog          CultureCatalog
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	catalog    CultureCatalog
	healthRepo repositories.HealthRepository
	now        func() time.Time
	build      BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the readiness reporter. The loaded culture set is always
// reported as the required "templates" check; external dependencies come from the
// health repository.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Catalog == nil && deps.HealthRepository == nil {
		return nil, errors.New("system service: culture catalog or health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}

	return &systemService{
		catalog:    deps.Catalog,
		healthRepo: deps.HealthRepository,
		now:        func() time.Time { return clock().UTC() },
		build:      build,
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}

	var report SystemHealthReport
	if s.healthRepo != nil {
		collected, err := s.healthRepo.Collect(ctx)
		if err != nil {
			return SystemHealthReport{}, err
		}
		report = collected
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}

	now := s.now()
	if s.catalog != nil {
		codes, check := s.cultureCheck(now)
		report.Cultures = codes
		report.Checks[templatesCheck] = check
		// the catalog check may invalidate a status the repository already derived
		report.Status = ""
	}

	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	report.GeneratedAt = report.GeneratedAt.UTC()
	if report.Version == "" {
		report.Version = s.build.Version
	}
	if report.CommitSHA == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if report.Environment == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = worstStatus(report.Checks)
	}
	return report, nil
}

func (s *systemService) cultureCheck(now time.Time) ([]string, domain.SystemHealthCheck) {
	infos := s.catalog.Cultures()
	codes := make([]string, 0, len(infos))
	for _, info := range infos {
		codes = append(codes, info.Code)
	}
	sort.Strings(codes)

	check := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    fmt.Sprintf("%d cultures loaded", len(codes)),
		CheckedAt: now,
	}
	if len(codes) == 0 {
		check.Status = domain.HealthStatusError
		check.Detail = "no culture templates loaded"
		check.Error = check.Detail
	}
	return codes, check
}

func worstStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
