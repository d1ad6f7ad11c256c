package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/scentora/storefront/internal/domain"
	"github.com/scentora/storefront/internal/repositories"
)

// BuildInfo is the release metadata stamped on every health report.
type BuildInfo struct {
	Version     string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps wires the readiness service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	// Critical names the dependencies without which the storefront cannot take orders.
	// Any non-ok result for one of them makes the whole report an error.
	Critical []string
	Clock    func() time.Time
	Build    BuildInfo
}

type systemService struct {
	probes   repositories.HealthRepository
	critical map[string]struct{}
	now      func() time.Time
	build    BuildInfo
}

var _ SystemService = (*systemService)(nil)

func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	svc := &systemService{
		probes:   deps.HealthRepository,
		critical: make(map[string]struct{}, len(deps.Critical)),
		now:      func() time.Time { return now().UTC() },
		build:    deps.Build,
	}
	for _, name := range deps.Critical {
		svc.critical[name] = struct{}{}
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	return svc, nil
}

func (s *systemService) HealthReport(ctx context.Context) (HealthReport, error) {
	report, err := s.probes.Collect(ctx)
	if err != nil {
		return HealthReport{}, err
	}
	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	if report.Version == "" {
		report.Version = s.build.Version
	}
	if report.Environment == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.DependencyHealth{}
	}
	report.Status = worstStatus(report.Status, s.rollUp(report.Checks))
	return report, nil
}

func (s *systemService) rollUp(checks map[string]domain.DependencyHealth) string {
	status := domain.HealthStatusOK
	for name, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
			continue
		}
		if _, critical := s.critical[name]; critical {
			return domain.HealthStatusError
		}
		status = worstStatus(status, check.Status)
	}
	return status
}

// worstStatus orders ok < degraded < error; unknown values count as degraded.
func worstStatus(a, b string) string {
	rank := func(status string) int {
		switch status {
		case domain.HealthStatusOK, "":
			return 0
		case domain.HealthStatusError:
			return 2
		default:
			return 1
		}
	}
	switch max(rank(a), rank(b)) {
	case 2:
		return domain.HealthStatusError
	case 1:
		return domain.HealthStatusDegraded
	default:
		return domain.HealthStatusOK
	}
}
