package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/scentora/storefront/internal/domain"
)

type stubHealthRepository struct {
	report domain.HealthReport
	err    error
	calls  int
}

func (s *stubHealthRepository) Collect(context.Context) (domain.HealthReport, error) {
	s.calls++
	return s.report, s.err
}

func TestSystemServiceHealthReportEnrichesMetadata(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(5 * time.Minute)
	repo := &stubHealthRepository{report: domain.HealthReport{
		Checks: map[string]domain.DependencyHealth{
			"firestore": {Status: domain.HealthStatusOK},
			"redis":     {Status: domain.HealthStatusDegraded, Detail: "slow"},
		},
	}}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		Build:            BuildInfo{Version: "1.4.0", Environment: "staging", StartedAt: start},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Version != "1.4.0" || report.Environment != "staging" {
		t.Fatalf("expected build metadata, got %+v", report)
	}
	if report.Uptime != 5*time.Minute || !report.GeneratedAt.Equal(now) {
		t.Fatalf("unexpected timing %s %s", report.Uptime, report.GeneratedAt)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded status, got %q", report.Status)
	}
}

func TestSystemServiceKeepsRepositoryValues(t *testing.T) {
	repo := &stubHealthRepository{report: domain.HealthReport{
		Status:  domain.HealthStatusError,
		Version: "from-repo",
	}}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo, Build: BuildInfo{Version: "1.4.0"}})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}
	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Version != "from-repo" || report.Status != domain.HealthStatusError || report.Checks == nil {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestSystemServicePropagatesErrors(t *testing.T) {
	repo := &stubHealthRepository{err: errors.New("boom")}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatal("expected missing repository error")
	}
}

func TestSystemServiceEscalatesCriticalDependencies(t *testing.T) {
	repo := &stubHealthRepository{report: domain.HealthReport{
		Checks: map[string]domain.DependencyHealth{
			"firestore": {Status: domain.HealthStatusDegraded, Detail: "unavailable"},
			"redis":     {Status: domain.HealthStatusOK},
		},
	}}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo, Critical: []string{"firestore"}})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}
	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %q", report.Status)
	}
}

func TestWorstStatus(t *testing.T) {
	cases := []struct {
		a, b, want string
	}{
		{"", "", domain.HealthStatusOK},
		{domain.HealthStatusOK, domain.HealthStatusOK, domain.HealthStatusOK},
		{domain.HealthStatusOK, "slow", domain.HealthStatusDegraded},
		{domain.HealthStatusDegraded, domain.HealthStatusError, domain.HealthStatusError},
		{domain.HealthStatusError, domain.HealthStatusOK, domain.HealthStatusError},
	}
	for _, tc := range cases {
		if got := worstStatus(tc.a, tc.b); got != tc.want {
			t.Fatalf("worstStatus(%q, %q) = %q, want %q", tc.a, tc.b, got, tc.want)
		}
	}
}
