package services

import (
	"context"
	"testing"
	"time"

	domain "github.com/clearbrook/storefront/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (r *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	return r.report, r.err
}

func TestSystemService_HealthReport_FillsBuildMetadata(t *testing.T) {
	started := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	now := started.Add(36 * time.Hour)
	repo := &stubHealthRepository{
		report: domain.SystemHealthReport{
			Status: domain.HealthStatusOK,
			Checks: map[string]domain.SystemHealthCheck{
				"postgres": {Status: domain.HealthStatusOK},
			},
		},
	}

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		Build:            BuildInfo{Version: "1.4.0", Environment: "production", StartedAt: started},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport returned error: %v", err)
	}
	if report.Version != "1.4.0" || report.Environment != "production" {
		t.Fatalf("build metadata missing: %+v", report)
	}
	if report.Uptime != 36*time.Hour {
		t.Fatalf("unexpected uptime %v", report.Uptime)
	}
	if report.GeneratedAt.IsZero() {
		t.Fatalf("generated at not set")
	}
}
