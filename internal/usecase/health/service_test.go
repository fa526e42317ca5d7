package health

import (
	"context"
	"errors"
	"testing"
)

type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockChecker struct{ err error }

func (m *mockChecker) HealthCheck(_ context.Context) error { return m.err }

func TestCheckHealthy(t *testing.T) {
	svc := New(&mockPinger{}, &mockChecker{})
	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("status = %s, want %s", report.Status, Healthy)
	}
	if report.Checks["store"] != CheckOK || report.Checks["embedding"] != CheckOK {
		t.Errorf("checks = %v", report.Checks)
	}
}

func TestCheckStoreDownIsUnhealthy(t *testing.T) {
	svc := New(&mockPinger{err: errors.New("refused")}, &mockChecker{})
	report := svc.Check(context.Background())
	if report.Status != Unhealthy {
		t.Errorf("status = %s, want %s", report.Status, Unhealthy)
	}
	if report.Checks["store"] != CheckError {
		t.Errorf("checks = %v", report.Checks)
	}
}

func TestCheckEmbeddingDownIsDegraded(t *testing.T) {
	svc := New(&mockPinger{}, &mockChecker{err: errors.New("api down")})
	report := svc.Check(context.Background())
	if report.Status != Degraded {
		t.Errorf("status = %s, want %s", report.Status, Degraded)
	}
}

func TestCheckBothDownIsUnhealthy(t *testing.T) {
	svc := New(&mockPinger{err: errors.New("refused")}, &mockChecker{err: errors.New("api down")})
	report := svc.Check(context.Background())
	if report.Status != Unhealthy {
		t.Errorf("status = %s, want %s", report.Status, Unhealthy)
	}
}

func TestCheckNilEmbedding(t *testing.T) {
	svc := New(&mockPinger{}, nil)
	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("status = %s", report.Status)
	}
	if _, present := report.Checks["embedding"]; present {
		t.Error("embedding check reported without a checker")
	}
}
