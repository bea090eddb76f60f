package loadtest

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultSiteSLA(t *testing.T) {
	sla := DefaultSiteSLA(0.05, 2*time.Second)

	if sla.Name == "" {
		t.Error("expected SLA name to be set")
	}
	if len(sla.Objectives) != 3 {
		t.Fatalf("expected 3 objectives, got %d", len(sla.Objectives))
	}

	failure := sla.Objectives[0]
	if failure.Metric != MetricErrorRate {
		t.Errorf("expected first objective on error rate, got %s", failure.Metric)
	}
	if failure.Target != 5 {
		t.Errorf("expected failure target 5%%, got %.2f", failure.Target)
	}
	if sla.Objectives[1].Target != 2000 {
		t.Errorf("expected p95 target 2000ms, got %.0f", sla.Objectives[1].Target)
	}
}

func TestSLAValidator_Validate_AllPass(t *testing.T) {
	validator := NewSLAValidator(DefaultSiteSLA(0.05, 2*time.Second))

	summary := &Summary{
		TestName:      "passing-test",
		StartTime:     time.Now().Add(-time.Hour),
		EndTime:       time.Now(),
		TotalRequests: 1000,
		SuccessCount:  990,
		FailureCount:  10,
		ErrorRate:     0.01,
		P95Latency:    800 * time.Millisecond,
	}

	result := validator.Validate(summary)

	if !result.OverallPass {
		t.Error("expected all SLOs to pass")
		for _, r := range result.GetAllFailed() {
			t.Logf("Failed: %s", r.Message)
		}
	}
	if !result.CriticalPass {
		t.Error("expected critical SLOs to pass")
	}
	if result.Score != 100 {
		t.Errorf("expected 100%% score, got %.1f%%", result.Score)
	}
}

func TestSLAValidator_Validate_FailureRateBreached(t *testing.T) {
	validator := NewSLAValidator(DefaultSiteSLA(0.05, 2*time.Second))

	summary := &Summary{
		TotalRequests: 100,
		FailureCount:  20,
		ErrorRate:     0.2,
		P95Latency:    100 * time.Millisecond,
	}

	result := validator.Validate(summary)

	if result.OverallPass {
		t.Error("expected overall failure")
	}
	if result.CriticalPass {
		t.Error("expected critical failure")
	}
	critical := result.GetFailedCritical()
	if len(critical) != 1 || critical[0].SLO.Metric != MetricErrorRate {
		t.Fatalf("expected error rate to be the failed critical SLO, got %+v", critical)
	}
	if critical[0].Margin >= 0 {
		t.Errorf("expected negative margin, got %.2f", critical[0].Margin)
	}
}

func TestSLAValidator_Validate_NoTraffic(t *testing.T) {
	validator := NewSLAValidator(DefaultSiteSLA(0.05, 2*time.Second))

	result := validator.Validate(&Summary{})

	if result.CriticalPass {
		t.Error("a run without requests must not pass")
	}
	failed := result.GetFailedCritical()
	if len(failed) != 1 || failed[0].SLO.Metric != MetricRequests {
		t.Errorf("expected only the request count to fail, got %+v", failed)
	}
}

func TestSLAValidator_Validate_SlowButHealthy(t *testing.T) {
	validator := NewSLAValidator(DefaultSiteSLA(0.05, time.Second))

	summary := &Summary{
		TotalRequests: 50,
		P95Latency:    3 * time.Second,
	}

	result := validator.Validate(summary)

	if result.OverallPass {
		t.Error("expected p95 breach to fail the run")
	}
	if !result.CriticalPass {
		t.Error("latency is not critical")
	}
	if len(result.GetAllFailed()) != 1 {
		t.Errorf("expected 1 failed objective, got %d", len(result.GetAllFailed()))
	}
}

func TestSLAResult_GenerateReport(t *testing.T) {
	validator := NewSLAValidator(DefaultSiteSLA(0.05, time.Second))
	result := validator.Validate(&Summary{TotalRequests: 10, ErrorRate: 0.5})

	report := result.GenerateReport()

	for _, want := range []string{"SLA Validation Report", "marketplace-traffic", "FAIL", "CRITICAL OBJECTIVES FAILED", "[critical]"} {
		if !strings.Contains(report, want) {
			t.Errorf("expected report to contain %q", want)
		}
	}
}

func TestCompareValues(t *testing.T) {
	v := &SLAValidator{}

	tests := []struct {
		actual, target float64
		comp           Comparator
		want           bool
	}{
		{1, 2, ComparatorLessThan, true},
		{2, 2, ComparatorLessThan, false},
		{2, 2, ComparatorLessOrEqual, true},
		{3, 2, ComparatorGreaterThan, true},
		{2, 2, ComparatorGreaterOrEqual, true},
		{1, 2, Comparator("~"), false},
	}
	for _, tt := range tests {
		if got := v.compareValues(tt.actual, tt.target, tt.comp); got != tt.want {
			t.Errorf("compareValues(%v, %v, %s) = %v, want %v", tt.actual, tt.target, tt.comp, got, tt.want)
		}
	}
}

func TestSLAResult_GenerateReport_TopFailures(t *testing.T) {
	summary := &Summary{
		TestName:      "site",
		TotalRequests: 10,
		ErrorRate:     0.3,
		Errors: map[string]int64{
			"Unexpected status code 503":           2,
			"upload did not complete in 200 tries": 1,
		},
	}
	result := NewSLAValidator(DefaultSiteSLA(0.05, time.Second)).Validate(summary)
	report := result.GenerateReport()

	first := strings.Index(report, "Unexpected status code 503")
	second := strings.Index(report, "upload did not complete")
	if first < 0 || second < 0 {
		t.Fatalf("expected both failures in report:\n%s", report)
	}
	if first > second {
		t.Error("expected failures ordered by count")
	}
}

func TestTopErrors_Limit(t *testing.T) {
	errs := map[string]int64{"a": 1, "b": 5, "c": 3}
	got := topErrors(errs, 2)
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("expected [b c], got %v", got)
	}
}
