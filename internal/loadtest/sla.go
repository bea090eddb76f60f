package loadtest

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SLA is the set of objectives a run has to meet.
type SLA struct {
	Name        string
	Description string
	Objectives  []SLO
}

// SLO is one measurable target.
type SLO struct {
	Name       string
	Metric     SLOMetric
	Target     float64
	Comparator Comparator
	Priority   SLOPriority
}

// SLOMetric identifies the summary value an SLO reads.
type SLOMetric string

const (
	MetricErrorRate  SLOMetric = "error_rate" // percent of failed samples
	MetricLatencyP95 SLOMetric = "latency_p95"
	MetricLatencyP99 SLOMetric = "latency_p99"
	MetricRequests   SLOMetric = "requests"
)

// Comparator defines how to compare metric against target.
type Comparator string

const (
	ComparatorLessThan       Comparator = "<"
	ComparatorLessOrEqual    Comparator = "<="
	ComparatorGreaterThan    Comparator = ">"
	ComparatorGreaterOrEqual Comparator = ">="
)

// SLOPriority indicates the importance of an SLO.
type SLOPriority string

const (
	PriorityCritical SLOPriority = "critical"
	PriorityHigh     SLOPriority = "high"
)

// SLAResult captures the result of validating a summary.
type SLAResult struct {
	SLA              *SLA
	Summary          *Summary
	Timestamp        time.Time
	ObjectiveResults []SLOResult
	OverallPass      bool
	CriticalPass     bool
	Score            float64 // percent of SLOs met
}

// SLOResult captures the result of a single SLO check.
type SLOResult struct {
	SLO         SLO
	ActualValue float64
	TargetMet   bool
	Margin      float64 // negative when missed
	Message     string
}

// DefaultSiteSLA returns the thresholds a traffic run must meet. The
// failure rate is a fraction of all samples, maxP95 applies to every
// request the users made.
func DefaultSiteSLA(maxFailRate float64, maxP95 time.Duration) *SLA {
	return &SLA{
		Name:        "marketplace-traffic",
		Description: "Pass criteria for simulated marketplace traffic",
		Objectives: []SLO{
			{
				Name:       "Failure Rate",
				Metric:     MetricErrorRate,
				Target:     maxFailRate * 100,
				Comparator: ComparatorLessOrEqual,
				Priority:   PriorityCritical,
			},
			{
				Name:       "P95 Latency",
				Metric:     MetricLatencyP95,
				Target:     float64(maxP95.Milliseconds()),
				Comparator: ComparatorLessOrEqual,
				Priority:   PriorityHigh,
			},
			{
				Name:       "Requests",
				Metric:     MetricRequests,
				Target:     1,
				Comparator: ComparatorGreaterOrEqual,
				Priority:   PriorityCritical,
			},
		},
	}
}

// SLAValidator validates run summaries against an SLA.
type SLAValidator struct {
	sla *SLA
}

// NewSLAValidator creates a validator for the given SLA.
func NewSLAValidator(sla *SLA) *SLAValidator {
	return &SLAValidator{sla: sla}
}

// Validate checks a run summary against the SLA.
func (v *SLAValidator) Validate(summary *Summary) *SLAResult {
	result := &SLAResult{
		SLA:              v.sla,
		Summary:          summary,
		Timestamp:        time.Now(),
		ObjectiveResults: make([]SLOResult, 0, len(v.sla.Objectives)),
		OverallPass:      true,
		CriticalPass:     true,
	}

	passed := 0
	for _, slo := range v.sla.Objectives {
		res := v.checkSLO(slo, summary)
		result.ObjectiveResults = append(result.ObjectiveResults, res)

		if res.TargetMet {
			passed++
			continue
		}
		result.OverallPass = false
		if slo.Priority == PriorityCritical {
			result.CriticalPass = false
		}
	}

	if len(v.sla.Objectives) > 0 {
		result.Score = float64(passed) / float64(len(v.sla.Objectives)) * 100
	}
	return result
}

func metricValue(m SLOMetric, summary *Summary) float64 {
	switch m {
	case MetricErrorRate:
		return summary.ErrorRate * 100
	case MetricLatencyP95:
		return float64(summary.P95Latency.Milliseconds())
	case MetricLatencyP99:
		return float64(summary.P99Latency.Milliseconds())
	case MetricRequests:
		return float64(summary.TotalRequests)
	}
	return 0
}

func (v *SLAValidator) checkSLO(slo SLO, summary *Summary) SLOResult {
	result := SLOResult{
		SLO:         slo,
		ActualValue: metricValue(slo.Metric, summary),
	}
	result.TargetMet = v.compareValues(result.ActualValue, slo.Target, slo.Comparator)

	switch slo.Comparator {
	case ComparatorLessThan, ComparatorLessOrEqual:
		result.Margin = slo.Target - result.ActualValue
	case ComparatorGreaterThan, ComparatorGreaterOrEqual:
		result.Margin = result.ActualValue - slo.Target
	}

	if result.TargetMet {
		result.Message = fmt.Sprintf("%s: %.2f %s %.2f ok",
			slo.Name, result.ActualValue, slo.Comparator, slo.Target)
	} else {
		result.Message = fmt.Sprintf("%s: %.2f %s %.2f FAILED (margin: %.2f)",
			slo.Name, result.ActualValue, slo.Comparator, slo.Target, result.Margin)
	}
	return result
}

func (v *SLAValidator) compareValues(actual, target float64, comp Comparator) bool {
	switch comp {
	case ComparatorLessThan:
		return actual < target
	case ComparatorLessOrEqual:
		return actual <= target
	case ComparatorGreaterThan:
		return actual > target
	case ComparatorGreaterOrEqual:
		return actual >= target
	default:
		return false
	}
}

// GenerateReport renders the result and the most common failures as text.
func (r *SLAResult) GenerateReport() string {
	var b strings.Builder

	b.WriteString("SLA Validation Report\n")
	b.WriteString("=====================\n\n")
	fmt.Fprintf(&b, "SLA: %s\n", r.SLA.Name)
	fmt.Fprintf(&b, "Description: %s\n", r.SLA.Description)
	fmt.Fprintf(&b, "Validated: %s\n", r.Timestamp.UTC().Format(time.RFC3339))
	if r.Summary != nil {
		fmt.Fprintf(&b, "Run: %s, %d users, %v\n", r.Summary.TestName, r.Summary.Users,
			r.Summary.EndTime.Sub(r.Summary.StartTime).Round(time.Second))
	}

	status := "PASS"
	if !r.OverallPass {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "\nOverall Status: %s\n", status)
	fmt.Fprintf(&b, "Score: %.1f%% (%d/%d objectives met)\n", r.Score, r.countPassed(), len(r.ObjectiveResults))
	if !r.CriticalPass {
		b.WriteString("CRITICAL OBJECTIVES FAILED\n")
	}

	b.WriteString("\nObjective Results:\n")
	b.WriteString("------------------\n")
	for _, priority := range []SLOPriority{PriorityCritical, PriorityHigh} {
		header := false
		for _, res := range r.ObjectiveResults {
			if res.SLO.Priority != priority {
				continue
			}
			if !header {
				fmt.Fprintf(&b, "\n[%s]\n", priority)
				header = true
			}
			fmt.Fprintf(&b, "  %s\n", res.Message)
		}
	}

	if r.Summary != nil && len(r.Summary.Errors) > 0 {
		b.WriteString("\nTop Failures:\n")
		b.WriteString("-------------\n")
		for _, e := range topErrors(r.Summary.Errors, 5) {
			fmt.Fprintf(&b, "  %6d  %s\n", r.Summary.Errors[e], e)
		}
	}
	return b.String()
}

func topErrors(errs map[string]int64, n int) []string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if errs[keys[i]] != errs[keys[j]] {
			return errs[keys[i]] > errs[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func (r *SLAResult) countPassed() int {
	count := 0
	for _, res := range r.ObjectiveResults {
		if res.TargetMet {
			count++
		}
	}
	return count
}

// GetFailedCritical returns failed critical SLOs.
func (r *SLAResult) GetFailedCritical() []SLOResult {
	var failed []SLOResult
	for _, res := range r.ObjectiveResults {
		if !res.TargetMet && res.SLO.Priority == PriorityCritical {
			failed = append(failed, res)
		}
	}
	return failed
}

// GetAllFailed returns all failed SLOs.
func (r *SLAResult) GetAllFailed() []SLOResult {
	var failed []SLOResult
	for _, res := range r.ObjectiveResults {
		if !res.TargetMet {
			failed = append(failed, res)
		}
	}
	return failed
}
