// Package reporting renders load test summaries and stores them on disk or
// in S3.
package reporting

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FairForge/marketplace/internal/loadtest"
)

// Export formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Report is the archived result of one load test run.
type Report struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Host      string            `json:"host"`
	CreatedAt time.Time         `json:"created_at"`
	Passed    bool              `json:"passed"`
	SLA       *SLASection       `json:"sla,omitempty"`
	Summary   *loadtest.Summary `json:"summary"`
}

// SLASection is the part of an SLA result kept in a report.
type SLASection struct {
	Name       string   `json:"name"`
	Score      float64  `json:"score"`
	Passed     bool     `json:"passed"`
	Objectives []string `json:"objectives"`
}

// NewReport builds a report from a run summary and its SLA check, which
// may be nil.
func NewReport(host string, summary *loadtest.Summary, sla *loadtest.SLAResult) (*Report, error) {
	if summary == nil {
		return nil, errors.New("report: summary is required")
	}
	if summary.TestName == "" {
		return nil, errors.New("report: name is required")
	}

	r := &Report{
		ID:        uuid.New().String(),
		Name:      summary.TestName,
		Host:      host,
		CreatedAt: time.Now().UTC(),
		Passed:    true,
		Summary:   summary,
	}
	if sla != nil {
		section := &SLASection{Name: sla.SLA.Name, Score: sla.Score, Passed: sla.OverallPass}
		for _, res := range sla.ObjectiveResults {
			section.Objectives = append(section.Objectives, res.Message)
		}
		r.SLA = section
		r.Passed = sla.OverallPass
	}
	return r, nil
}

// Export encodes the report in the given format.
func Export(report *Report, format string) ([]byte, error) {
	switch format {
	case FormatCSV:
		return exportCSV(report)
	case FormatJSON, "":
		return json.MarshalIndent(report, "", "  ")
	default:
		return nil, fmt.Errorf("report: unsupported format %q", format)
	}
}

// exportCSV writes one row per (type, name) entry plus a total row.
func exportCSV(report *Report) ([]byte, error) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"Type", "Name", "Requests", "Failures", "Avg (ms)", "P50 (ms)", "P95 (ms)", "P99 (ms)", "Max (ms)"}); err != nil {
		return nil, err
	}

	ms := func(d time.Duration) string { return strconv.FormatInt(d.Milliseconds(), 10) }
	for _, e := range report.Summary.Entries {
		_ = w.Write([]string{
			e.Type, e.Name,
			strconv.FormatInt(e.Requests, 10), strconv.FormatInt(e.Failures, 10),
			ms(e.AvgLatency), ms(e.P50Latency), ms(e.P95Latency), ms(e.P99Latency), ms(e.MaxLatency),
		})
	}
	s := report.Summary
	_ = w.Write([]string{
		"", "Total",
		strconv.FormatInt(s.TotalRequests, 10), strconv.FormatInt(s.FailureCount, 10),
		ms(s.AvgLatency), ms(s.P50Latency), ms(s.P95Latency), ms(s.P99Latency), ms(s.MaxLatency),
	})

	w.Flush()
	return []byte(buf.String()), w.Error()
}

// FormatFor picks the export format from a destination's extension.
func FormatFor(destination string) string {
	if strings.HasSuffix(strings.ToLower(destination), ".csv") {
		return FormatCSV
	}
	return FormatJSON
}
