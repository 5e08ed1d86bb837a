package metrics

import (
	"strconv"
	"time"

	"github.com/faultlens/faultlens/internal/core"
	"github.com/faultlens/faultlens/internal/observability"
)

// Application metric names.
var (
	AnalysesTotal        = "faultlens_analyses_total"
	LimitRejectionsTotal = "faultlens_limit_rejections_total"
	FailuresTotal        = "faultlens_failures_total"
	RunsTotal            = "faultlens_runs_total"
	ReportDuration       = "faultlens_report_duration_ms"
	KnowledgeEntries     = "faultlens_knowledge_entries"
	UsageCount           = "faultlens_usage_count"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordAnalysis counts one analysis by mode and source, plus its failure
// kind when degraded.
func RecordAnalysis(analysis *core.Analysis) {
	if analysis == nil {
		return
	}
	counter(AnalysesTotal, map[string]string{
		"mode":   string(analysis.Mode),
		"source": string(analysis.Source),
	})

	switch {
	case analysis.Failure == nil:
	case analysis.Failure.Kind == core.FailureLimitExceeded:
		counter(LimitRejectionsTotal, nil)
	default:
		counter(FailuresTotal, map[string]string{"kind": string(analysis.Failure.Kind)})
	}
}

// RecordReport records the analyses, run outcome and duration of a report.
func RecordReport(report *core.Report, elapsed time.Duration) {
	if report == nil || observability.TelemetrySystem == nil {
		return
	}
	for _, analysis := range report.Analyses {
		RecordAnalysis(analysis)
	}
	if report.Executed {
		counter(RunsTotal, map[string]string{
			"exit_code": strconv.Itoa(report.ExitCode),
			"timed_out": strconv.FormatBool(report.TimedOut),
		})
	}
	_ = observability.TelemetrySystem.Histogram(ReportDuration, elapsed, map[string]string{"mode": report.Mode})
}

// SetKnowledgeEntries sets the current knowledge base size.
func SetKnowledgeEntries(count int) { gauge(KnowledgeEntries, float64(count)) }

// SetUsageCount sets the calls counted in the current usage window.
func SetUsageCount(count int) { gauge(UsageCount, float64(count)) }

// SetServerStartTime records the server start as a Unix timestamp.
func SetServerStartTime(timestamp int64) { gauge(ServerStartTime, float64(timestamp)) }

// SetServerUptime records the server uptime in seconds.
func SetServerUptime(seconds int64) { gauge(ServerUptime, float64(seconds)) }

// counter and gauge are no-ops until telemetry is initialized.
func counter(name string, labels map[string]string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(name, 1, labels)
	}
}

func gauge(name string, value float64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(name, value, nil)
	}
}
