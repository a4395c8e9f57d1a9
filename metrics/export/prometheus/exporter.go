// Package prometheus renders engine counters in the Prometheus text
// exposition format without pulling in the client library.
package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	authcore "github.com/adminkit/authcore"
	"github.com/adminkit/authcore/internal/metrics"
)

type metricsSource interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter reads counters from an Engine and serves them as text.
type Exporter struct {
	source metricsSource
}

// NewExporter creates an Exporter over the given engine.
func NewExporter(engine *authcore.Engine) *Exporter {
	return &Exporter{source: engine}
}

// NewExporterFromSource creates an Exporter over a custom source, used
// in tests.
func NewExporterFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler returns an http.Handler serving the current counters.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render writes every counter, including zero-valued ones, so scrape
// targets keep a stable series set.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}
	snapshot := p.source.MetricsSnapshot()

	var b strings.Builder
	b.Grow(8192)

	for id := metrics.MetricID(0); id < metrics.MetricIDCount; id++ {
		writeCounter(&b, id.Name(), helpFor(id), snapshot.Counters[id])
	}
	writeCounter(&b, "authcore_audit_dropped_total",
		"Audit events dropped due to dispatcher backpressure.", p.source.AuditDropped())

	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(help)
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

var helpTexts = map[metrics.MetricID]string{
	metrics.MetricLoginSuccess:           "Successful credential logins.",
	metrics.MetricLoginFailure:           "Failed credential logins.",
	metrics.MetricLoginRateLimited:       "Logins rejected by the attempt limiter.",
	metrics.MetricMFARequired:            "Logins that detoured through an MFA challenge.",
	metrics.MetricMFASuccess:             "Successful MFA verifications.",
	metrics.MetricMFAFailure:             "Failed MFA verifications.",
	metrics.MetricMFAReplay:              "Challenge tokens presented after redemption or expiry.",
	metrics.MetricBackupCodeUsed:         "Logins completed with a backup code.",
	metrics.MetricBackupCodeFailed:       "Rejected backup code attempts.",
	metrics.MetricBackupCodesRegenerated: "Backup code set replacements.",
	metrics.MetricMFAEnabled:             "Accounts that enabled MFA.",
	metrics.MetricMFADisabled:            "Accounts that disabled MFA.",
	metrics.MetricRefreshSuccess:         "Successful token refreshes.",
	metrics.MetricRefreshFailure:         "Failed token refreshes.",
	metrics.MetricRegisterSuccess:        "Completed registrations.",
	metrics.MetricRegisterDuplicate:      "Registrations rejected for a known email.",
	metrics.MetricEmailVerified:          "Confirmed email addresses.",
	metrics.MetricPasswordResetRequested: "Password reset tokens issued.",
	metrics.MetricPasswordResetConfirmed: "Completed password resets.",
	metrics.MetricPermissionChecks:       "Permission checks performed.",
	metrics.MetricPermissionDenied:       "Permission checks that were denied.",
	metrics.MetricRoleMutations:          "Role create, update, delete and grant changes.",
}

func helpFor(id metrics.MetricID) string {
	if help, ok := helpTexts[id]; ok {
		return help
	}
	return "Cumulative event count."
}
