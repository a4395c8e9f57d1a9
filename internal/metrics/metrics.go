// Package metrics provides lock-free in-process counters for authcore
// observability. It owns metric storage and snapshot creation only; export
// lives under metrics/export/ and reads Snapshot values. It performs no I/O
// and imports no sibling package.
package metrics

import "sync/atomic"

// MetricID identifies one counter.
type MetricID int

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricMFARequired
	MetricMFASuccess
	MetricMFAFailure
	MetricMFAReplay
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	MetricBackupCodesRegenerated
	MetricMFAEnabled
	MetricMFADisabled
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRegisterSuccess
	MetricRegisterDuplicate
	MetricEmailVerified
	MetricPasswordResetRequested
	MetricPasswordResetConfirmed
	MetricPermissionChecks
	MetricPermissionDenied
	MetricRoleMutations

	MetricIDCount
)

var names = [MetricIDCount]string{
	MetricLoginSuccess:           "authcore_login_success_total",
	MetricLoginFailure:           "authcore_login_failure_total",
	MetricLoginRateLimited:       "authcore_login_rate_limited_total",
	MetricMFARequired:            "authcore_mfa_required_total",
	MetricMFASuccess:             "authcore_mfa_success_total",
	MetricMFAFailure:             "authcore_mfa_failure_total",
	MetricMFAReplay:              "authcore_mfa_replay_total",
	MetricBackupCodeUsed:         "authcore_backup_code_used_total",
	MetricBackupCodeFailed:       "authcore_backup_code_failed_total",
	MetricBackupCodesRegenerated: "authcore_backup_codes_regenerated_total",
	MetricMFAEnabled:             "authcore_mfa_enabled_total",
	MetricMFADisabled:            "authcore_mfa_disabled_total",
	MetricRefreshSuccess:         "authcore_refresh_success_total",
	MetricRefreshFailure:         "authcore_refresh_failure_total",
	MetricRegisterSuccess:        "authcore_register_success_total",
	MetricRegisterDuplicate:      "authcore_register_duplicate_total",
	MetricEmailVerified:          "authcore_email_verified_total",
	MetricPasswordResetRequested: "authcore_password_reset_requested_total",
	MetricPasswordResetConfirmed: "authcore_password_reset_confirmed_total",
	MetricPermissionChecks:       "authcore_permission_checks_total",
	MetricPermissionDenied:       "authcore_permission_denied_total",
	MetricRoleMutations:          "authcore_role_mutations_total",
}

// Name returns the exposition name for id, or "" for an unknown id.
func (id MetricID) Name() string {
	if id < 0 || id >= MetricIDCount {
		return ""
	}
	return names[id]
}

// Config controls whether counting is active.
type Config struct {
	Enabled bool
}

// Metrics holds the counters. All methods are safe for concurrent use; when
// disabled every operation is a no-op.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]atomic.Uint64
}

func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id < 0 || id >= MetricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot returns a deep copy of the current counter values. Zero-valued
// counters are omitted.
func (m *Metrics) Snapshot() Snapshot {
	out := Snapshot{Counters: make(map[MetricID]uint64)}
	if m == nil || !m.enabled {
		return out
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		if v := m.counters[id].Load(); v != 0 {
			out.Counters[id] = v
		}
	}
	return out
}
