package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	auditAppendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "controlplane_audit_appends_total",
		Help: "Audit entries written, by action",
	}, []string{"action"})
	auditAppendFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "controlplane_audit_append_failures_total",
		Help: "Audit entries that could not be written",
	})
	authzDeniedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "controlplane_authorization_denied_total",
		Help: "Requests rejected by the permission gate, by permission",
	}, []string{"permission"})
	allowListBlockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "controlplane_allowlist_blocked_total",
		Help: "Requests rejected by the admin IP allow-list",
	})
	loginFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "controlplane_login_failures_total",
		Help: "Failed console logins",
	})
	mfaTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "controlplane_mfa_transitions_total",
		Help: "MFA enrollment transitions, by target state",
	}, []string{"state"})
	alertsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "controlplane_alerts_created_total",
		Help: "Alerts created, by type",
	}, []string{"type"})
	licenseScansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "controlplane_license_scans_total",
		Help: "License expiry scans, by result",
	}, []string{"result"})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		auditAppendsTotal,
		auditAppendFailuresTotal,
		authzDeniedTotal,
		allowListBlockedTotal,
		loginFailuresTotal,
		mfaTransitionsTotal,
		alertsCreatedTotal,
		licenseScansTotal,
	)
}

// IncAuditAppend counts a written audit entry.
func IncAuditAppend(action string) { auditAppendsTotal.WithLabelValues(action).Inc() }

// IncAuditAppendFailure counts an audit entry that was dropped.
func IncAuditAppendFailure() { auditAppendFailuresTotal.Inc() }

// IncAuthorizationDenied counts a gate rejection.
func IncAuthorizationDenied(permission string) { authzDeniedTotal.WithLabelValues(permission).Inc() }

// IncAllowListBlocked counts a request refused by the IP allow-list.
func IncAllowListBlocked() { allowListBlockedTotal.Inc() }

// IncLoginFailure counts a failed login.
func IncLoginFailure() { loginFailuresTotal.Inc() }

// IncMFATransition counts a state change into state.
func IncMFATransition(state string) { mfaTransitionsTotal.WithLabelValues(state).Inc() }

// IncAlertCreated counts a new alert of the given type.
func IncAlertCreated(alertType string) { alertsCreatedTotal.WithLabelValues(alertType).Inc() }

// IncLicenseScan counts a scan run; result is "ok", "failed" or "timeout".
func IncLicenseScan(result string) { licenseScansTotal.WithLabelValues(result).Inc() }
