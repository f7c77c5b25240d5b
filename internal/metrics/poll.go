package metrics

import "time"

// Polling series. The exporter prefixes the telemetry namespace.
const (
	ChecksTotal         = "poll_checks_total"
	NewItemsTotal       = "poll_new_items_total"
	PollErrorsTotal     = "poll_errors_total"
	RetriesTotal        = "poll_retries_total"
	SkippedTicksTotal   = "poll_skipped_ticks_total"
	CycleDuration       = "poll_cycle_duration_ms"
	CycleTargets        = "poll_cycle_targets"
	LoginsTotal         = "logins_total"
	SessionRestores     = "session_restores_total"
	PoolExhaustedTotal  = "pool_exhausted_total"
	PoolAvailable       = "pool_available"
	AlertsTotal         = "alerts_total"
	NotificationsFailed = "notifications_failed_total"
)

// RecordCheck counts one feed fetch.
func RecordCheck() { counter(ChecksTotal, nil) }

// RecordNewItem counts a forwarded item.
func RecordNewItem() { counter(NewItemsTotal, nil) }

// RecordPollError counts a failed check by error class.
func RecordPollError(class string) {
	counter(PollErrorsTotal, map[string]string{"class": class})
}

func RecordRetry() { counter(RetriesTotal, nil) }

// RecordSkippedTick counts a tick dropped because a cycle was still running.
func RecordSkippedTick() { counter(SkippedTicksTotal, nil) }

// RecordCycle records a completed polling cycle.
func RecordCycle(duration time.Duration, targets int) {
	histogram(CycleDuration, duration, nil)
	gauge(CycleTargets, float64(targets), nil)
}

// RecordLogin records a login outcome: "success", "failure" or "blocked".
func RecordLogin(result string) {
	counter(LoginsTotal, map[string]string{"outcome": result})
}

// RecordSessionRestore counts a session reused without a login.
func RecordSessionRestore() { counter(SessionRestores, nil) }

// RecordPoolExhausted counts a selection that found no available member.
func RecordPoolExhausted(pool string) {
	counter(PoolExhaustedTotal, map[string]string{"pool": pool})
}

func SetPoolAvailable(pool string, count int) {
	gauge(PoolAvailable, float64(count), map[string]string{"pool": pool})
}

// RecordAlert records an admin alert dispatch.
func RecordAlert(success bool) {
	counter(AlertsTotal, map[string]string{"status": outcome(success, "success", "failure")})
}

// RecordNotificationFailure counts a notification the sink rejected.
func RecordNotificationFailure(sink string) {
	counter(NotificationsFailed, map[string]string{"sink": sink})
}
