package application

import "expvar"

// Counters surfaced on /debug/vars when the debug module is enabled.
var (
	registrations  = expvar.NewInt("auth_registrations_total")
	logins         = expvar.NewInt("auth_logins_total")
	tokenRefreshes = expvar.NewInt("auth_token_refreshes_total")
	emailsEnqueued = expvar.NewInt("auth_emails_enqueued_total")
	emailsFailed   = expvar.NewInt("auth_emails_failed_total")
)
