package api

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status           string `json:"status"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	ActiveDispatches int64  `json:"active_dispatches"`
	// Subscribers counts open /ds/feed streams.
	Subscribers int `json:"subscribers"`
}
