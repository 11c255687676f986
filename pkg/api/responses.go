package api

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string   `json:"status"`
	Version       string   `json:"version"`
	Writes        string   `json:"writes"`
	Connections   int      `json:"websocket_connections"`
	DegradedSinks []string `json:"degraded_sinks,omitempty"`
}
