package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/smokestack-project/smokestack/pkg/version"
)

// healthHandler handles GET /health. The service stays "degraded" rather
// than unhealthy while persistence is failing: reads and event streaming
// continue, only writes are refused.
func (s *Server) healthHandler(c *echo.Context) error {
	resp := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Writes:  "accepting",
	}
	if s.connManager != nil {
		resp.Connections = s.connManager.ActiveConnections()
	}
	if s.dispatcher != nil {
		resp.DegradedSinks = s.dispatcher.Degraded()
	}
	status := http.StatusOK
	if s.engine != nil && s.engine.Degraded() {
		resp.Status = "degraded"
		resp.Writes = "suspended"
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, resp)
}
