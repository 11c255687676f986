package api

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/smokestack-project/smokestack/pkg/store"
)

// historyHandler handles GET /api/v1/history with query filters op, actor,
// component, tag, from, to.
func (s *Server) historyHandler(c *echo.Context) error {
	var f store.HistoryFilter

	if v := c.QueryParam("op"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return badRequest(c, "op must be a positive integer")
		}
		f.OpID = &id
	}
	f.Actor = c.QueryParam("actor")
	f.Component = c.QueryParam("component")
	f.Tag = c.QueryParam("tag")

	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return badRequest(c, "from must be an RFC 3339 timestamp")
		}
		f.From = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return badRequest(c, "to must be an RFC 3339 timestamp")
		}
		f.To = &t
	}

	return respond(c, http.StatusOK, s.historyService.Query(f))
}
