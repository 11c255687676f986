package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/smokestack-project/smokestack/pkg/models"
)

func (s *Server) listSinksHandler(c *echo.Context) error {
	return respond(c, http.StatusOK, s.registryService.ListSinks())
}

func (s *Server) getSinkHandler(c *echo.Context) error {
	sink, err := s.registryService.GetSink(c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, sink)
}

// createSinkHandler handles POST /api/v1/sinks. The sink id is generated.
func (s *Server) createSinkHandler(c *echo.Context) error {
	return s.saveSink(c, "")
}

// upsertSinkHandler handles PUT /api/v1/sinks/:id.
func (s *Server) upsertSinkHandler(c *echo.Context) error {
	return s.saveSink(c, c.Param("id"))
}

func (s *Server) saveSink(c *echo.Context, id string) error {
	var req SinkRequest
	if err := bindStrict(c, &req); err != nil {
		return err
	}

	sink, err := s.registryService.UpsertSink(extractAuthor(c), &models.SystemSink{
		ID: id,
		Selector: models.Selector{
			Operation: req.Operation,
			Component: req.Component,
			Tag:       req.Tag,
		},
		Events: req.Events,
		Target: req.Target,
	})
	if err != nil {
		return fail(c, err)
	}
	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	return respond(c, status, sink)
}

func (s *Server) deleteSinkHandler(c *echo.Context) error {
	if err := s.registryService.DeleteSink(extractAuthor(c), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
