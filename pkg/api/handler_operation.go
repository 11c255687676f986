package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/smokestack-project/smokestack/pkg/models"
	"github.com/smokestack-project/smokestack/pkg/opdesc"
	"github.com/smokestack-project/smokestack/pkg/services"
	"github.com/smokestack-project/smokestack/pkg/store"
)

// maxDescriptionBytes bounds an operation description body.
const maxDescriptionBytes = 1 << 20

func parseOpID(c *echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "operation id must be a positive integer")
	}
	return id, nil
}

// createOperationHandler handles POST /api/v1/operations. The body is either
// JSON or, for CLI round-trips, the YAML operation description format.
func (s *Server) createOperationHandler(c *echo.Context) error {
	input, err := s.bindCreateInput(c)
	if err != nil {
		return err
	}

	op, svcErr := s.operationService.Create(extractAuthor(c), input)
	if svcErr != nil {
		return fail(c, svcErr)
	}
	return respond(c, http.StatusCreated, op)
}

func (s *Server) bindCreateInput(c *echo.Context) (services.CreateOperationInput, error) {
	contentType := c.Request().Header.Get("Content-Type")
	if strings.Contains(contentType, "yaml") {
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxDescriptionBytes))
		if err != nil {
			return services.CreateOperationInput{}, echo.NewHTTPError(http.StatusBadRequest, "cannot read request body")
		}
		d, err := opdesc.Parse(body)
		if err != nil {
			return services.CreateOperationInput{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return services.CreateOperationInput{
			Title:       d.Title,
			Purpose:     d.Purpose,
			URL:         d.URL,
			Components:  d.Components,
			Locks:       d.Locks,
			Tags:        d.Tags,
			DependsOn:   d.DependsOn,
			Operators:   d.Operators,
			StartsAt:    d.StartsAt,
			EndsAt:      d.EndsAt,
			Annotations: d.Annotations,
		}, nil
	}

	var req CreateOperationRequest
	if err := bindStrict(c, &req); err != nil {
		return services.CreateOperationInput{}, err
	}
	return services.CreateOperationInput{
		Title:       req.Title,
		Purpose:     req.Purpose,
		URL:         req.URL,
		Components:  req.Components,
		Locks:       req.Locks,
		Tags:        req.Tags,
		DependsOn:   req.DependsOn,
		Operators:   req.Operators,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Annotations: req.Annotations,
	}, nil
}

// getOperationHandler handles GET /api/v1/operations/:id.
func (s *Server) getOperationHandler(c *echo.Context) error {
	id, err := parseOpID(c)
	if err != nil {
		return err
	}
	op, svcErr := s.operationService.Get(id)
	if svcErr != nil {
		return fail(c, svcErr)
	}
	return respond(c, http.StatusOK, op)
}

// getOperationDescriptionHandler handles GET /api/v1/operations/:id/description.
// Returns the YAML document editors fetch, modify, and resubmit.
func (s *Server) getOperationDescriptionHandler(c *echo.Context) error {
	id, err := parseOpID(c)
	if err != nil {
		return err
	}
	op, svcErr := s.operationService.Get(id)
	if svcErr != nil {
		return fail(c, svcErr)
	}
	doc, renderErr := opdesc.Render(opdesc.FromOperation(op))
	if renderErr != nil {
		return fail(c, renderErr)
	}
	return c.Blob(http.StatusOK, "application/yaml", doc)
}

// listOperationsHandler handles GET /api/v1/operations with query filters
// component, tag, status, operator, from, to, mine.
func (s *Server) listOperationsHandler(c *echo.Context) error {
	var f store.OperationFilter

	if v := c.QueryParam("component"); v != "" {
		f.Components = strings.Split(v, ",")
	}
	if v := c.QueryParam("tag"); v != "" {
		f.Tags = strings.Split(v, ",")
	}
	if v := c.QueryParam("operator"); v != "" {
		f.Operators = strings.Split(v, ",")
	}
	if v := c.QueryParam("status"); v != "" {
		for _, raw := range strings.Split(v, ",") {
			st, err := models.ParseStatus(raw)
			if err != nil {
				return badRequest(c, "invalid status: "+raw)
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
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
	if v := c.QueryParam("mine"); v == "true" || v == "1" {
		f.Mine = extractAuthor(c)
	}

	return respond(c, http.StatusOK, s.operationService.List(f))
}

// editOperationHandler handles PATCH /api/v1/operations/:id.
func (s *Server) editOperationHandler(c *echo.Context) error {
	id, err := parseOpID(c)
	if err != nil {
		return err
	}
	var req EditOperationRequest
	if err := bindStrict(c, &req); err != nil {
		return err
	}

	op, svcErr := s.operationService.Edit(extractAuthor(c), id, services.EditOperationInput{
		Title:       req.Title,
		Purpose:     req.Purpose,
		URL:         req.URL,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		ClearWindow: req.ClearWindow,
		Components:  req.Components,
		Locks:       req.Locks,
		Tags:        req.Tags,
		DependsOn:   req.DependsOn,
		Operators:   req.Operators,
		Annotations: req.Annotations,
	})
	if svcErr != nil {
		return fail(c, svcErr)
	}
	return respond(c, http.StatusOK, op)
}

// transitionHandler handles POST /api/v1/operations/:id/transition.
func (s *Server) transitionHandler(c *echo.Context) error {
	id, err := parseOpID(c)
	if err != nil {
		return err
	}
	var req TransitionRequest
	if err := bindStrict(c, &req); err != nil {
		return err
	}
	if req.To == "" {
		return badRequest(c, "to is required")
	}

	op, svcErr := s.operationService.Transition(extractAuthor(c), id, req.To, req.Note)
	if svcErr != nil {
		return fail(c, svcErr)
	}
	return respond(c, http.StatusOK, op)
}

// approveHandler handles POST /api/v1/operations/:id/approve.
func (s *Server) approveHandler(c *echo.Context) error {
	id, err := parseOpID(c)
	if err != nil {
		return err
	}
	op, svcErr := s.operationService.Approve(extractAuthor(c), id)
	if svcErr != nil {
		return fail(c, svcErr)
	}
	return respond(c, http.StatusOK, op)
}

// setApprovalsHandler handles PUT /api/v1/operations/:id/approvals. Used by
// external synchronizers importing approvals from a review source.
func (s *Server) setApprovalsHandler(c *echo.Context) error {
	id, err := parseOpID(c)
	if err != nil {
		return err
	}
	var req SetApprovalsRequest
	if err := bindStrict(c, &req); err != nil {
		return err
	}

	op, svcErr := s.operationService.SetApprovals(extractAuthor(c), id, req.Approvers)
	if svcErr != nil {
		return fail(c, svcErr)
	}
	return respond(c, http.StatusOK, op)
}

// commentHandler handles POST /api/v1/operations/:id/comments.
func (s *Server) commentHandler(c *echo.Context) error {
	id, err := parseOpID(c)
	if err != nil {
		return err
	}
	var req CommentRequest
	if err := bindStrict(c, &req); err != nil {
		return err
	}

	op, svcErr := s.operationService.Comment(extractAuthor(c), id, req.Note)
	if svcErr != nil {
		return fail(c, svcErr)
	}
	return respond(c, http.StatusOK, op)
}
