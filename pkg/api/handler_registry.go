package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/smokestack-project/smokestack/pkg/models"
)

// --- Components ---

func (s *Server) listComponentsHandler(c *echo.Context) error {
	return respond(c, http.StatusOK, s.registryService.ListComponents())
}

func (s *Server) getComponentHandler(c *echo.Context) error {
	comp, err := s.registryService.GetComponent(c.Param("name"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, comp)
}

func (s *Server) upsertComponentHandler(c *echo.Context) error {
	var req ComponentRequest
	if err := bindStrict(c, &req); err != nil {
		return err
	}

	comp, err := s.registryService.UpsertComponent(extractAuthor(c), &models.Component{
		Name:               c.Param("name"),
		Description:        req.Description,
		URL:                req.URL,
		Owners:             req.Owners,
		RequiresApprovalBy: req.RequiresApprovalBy,
		RequiredApprovals:  req.RequiredApprovals,
	})
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, comp)
}

func (s *Server) deleteComponentHandler(c *echo.Context) error {
	if err := s.registryService.DeleteComponent(extractAuthor(c), c.Param("name")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Tags ---

func (s *Server) listTagsHandler(c *echo.Context) error {
	return respond(c, http.StatusOK, s.registryService.ListTags())
}

func (s *Server) getTagHandler(c *echo.Context) error {
	tag, err := s.registryService.GetTag(c.Param("name"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, tag)
}

func (s *Server) upsertTagHandler(c *echo.Context) error {
	var req TagRequest
	if err := bindStrict(c, &req); err != nil {
		return err
	}

	tag, err := s.registryService.UpsertTag(extractAuthor(c), &models.Tag{
		Name:               c.Param("name"),
		Description:        req.Description,
		RequiresApprovalBy: req.RequiresApprovalBy,
		RequiredApprovals:  req.RequiredApprovals,
	})
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, tag)
}

func (s *Server) deleteTagHandler(c *echo.Context) error {
	if err := s.registryService.DeleteTag(extractAuthor(c), c.Param("name")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Groups ---

func (s *Server) listGroupsHandler(c *echo.Context) error {
	return respond(c, http.StatusOK, s.registryService.ListGroups())
}

func (s *Server) getGroupHandler(c *echo.Context) error {
	g, err := s.registryService.GetGroup(c.Param("name"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, g)
}

func (s *Server) upsertGroupHandler(c *echo.Context) error {
	var req GroupRequest
	if err := bindStrict(c, &req); err != nil {
		return err
	}

	g, err := s.registryService.UpsertGroup(extractAuthor(c), &models.Group{
		Name:        c.Param("name"),
		Description: req.Description,
		Members:     req.Members,
	})
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, g)
}

func (s *Server) deleteGroupHandler(c *echo.Context) error {
	if err := s.registryService.DeleteGroup(extractAuthor(c), c.Param("name")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Users ---

func (s *Server) listUsersHandler(c *echo.Context) error {
	return respond(c, http.StatusOK, s.registryService.ListUsers())
}

func (s *Server) getUserHandler(c *echo.Context) error {
	u, err := s.registryService.GetUser(c.Param("name"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, u)
}

func (s *Server) upsertUserHandler(c *echo.Context) error {
	var req UserRequest
	if err := bindStrict(c, &req); err != nil {
		return err
	}

	u, err := s.registryService.UpsertUser(extractAuthor(c), &models.User{
		Name: c.Param("name"),
		Kind: models.UserKind(req.Kind),
	})
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, u)
}

func (s *Server) deleteUserHandler(c *echo.Context) error {
	if err := s.registryService.DeleteUser(extractAuthor(c), c.Param("name")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
