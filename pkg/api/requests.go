package api

import (
	"encoding/json"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/smokestack-project/smokestack/pkg/models"
)

// bindStrict decodes a JSON request body, rejecting unknown fields so a typo
// in a write request cannot silently drop data.
func bindStrict(c *echo.Context, v any) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// CreateOperationRequest is the JSON body for POST /api/v1/operations. The
// endpoint also accepts the YAML operation description format when the
// request Content-Type is a YAML type.
type CreateOperationRequest struct {
	Title       string            `json:"title"`
	Purpose     string            `json:"purpose"`
	URL         string            `json:"url"`
	Components  []string          `json:"components"`
	Locks       []string          `json:"locks,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	DependsOn   []uint64          `json:"depends_on,omitempty"`
	Operators   []string          `json:"operators,omitempty"`
	StartsAt    *time.Time        `json:"starts_at,omitempty"`
	EndsAt      *time.Time        `json:"ends_at,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// EditOperationRequest is the JSON body for PATCH /api/v1/operations/:id.
// Absent fields are left unchanged.
type EditOperationRequest struct {
	Title       *string            `json:"title,omitempty"`
	Purpose     *string            `json:"purpose,omitempty"`
	URL         *string            `json:"url,omitempty"`
	Components  *[]string          `json:"components,omitempty"`
	Locks       *[]string          `json:"locks,omitempty"`
	Tags        *[]string          `json:"tags,omitempty"`
	DependsOn   *[]uint64          `json:"depends_on,omitempty"`
	Operators   *[]string          `json:"operators,omitempty"`
	StartsAt    *time.Time         `json:"starts_at,omitempty"`
	EndsAt      *time.Time         `json:"ends_at,omitempty"`
	ClearWindow bool               `json:"clear_window,omitempty"`
	Annotations *map[string]string `json:"annotations,omitempty"`
}

// TransitionRequest is the JSON body for POST /api/v1/operations/:id/transition.
type TransitionRequest struct {
	To   string `json:"to"`
	Note string `json:"note,omitempty"`
}

// SetApprovalsRequest is the JSON body for PUT /api/v1/operations/:id/approvals.
type SetApprovalsRequest struct {
	Approvers []string `json:"approvers"`
}

// CommentRequest is the JSON body for POST /api/v1/operations/:id/comments.
type CommentRequest struct {
	Note string `json:"note"`
}

// SubscriptionRequest is the JSON body for POST and DELETE /api/v1/subscriptions.
type SubscriptionRequest struct {
	Operation *uint64 `json:"operation,omitempty"`
	Component string  `json:"component,omitempty"`
	Tag       string  `json:"tag,omitempty"`
}

func (r SubscriptionRequest) selector() models.Selector {
	return models.Selector{Operation: r.Operation, Component: r.Component, Tag: r.Tag}
}

// ComponentRequest is the JSON body for PUT /api/v1/components/:name.
type ComponentRequest struct {
	Description        string   `json:"description,omitempty"`
	URL                string   `json:"url,omitempty"`
	Owners             []string `json:"owners,omitempty"`
	RequiresApprovalBy string   `json:"requires_approval_by,omitempty"`
	RequiredApprovals  int      `json:"required_approvals,omitempty"`
}

// TagRequest is the JSON body for PUT /api/v1/tags/:name.
type TagRequest struct {
	Description        string `json:"description,omitempty"`
	RequiresApprovalBy string `json:"requires_approval_by,omitempty"`
	RequiredApprovals  int    `json:"required_approvals,omitempty"`
}

// GroupRequest is the JSON body for PUT /api/v1/groups/:name.
type GroupRequest struct {
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members,omitempty"`
}

// UserRequest is the JSON body for PUT /api/v1/users/:name.
type UserRequest struct {
	Kind string `json:"kind,omitempty"`
}

// SinkRequest is the JSON body for POST /api/v1/sinks and PUT /api/v1/sinks/:id.
type SinkRequest struct {
	Operation *uint64  `json:"operation,omitempty"`
	Component string   `json:"component,omitempty"`
	Tag       string   `json:"tag,omitempty"`
	Events    []string `json:"events,omitempty"`
	Target    string   `json:"target"`
}
