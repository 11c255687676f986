package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// listSubscriptionsHandler handles GET /api/v1/subscriptions. Always scoped
// to the authenticated user.
func (s *Server) listSubscriptionsHandler(c *echo.Context) error {
	return respond(c, http.StatusOK, s.subscriptionService.List(extractAuthor(c)))
}

// subscribeHandler handles POST /api/v1/subscriptions.
func (s *Server) subscribeHandler(c *echo.Context) error {
	var req SubscriptionRequest
	if err := bindStrict(c, &req); err != nil {
		return err
	}

	subs, err := s.subscriptionService.Subscribe(extractAuthor(c), req.selector())
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, subs)
}

// unsubscribeHandler handles DELETE /api/v1/subscriptions.
func (s *Server) unsubscribeHandler(c *echo.Context) error {
	var req SubscriptionRequest
	if err := bindStrict(c, &req); err != nil {
		return err
	}

	subs, err := s.subscriptionService.Unsubscribe(extractAuthor(c), req.selector())
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, subs)
}
