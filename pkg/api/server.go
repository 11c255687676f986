// Package api exposes the REST and WebSocket surface. Handlers validate and
// translate requests; all business logic lives in the services and the
// engine behind them.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/smokestack-project/smokestack/pkg/config"
	"github.com/smokestack-project/smokestack/pkg/engine"
	"github.com/smokestack-project/smokestack/pkg/events"
	"github.com/smokestack-project/smokestack/pkg/metrics"
	"github.com/smokestack-project/smokestack/pkg/services"
)

// Server represents the HTTP server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	cfg        *config.Config

	operationService    *services.OperationService
	registryService     *services.RegistryService
	subscriptionService *services.SubscriptionService
	historyService      *services.HistoryService

	engine      *engine.Engine
	connManager *events.ConnectionManager
	dispatcher  *events.Dispatcher
}

// NewServer creates a new API server and registers all routes.
func NewServer(
	cfg *config.Config,
	eng *engine.Engine,
	operationService *services.OperationService,
	registryService *services.RegistryService,
	subscriptionService *services.SubscriptionService,
	historyService *services.HistoryService,
	connManager *events.ConnectionManager,
	dispatcher *events.Dispatcher,
) *Server {
	s := &Server{
		echo:                echo.New(),
		cfg:                 cfg,
		engine:              eng,
		operationService:    operationService,
		registryService:     registryService,
		subscriptionService: subscriptionService,
		historyService:      historyService,
		connManager:         connManager,
		dispatcher:          dispatcher,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.Use(securityHeaders())

	e.GET("/health", s.healthHandler)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.GET("/ws/watch", s.wsHandler)

	v1 := e.Group("/api/v1")

	v1.POST("/operations", s.createOperationHandler)
	v1.GET("/operations", s.listOperationsHandler)
	v1.GET("/operations/:id", s.getOperationHandler)
	v1.GET("/operations/:id/description", s.getOperationDescriptionHandler)
	v1.PATCH("/operations/:id", s.editOperationHandler)
	v1.POST("/operations/:id/transition", s.transitionHandler)
	v1.POST("/operations/:id/approve", s.approveHandler)
	v1.PUT("/operations/:id/approvals", s.setApprovalsHandler)
	v1.POST("/operations/:id/comments", s.commentHandler)

	v1.GET("/subscriptions", s.listSubscriptionsHandler)
	v1.POST("/subscriptions", s.subscribeHandler)
	v1.DELETE("/subscriptions", s.unsubscribeHandler)

	v1.GET("/components", s.listComponentsHandler)
	v1.GET("/components/:name", s.getComponentHandler)
	v1.PUT("/components/:name", s.upsertComponentHandler)
	v1.DELETE("/components/:name", s.deleteComponentHandler)

	v1.GET("/tags", s.listTagsHandler)
	v1.GET("/tags/:name", s.getTagHandler)
	v1.PUT("/tags/:name", s.upsertTagHandler)
	v1.DELETE("/tags/:name", s.deleteTagHandler)

	v1.GET("/groups", s.listGroupsHandler)
	v1.GET("/groups/:name", s.getGroupHandler)
	v1.PUT("/groups/:name", s.upsertGroupHandler)
	v1.DELETE("/groups/:name", s.deleteGroupHandler)

	v1.GET("/users", s.listUsersHandler)
	v1.GET("/users/:name", s.getUserHandler)
	v1.PUT("/users/:name", s.upsertUserHandler)
	v1.DELETE("/users/:name", s.deleteUserHandler)

	v1.GET("/sinks", s.listSinksHandler)
	v1.GET("/sinks/:id", s.getSinkHandler)
	v1.POST("/sinks", s.createSinkHandler)
	v1.PUT("/sinks/:id", s.upsertSinkHandler)
	v1.DELETE("/sinks/:id", s.deleteSinkHandler)

	v1.GET("/history", s.historyHandler)
}

// Start begins serving on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
