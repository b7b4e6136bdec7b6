package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/meetingintel/server/internal/config"
	"github.com/meetingintel/server/internal/http/handler"
	httpmiddleware "github.com/meetingintel/server/internal/http/middleware"
	mcpserver "github.com/meetingintel/server/internal/mcp"
	"github.com/meetingintel/server/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	oauthHandler *handler.OAuthHandler,
	apiHandler *handler.APIHandler,
	healthHandler *handler.HealthHandler,
	authMiddleware *httpmiddleware.Auth,
	workspaceMiddleware *httpmiddleware.Workspace,
	rateLimiter *middleware.RateLimiter,
	mcpServer *mcpserver.Server,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	r.Use(rateLimiter.Handler())
	r.Use(middleware.CORS(cfg))
	r.Use(middleware.Security(cfg.MaxBodyBytes))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/health", healthHandler.Health)
	r.GET("/health/live", healthHandler.Live)
	r.GET("/health/ready", healthHandler.Ready)

	r.GET("/.well-known/oauth-authorization-server", oauthHandler.AuthorizationServerMetadata)
	r.GET("/.well-known/oauth-protected-resource", oauthHandler.ProtectedResourceMetadata)

	oauth := r.Group("/oauth")
	{
		oauth.POST("/register", oauthHandler.Register)
		oauth.GET("/authorize", oauthHandler.Authorize)
		oauth.POST("/authorize", oauthHandler.AuthorizeSubmit)
		oauth.POST("/token", oauthHandler.Token)
		oauth.POST("/revoke", oauthHandler.Revoke)
	}

	api := r.Group("/api", authMiddleware.Authenticate, workspaceMiddleware.Resolve)
	{
		api.GET("/workspaces", apiHandler.ListWorkspaces)

		api.GET("/meetings", apiHandler.ListMeetings)
		api.GET("/meetings/search", apiHandler.SearchMeetings)
		api.GET("/meetings/:id", apiHandler.GetMeeting)
		api.POST("/meetings", apiHandler.CreateMeeting)
		api.PATCH("/meetings/:id", apiHandler.UpdateMeeting)
		api.DELETE("/meetings/:id", apiHandler.DeleteMeeting)

		api.GET("/actions", apiHandler.ListActions)
		api.GET("/actions/:id", apiHandler.GetAction)
		api.POST("/actions", apiHandler.CreateAction)
		api.PATCH("/actions/:id", apiHandler.UpdateAction)
		api.PATCH("/actions/:id/status", apiHandler.UpdateActionStatus)
		api.DELETE("/actions/:id", apiHandler.DeleteAction)

		api.GET("/decisions", apiHandler.ListDecisions)
		api.POST("/decisions", apiHandler.CreateDecision)
		api.DELETE("/decisions/:id", apiHandler.DeleteDecision)
	}

	// The MCP transport accepts the credential in the Authorization header or
	// embedded in the path for clients that cannot set headers.
	streamable := mcpServer.HTTPServer()
	mcpHandler := gin.WrapH(streamable)
	mcp := r.Group("/mcp", authMiddleware.Authenticate, workspaceMiddleware.Resolve)
	{
		mcp.Any("", mcpHandler)
		mcp.Any("/:token", mcpHandler)
	}

	return r
}
