// Package api is the local callback server: it is the OAuth redirect target
// and carries the message channel, the closed signal and run status.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/hubexport/internal/api/handler"
	"github.com/timmy/hubexport/internal/api/middleware"
	"github.com/timmy/hubexport/internal/oauth"
)

// RouterDeps are the collaborators the callback server routes to.
type RouterDeps struct {
	Store      handler.PayloadStore
	Bus        *oauth.MessageBus
	Opener     handler.CloseNotifier
	Origins    middleware.OriginChecker
	Runs       handler.RunLister
	PayloadTTL time.Duration
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps, mode string) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORS(deps.Origins))

	healthHandler := handler.NewHealthHandler(deps.Bus.Listeners)
	callbackHandler := handler.NewCallbackHandler(deps.Store, deps.Bus, deps.Opener, deps.PayloadTTL)

	r.GET("/health", healthHandler.Health)

	oauthGroup := r.Group("/oauth")
	{
		oauthGroup.GET("/callback", callbackHandler.Callback)
		oauthGroup.POST("/message", callbackHandler.Message)
		oauthGroup.POST("/closed", callbackHandler.Closed)
	}

	if deps.Runs != nil {
		runsHandler := handler.NewRunsHandler(deps.Runs)
		v1 := r.Group("/api/v1")
		{
			v1.GET("/runs", runsHandler.ListRuns)
			v1.GET("/runs/:id", runsHandler.GetRun)
		}
	}

	return r
}
