package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"notebookrag/internal/bootstrap"
	"notebookrag/internal/stage"
	"notebookrag/internal/transport/http/handler"
	"notebookrag/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), otelgin.Middleware(app.Config.App.Name))

	checks := make(map[string]handler.CheckFunc)
	for name, check := range app.HealthChecks() {
		checks[name] = check
	}
	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, checks)
	router.GET("/healthz", healthHandler.Check)
	if app.Metrics != nil {
		router.GET("/metrics", gin.WrapH(app.Metrics.Handler()))
	}

	sessionHandler := handler.NewSessionHandler(app.Sessions)
	messageHandler := handler.NewMessageHandler(app.Messages, app.RAG)
	sourceHandler := handler.NewSourceHandler(app.Sources, app.Config.Ingest.MaxUploadMB)

	v1 := router.Group("/api/v1")

	// signed links authenticate themselves
	if local, ok := app.Stage.(*stage.LocalGateway); ok {
		stageHandler := handler.NewStageHandler(local)
		v1.GET("/stage/:namespace/:name", stageHandler.Download)
	}

	sessions := v1.Group("/sessions")
	sessions.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	sessions.POST("", sessionHandler.Create)
	sessions.GET("", sessionHandler.List)
	sessions.GET("/:id", sessionHandler.Get)
	sessions.PATCH("/:id", sessionHandler.Update)
	sessions.DELETE("/:id", sessionHandler.Delete)
	sessions.GET("/:id/stats", sessionHandler.Stats)

	sessions.GET("/:id/messages", messageHandler.Recent)
	sessions.POST("/:id/ask", messageHandler.Ask)

	sessions.POST("/:id/files", sourceHandler.Upload)
	sessions.GET("/:id/files", sourceHandler.List)
	sessions.GET("/:id/files/stats", sourceHandler.Stats)
	sessions.GET("/:id/files/url", sourceHandler.URL)
	sessions.DELETE("/:id/files/:name", sourceHandler.Remove)

	return router
}
