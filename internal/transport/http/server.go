package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "askdocs/internal/app"
	"askdocs/internal/bootstrap"
	"askdocs/internal/repository"
	"askdocs/internal/transport/http/handler"
	"askdocs/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	docRepo := repository.NewDocumentRepository(app.MySQL)
	sessionRepo := repository.NewChatSessionRepository(app.MySQL)
	messageRepo := repository.NewChatMessageRepository(app.MySQL)
	linkRepo := repository.NewSessionDocumentRepository(app.MySQL)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	documentService := appsvc.NewDocumentService(docRepo, linkRepo, app.Publisher, app.Config.Ingest.DocumentsDir)
	sessionService := appsvc.NewSessionService(sessionRepo, linkRepo, messageRepo, docRepo, app.HistoryCache)
	chatService := appsvc.NewChatService(
		sessionRepo,
		messageRepo,
		linkRepo,
		docRepo,
		app.HistoryCache,
		app.LLM,
		app.LLM,
		app.VectorIndex,
		appsvc.ChatOptions{
			TopK:            app.Config.LLM.SearchTopK,
			MaxHistoryTurns: app.Config.LLM.MaxHistoryTurns,
			SystemPrompt:    app.Config.LLM.SystemPrompt,
			RetrieverPrompt: app.Config.LLM.RetrieverPrompt,
		},
	)

	authHandler := handler.NewAuthHandler(authService)
	documentHandler := handler.NewDocumentHandler(documentService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	chatHandler := handler.NewChatHandler(chatService)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	authed := v1.Group("")
	authed.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))

	authed.POST("/documents", documentHandler.Upload)
	authed.GET("/documents", documentHandler.List)
	authed.GET("/documents/:id", documentHandler.Get)
	authed.DELETE("/documents/:id", documentHandler.Delete)

	authed.POST("/sessions", sessionHandler.Create)
	authed.GET("/sessions", sessionHandler.List)
	authed.PUT("/sessions/:id", sessionHandler.Rename)
	authed.DELETE("/sessions/:id", sessionHandler.Delete)
	authed.POST("/sessions/:id/documents", sessionHandler.AttachDocument)
	authed.GET("/sessions/:id/documents", sessionHandler.ListDocuments)
	authed.DELETE("/sessions/:id/documents/:document_id", sessionHandler.DetachDocument)

	authed.POST("/chat/ask", chatHandler.Ask)
	authed.POST("/chat/stream", chatHandler.StreamAsk)
	authed.GET("/chat/history", chatHandler.GetHistory)

	return router
}
