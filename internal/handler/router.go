package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"clanforge/backend/internal/auth"
	"clanforge/backend/internal/hub"
	"clanforge/backend/internal/lobby"
	"clanforge/backend/internal/logger"
	"clanforge/backend/internal/metrics"
	"clanforge/backend/internal/middleware"
	"clanforge/backend/internal/user"
)

// RouterConfig carries everything the HTTP layer depends on.
type RouterConfig struct {
	Lobbies *lobby.Service
	Users   *user.Service
	Hub     *hub.Hub
	Tokens  auth.TokenParser
	Origins []string
	Logger  *zap.Logger

	// AuthLimiter throttles the sign-in endpoints when set.
	AuthLimiter *middleware.RateLimiter
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logger.RequestLogger(cfg.Logger), middleware.CORS(cfg.Origins))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"clients": cfg.Hub.Len(),
		})
	})
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(cfg.Gatherer)))
	}

	streams := NewStreamHandler(cfg.Hub, cfg.Origins, cfg.Logger)

	lobbyHandler := NewLobbyHandler(cfg.Lobbies)
	userHandler := NewUserHandler(cfg.Users)
	requireAuth := auth.AuthMiddleware(cfg.Tokens)

	limited := []gin.HandlerFunc{}
	if cfg.AuthLimiter != nil {
		limited = append(limited, cfg.AuthLimiter.Middleware())
	}

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	{
		// Push streams
		apiV1.GET("/ws", streams.ServeWebSocket)
		apiV1.GET("/events", streams.ServeEvents)

		userRoutes := apiV1.Group("/users")
		{
			userRoutes.POST("/send-otp", append(limited, userHandler.SendOTP)...)
			userRoutes.POST("/register-verify", append(limited, userHandler.RegisterVerify)...)
			userRoutes.POST("/login", append(limited, userHandler.Login)...)
			userRoutes.POST("/google", append(limited, userHandler.GoogleLogin)...)

			userRoutes.GET("/me", requireAuth, userHandler.GetMe)
			userRoutes.PUT("/me", requireAuth, userHandler.UpdateMe)
			userRoutes.DELETE("/me", requireAuth, userHandler.DeleteMe)
			userRoutes.GET("/:uid", auth.OptionalAuthMiddleware(cfg.Tokens), userHandler.GetUserByUID)
		}

		// Public lobby routes
		lobbyRoutes := apiV1.Group("/lobbies")
		{
			lobbyRoutes.GET("", lobbyHandler.ListLobbies)
			lobbyRoutes.GET("/stats/global", lobbyHandler.GetGlobalStats)
			lobbyRoutes.GET("/:id", lobbyHandler.GetLobbyByID)
		}

		// Lobby mutations (protected, acting as the caller's profile)
		memberRoutes := apiV1.Group("/lobbies")
		memberRoutes.Use(requireAuth, auth.ActorMiddleware(cfg.Users))
		{
			memberRoutes.POST("", lobbyHandler.CreateLobby)
			memberRoutes.PUT("/:id", lobbyHandler.UpdateLobby)
			memberRoutes.DELETE("/:id", lobbyHandler.DisbandLobby)
			memberRoutes.POST("/:id/request", lobbyHandler.RequestToJoin)
			memberRoutes.POST("/:id/accept", lobbyHandler.AcceptRequest)
			memberRoutes.POST("/:id/reject", lobbyHandler.RejectRequest)
			memberRoutes.PUT("/:id/join", lobbyHandler.JoinLobby)
			memberRoutes.PUT("/:id/leave", lobbyHandler.LeaveLobby)
			memberRoutes.PUT("/:id/kick", lobbyHandler.KickMember)
			memberRoutes.PUT("/:id/transfer", lobbyHandler.TransferHost)
		}
	}

	return router
}
