package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/rikuduo/rikuduo/internal/common"
	"github.com/rikuduo/rikuduo/internal/config"
	"github.com/rikuduo/rikuduo/internal/httpapi/handlers"
	"github.com/rikuduo/rikuduo/internal/httpapi/middleware"
	"github.com/rikuduo/rikuduo/internal/store/rabbitmq"
	"github.com/rikuduo/rikuduo/internal/store/redisstore"
)

func NewRouter(gdb *gorm.DB, cfg config.Config, cache *redisstore.Store, pub *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(gdb, cfg, cache, pub)

	r.GET("/ping", h.Ping)

	api := r.Group("/api")

	api.POST("/auth/signup", h.Signup)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/logout", h.Logout)

	authed := api.Group("/")
	authed.Use(middleware.AuthRequired(cfg.JWTSecret))

	authed.GET("/auth/me", h.Me)

	authed.POST("/projects", h.CreateProject)
	authed.GET("/projects", h.ListProjects)
	authed.GET("/projects/:project_id", h.GetProject)
	authed.PUT("/projects/:project_id", h.UpdateProject)
	authed.DELETE("/projects/:project_id", h.DeleteProject)

	authed.POST("/chat/sessions", h.CreateSession)
	authed.GET("/chat/sessions", h.ListSessions)
	authed.GET("/chat/sessions/:session_id", h.GetSession)
	authed.PUT("/chat/sessions/:session_id", h.UpdateSession)
	authed.PATCH("/chat/sessions/:session_id/rename", h.RenameSession)
	authed.DELETE("/chat/sessions/:session_id", h.DeleteSession)
	authed.GET("/chat/sessions/:session_id/messages", h.ListMessages)

	authed.POST("/chat/messages", h.SendMessage)
	authed.POST("/chat/messages/stream", h.SendMessageStream)
	authed.POST("/chat/messages/async", h.SendMessageAsync)
	authed.DELETE("/chat/messages/:message_id", h.DeleteMessage)
	authed.GET("/chat/jobs/:job_id", h.GetJob)

	return r
}
