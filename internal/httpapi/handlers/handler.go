package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/rikuduo/rikuduo/internal/ai"
	"github.com/rikuduo/rikuduo/internal/chat"
	"github.com/rikuduo/rikuduo/internal/common"
	"github.com/rikuduo/rikuduo/internal/config"
	"github.com/rikuduo/rikuduo/internal/httpapi/middleware"
	"github.com/rikuduo/rikuduo/internal/project"
	"github.com/rikuduo/rikuduo/internal/store/rabbitmq"
	"github.com/rikuduo/rikuduo/internal/store/redisstore"
)

type Handler struct {
	DB         *gorm.DB
	Cfg        config.Config
	ProjectSvc *project.Service
	ChatSvc    *chat.Service
	Rabbit     *rabbitmq.Publisher // nil disables async sends
}

func NewHandler(gdb *gorm.DB, cfg config.Config, cache *redisstore.Store, pub *rabbitmq.Publisher) *Handler {
	registry := ai.NewRegistry(cfg.AIProvider)
	registry.RegisterBuiltins(cfg.OllamaBaseURL, cfg.OllamaModel)

	// a typed nil must not reach the interface-valued cache
	var listCache chat.Cache
	if cache != nil {
		listCache = cache
	}

	return &Handler{
		DB:         gdb,
		Cfg:        cfg,
		ProjectSvc: project.NewService(project.NewRepo(gdb)),
		ChatSvc:    chat.NewService(chat.NewRepo(gdb), registry, listCache),
		Rabbit:     pub,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func userIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// failErr maps the service error taxonomy onto the response envelope.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		common.Fail(c, http.StatusNotFound, 40400, "not found")
	case errors.Is(err, common.ErrConflict):
		common.Fail(c, http.StatusConflict, 40900, err.Error())
	case errors.Is(err, common.ErrUnauthorized):
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
	case errors.Is(err, common.ErrForbidden):
		common.Fail(c, http.StatusForbidden, 40300, "forbidden")
	case errors.Is(err, common.ErrInvalid):
		common.Fail(c, http.StatusBadRequest, 40000, err.Error())
	default:
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
	}
}
