package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rikuduo/rikuduo/internal/common"
	"github.com/rikuduo/rikuduo/internal/project"
)

type createProjectReq struct {
	Name                string   `json:"name" binding:"required"`
	Description         string   `json:"description"`
	Tags                []string `json:"tags"`
	DefaultLLMModel     string   `json:"default_llm_model"`
	DefaultSystemPrompt string   `json:"default_system_prompt"`
}

type updateProjectReq struct {
	Name                *string        `json:"name"`
	Description         *string        `json:"description"`
	Tags                []string       `json:"tags"`
	Settings            map[string]any `json:"settings"`
	DefaultLLMModel     *string        `json:"default_llm_model"`
	DefaultSystemPrompt *string        `json:"default_system_prompt"`
}

func (h *Handler) CreateProject(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	var req createProjectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid json")
		return
	}

	p, err := h.ProjectSvc.Create(c.Request.Context(), uid, project.CreateInput{
		Name:                req.Name,
		Description:         req.Description,
		Tags:                req.Tags,
		DefaultLLMModel:     req.DefaultLLMModel,
		DefaultSystemPrompt: req.DefaultSystemPrompt,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	common.Created(c, p)
}

func (h *Handler) ListProjects(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	projects, err := h.ProjectSvc.List(c.Request.Context(), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{"projects": projects})
}

func (h *Handler) GetProject(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	p, err := h.ProjectSvc.Get(c.Request.Context(), c.Param("project_id"), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, p)
}

func (h *Handler) UpdateProject(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	var req updateProjectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid json")
		return
	}

	p, err := h.ProjectSvc.Update(c.Request.Context(), c.Param("project_id"), uid, project.Patch{
		Name:                req.Name,
		Description:         req.Description,
		Tags:                req.Tags,
		Settings:            req.Settings,
		DefaultLLMModel:     req.DefaultLLMModel,
		DefaultSystemPrompt: req.DefaultSystemPrompt,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, p)
}

func (h *Handler) DeleteProject(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	if err := h.ProjectSvc.Delete(c.Request.Context(), c.Param("project_id"), uid); err != nil {
		failErr(c, err)
		return
	}
	common.NoContent(c)
}
