package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rikuduo/rikuduo/internal/chat"
	"github.com/rikuduo/rikuduo/internal/common"
	"github.com/rikuduo/rikuduo/internal/models"
)

type createSessionReq struct {
	ProjectID    string             `json:"project_id"`
	Title        string             `json:"title" binding:"required"`
	Mode         models.SessionMode `json:"mode"`
	LLMModel     string             `json:"llm_model"`
	SystemPrompt string             `json:"system_prompt"`
	Settings     map[string]any     `json:"settings"`
}

type updateSessionReq struct {
	Title          *string             `json:"title"`
	Mode           *models.SessionMode `json:"mode"`
	ProjectID      *string             `json:"project_id"`
	LLMModel       *string             `json:"llm_model"`
	SystemPrompt   *string             `json:"system_prompt"`
	Settings       map[string]any      `json:"settings"`
	ContextSummary *string             `json:"context_summary"`
}

type sendMessageReq struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

func (h *Handler) CreateSession(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid json")
		return
	}

	sess, err := h.ChatSvc.CreateSession(c.Request.Context(), uid, chat.CreateSessionInput{
		ProjectID:    req.ProjectID,
		Title:        req.Title,
		Mode:         req.Mode,
		LLMModel:     req.LLMModel,
		SystemPrompt: req.SystemPrompt,
		Settings:     req.Settings,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	common.Created(c, sess)
}

func (h *Handler) ListSessions(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	var projectID *string
	if v := c.Query("project_id"); v != "" {
		projectID = &v
	}

	sessions, err := h.ChatSvc.ListSessions(c.Request.Context(), uid, projectID)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{"sessions": sessions})
}

func (h *Handler) GetSession(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	sess, err := h.ChatSvc.GetSession(c.Request.Context(), c.Param("session_id"), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, sess)
}

func (h *Handler) UpdateSession(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	var req updateSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid json")
		return
	}

	sess, err := h.ChatSvc.UpdateSession(c.Request.Context(), c.Param("session_id"), uid, chat.SessionPatch{
		Title:          req.Title,
		Mode:           req.Mode,
		ProjectID:      req.ProjectID,
		LLMModel:       req.LLMModel,
		SystemPrompt:   req.SystemPrompt,
		Settings:       req.Settings,
		ContextSummary: req.ContextSummary,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, sess)
}

func (h *Handler) RenameSession(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid json")
		return
	}

	sess, err := h.ChatSvc.RenameSession(c.Request.Context(), c.Param("session_id"), uid, req.Title)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, sess)
}

func (h *Handler) DeleteSession(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	if err := h.ChatSvc.DeleteSession(c.Request.Context(), c.Param("session_id"), uid); err != nil {
		failErr(c, err)
		return
	}
	common.NoContent(c)
}

func (h *Handler) ListMessages(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), c.Param("session_id"), uid)
	if err != nil {
		failErr(c, err)
		return
	}
	common.OK(c, gin.H{"messages": msgs})
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	if err := h.ChatSvc.DeleteMessage(c.Request.Context(), c.Param("message_id"), uid); err != nil {
		failErr(c, err)
		return
	}
	common.NoContent(c)
}

// SendMessage runs one synchronous turn and returns both stored messages.
func (h *Handler) SendMessage(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid json")
		return
	}

	userMsg, assistantMsg, err := h.ChatSvc.SendMessage(c.Request.Context(), req.SessionID, uid, req.Message)
	if err != nil {
		failErr(c, err)
		return
	}

	common.Created(c, gin.H{
		"session_id":        req.SessionID,
		"user_message":      userMsg,
		"assistant_message": assistantMsg,
	})
}

// SendMessageStream streams the assistant reply over SSE.
func (h *Handler) SendMessageStream(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid json")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful behind nginx
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"streaming unsupported\"}\n\n")
		return
	}

	writeEvent := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, b)
		flusher.Flush()
	}

	ctx := c.Request.Context()
	chunks, result, errs := h.ChatSvc.SendMessageStream(ctx, req.SessionID, uid, req.Message)

	// heartbeat keeps intermediaries from closing the connection
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ch, open := <-chunks:
			if !open {
				chunks = nil
				continue
			}
			writeEvent("chunk", gin.H{"delta": ch})

		case <-ticker.C:
			writeEvent("ping", gin.H{"ts": time.Now().Unix()})

		case err := <-errs:
			if err != nil {
				writeEvent("error", gin.H{"message": publicError(err)})
				return
			}

		case msg, open := <-result:
			if !open {
				continue
			}
			writeEvent("done", gin.H{"message": msg})
			return

		case <-ctx.Done():
			return
		}
	}
}

func publicError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, common.ErrNotFound):
		return "session not found"
	case errors.Is(err, common.ErrInvalid):
		return err.Error()
	default:
		return "failed to generate reply"
	}
}

// SendMessageAsync stores the user message, enqueues a reply job, and
// returns the job id for polling.
func (h *Handler) SendMessageAsync(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50300, "async replies disabled")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid json")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 40006, "idempotency key too long")
		return
	}
	var idempoKeyPtr *string
	if idempoKey != "" {
		idempoKeyPtr = &idempoKey
	}

	if _, err := h.ChatSvc.AppendUserMessage(c.Request.Context(), req.SessionID, uid, req.Message); err != nil {
		failErr(c, err)
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		failErr(c, err)
		return
	}

	j := &chat.Job{
		ID:             jobID,
		UserID:         uid,
		SessionID:      req.SessionID,
		Prompt:         req.Message,
		IdempotencyKey: idempoKeyPtr,
		Status:         chat.JobQueued,
	}
	j, created, err := h.ChatSvc.CreateJobOrGetExisting(c.Request.Context(), j)
	if err != nil {
		log.Printf("create reply job failed user=%s session=%s err=%v", uid, req.SessionID, err)
		failErr(c, err)
		return
	}

	if created {
		if err := h.Rabbit.PublishJob(c.Request.Context(), j.ID); err != nil {
			log.Printf("publish reply job failed job=%s err=%v", j.ID, err)
			common.Fail(c, http.StatusInternalServerError, 50001, "enqueue failed")
			return
		}
	}

	common.OK(c, gin.H{"job_id": j.ID, "status": j.Status})
}

func (h *Handler) GetJob(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	j, err := h.ChatSvc.GetJob(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	if j.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40400, "not found")
		return
	}

	common.OK(c, gin.H{
		"id":                j.ID,
		"session_id":        j.SessionID,
		"status":            j.Status,
		"result_message_id": j.ResultMessageID,
		"error":             j.Error,
		"created_at":        j.CreatedAt,
		"updated_at":        j.UpdatedAt,
	})
}
