package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/rikuduo/rikuduo/internal/auth"
	"github.com/rikuduo/rikuduo/internal/common"
	"github.com/rikuduo/rikuduo/internal/models"
)

type signupReq struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginReq struct {
	Identifier string `json:"identifier"` // email or username
	Password   string `json:"password"`
}

func userPayload(u *models.User) gin.H {
	return gin.H{
		"id":         u.ID,
		"email":      u.Email,
		"username":   u.Username,
		"is_active":  u.IsActive,
		"created_at": u.CreatedAt,
	}
}

func tokenPayload(token string, u *models.User) gin.H {
	return gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"user":         userPayload(u),
	}
}

func (h *Handler) Signup(c *gin.Context) {
	var req signupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid json")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	switch {
	case !strings.Contains(req.Email, "@") || len(req.Email) > 255:
		common.Fail(c, http.StatusBadRequest, 40002, "valid email required")
		return
	case len(req.Username) < 3 || len(req.Username) > 100:
		common.Fail(c, http.StatusBadRequest, 40003, "username must be 3-100 characters")
		return
	case len(req.Password) < 8:
		common.Fail(c, http.StatusBadRequest, 40004, "password must be at least 8 characters")
		return
	}

	var count int64
	if err := h.DB.Model(&models.User{}).Where("email = ?", req.Email).Count(&count).Error; err != nil {
		failErr(c, err)
		return
	}
	if count > 0 {
		common.Fail(c, http.StatusConflict, 40901, "email already registered")
		return
	}
	if err := h.DB.Model(&models.User{}).Where("username = ?", req.Username).Count(&count).Error; err != nil {
		failErr(c, err)
		return
	}
	if count > 0 {
		common.Fail(c, http.StatusConflict, 40902, "username already taken")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		failErr(c, err)
		return
	}

	user := models.User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		// lost a race against a concurrent signup with the same email/username
		common.Fail(c, http.StatusConflict, 40903, "email or username already taken")
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, h.Cfg.TokenTTL)
	if err != nil {
		failErr(c, err)
		return
	}

	common.Created(c, tokenPayload(token, &user))
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "invalid json")
		return
	}
	if req.Identifier == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 40005, "identifier and password required")
		return
	}

	var user models.User
	err := h.DB.Where("email = ? OR username = ?", req.Identifier, req.Identifier).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// same response as a wrong password
			common.Fail(c, http.StatusUnauthorized, 40110, "incorrect credentials")
			return
		}
		failErr(c, err)
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		common.Fail(c, http.StatusUnauthorized, 40110, "incorrect credentials")
		return
	}
	if !user.IsActive {
		common.Fail(c, http.StatusForbidden, 40310, "account disabled")
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, h.Cfg.TokenTTL)
	if err != nil {
		failErr(c, err)
		return
	}

	common.OK(c, tokenPayload(token, &user))
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusUnauthorized, 40100, "unauthorized")
			return
		}
		failErr(c, err)
		return
	}

	common.OK(c, userPayload(&user))
}

// Logout exists for API symmetry; the JWT is discarded client-side.
func (h *Handler) Logout(c *gin.Context) {
	common.OK(c, gin.H{"message": "successfully logged out"})
}
