package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/rikuduo/rikuduo/internal/chat"
	"github.com/rikuduo/rikuduo/internal/config"
	"github.com/rikuduo/rikuduo/internal/models"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Project{}, &models.Session{}, &models.Message{}, &chat.Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := config.Config{
		JWTSecret:   "test-secret",
		TokenTTL:    time.Hour,
		AIProvider:  "echo",
		CORSOrigins: []string{"*"},
	}
	return NewRouter(db, cfg, nil, nil)
}

func do(t *testing.T, r *gin.Engine, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: bad envelope %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, env
}

func signupAndLogin(t *testing.T, r *gin.Engine) string {
	t.Helper()
	name := strings.ToLower(strings.ReplaceAll(t.Name(), "/", "_"))
	w, _ := do(t, r, http.MethodPost, "/api/auth/signup", "", gin.H{
		"email":    name + "@example.com",
		"username": name,
		"password": "hunter2hunter2",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status %d: %s", w.Code, w.Body.String())
	}

	w, env := do(t, r, http.MethodPost, "/api/auth/login", "", gin.H{
		"identifier": name + "@example.com",
		"password":   "hunter2hunter2",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", w.Code, w.Body.String())
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil || payload.AccessToken == "" {
		t.Fatalf("missing access token in %s", env.Data)
	}
	return payload.AccessToken
}

func TestAuthFlow(t *testing.T) {
	r := newTestRouter(t)
	token := signupAndLogin(t, r)

	w, env := do(t, r, http.MethodGet, "/api/auth/me", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me status %d: %s", w.Code, w.Body.String())
	}
	var me struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(env.Data, &me); err != nil || me.Email == "" {
		t.Fatalf("unexpected me payload: %s", env.Data)
	}

	// same route without a token is rejected
	w, _ = do(t, r, http.MethodGet, "/api/auth/me", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated me status %d", w.Code)
	}
}

func TestLoginFailuresLookAlike(t *testing.T) {
	r := newTestRouter(t)
	signupAndLogin(t, r)
	name := strings.ToLower(strings.ReplaceAll(t.Name(), "/", "_"))

	w1, e1 := do(t, r, http.MethodPost, "/api/auth/login", "", gin.H{
		"identifier": name + "@example.com",
		"password":   "wrong-password",
	})
	w2, e2 := do(t, r, http.MethodPost, "/api/auth/login", "", gin.H{
		"identifier": "nobody@example.com",
		"password":   "wrong-password",
	})
	if w1.Code != http.StatusUnauthorized || w2.Code != http.StatusUnauthorized {
		t.Fatalf("statuses %d, %d", w1.Code, w2.Code)
	}
	if e1.Code != e2.Code || e1.Message != e2.Message {
		t.Fatalf("wrong-password and unknown-user responses differ: %+v vs %+v", e1, e2)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	r := newTestRouter(t)
	signupAndLogin(t, r)
	name := strings.ToLower(strings.ReplaceAll(t.Name(), "/", "_"))

	w, _ := do(t, r, http.MethodPost, "/api/auth/signup", "", gin.H{
		"email":    name + "@example.com",
		"username": name + "2",
		"password": "hunter2hunter2",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate email status %d: %s", w.Code, w.Body.String())
	}
}

func TestChatFlowOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	token := signupAndLogin(t, r)

	w, env := do(t, r, http.MethodPost, "/api/projects", token, gin.H{"name": "P"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create project status %d: %s", w.Code, w.Body.String())
	}
	var proj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &proj); err != nil || proj.ID == "" {
		t.Fatalf("bad project payload: %s", env.Data)
	}

	w, env = do(t, r, http.MethodPost, "/api/chat/sessions", token, gin.H{
		"title":      "S",
		"mode":       "chat",
		"project_id": proj.ID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create session status %d: %s", w.Code, w.Body.String())
	}
	var sess struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &sess); err != nil || sess.ID == "" {
		t.Fatalf("bad session payload: %s", env.Data)
	}

	w, env = do(t, r, http.MethodPost, "/api/chat/messages", token, gin.H{
		"session_id": sess.ID,
		"message":    "hi",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("send status %d: %s", w.Code, w.Body.String())
	}
	var turn struct {
		UserMessage      models.Message `json:"user_message"`
		AssistantMessage models.Message `json:"assistant_message"`
	}
	if err := json.Unmarshal(env.Data, &turn); err != nil {
		t.Fatalf("bad turn payload: %s", env.Data)
	}
	if turn.UserMessage.Sequence != 0 || turn.AssistantMessage.Sequence != 1 {
		t.Fatalf("sequences %d, %d", turn.UserMessage.Sequence, turn.AssistantMessage.Sequence)
	}
	if turn.AssistantMessage.Content != "Echo: hi" {
		t.Fatalf("assistant content %q", turn.AssistantMessage.Content)
	}

	w, env = do(t, r, http.MethodGet, "/api/chat/sessions/"+sess.ID+"/messages", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list messages status %d: %s", w.Code, w.Body.String())
	}
	var ledger struct {
		Messages []models.Message `json:"messages"`
	}
	if err := json.Unmarshal(env.Data, &ledger); err != nil {
		t.Fatalf("bad messages payload: %s", env.Data)
	}
	if len(ledger.Messages) != 2 || ledger.Messages[0].Sequence != 0 || ledger.Messages[1].Sequence != 1 {
		t.Fatalf("unexpected ledger: %s", env.Data)
	}

	w, _ = do(t, r, http.MethodPatch, "/api/chat/sessions/"+sess.ID+"/rename", token, gin.H{"title": "S2"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename status %d: %s", w.Code, w.Body.String())
	}

	w, env = do(t, r, http.MethodGet, "/api/chat/sessions/"+sess.ID, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get session status %d", w.Code)
	}
	var got struct {
		Title string `json:"title"`
		Mode  string `json:"mode"`
	}
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("bad session payload: %s", env.Data)
	}
	if got.Title != "S2" || got.Mode != "chat" {
		t.Fatalf("after rename: %+v", got)
	}
}

func TestForeignSessionIs404(t *testing.T) {
	r := newTestRouter(t)
	token := signupAndLogin(t, r)

	_, env := do(t, r, http.MethodPost, "/api/chat/sessions", token, gin.H{"title": "mine"})
	var sess struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &sess); err != nil || sess.ID == "" {
		t.Fatalf("bad session payload: %s", env.Data)
	}

	name := strings.ToLower(strings.ReplaceAll(t.Name(), "/", "_"))
	w, _ := do(t, r, http.MethodPost, "/api/auth/signup", "", gin.H{
		"email":    name + "-b@example.com",
		"username": name + "b",
		"password": "hunter2hunter2",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("second signup status %d: %s", w.Code, w.Body.String())
	}
	w, env2 := do(t, r, http.MethodPost, "/api/auth/login", "", gin.H{
		"identifier": name + "b",
		"password":   "hunter2hunter2",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("second login status %d", w.Code)
	}
	var other struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(env2.Data, &other); err != nil {
		t.Fatalf("bad login payload: %s", env2.Data)
	}

	w, _ = do(t, r, http.MethodGet, "/api/chat/sessions/"+sess.ID, other.AccessToken, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign session status %d, want 404", w.Code)
	}
}

func TestAsyncUnavailableWithoutBroker(t *testing.T) {
	r := newTestRouter(t)
	token := signupAndLogin(t, r)

	_, env := do(t, r, http.MethodPost, "/api/chat/sessions", token, gin.H{"title": "s"})
	var sess struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &sess); err != nil || sess.ID == "" {
		t.Fatalf("bad session payload: %s", env.Data)
	}

	w, _ := do(t, r, http.MethodPost, "/api/chat/messages/async", token, gin.H{
		"session_id": sess.ID,
		"message":    "hi",
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("async without broker status %d, want 503", w.Code)
	}
}
