package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/rikuduo/rikuduo/internal/ai"
	"github.com/rikuduo/rikuduo/internal/common"
	"github.com/rikuduo/rikuduo/internal/models"
	"github.com/rikuduo/rikuduo/internal/store/redisstore"
)

// Cache is the slice of redisstore.Store the session-list cache needs; a
// nil Cache disables caching.
type Cache interface {
	GetJSON(ctx context.Context, key string, out any) error
	SetJSON(ctx context.Context, key string, value any) error
	DeletePattern(ctx context.Context, pattern string) error
}

type Service struct {
	repo     *Repo
	registry *ai.Registry
	cache    Cache
}

func NewService(repo *Repo, registry *ai.Registry, cache Cache) *Service {
	return &Service{repo: repo, registry: registry, cache: cache}
}

const maxTitleLen = 500

type CreateSessionInput struct {
	ProjectID    string
	Title        string
	Mode         models.SessionMode
	LLMModel     string
	SystemPrompt string
	Settings     map[string]any
}

func (s *Service) CreateSession(ctx context.Context, userID string, in CreateSessionInput) (*models.Session, error) {
	if in.Title == "" || len(in.Title) > maxTitleLen {
		return nil, fmt.Errorf("%w: title must be 1-%d characters", common.ErrInvalid, maxTitleLen)
	}
	if in.Mode != "" && !in.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", common.ErrInvalid, in.Mode)
	}
	if in.ProjectID != "" {
		// the project must belong to the same user
		if _, err := s.repo.GetProject(ctx, in.ProjectID, userID); err != nil {
			return nil, err
		}
	}

	sess := &models.Session{
		UserID:       userID,
		ProjectID:    nullable(in.ProjectID),
		Title:        in.Title,
		Mode:         in.Mode,
		LLMModel:     nullable(in.LLMModel),
		SystemPrompt: nullable(in.SystemPrompt),
		Settings:     in.Settings,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	s.invalidateSessionLists(ctx, userID)
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, id, userID string) (*models.Session, error) {
	return s.repo.GetSession(ctx, id, userID)
}

// sessionListKey builds the cache key for one user's listing; filtered
// listings get a per-project key under the same user prefix so one pattern
// delete clears them all.
func sessionListKey(userID string, projectID *string) string {
	k := "sessions:u:" + userID
	if projectID != nil {
		k += ":p:" + *projectID
	}
	return k
}

func (s *Service) ListSessions(ctx context.Context, userID string, projectID *string) ([]models.Session, error) {
	key := sessionListKey(userID, projectID)
	if s.cache != nil {
		var cached []models.Session
		if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, redisstore.ErrMiss) {
			log.Printf("session list cache read failed user=%s err=%v", userID, err)
		}
	}

	out, err := s.repo.ListSessions(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, out); err != nil {
			log.Printf("session list cache write failed user=%s err=%v", userID, err)
		}
	}
	return out, nil
}

func (s *Service) UpdateSession(ctx context.Context, id, userID string, patch SessionPatch) (*models.Session, error) {
	if patch.Title != nil && (*patch.Title == "" || len(*patch.Title) > maxTitleLen) {
		return nil, fmt.Errorf("%w: title must be 1-%d characters", common.ErrInvalid, maxTitleLen)
	}
	if patch.Mode != nil && !patch.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", common.ErrInvalid, *patch.Mode)
	}
	if patch.ProjectID != nil && *patch.ProjectID != "" {
		if _, err := s.repo.GetProject(ctx, *patch.ProjectID, userID); err != nil {
			return nil, err
		}
	}

	sess, err := s.repo.UpdateSession(ctx, id, userID, patch)
	if err != nil {
		return nil, err
	}
	s.invalidateSessionLists(ctx, userID)
	return sess, nil
}

// RenameSession is an update touching only the title.
func (s *Service) RenameSession(ctx context.Context, id, userID, title string) (*models.Session, error) {
	return s.UpdateSession(ctx, id, userID, SessionPatch{Title: &title})
}

func (s *Service) DeleteSession(ctx context.Context, id, userID string) error {
	if err := s.repo.DeleteSession(ctx, id, userID); err != nil {
		return err
	}
	s.invalidateSessionLists(ctx, userID)
	return nil
}

func (s *Service) ListMessages(ctx context.Context, sessionID, userID string) ([]models.Message, error) {
	return s.repo.ListMessages(ctx, sessionID, userID)
}

func (s *Service) DeleteMessage(ctx context.Context, messageID, userID string) error {
	return s.repo.DeleteMessage(ctx, messageID, userID)
}

// AppendUserMessage stores a user-authored turn without generating a reply.
func (s *Service) AppendUserMessage(ctx context.Context, sessionID, userID, content string) (*models.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: message content required", common.ErrInvalid)
	}
	msg := &models.Message{Role: models.RoleUser, Content: content}
	if err := s.repo.AppendMessage(ctx, sessionID, userID, msg); err != nil {
		return nil, err
	}
	s.invalidateSessionLists(ctx, userID)
	return msg, nil
}

// SendMessage runs one synchronous chat turn: append the user message, ask
// the provider for the next assistant message, append it.
func (s *Service) SendMessage(ctx context.Context, sessionID, userID, content string) (userMsg, assistantMsg *models.Message, err error) {
	sess, err := s.repo.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, nil, err
	}

	userMsg, err = s.AppendUserMessage(ctx, sessionID, userID, content)
	if err != nil {
		return nil, nil, err
	}

	provider, history, err := s.prepareTurn(ctx, sess)
	if err != nil {
		return nil, nil, err
	}

	reply, err := provider.Chat(ctx, history)
	if err != nil {
		return nil, nil, err
	}

	assistantMsg, err = s.appendAssistantMessage(ctx, sess, provider.ModelName(), reply)
	if err != nil {
		return nil, nil, err
	}
	return userMsg, assistantMsg, nil
}

// SendMessageStream stores the user message, streams assistant chunks, and
// stores the full assistant message once streaming completes. The result
// channel delivers the stored assistant message.
func (s *Service) SendMessageStream(ctx context.Context, sessionID, userID, content string) (<-chan string, <-chan *models.Message, <-chan error) {
	chunks := make(chan string, 16)
	result := make(chan *models.Message, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(result)
		defer close(errs)

		sess, err := s.repo.GetSession(ctx, sessionID, userID)
		if err != nil {
			errs <- err
			return
		}
		if _, err := s.AppendUserMessage(ctx, sessionID, userID, content); err != nil {
			errs <- err
			return
		}

		provider, history, err := s.prepareTurn(ctx, sess)
		if err != nil {
			errs <- err
			return
		}
		sp, ok := provider.(ai.StreamProvider)
		if !ok {
			errs <- errors.New("provider does not support streaming")
			return
		}

		pChunks, pErrs := sp.StreamChat(ctx, history)

		var b strings.Builder
		for c := range pChunks {
			b.WriteString(c)
			select {
			case chunks <- c:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := <-pErrs; err != nil {
			errs <- err
			return
		}

		msg, err := s.appendAssistantMessage(ctx, sess, provider.ModelName(), b.String())
		if err != nil {
			errs <- err
			return
		}
		result <- msg
	}()

	return chunks, result, errs
}

// GenerateAssistantReply produces and stores the next assistant turn from
// the current ledger; the worker calls this for queued jobs.
func (s *Service) GenerateAssistantReply(ctx context.Context, sessionID, userID string) (*models.Message, error) {
	sess, err := s.repo.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	provider, history, err := s.prepareTurn(ctx, sess)
	if err != nil {
		return nil, err
	}
	reply, err := provider.Chat(ctx, history)
	if err != nil {
		return nil, err
	}
	return s.appendAssistantMessage(ctx, sess, provider.ModelName(), reply)
}

// prepareTurn resolves the provider for the session and builds its input
// from the ledger, with session/project overrides applied.
func (s *Service) prepareTurn(ctx context.Context, sess *models.Session) (ai.Provider, []ai.Message, error) {
	model, systemPrompt, err := s.resolveOverrides(ctx, sess)
	if err != nil {
		return nil, nil, err
	}

	provider, err := s.registry.Resolve(ctx, "", model)
	if err != nil {
		return nil, nil, err
	}

	msgs, err := s.repo.ListMessages(ctx, sess.ID, sess.UserID)
	if err != nil {
		return nil, nil, err
	}

	history := make([]ai.Message, 0, len(msgs)+1)
	if systemPrompt != "" {
		history = append(history, ai.Message{Role: string(models.RoleSystem), Content: systemPrompt})
	}
	for _, m := range msgs {
		history = append(history, ai.Message{Role: string(m.Role), Content: m.Content})
	}
	return provider, history, nil
}

// resolveOverrides prefers session-level model/prompt, then the owning
// project's defaults, then the provider's own default.
func (s *Service) resolveOverrides(ctx context.Context, sess *models.Session) (model, systemPrompt string, err error) {
	if sess.LLMModel != nil {
		model = *sess.LLMModel
	}
	if sess.SystemPrompt != nil {
		systemPrompt = *sess.SystemPrompt
	}
	if (model == "" || systemPrompt == "") && sess.ProjectID != nil {
		p, err := s.repo.GetProject(ctx, *sess.ProjectID, sess.UserID)
		if err != nil {
			return "", "", err
		}
		if model == "" && p.DefaultLLMModel != nil {
			model = *p.DefaultLLMModel
		}
		if systemPrompt == "" && p.DefaultSystemPrompt != nil {
			systemPrompt = *p.DefaultSystemPrompt
		}
	}
	return model, systemPrompt, nil
}

func (s *Service) appendAssistantMessage(ctx context.Context, sess *models.Session, modelName, content string) (*models.Message, error) {
	msg := &models.Message{
		Role:     models.RoleAssistant,
		Content:  content,
		LLMModel: nullable(modelName),
	}
	if err := s.repo.AppendMessage(ctx, sess.ID, sess.UserID, msg); err != nil {
		return nil, err
	}
	// the append bumped the session's updated_at, so cached orderings are stale
	s.invalidateSessionLists(ctx, sess.UserID)
	return msg, nil
}

func (s *Service) invalidateSessionLists(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePattern(ctx, sessionListKey(userID, nil)+"*"); err != nil {
		log.Printf("session list cache invalidate failed user=%s err=%v", userID, err)
	}
}

func (s *Service) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJob(ctx, jobID)
}
