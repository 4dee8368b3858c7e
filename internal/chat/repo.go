package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/rikuduo/rikuduo/internal/common"
	"github.com/rikuduo/rikuduo/internal/models"
)

type Repo struct {
	db          *gorm.DB
	appendLocks *keyedLocks
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db, appendLocks: newKeyedLocks()}
}

func orNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.ErrNotFound
	}
	return err
}

// SessionPatch carries a sparse session update: nil fields are untouched.
// Empty strings clear the nullable columns.
type SessionPatch struct {
	Title          *string
	Mode           *models.SessionMode
	ProjectID      *string
	LLMModel       *string
	SystemPrompt   *string
	Settings       map[string]any
	ContextSummary *string
}

func (p SessionPatch) apply(dst *models.Session) {
	if p.Title != nil {
		dst.Title = *p.Title
	}
	if p.Mode != nil {
		dst.Mode = *p.Mode
	}
	if p.ProjectID != nil {
		dst.ProjectID = nullable(*p.ProjectID)
	}
	if p.LLMModel != nil {
		dst.LLMModel = nullable(*p.LLMModel)
	}
	if p.SystemPrompt != nil {
		dst.SystemPrompt = nullable(*p.SystemPrompt)
	}
	if p.Settings != nil {
		dst.Settings = p.Settings
	}
	if p.ContextSummary != nil {
		dst.ContextSummary = nullable(*p.ContextSummary)
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *Repo) CreateSession(ctx context.Context, s *models.Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// GetSession returns the session only when owned by userID; ownership
// mismatch and absence are both reported as not found.
func (r *Repo) GetSession(ctx context.Context, id, userID string) (*models.Session, error) {
	var s models.Session
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&s).Error
	if err != nil {
		return nil, orNotFound(err)
	}
	return &s, nil
}

func (r *Repo) ListSessions(ctx context.Context, userID string, projectID *string) ([]models.Session, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if projectID != nil {
		q = q.Where("project_id = ?", *projectID)
	}
	var out []models.Session
	if err := q.Order("updated_at DESC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) UpdateSession(ctx context.Context, id, userID string, patch SessionPatch) (*models.Session, error) {
	s, err := r.GetSession(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	patch.apply(s)
	if err := r.db.WithContext(ctx).Save(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// DeleteSession removes the session and all of its messages atomically.
func (r *Repo) DeleteSession(ctx context.Context, id, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.Session
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&s).Error; err != nil {
			return orNotFound(err)
		}
		if err := tx.Where("session_id = ?", s.ID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&s).Error
	})
}

// GetProject resolves a project with the same ownership conflation as
// sessions; used for cross-checking session.project_id and for inheriting
// project defaults.
func (r *Repo) GetProject(ctx context.Context, id, userID string) (*models.Project, error) {
	var p models.Project
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&p).Error
	if err != nil {
		return nil, orNotFound(err)
	}
	return &p, nil
}

// AppendMessage assigns the next sequence number and inserts the message.
// The per-session lock makes the read-max-then-insert step mutually
// exclusive, so concurrent appends to one session always see distinct,
// gap-free sequence numbers; the unique (session_id, sequence) index is the
// storage-level backstop. The owning session's updated_at is bumped in the
// same transaction so recently active sessions list first.
func (r *Repo) AppendMessage(ctx context.Context, sessionID, userID string, m *models.Message) error {
	e := r.appendLocks.lock(sessionID)
	defer r.appendLocks.unlock(sessionID, e)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.Session
		if err := tx.Where("id = ? AND user_id = ?", sessionID, userID).First(&s).Error; err != nil {
			return orNotFound(err)
		}

		var last models.Message
		err := tx.Where("session_id = ?", s.ID).
			Order("sequence DESC").
			First(&last).Error
		switch {
		case err == nil:
			m.Sequence = last.Sequence + 1
		case errors.Is(err, gorm.ErrRecordNotFound):
			m.Sequence = 0
		default:
			return err
		}

		m.SessionID = s.ID
		if err := tx.Create(m).Error; err != nil {
			return err
		}

		return tx.Model(&models.Session{}).
			Where("id = ?", s.ID).
			Update("updated_at", time.Now()).Error
	})
}

// ListMessages returns the session's messages in canonical ledger order.
func (r *Repo) ListMessages(ctx context.Context, sessionID, userID string) ([]models.Message, error) {
	if _, err := r.GetSession(ctx, sessionID, userID); err != nil {
		return nil, err
	}
	var out []models.Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sequence ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteMessage verifies ownership transitively through the message's
// session. Remaining messages keep their sequence numbers; gaps after
// deletion are expected.
func (r *Repo) DeleteMessage(ctx context.Context, messageID, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Message
		if err := tx.Where("id = ?", messageID).First(&m).Error; err != nil {
			return orNotFound(err)
		}
		var s models.Session
		if err := tx.Where("id = ? AND user_id = ?", m.SessionID, userID).First(&s).Error; err != nil {
			return orNotFound(err)
		}
		return tx.Delete(&m).Error
	})
}
