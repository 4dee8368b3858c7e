package project

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/rikuduo/rikuduo/internal/common"
	"github.com/rikuduo/rikuduo/internal/models"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Patch carries a sparse update: nil fields are left untouched. For the
// nullable columns an empty string clears the value.
type Patch struct {
	Name                *string
	Description         *string
	Tags                []string
	Settings            map[string]any
	DefaultLLMModel     *string
	DefaultSystemPrompt *string
}

func (p Patch) apply(dst *models.Project) {
	if p.Name != nil {
		dst.Name = *p.Name
	}
	if p.Description != nil {
		dst.Description = nullable(*p.Description)
	}
	if p.Tags != nil {
		dst.Tags = p.Tags
	}
	if p.Settings != nil {
		dst.Settings = p.Settings
	}
	if p.DefaultLLMModel != nil {
		dst.DefaultLLMModel = nullable(*p.DefaultLLMModel)
	}
	if p.DefaultSystemPrompt != nil {
		dst.DefaultSystemPrompt = nullable(*p.DefaultSystemPrompt)
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *Repo) Create(ctx context.Context, p *models.Project) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// Get returns the project only when it exists and belongs to userID. A
// mismatch is reported as not found, same as a missing row.
func (r *Repo) Get(ctx context.Context, id, userID string) (*models.Project, error) {
	var p models.Project
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repo) List(ctx context.Context, userID string) ([]models.Project, error) {
	var out []models.Project
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) Update(ctx context.Context, id, userID string, patch Patch) (*models.Project, error) {
	p, err := r.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	patch.apply(p)
	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes the project together with its sessions and their messages
// in one transaction (cascade depth 2).
func (r *Repo) Delete(ctx context.Context, id, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Project
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return common.ErrNotFound
			}
			return err
		}

		var sessionIDs []string
		if err := tx.Model(&models.Session{}).
			Where("project_id = ?", p.ID).
			Pluck("id", &sessionIDs).Error; err != nil {
			return err
		}
		if len(sessionIDs) > 0 {
			if err := tx.Where("session_id IN ?", sessionIDs).Delete(&models.Message{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", sessionIDs).Delete(&models.Session{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&p).Error
	})
}
