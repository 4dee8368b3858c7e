package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Project struct {
	ID     string `gorm:"type:char(36);primaryKey" json:"id"`
	UserID string `gorm:"type:char(36);index;not null" json:"-"`

	Name        string  `gorm:"type:varchar(255);not null" json:"name"`
	Description *string `gorm:"type:text" json:"description"`

	Tags     []string       `gorm:"serializer:json" json:"tags"`
	Settings map[string]any `gorm:"serializer:json" json:"settings"`

	// Defaults inherited by sessions that do not set their own.
	DefaultLLMModel     *string `gorm:"type:varchar(100)" json:"default_llm_model"`
	DefaultSystemPrompt *string `gorm:"type:text" json:"default_system_prompt"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Project) TableName() string { return "projects" }

func (p *Project) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Settings == nil {
		p.Settings = map[string]any{}
	}
	return nil
}
