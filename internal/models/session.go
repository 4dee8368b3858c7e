package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SessionMode string

const (
	ModeChat        SessionMode = "chat"
	ModeCode        SessionMode = "code"
	ModeResearch    SessionMode = "research"
	ModeTranslation SessionMode = "translation"
	ModeCouncil     SessionMode = "council"
	ModeAgent       SessionMode = "agent"
)

func (m SessionMode) Valid() bool {
	switch m {
	case ModeChat, ModeCode, ModeResearch, ModeTranslation, ModeCouncil, ModeAgent:
		return true
	}
	return false
}

type Session struct {
	ID        string  `gorm:"type:char(36);primaryKey" json:"id"`
	UserID    string  `gorm:"type:char(36);index;not null" json:"-"`
	ProjectID *string `gorm:"type:char(36);index" json:"project_id"`

	Title string      `gorm:"type:varchar(500);not null" json:"title"`
	Mode  SessionMode `gorm:"type:varchar(16);not null" json:"mode"`

	// Session-level overrides; project defaults apply when unset.
	LLMModel     *string `gorm:"type:varchar(100)" json:"llm_model"`
	SystemPrompt *string `gorm:"type:text" json:"system_prompt"`

	Settings map[string]any `gorm:"serializer:json" json:"settings"`

	ContextSummary *string `gorm:"type:text" json:"context_summary"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "sessions" }

func (s *Session) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Mode == "" {
		s.Mode = ModeChat
	}
	if s.Settings == nil {
		s.Settings = map[string]any{}
	}
	return nil
}
