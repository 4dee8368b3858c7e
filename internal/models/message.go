package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

func (r MessageRole) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// Message is one turn in a session. Sequence is assigned by the repo on
// append and defines the canonical conversation order; it is never derived
// from timestamps.
type Message struct {
	ID        string `gorm:"type:char(36);primaryKey" json:"id"`
	SessionID string `gorm:"type:char(36);not null;uniqueIndex:uniq_session_sequence,priority:1;index" json:"session_id"`

	Role    MessageRole `gorm:"type:varchar(16);not null" json:"role"`
	Content string      `gorm:"type:text;not null" json:"content"`

	Sequence int `gorm:"not null;uniqueIndex:uniq_session_sequence,priority:2" json:"sequence"`

	LLMModel *string `gorm:"type:varchar(100)" json:"llm_model"`

	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	TotalTokens      *int `json:"total_tokens"`

	Meta map[string]any `gorm:"serializer:json" json:"meta"`

	// council mode: which agent contributed this turn
	AgentName *string `gorm:"type:varchar(100)" json:"agent_name"`

	IsSummary bool `gorm:"not null;default:false" json:"is_summary"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Message) TableName() string { return "messages" }

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Meta == nil {
		m.Meta = map[string]any{}
	}
	return nil
}
