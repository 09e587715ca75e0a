package chat

import (
	"gorm.io/gorm"

	"medfront/app/internal/backend"
)

// Panel names one of the two transcript panels.
type Panel string

const (
	PanelDiagnosis Panel = "diagnosis"
	PanelAssistant Panel = "assistant"
)

// Kind describes what produced an entry.
type Kind string

const (
	KindUser    Kind = "user"
	KindMatches Kind = "matches"
	KindError   Kind = "error"
	KindMessage Kind = "message"
	KindReply   Kind = "reply"
	KindFailure Kind = "failure"
)

// Entry is one line of a transcript panel.
type Entry struct {
	gorm.Model
	SessionID string              `gorm:"size:64;index:idx_chat_entries_session;not null"`
	Panel     Panel               `gorm:"size:16;not null"`
	Kind      Kind                `gorm:"size:16;not null"`
	Text      string              `gorm:"type:text"`
	Matches   []backend.ChatMatch `gorm:"serializer:json"`
}

// TableName defines the table name for the Entry model.
func (Entry) TableName() string {
	return "chat_entries"
}

// Transcripts groups a session's entries by panel, oldest first.
type Transcripts struct {
	Diagnosis []Entry
	Assistant []Entry
}
