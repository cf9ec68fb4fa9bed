package studio

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	DefaultSessionName = "Untitled Session"
)

// Component is one generated version. An empty JSX means "no component".
type Component struct {
	JSX       string    `gorm:"type:mediumtext" json:"jsx"`
	CSS       string    `gorm:"type:mediumtext" json:"css"`
	Timestamp time.Time `json:"timestamp"`
}

func (c Component) IsEmpty() bool { return c.JSX == "" }

type Session struct {
	ID     string `gorm:"primaryKey;type:varchar(26)" json:"id"`
	UserID uint64 `gorm:"index:idx_studio_sess_owner,priority:1;not null" json:"-"`
	Name   string `gorm:"type:varchar(255);not null" json:"name"`

	Messages []Message      `gorm:"foreignKey:SessionID;references:ID" json:"messages"`
	Current  Component      `gorm:"embedded;embeddedPrefix:component_" json:"currentComponent"`
	History  []HistoryEntry `gorm:"foreignKey:SessionID;references:ID" json:"componentHistory"`

	CreatedAt    time.Time `json:"created"`
	LastAccessed time.Time `gorm:"index:idx_studio_sess_owner,priority:2;not null" json:"lastAccessed"`
}

func (Session) TableName() string { return "studio_sessions" }

type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string    `gorm:"type:varchar(26);not null;uniqueIndex:uniq_studio_msg_seq,priority:1" json:"-"`
	Seq       int       `gorm:"not null;uniqueIndex:uniq_studio_msg_seq,priority:2" json:"-"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Image     string    `gorm:"type:longtext" json:"image,omitempty"` // data URL
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

func (Message) TableName() string { return "studio_messages" }

// HistoryEntry is a superseded component. It marshals as a plain Component.
type HistoryEntry struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string `gorm:"type:varchar(26);not null;uniqueIndex:uniq_studio_cmp_seq,priority:1" json:"-"`
	Seq       int    `gorm:"not null;uniqueIndex:uniq_studio_cmp_seq,priority:2" json:"-"`
	Component
}

func (HistoryEntry) TableName() string { return "studio_component_history" }

// SessionSummary is the sidebar view of a session.
type SessionSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	LastAccessed time.Time `json:"lastAccessed"`
	Created      time.Time `json:"created"`
	MessageCount int       `json:"messageCount"`
	HasComponent bool      `json:"hasComponent"`
}

// Components returns the history as plain components, oldest first.
func (s *Session) Components() []Component {
	out := make([]Component, 0, len(s.History))
	for _, h := range s.History {
		out = append(out, h.Component)
	}
	return out
}
