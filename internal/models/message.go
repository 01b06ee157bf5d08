package models

import "time"

// Role identifies who authored a chat turn.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleBot
}

// MessageStatus tracks whether a bot reply finished streaming.
type MessageStatus string

const (
	StatusComplete    MessageStatus = "complete"
	StatusStreaming   MessageStatus = "streaming"
	StatusFailed      MessageStatus = "failed"
	StatusInterrupted MessageStatus = "interrupted"
)

// Message is one persisted chat turn.
type Message struct {
	ID        int64         `json:"id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Status    MessageStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// MessageView is the public shape of a message, used by frames and the list endpoint.
type MessageView struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *Message) View() MessageView {
	return MessageView{ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
}

// WithContent returns the view carrying content instead of the stored text.
func (v MessageView) WithContent(content string) MessageView {
	v.Content = content
	return v
}
