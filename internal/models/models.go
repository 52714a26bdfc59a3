package models

import "time"

// Role identifies who authored a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single immutable conversation turn
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// QuestionQuota is a snapshot of the free-question counter of a session.
type QuestionQuota struct {
	Used int `json:"used"`
	Max  int `json:"max"`
}

// Remaining returns how many free questions are left.
func (q QuestionQuota) Remaining() int {
	if q.Used >= q.Max {
		return 0
	}
	return q.Max - q.Used
}
