package chat

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// ParseRole maps stored sender values onto a Role. Anything that is not a user turn is a bot turn.
func ParseRole(raw string) Role {
	if raw == string(RoleUser) {
		return RoleUser
	}
	return RoleBot
}

// Turn is a single immutable conversation turn.
type Turn struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId,omitempty"`
	Role      Role           `json:"sender"`
	Text      string         `json:"text"`
	Emotions  []EmotionScore `json:"emotions,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Transcript is an ordered, oldest-first list of turns.
type Transcript []Turn

// Window returns a copy of the most recent n turns, most-recent-last.
func (t Transcript) Window(n int) Transcript {
	if n <= 0 || len(t) == 0 {
		return nil
	}
	start := len(t) - n
	if start < 0 {
		start = 0
	}
	out := make(Transcript, len(t)-start)
	copy(out, t[start:])
	return out
}

// CountRole counts the turns sent by role.
func (t Transcript) CountRole(role Role) int {
	n := 0
	for _, turn := range t {
		if turn.Role == role {
			n++
		}
	}
	return n
}

// FirstUserText returns the text of the earliest user turn.
func (t Transcript) FirstUserText() (string, bool) {
	for _, turn := range t {
		if turn.Role == RoleUser {
			return turn.Text, true
		}
	}
	return "", false
}
