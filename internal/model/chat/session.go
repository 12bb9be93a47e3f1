package chat

import "time"

// Session captures one durable conversation thread owned by a single identity.
type Session struct {
	ID            string    `json:"id"`
	Owner         string    `json:"owner"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Summary       string    `json:"summary,omitempty"`
	Memory        Memory    `json:"memory"`
	TurnCount     int       `json:"turnCount"`
	UserTurnCount int       `json:"userTurnCount"`
}

// Memory holds the long-lived facts extracted from a conversation.
type Memory struct {
	Stressor    string   `json:"stressor,omitempty"`
	Motivation  string   `json:"motivation,omitempty"`
	Coping      []string `json:"coping,omitempty"`
	Trajectory  string   `json:"trajectory,omitempty"`
	BotOpenings []string `json:"bot_openings,omitempty"`
}

// Clone returns a deep copy so callers can evolve memory without aliasing.
func (m Memory) Clone() Memory {
	out := m
	out.Coping = append([]string(nil), m.Coping...)
	out.BotOpenings = append([]string(nil), m.BotOpenings...)
	return out
}

// Empty reports whether nothing has been learned yet.
func (m Memory) Empty() bool {
	return m.Stressor == "" && m.Motivation == "" && m.Trajectory == "" && len(m.Coping) == 0
}

// HasCoping reports whether the coping set already contains strategy.
func (m Memory) HasCoping(strategy string) bool {
	for _, c := range m.Coping {
		if c == strategy {
			return true
		}
	}
	return false
}
