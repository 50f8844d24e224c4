package chat

import "time"

// Session captures one companion connection bound to a persona.
type Session struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"personaId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Entry is a transcript line recorded for a session.
type Entry struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Message   Message   `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
