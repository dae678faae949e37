package store

// Change is a row-level change reported by the database itself, as opposed
// to one published by the service that made it.
type Change struct {
	Table     string `json:"table"`
	Op        string `json:"type"`
	ID        string `json:"id"`
	SessionID string `json:"session_id,omitempty"`
}
