package models

import "time"

// SessionInfo describes a browser session bound to a worker.
type SessionInfo struct {
	ID        string    `json:"id"`
	Worker    string    `json:"worker"`
	Browser   string    `json:"browser"`
	Headless  bool      `json:"headless"`
	StartedAt time.Time `json:"startedAt"`
	URL       string    `json:"url,omitempty"`
}
