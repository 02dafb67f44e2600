package models

import "time"

// DispatchEvent describes one best-effort side effect call to an external collaborator
// It lives only for the duration of an asynchronous send attempt and is never persisted
type DispatchEvent struct {
	EventType string    `json:"eventType"`
	UserID    int64     `json:"userId"`
	Reference string    `json:"reference"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
