package events

import (
	"time"

	"github.com/spec-kit/staff-profile/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionDecodeFailed  EventType = "session_decode_failed"
	EventProfileLoaded        EventType = "profile_loaded"
	EventProfileLoadFailed    EventType = "profile_load_failed"
	EventProfileSaved         EventType = "profile_saved"
	EventProfileSaveFailed    EventType = "profile_save_failed"
	EventPasswordMismatch     EventType = "password_mismatch"
	EventPasswordChanged      EventType = "password_changed"
	EventPasswordChangeFailed EventType = "password_change_failed"
)

// Event represents something the profile controller did.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SubjectID string      `json:"subject_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Err       error       `json:"-"`
	Payload   interface{} `json:"payload,omitempty"`
}

// ProfilePayload accompanies profile_loaded and profile_saved.
type ProfilePayload struct {
	Profile domain.StaffProfile `json:"profile"`
}

// FailurePayload accompanies every *_failed event.
type FailurePayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}
