package domain

import "time"

// SubjectType differentiates users vs staff tokens.
type SubjectType string

const (
	SubjectTypeUser  SubjectType = "USER"
	SubjectTypeStaff SubjectType = "STAFF"
)

// SessionClaims are the decoded fields of the stored bearer token.
type SessionClaims struct {
	SubjectID string
	Subject   SubjectType
	Role      string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Raw       map[string]any
}

// Expired reports whether the token carried an expiry that has passed.
func (c SessionClaims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
