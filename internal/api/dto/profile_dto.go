package dto

import "github.com/spec-kit/staff-profile/internal/domain"

// ProfilePayload is the body of GET and PUT /staff/profile/{id}.
type ProfilePayload struct {
	DisplayName string        `json:"displayName"`
	Email       string        `json:"email"`
	Address     string        `json:"address"`
	Salary      domain.Salary `json:"salary"`
	Image       string        `json:"image"`
	Role        string        `json:"role"`
	PhoneNo     string        `json:"phone_no"`
	DOB         string        `json:"dob"`
}

// ChangePasswordRequest is the body of PUT /staff/change-password/{id}.
// The confirmation never leaves the client.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ErrorBody covers the error envelopes the backend is known to return:
// {"error":{"code":..,"message":..}} and {"message":..}.
type ErrorBody struct {
	Error   *ErrorDetail `json:"error,omitempty"`
	Message string       `json:"message,omitempty"`
}

// ErrorDetail is the nested error object.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Text returns the most specific message present.
func (b ErrorBody) Text() string {
	if b.Error != nil && b.Error.Message != "" {
		return b.Error.Message
	}
	return b.Message
}

// ProfileFromPayload maps the wire record to the domain record.
func ProfileFromPayload(p ProfilePayload) domain.StaffProfile {
	return domain.StaffProfile{
		DisplayName: p.DisplayName,
		Email:       p.Email,
		Address:     p.Address,
		Salary:      p.Salary,
		Image:       p.Image,
		Role:        p.Role,
		PhoneNo:     p.PhoneNo,
		DOB:         p.DOB,
	}
}

// PayloadFromProfile maps the domain record to the wire record.
func PayloadFromProfile(p domain.StaffProfile) ProfilePayload {
	return ProfilePayload{
		DisplayName: p.DisplayName,
		Email:       p.Email,
		Address:     p.Address,
		Salary:      p.Salary,
		Image:       p.Image,
		Role:        p.Role,
		PhoneNo:     p.PhoneNo,
		DOB:         p.DOB,
	}
}
