package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StaffRole enumerates the well-known staff roles. The profile record carries the
// role as free text, so values outside this set are kept as-is.
type StaffRole string

const (
	StaffRoleAgent    StaffRole = "AGENT"
	StaffRoleTeamLead StaffRole = "TEAM_LEAD"
	StaffRoleAdmin    StaffRole = "ADMIN"
)

// ProfileField names one editable or displayed field of a StaffProfile.
type ProfileField string

const (
	FieldDisplayName ProfileField = "displayName"
	FieldEmail       ProfileField = "email"
	FieldPhoneNo     ProfileField = "phone_no"
	FieldRole        ProfileField = "role"
	FieldDOB         ProfileField = "dob"
	FieldAddress     ProfileField = "address"
	FieldSalary      ProfileField = "salary"
	FieldImage       ProfileField = "image"
)

// ProfileFields lists the fields in display order.
var ProfileFields = []ProfileField{
	FieldDisplayName,
	FieldEmail,
	FieldPhoneNo,
	FieldRole,
	FieldDOB,
	FieldAddress,
	FieldSalary,
}

// ParseProfileField resolves a wire name to a ProfileField.
func ParseProfileField(name string) (ProfileField, bool) {
	switch f := ProfileField(name); f {
	case FieldDisplayName, FieldEmail, FieldPhoneNo, FieldRole, FieldDOB, FieldAddress, FieldSalary, FieldImage:
		return f, true
	}
	return "", false
}

// ReadOnly reports whether the field is shown but never edited by the staff member.
func (f ProfileField) ReadOnly() bool {
	switch f {
	case FieldEmail, FieldSalary, FieldImage:
		return true
	}
	return false
}

// Label is the human readable caption of the field.
func (f ProfileField) Label() string {
	switch f {
	case FieldDisplayName:
		return "Name"
	case FieldEmail:
		return "Email"
	case FieldPhoneNo:
		return "Phone Number"
	case FieldRole:
		return "Role"
	case FieldDOB:
		return "Dob"
	case FieldAddress:
		return "Address"
	case FieldSalary:
		return "Salary"
	case FieldImage:
		return "Image"
	}
	return string(f)
}

// StaffProfile is the staff member's own profile record.
type StaffProfile struct {
	DisplayName string
	Email       string
	Address     string
	Salary      Salary
	Image       string
	Role        string
	PhoneNo     string
	DOB         string
}

// Get returns the textual value of a field.
func (p StaffProfile) Get(field ProfileField) string {
	switch field {
	case FieldDisplayName:
		return p.DisplayName
	case FieldEmail:
		return p.Email
	case FieldPhoneNo:
		return p.PhoneNo
	case FieldRole:
		return p.Role
	case FieldDOB:
		return p.DOB
	case FieldAddress:
		return p.Address
	case FieldSalary:
		return p.Salary.String()
	case FieldImage:
		return p.Image
	}
	return ""
}

// Set assigns a field. Values are not validated.
func (p *StaffProfile) Set(field ProfileField, value string) {
	switch field {
	case FieldDisplayName:
		p.DisplayName = value
	case FieldEmail:
		p.Email = value
	case FieldPhoneNo:
		p.PhoneNo = value
	case FieldRole:
		p.Role = value
	case FieldDOB:
		p.DOB = value
	case FieldAddress:
		p.Address = value
	case FieldSalary:
		p.Salary = NewSalary(value)
	case FieldImage:
		p.Image = value
	}
}

// Salary accepts either a JSON number or a JSON string and re-emits it in the
// form it arrived in.
type Salary struct {
	value   string
	numeric bool
}

// NewSalary wraps a textual salary.
func NewSalary(value string) Salary {
	return Salary{value: value}
}

// NumericSalary wraps a salary that is sent as a JSON number.
func NumericSalary(value string) Salary {
	return Salary{value: value, numeric: true}
}

func (s Salary) String() string { return s.value }

// IsNumeric reports whether the value arrived as a JSON number.
func (s Salary) IsNumeric() bool { return s.numeric }

func (s Salary) MarshalJSON() ([]byte, error) {
	if s.numeric && s.value != "" {
		return []byte(s.value), nil
	}
	return json.Marshal(s.value)
}

func (s *Salary) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = Salary{}
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Salary{value: str}
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("salary must be a number or string: %w", err)
	}
	*s = Salary{value: num.String(), numeric: true}
	return nil
}
