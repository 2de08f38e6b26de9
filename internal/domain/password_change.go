package domain

// PasswordField names one input of the password change form.
type PasswordField string

const (
	PasswordFieldCurrent PasswordField = "currentPassword"
	PasswordFieldNew     PasswordField = "newPassword"
	PasswordFieldConfirm PasswordField = "confirmPassword"
)

// ParsePasswordField resolves a form name to a PasswordField.
func ParsePasswordField(name string) (PasswordField, bool) {
	switch f := PasswordField(name); f {
	case PasswordFieldCurrent, PasswordFieldNew, PasswordFieldConfirm:
		return f, true
	}
	return "", false
}

// PasswordChange holds the transient values of the password change form.
type PasswordChange struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

// Set assigns one form value.
func (p *PasswordChange) Set(field PasswordField, value string) {
	switch field {
	case PasswordFieldCurrent:
		p.CurrentPassword = value
	case PasswordFieldNew:
		p.NewPassword = value
	case PasswordFieldConfirm:
		p.ConfirmPassword = value
	}
}

// Confirmed reports whether the new password matches its confirmation.
func (p PasswordChange) Confirmed() bool {
	return p.NewPassword == p.ConfirmPassword
}
