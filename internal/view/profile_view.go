// Package view renders the profile controller's state on a terminal.
package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/spec-kit/staff-profile/internal/domain"
	"github.com/spec-kit/staff-profile/internal/service"
)

const masked = "********"

// RenderProfile writes the avatar path followed by a field table. In edit mode
// the table marks which fields can be changed.
func RenderProfile(w io.Writer, st service.ProfileState) error {
	heading := color.New(color.FgHiBlue, color.Bold)
	if _, err := heading.Fprintf(w, "My Profile (%s)\n", modeLabel(st)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Image: %s\n", st.Profile.Image); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	header := []string{"Field", "Value"}
	if st.EditMode {
		header = append(header, "Editable")
	}
	if err := table.Append(header); err != nil {
		return err
	}

	for _, field := range domain.ProfileFields {
		row := []string{field.Label(), st.Profile.Get(field)}
		if st.EditMode {
			editable := "yes"
			if field.ReadOnly() {
				editable = color.New(color.FgHiBlack).Sprint("no")
			}
			row = append(row, editable)
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if st.ChangePasswordMode {
		return RenderPasswordForm(w, st.PasswordForm)
	}
	return nil
}

// RenderPasswordForm writes the password form with every entered value masked.
func RenderPasswordForm(w io.Writer, form domain.PasswordChange) error {
	color.New(color.FgHiYellow, color.Bold).Fprintln(w, "Change Password") //nolint:errcheck

	table := tablewriter.NewWriter(w)
	rows := [][]string{
		{"Current Password", mask(form.CurrentPassword)},
		{"New Password", mask(form.NewPassword)},
		{"Confirm Password", mask(form.ConfirmPassword)},
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func modeLabel(st service.ProfileState) string {
	modes := []string{"view"}
	if st.EditMode {
		modes[0] = "edit"
	}
	if st.ChangePasswordMode {
		modes = append(modes, "password")
	}
	return strings.Join(modes, ", ")
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	return masked
}
