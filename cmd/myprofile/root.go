package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/staff-profile/internal/domain"
	"github.com/spec-kit/staff-profile/internal/view"
	apperrors "github.com/spec-kit/staff-profile/pkg/util/errorutil"
)

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	var a *app

	root := &cobra.Command{
		Use:           "myprofile",
		Short:         "View and edit your staff profile",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			a, err = newApp(cmd.Flags(), in, out)
			return err
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.String("api", "", "profile API base URL (PROFILE_API_BASE_URL)")
	flags.String("store", "", "credential store: file, redis or memory (CREDENTIAL_STORE)")
	flags.String("log-level", "", "log level (LOG_LEVEL)")

	appFn := func() *app { return a }
	for _, cmd := range []*cobra.Command{
		newLoginCmd(appFn),
		newLogoutCmd(appFn),
		newWhoamiCmd(appFn),
		newShowCmd(appFn),
		newEditCmd(appFn),
		newPasswdCmd(appFn),
	} {
		cmd.RunE = finish(cmd.RunE, appFn, errOut)
		root.AddCommand(cmd)
	}
	return root
}

// finish reports a failed command on errOut and releases the app either way.
// cobra skips post-run hooks when RunE fails.
func finish(run func(*cobra.Command, []string) error, a func() *app, errOut io.Writer) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a().close()
		err := run(cmd, args)
		if err != nil {
			fmt.Fprintf(errOut, "Error: %s\n", describe(err)) //nolint:errcheck
		}
		return err
	}
}

func describe(err error) string {
	switch {
	case apperrors.HasCode(err, apperrors.CodeNoCredential):
		return "no stored credential, run `myprofile login` first"
	case apperrors.HasCode(err, apperrors.CodeSessionDecodeFailed):
		return "stored credential cannot be decoded, run `myprofile login` again"
	}
	return err.Error()
}

func newLoginCmd(a func() *app) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := a()
			if token == "" {
				var err error
				token, err = view.NewPrompter(app.in, app.out).Ask("Token")
				if err != nil {
					return err
				}
			}
			token = strings.TrimSpace(token)

			claims, err := app.decoder.Decode(token)
			if err != nil {
				return apperrors.Wrap(apperrors.CodeSessionDecodeFailed, "failed to decode token", err)
			}
			if claims.Expired(time.Now()) {
				app.logger.Warn("storing an expired token", zap.Time("expires_at", claims.ExpiresAt))
			}
			if err := app.store.Save(cmd.Context(), token); err != nil {
				return err
			}
			_, err = fmt.Fprintf(app.out, "Logged in as %s\n", claims.SubjectID)
			return err
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token (read from stdin when omitted)")
	return cmd
}

func newLogoutCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a().store.Clear(cmd.Context())
		},
	}
}

func newWhoamiCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the claims of the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := a()
			sess, err := app.sessions.Load(cmd.Context())
			if err != nil {
				return err
			}

			claims := sess.Claims
			table := tablewriter.NewWriter(app.out)
			rows := [][]string{
				{"Claim", "Value"},
				{"id", claims.SubjectID},
				{"subject", string(claims.Subject)},
				{"role", claims.Role},
				{"email", claims.Email},
				{"expires", formatTime(claims.ExpiresAt)},
			}
			for _, row := range rows {
				if err := table.Append(row); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
}

func newShowCmd(a func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := a()
			ctrl := app.controller()
			defer ctrl.Close()

			if err := ctrl.Mount(cmd.Context()); err != nil {
				return err
			}
			return view.RenderProfile(app.out, ctrl.State())
		},
	}
}

func newEditCmd(a func() *app) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "edit --set field=value [--set field=value ...]",
		Short: "Edit and save profile fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(sets) == 0 {
				return fmt.Errorf("nothing to change, pass at least one --set field=value")
			}
			app := a()
			ctrl := app.controller()
			defer ctrl.Close()

			if err := ctrl.Mount(cmd.Context()); err != nil {
				return err
			}
			ctrl.EnterEditMode()
			for _, set := range sets {
				name, value, ok := strings.Cut(set, "=")
				if !ok {
					return fmt.Errorf("invalid --set %q, expected field=value", set)
				}
				if err := ctrl.UpdateField(strings.TrimSpace(name), value); err != nil {
					return err
				}
			}
			if err := view.RenderProfile(app.out, ctrl.State()); err != nil {
				return err
			}
			return ctrl.Save(cmd.Context())
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value to change (repeatable)")
	return cmd
}

func newPasswdCmd(a func() *app) *cobra.Command {
	var current, next, confirm string
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change your password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := a()
			ctrl := app.controller()
			defer ctrl.Close()

			// The password form needs only the session, not the profile record.
			if _, err := ctrl.LoadSession(cmd.Context()); err != nil {
				return err
			}
			ctrl.EnterPasswordChangeMode()

			prompter := view.NewPrompter(app.in, app.out)
			values := []struct {
				field domain.PasswordField
				label string
				value *string
			}{
				{domain.PasswordFieldCurrent, "Current Password", &current},
				{domain.PasswordFieldNew, "New Password", &next},
				{domain.PasswordFieldConfirm, "Confirm Password", &confirm},
			}
			for _, v := range values {
				if *v.value == "" {
					answer, err := prompter.Ask(v.label)
					if err != nil {
						return err
					}
					*v.value = answer
				}
				if err := ctrl.UpdatePasswordField(string(v.field), *v.value); err != nil {
					return err
				}
			}
			return ctrl.SavePassword(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "current password (prompted when omitted)")
	cmd.Flags().StringVar(&next, "new", "", "new password (prompted when omitted)")
	cmd.Flags().StringVar(&confirm, "confirm", "", "new password again (prompted when omitted)")
	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
