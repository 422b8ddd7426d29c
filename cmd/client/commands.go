package main

import (
	"fmt"
	"io"

	"bandsched/backend/internal/client"
	domain "bandsched/backend/internal/domain/auth"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

func newRegisterCmd(a *app) *cobra.Command {
	var reg domain.Registration
	var phone string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fields := []struct {
				value *string
				label string
			}{
				{&reg.Email, "Email"},
				{&reg.FirstName, "First name"},
				{&reg.LastName, "Last name"},
			}
			for _, f := range fields {
				if *f.value != "" {
					continue
				}
				v, err := prompt(a.in, out, f.label)
				if err != nil {
					return err
				}
				*f.value = v
			}
			if phone != "" {
				reg.PhoneNumber = &phone
			}
			pw, err := promptPassword(out)
			if err != nil {
				return err
			}
			reg.Password = pw

			if err := a.session.Register(cmd.Context(), reg); err != nil {
				return sessionFailure(out, a.session.State(), err)
			}
			return printIdentity(out, a.session.State())
		},
	}
	cmd.Flags().StringVar(&reg.Email, "email", "", "account email")
	cmd.Flags().StringVar(&reg.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&reg.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number (optional)")
	return cmd
}

func newLoginCmd(a *app) *cobra.Command {
	var creds domain.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if creds.Email == "" {
				v, err := prompt(a.in, out, "Email")
				if err != nil {
					return err
				}
				creds.Email = v
			}
			pw, err := promptPassword(out)
			if err != nil {
				return err
			}
			creds.Password = pw

			if err := a.session.Login(cmd.Context(), creds); err != nil {
				return sessionFailure(out, a.session.State(), err)
			}
			return printIdentity(out, a.session.State())
		},
	}
	cmd.Flags().StringVar(&creds.Email, "email", "", "account email")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.session.Logout(); err != nil {
				return err
			}
			cmd.Println("Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := a.session.Restore(cmd.Context())
			if st.Phase != client.PhaseAuthenticated {
				cmd.Println("Not signed in")
				return nil
			}
			return printIdentity(cmd.OutOrStdout(), st)
		},
	}
}

func printIdentity(w io.Writer, st client.State) error {
	if st.Phase != client.PhaseAuthenticated || st.User == nil {
		return oops.Code("CLIENT_NOT_AUTHENTICATED").Errorf("not signed in")
	}
	_, err := fmt.Fprintf(w, "Signed in as %s %s <%s>\n", st.User.FirstName, st.User.LastName, st.User.Email)
	return err
}

// sessionFailure prints field errors, if any, and returns the message the
// session settled on.
func sessionFailure(w io.Writer, st client.State, err error) error {
	if apiErr, ok := client.AsAPIError(err); ok {
		for _, f := range apiErr.Fields {
			fmt.Fprintf(w, "  %s: %s\n", f.Field, f.Message)
		}
	}
	if st.Err != "" {
		return oops.Code("CLIENT_AUTH_FAILED").Errorf("%s", st.Err)
	}
	return err
}
