package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storefront/client/internal/app"
	"storefront/client/internal/apperr"
	"storefront/client/internal/mfa"
	mfadomain "storefront/client/internal/mfa/domain"
	"storefront/client/internal/session/domain"
)

func (s *Shell) loginCommand() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email, password and a one-time code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.withApp(cmd.Context(), app.Deps{}, func(a *app.App) error {
				return s.login(cmd.Context(), a, email)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email (prompted when empty)")
	return cmd
}

func (s *Shell) login(ctx context.Context, a *app.App, email string) error {
	if sess, ok := a.Session.LoadFromStorage(ctx); ok {
		s.printf("Already signed in as %s. Run logout first.\n", sess.Profile.Email)
		return nil
	}
	email, password, err := s.prompt.Credentials(email)
	if err != nil {
		return err
	}

	expires, err := a.Session.BeginLogin(ctx, email, password)
	switch {
	case errors.Is(err, apperr.ErrAccountInactive):
		s.printf("This account is not active yet. Run `storefront activate --email %s`.\n", strings.ToLower(strings.TrimSpace(email)))
		return err
	case err != nil:
		return err
	}
	s.printf("A verification code was sent to %s.\n", a.Session.State().PendingEmail)

	for {
		code, err := s.prompt.Code(hint(expires, time.Now()))
		if err != nil || code == "" {
			a.Session.CancelLogin()
			s.printf("Sign-in cancelled.\n")
			return err
		}
		if strings.EqualFold(code, "r") {
			if expires, err = a.Session.ResendChallenge(ctx); err != nil {
				s.printf("Could not resend: %v\n", err)
				continue
			}
			s.printf("A new code was sent.\n")
			continue
		}

		sess, err := a.Session.CompleteLogin(ctx, code)
		switch {
		case errors.Is(err, apperr.ErrInvalidChallenge):
			s.printf("That code was not accepted. Try again.\n")
			continue
		case err != nil:
			return err
		}
		s.printf("Signed in as %s (%s).\n", sess.Profile.Name, sess.Profile.Email)
		return nil
	}
}

func (s *Shell) activateCommand() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate an account with a one-time code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.withApp(cmd.Context(), app.Deps{}, func(a *app.App) error {
				return s.activate(cmd.Context(), a.Challenges, email)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email (prompted when empty)")
	return cmd
}

func (s *Shell) activate(ctx context.Context, challenges *mfa.Manager, email string) error {
	if email == "" {
		var err error
		if email, err = s.prompt.Email(); err != nil {
			return err
		}
	}
	expires, err := challenges.Issue(ctx, email, mfadomain.PurposeActivation)
	if errors.Is(err, apperr.ErrAccountAlreadyActive) {
		s.printf("This account is already active. Run `storefront login`.\n")
		return nil
	}
	if err != nil {
		return err
	}
	s.printf("An activation code was sent to %s.\n", email)

	for {
		code, err := s.prompt.Code(hint(expires, time.Now()))
		if err != nil || code == "" {
			challenges.Cancel(email, mfadomain.PurposeActivation)
			s.printf("Activation cancelled.\n")
			return err
		}
		if strings.EqualFold(code, "r") {
			if expires, err = challenges.Resend(ctx, email, mfadomain.PurposeActivation); err != nil {
				s.printf("Could not resend: %v\n", err)
			}
			continue
		}
		_, err = challenges.Verify(ctx, email, code, mfadomain.PurposeActivation)
		switch {
		case errors.Is(err, apperr.ErrInvalidChallenge):
			s.printf("That code was not accepted. Try again.\n")
			continue
		case err != nil:
			return err
		}
		s.printf("Account activated. You can now sign in.\n")
		return nil
	}
}

func hint(expires time.Time, now time.Time) string {
	left := expires.Sub(now).Round(time.Second)
	if left < 0 {
		left = 0
	}
	return fmt.Sprintf("expires in %s, r to resend, empty to cancel", left)
}

func describe(st domain.AuthState) string {
	if !st.Authenticated() || st.Profile == nil {
		if st.Reason != domain.ReasonNone {
			return fmt.Sprintf("Not signed in (%s).", st.Reason)
		}
		return "Not signed in."
	}
	p := st.Profile
	return fmt.Sprintf("Signed in as %s <%s> (id %s).", p.Name, p.Email, p.ID)
}
