package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/authnotify/internal/api"
	"github.com/nhle/authnotify/internal/logging"
)

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if err := promptCredentials(&email, &password, false); err != nil {
				return err
			}

			ctx := cmd.Context()
			tok, err := e.api.Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := e.sessions.SetToken(ctx, tok.AccessToken); err != nil {
				return err
			}

			e.log.Debug().Str("token", logging.TokenPreview(tok.AccessToken)).Msg("session stored")
			fmt.Printf("Signed in as %s\n", email)
			return nil
		},
	}

	cmd.Flags().StringP("email", "e", "", "Account email")
	cmd.Flags().StringP("password", "p", "", "Account password (prompted when omitted)")

	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.sessions.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Signed out")
			return nil
		},
	}
}

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and record a new-user notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if err := promptCredentials(&email, &password, true); err != nil {
				return err
			}

			ctx := cmd.Context()
			user, err := e.api.Register(ctx, email, password)
			if err != nil {
				return err
			}
			e.feed(ctx).NotifyNewUser(email)

			fmt.Printf("Registered %s. Check your inbox for the verification link.\n", user.Email)
			return nil
		},
	}

	cmd.Flags().StringP("email", "e", "", "Account email")
	cmd.Flags().StringP("password", "p", "", "Account password (prompted when omitted)")

	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			tok, err := e.token(ctx)
			if err != nil {
				return err
			}

			user, err := e.api.Me(ctx, tok)
			if api.IsAuthError(err) {
				// The server no longer accepts this token.
				if clearErr := e.sessions.Clear(ctx); clearErr != nil {
					e.log.Warn().Err(clearErr).Msg("clearing rejected token")
				}
				return errors.New("session expired; run authnotify login")
			}
			if err != nil {
				return err
			}

			verified := "no"
			if user.IsVerified {
				verified = "yes"
			}
			fmt.Printf("Email:    %s\n", user.Email)
			fmt.Printf("ID:       %d\n", user.ID)
			fmt.Printf("Verified: %s\n", verified)
			if !user.CreatedAt.IsZero() {
				fmt.Printf("Created:  %s\n", user.CreatedAt.Local().Format(time.DateTime))
			}
			return nil
		},
	}
}

func verifyEmailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-email [token]",
		Short: "Confirm an email address with the token from the verification mail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResult(cmd, func(ctx context.Context, c *api.Client) (*api.Result, error) {
				return c.VerifyEmail(ctx, args[0])
			})
		},
	}
}

func resendVerificationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resend-verification [email]",
		Short: "Send the verification mail again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResult(cmd, func(ctx context.Context, c *api.Client) (*api.Result, error) {
				return c.ResendVerification(ctx, args[0])
			})
		},
	}
}

func forgotPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forgot-password [email]",
		Short: "Request a password reset mail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResult(cmd, func(ctx context.Context, c *api.Client) (*api.Result, error) {
				return c.ForgotPassword(ctx, args[0])
			})
		},
	}
}

func resetPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-password [token]",
		Short: "Set a new password with the token from the reset mail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				if err := promptNewPassword(&password); err != nil {
					return err
				}
			}
			return runResult(cmd, func(ctx context.Context, c *api.Client) (*api.Result, error) {
				return c.ResetPassword(ctx, args[0], password)
			})
		},
	}

	cmd.Flags().StringP("password", "p", "", "New password (prompted when omitted)")

	return cmd
}

// runResult calls one of the API endpoints that answer with a message and
// prints it.
func runResult(cmd *cobra.Command, call func(context.Context, *api.Client) (*api.Result, error)) error {
	e, err := openEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := call(cmd.Context(), e.api)
	if err != nil {
		return err
	}
	if res.Message != "" {
		fmt.Println(res.Message)
	} else {
		fmt.Println("Done")
	}
	return nil
}

// promptCredentials asks for whatever the flags left blank. A nil email
// skips the email field.
func promptCredentials(email, password *string, confirm bool) error {
	var fields []huh.Field
	if email != nil && *email == "" {
		fields = append(fields, huh.NewInput().
			Title("Email").
			Value(email).
			Validate(required("email")))
	}

	var again string
	if *password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(password).
			Validate(required("password")))
		if confirm {
			fields = append(fields, huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Value(&again).
				Validate(func(s string) error {
					if s != *password {
						return errors.New("passwords do not match")
					}
					return nil
				}))
		}
	}
	if len(fields) == 0 {
		return nil
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}
	return nil
}

func promptNewPassword(password *string) error {
	return promptCredentials(nil, password, true)
}

func required(what string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}
