package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/authnotify/internal/logging"
	"github.com/nhle/authnotify/internal/session"
	"github.com/nhle/authnotify/internal/store"
)

func debugCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "Show session, push URLs and the raw stored feed",
		RunE:  runDebug,
	}
}

func runDebug(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()

	fmt.Println("authnotify debug")
	fmt.Println(strings.Repeat("=", 40))

	fmt.Println("\nConfiguration:")
	fmt.Printf("  API:       %s\n", e.cfg.API.BaseURL)
	fmt.Printf("  Database:  %s\n", e.db.Path())
	fmt.Printf("  Session:   %s\n", e.cfg.Session.Backend)
	fmt.Printf("  Retry:     %s every %dms\n", e.cfg.Push.Retry.Policy, e.cfg.Push.Retry.DelayMs)

	fmt.Println("\nSession:")
	tok, err := e.sessions.Token(ctx)
	switch {
	case errors.Is(err, session.ErrNoToken):
		fmt.Println("  Token:     (none)")
	case err != nil:
		fmt.Printf("  Token:     error (%s)\n", err)
	default:
		fmt.Printf("  Token:     %s\n", logging.TokenPreview(tok))
		claims, err := session.InspectToken(tok, time.Now())
		switch {
		case errors.Is(err, session.ErrTokenExpired):
			fmt.Printf("  Subject:   %s\n", claims.Subject)
			fmt.Printf("  Expired:   %s\n", claims.ExpiresAt.Local().Format(time.DateTime))
		case err != nil:
			fmt.Printf("  Claims:    unreadable (%s)\n", err)
		default:
			fmt.Printf("  Subject:   %s\n", claims.Subject)
			if claims.ExpiresAt.IsZero() {
				fmt.Println("  Expires:   never")
			} else {
				fmt.Printf("  Expires:   %s\n", claims.ExpiresAt.Local().Format(time.DateTime))
			}
		}
	}

	fmt.Println("\nPush candidates (in order):")
	if tok == "" {
		tok = "<token>"
	}
	for i, u := range e.pushClient().Candidates(tok) {
		fmt.Printf("  %d. %s\n", i+1, u)
	}

	fmt.Println("\nStored notifications:")
	raw, err := store.NewNotificationStore(e.db).Raw(ctx)
	if err != nil {
		fmt.Printf("  error (%s)\n", err)
		return nil
	}
	fmt.Println(raw)
	return nil
}
