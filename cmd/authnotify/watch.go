package main

import (
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/authnotify/internal/app"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Open the live notification feed",
		Long: `Open the terminal UI. It shows the notification feed, the unread count
and the push connection status. Press l to sign in when no session is stored.
Logs are written to log.file (default: next to the database).`,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer cancel()

	agg := e.feed(ctx)
	client := e.pushClient()
	sup := e.supervisor(client, agg)
	defer sup.Stop()
	e.watchSession(ctx, sup, agg)

	e.log.Info().Str("base_url", e.cfg.API.BaseURL).Msg("starting feed")

	m := app.New(ctx, app.Deps{
		Feed:       agg,
		Supervisor: sup,
		Sessions:   e.sessions,
		API:        e.api,
		Log:        e.log.With().Str("component", "app").Logger(),
		Config:     e.cfg,
		ConfigPath: e.cfgPath,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
