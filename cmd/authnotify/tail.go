package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/authnotify/internal/model"
	"github.com/nhle/authnotify/internal/push"
)

func tailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow notifications without the terminal UI",
		Long: `Connect to the push channel with the stored session and print one line
per accepted notification until interrupted.`,
		RunE: runTail,
	}

	cmd.Flags().BoolP("json", "j", false, "Print notifications as JSON lines")

	return cmd
}

func runTail(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	e, err := openEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := e.token(ctx); err != nil {
		return err
	}

	agg := e.feed(ctx)
	out := cmd.OutOrStdout()
	sub := push.NewSubscriberFunc(func(payload any) {
		n, ok := agg.HandleEvent(payload)
		if !ok {
			return
		}
		if err := printNotification(out, n, asJSON); err != nil {
			e.log.Warn().Err(err).Msg("printing notification")
		}
	})

	client := e.pushClient()
	sup := e.supervisor(client, sub)
	e.watchSession(ctx, sup, nil)

	sup.Start(ctx)
	defer sup.Stop()
	sup.Refresh(ctx)

	e.log.Info().Msg("waiting for notifications, press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

func printNotification(w io.Writer, n model.Notification, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(n)
	}
	_, err := fmt.Fprintf(w, "%s  %-8s  %s\n", n.CreatedAt.Local().Format(time.DateTime), n.Type, n.Message)
	return err
}
