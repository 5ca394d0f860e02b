package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func notificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"n"},
		Short:   "Inspect and edit the stored notification feed",
	}

	cmd.AddCommand(listNotificationsCmd())
	cmd.AddCommand(markReadCmd())
	cmd.AddCommand(markAllCmd())
	cmd.AddCommand(clearNotificationsCmd())

	return cmd
}

func listNotificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			unreadOnly, _ := cmd.Flags().GetBool("unread")

			e, err := openEnv(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			agg := e.feed(cmd.Context())
			list := agg.Notifications()
			if unreadOnly {
				kept := list[:0]
				for _, n := range list {
					if !n.Read {
						kept = append(kept, n)
					}
				}
				list = kept
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			if len(list) == 0 {
				fmt.Println("No notifications.")
				return nil
			}
			for _, n := range list {
				mark := " "
				if !n.Read {
					mark = "*"
				}
				fmt.Printf("%s %s  %s\n  id: %s\n", mark, n.CreatedAt.Local().Format(time.DateTime), n.Message, n.ID)
			}
			fmt.Printf("\n%d unread of %d\n", agg.UnreadCount(), len(agg.Notifications()))
			return nil
		},
	}

	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cmd.Flags().BoolP("unread", "u", false, "Only unread notifications")

	return cmd
}

func markReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark-read [id]",
		Short: "Mark one notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			agg := e.feed(cmd.Context())
			before := agg.UnreadCount()
			agg.MarkAsRead(args[0])
			if agg.UnreadCount() == before {
				return fmt.Errorf("no unread notification with id %q", args[0])
			}
			fmt.Println("Marked as read")
			return nil
		},
	}
}

func markAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark-all",
		Short: "Mark every notification as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			e.feed(cmd.Context()).MarkAllAsRead()
			fmt.Println("All notifications marked as read")
			return nil
		},
	}
}

func clearNotificationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			e.feed(cmd.Context()).ClearAll()
			fmt.Println("Notifications cleared")
			return nil
		},
	}
}
