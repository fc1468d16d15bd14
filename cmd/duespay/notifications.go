package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func notificationsCmd() *cobra.Command {
	var markRead bool

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show the admin notification feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := newDeps()
			ctx := cmdContext(cmd)

			count, err := d.client.UnreadNotificationCount(ctx)
			if err != nil {
				return err
			}
			list, err := d.client.Notifications(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("%d unread\n", count)
			for _, n := range list {
				marker := " "
				if !n.IsRead {
					marker = "*"
				}
				fmt.Printf("%s %s  %s\n", marker, n.CreatedAt.Format("2006-01-02 15:04"), n.Title)
				if n.Message != "" {
					fmt.Printf("    %s\n", n.Message)
				}
			}

			if markRead {
				if err := d.client.MarkAllNotificationsRead(ctx); err != nil {
					return err
				}
				fmt.Println("All notifications marked read.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&markRead, "mark-read", false, "Mark all notifications read afterwards")

	return cmd
}
