package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/duespay/portal/internal/duespay"
	"github.com/duespay/portal/internal/session"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage the association's dues-collection sessions",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsCreateCmd())
	cmd.AddCommand(sessionsSetCurrentCmd())
	return cmd
}

// bootstrapped spins up the session service, runs its one-time bootstrap, and
// hands it to fn.
func bootstrapped(ctx context.Context, fn func(ctx context.Context, svc *session.Service) error) error {
	d := newDeps()
	if d.creds.Get() == "" {
		return errors.New("not logged in; run: duespay login")
	}

	svc := session.NewService(d.client, d.creds)
	defer svc.Close()
	svc.Initialize(ctx)

	return fn(ctx, svc)
}

func sessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, marking the current one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return bootstrapped(cmdContext(cmd), func(ctx context.Context, svc *session.Service) error {
				snap := svc.Snapshot()
				if len(snap.Sessions) == 0 {
					fmt.Println("No sessions.")
					return nil
				}
				for _, s := range snap.Sessions {
					marker := " "
					if snap.Current != nil && snap.Current.ID == s.ID {
						marker = "*"
					}
					fmt.Printf("%s %d  %s\n", marker, s.ID, s.Title)
				}
				return nil
			})
		},
	}
}

func sessionsCreateCmd() *cobra.Command {
	var activate bool

	cmd := &cobra.Command{
		Use:   "create [title]",
		Short: "Create a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return bootstrapped(cmdContext(cmd), func(ctx context.Context, svc *session.Service) error {
				result := svc.CreateSession(ctx, duespay.CreateSessionRequest{
					Title:    args[0],
					IsActive: activate,
				})
				if !result.OK {
					return fmt.Errorf("create session: %s", result.Message)
				}
				fmt.Printf("Created session %d: %s\n", result.Session.ID, result.Session.Title)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&activate, "activate", false, "Also mark the new session active")

	return cmd
}

func sessionsSetCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-current [id]",
		Short: "Switch the association's current session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("invalid session id %q", args[0])
			}
			return bootstrapped(cmdContext(cmd), func(ctx context.Context, svc *session.Service) error {
				if !svc.SetCurrentSessionByID(ctx, id) {
					return fmt.Errorf("could not switch to session %d", id)
				}
				fmt.Printf("Current session is now %d\n", id)
				return nil
			})
		},
	}
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
