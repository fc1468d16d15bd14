package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func loginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in as an association admin and store the credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := newDeps()
			ctx := cmdContext(cmd)

			if email == "" {
				email = prompt("Email: ")
			}
			if password == "" {
				password = prompt("Password: ")
			}

			token, err := d.client.Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := d.creds.Set(token); err != nil {
				return fmt.Errorf("store credential: %w", err)
			}
			fmt.Println("Logged in.")
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Admin email")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (prompted if omitted)")

	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := newDeps()
			if d.creds.Get() != "" {
				// Best effort; the credential is cleared regardless.
				if err := d.client.Logout(cmdContext(cmd)); err != nil {
					fmt.Fprintf(os.Stderr, "server logout failed: %v\n", err)
				}
			}
			d.creds.Clear()
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func prompt(label string) string {
	fmt.Print(label)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
