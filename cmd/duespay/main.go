// The duespay command drives the dues-payment portal from a terminal: the
// payer-facing payment flow, admin session management, payment status and
// receipt lookups.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/duespay/portal/internal/authstate"
	"github.com/duespay/portal/internal/config"
	"github.com/duespay/portal/internal/duespay"
)

var Version = "dev"

func main() {
	// Optional; environment wins over .env.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:     "duespay",
		Short:   "DuesPay - dues payment portal client",
		Version: Version,
	}

	rootCmd.AddCommand(payCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(receiptCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(notificationsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// deps bundles the config, the credential service, and the API client shared
// by every command.
type deps struct {
	cfg    config.Config
	creds  *authstate.Service
	client *duespay.Client
}

func newDeps() deps {
	cfg := config.Load()
	creds := authstate.NewService(
		authstate.NewFileStore(cfg.CredentialFile),
		authstate.WithDebounce(cfg.AuthDebounce),
	)
	client := duespay.NewClient(cfg.APIBaseURL, creds)
	return deps{cfg: cfg, creds: creds, client: client}
}
