package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/duespay/portal/internal/flow"
	"github.com/duespay/portal/internal/items"
)

func payCmd() *cobra.Command {
	var (
		payer    flow.Payer
		itemIDs  []int64
		ref      string
		wait     time.Duration
		noFollow bool
	)

	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Run the dues-payment flow",
		Long: `Run the dues-payment flow end to end: payer registration, item
selection, virtual-account payment and status polling. With --reference the
flow resumes directly at the status step, as after a provider redirect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := newDeps()
			ctx := cmdContext(cmd)

			opts := []flow.Option{flow.WithPollInterval(d.cfg.PollInterval)}
			if ref != "" {
				opts = append(opts, flow.WithReference(ref))
			}
			f := flow.New(d.client, opts...)

			if ref != "" {
				return resumeStatus(ctx, f)
			}
			return runFlow(ctx, f, payer, itemIDs, wait, noFollow)
		},
	}

	cmd.Flags().StringVar(&payer.FirstName, "first-name", "", "Payer first name")
	cmd.Flags().StringVar(&payer.LastName, "last-name", "", "Payer last name")
	cmd.Flags().StringVar(&payer.Email, "email", "", "Payer email")
	cmd.Flags().StringVar(&payer.Level, "level", "", "Payer level (e.g. \"200 Level\")")
	cmd.Flags().StringVar(&payer.PhoneNumber, "phone", "", "Payer phone number")
	cmd.Flags().StringVar(&payer.MatricNumber, "matric", "", "Payer matric number")
	cmd.Flags().StringVar(&payer.Faculty, "faculty", "", "Payer faculty")
	cmd.Flags().StringVar(&payer.Department, "department", "", "Payer department")
	cmd.Flags().Int64SliceVar(&itemIDs, "items", nil, "Optional item ids to select beyond the compulsory ones")
	cmd.Flags().StringVar(&ref, "reference", "", "Resume with an existing payment reference")
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Minute, "How long to wait for payment confirmation")
	cmd.Flags().BoolVar(&noFollow, "no-follow", false, "Print the transfer details and exit without polling")

	return cmd
}

func runFlow(ctx context.Context, f *flow.Flow, payer flow.Payer, itemIDs []int64, wait time.Duration, noFollow bool) error {
	if err := f.Load(ctx); err != nil {
		return fmt.Errorf("load association: %w", err)
	}
	association := f.Association()
	fmt.Printf("Association: %s (%s)\n", association.Name, association.ShortName)

	f.SetPayer(payer)

	if err := f.SubmitRegistration(ctx); err != nil {
		var verr *flow.ValidationError
		if errors.As(err, &verr) {
			printFieldErrors(verr)
			return errors.New("please fix the errors above")
		}
		return err
	}

	for _, id := range itemIDs {
		f.Toggle(id)
	}
	printSelection(f)

	result, err := f.InitiatePayment(ctx)
	if err != nil {
		return fmt.Errorf("payment error: %w", err)
	}
	if result.RedirectURL != "" {
		fmt.Printf("\nComplete your payment at:\n  %s\n", result.RedirectURL)
		fmt.Printf("Then check it with: duespay status %s\n", f.ReferenceID())
		return nil
	}

	printAccount(f)
	if noFollow {
		fmt.Printf("Check later with: duespay status %s\n", f.ReferenceID())
		return nil
	}

	stop, err := f.StartPolling(ctx)
	if err != nil {
		return err
	}
	defer stop()

	fmt.Println("\nWaiting for your transfer to be confirmed...")
	select {
	case <-f.PaymentVerified():
		fmt.Println("Payment verified.")
	case <-time.After(wait):
		fmt.Println("Payment not confirmed yet.")
		fmt.Printf("Check later with: duespay status %s\n", f.ReferenceID())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := f.LoadStatus(ctx); err != nil {
		return err
	}
	printStatus(f)
	return nil
}

func resumeStatus(ctx context.Context, f *flow.Flow) error {
	if err := f.LoadStatus(ctx); err != nil {
		return err
	}
	printStatus(f)
	return nil
}

func printFieldErrors(verr *flow.ValidationError) {
	fields := make([]string, 0, len(verr.Fields))
	for field := range verr.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	fmt.Fprintln(os.Stderr, "Please fix the errors below.")
	for _, field := range fields {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", field, verr.Fields[field])
	}
}

func printSelection(f *flow.Flow) {
	fmt.Println("\nSelected items:")
	derived := f.Items()
	for _, item := range derived {
		if !contains(f.SelectedIDs(), item.ID) {
			continue
		}
		marker := ""
		if item.Status == items.StatusCompulsory {
			marker = " (compulsory)"
		}
		fmt.Printf("  %-30s NGN %.2f%s\n", item.Title, float64(item.Amount), marker)
	}
	fmt.Printf("Total: NGN %.2f\n", f.Total())
}

func printAccount(f *flow.Flow) {
	account := f.Account()
	fmt.Println("\nTransfer to:")
	fmt.Printf("  Bank:     %s\n", account.BankName)
	fmt.Printf("  Account:  %s (%s)\n", account.AccountNumber, account.AccountName)
	if account.TotalPayable > 0 {
		fmt.Printf("  Amount:   NGN %.2f\n", account.TotalPayable)
	} else {
		fmt.Printf("  Amount:   NGN %.2f\n", account.Amount)
	}
	if !account.ExpiresAt.IsZero() {
		fmt.Printf("  Expires:  %s\n", account.ExpiresAt.Format(time.RFC1123))
	}
	fmt.Printf("  Reference: %s\n", f.ReferenceID())
}

func printStatus(f *flow.Flow) {
	status := f.Status()
	fmt.Printf("\nReference: %s\n", status.ReferenceID)
	state := status.Status
	if state == "" {
		state = status.PaymentStatus
	}
	if status.Verified() {
		state = "verified"
	}
	fmt.Printf("Status:    %s\n", state)
	if status.AmountPaid > 0 {
		fmt.Printf("Amount:    NGN %.2f\n", float64(status.AmountPaid))
	}
	if status.ReceiptID != "" {
		fmt.Printf("Receipt:   duespay receipt %s\n", status.ReceiptID)
	}
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
