package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [reference]",
		Short: "Look up a payment by reference id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := newDeps()
			ctx := cmdContext(cmd)

			status, err := d.client.PaymentStatus(ctx, args[0])
			if err != nil {
				return err
			}

			state := status.Status
			if state == "" {
				state = status.PaymentStatus
			}
			if status.Verified() {
				state = "verified"
			}
			fmt.Printf("Reference: %s\n", args[0])
			fmt.Printf("Status:    %s\n", state)
			if status.AmountPaid > 0 {
				fmt.Printf("Amount:    NGN %.2f\n", float64(status.AmountPaid))
			}
			if status.ReceiptID != "" {
				fmt.Printf("Receipt:   %s\n", status.ReceiptID)
			}
			return nil
		},
	}
}
