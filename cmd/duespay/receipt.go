package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/duespay/portal/internal/duespay"
	"github.com/duespay/portal/internal/receipt"
)

func receiptCmd() *cobra.Command {
	var pdfPath string

	cmd := &cobra.Command{
		Use:   "receipt [receipt-id]",
		Short: "Fetch a payment receipt, optionally exporting it as PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := newDeps()
			ctx := cmdContext(cmd)

			r, err := d.client.GetReceipt(ctx, args[0])
			if errors.Is(err, duespay.ErrReceiptNotFound) {
				fmt.Println("Receipt not found.")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Printf("Receipt No: %s\n", r.ReceiptNo)
			fmt.Printf("Issued:     %s\n", r.IssuedAt.Format("January 2, 2006"))
			fmt.Printf("From:       %s\n", r.PayerName)
			if r.SessionTitle != "" {
				fmt.Printf("Session:    %s\n", r.SessionTitle)
			}
			for _, item := range r.ItemsPaid {
				fmt.Printf("  - %s: NGN %.2f\n", item.Title, float64(item.Amount))
			}
			fmt.Printf("Amount:     NGN %.2f\n", float64(r.AmountPaid))
			fmt.Printf("In words:   %s\n", receipt.AmountInWords(float64(r.AmountPaid)))

			if pdfPath == "" {
				return nil
			}

			out, err := os.Create(pdfPath)
			if err != nil {
				return err
			}
			defer out.Close()

			if err := receipt.NewExporter().Export(r, out); err != nil {
				return err
			}
			fmt.Printf("Saved %s\n", pdfPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&pdfPath, "pdf", "", "Write the receipt as a PDF to this path")

	return cmd
}
