package duespay

import (
	"encoding/json"
	"fmt"
	"time"
)

// InitiateOutcome is the tagged union of the three success shapes the payment
// initiation endpoint has shipped: the current bank-transfer response, the
// legacy virtual-account response, and the legacy hosted-checkout redirect.
type InitiateOutcome interface {
	isInitiateOutcome()
}

// BankTransfer is the current virtual-account response: a bank-assigned,
// time-limited account the payer transfers funds into.
type BankTransfer struct {
	ReferenceID    string
	AccountNumber  string
	AccountName    string
	BankName       string
	BankCode       string
	Amount         Amount
	TotalPayable   Amount
	Fee            Amount
	VAT            Amount
	AmountExpected Amount
	Narration      string
	ExpiresAt      time.Time
	ExpirySeconds  int64
}

// VirtualAccount is the legacy virtual-account shape.
type VirtualAccount struct {
	ReferenceID   string
	AccountNumber string
	AccountName   string
	BankName      string
	Amount        Amount
}

// CheckoutRedirect is the legacy hosted-checkout shape; the caller must
// navigate to URL and never enters the virtual-account step.
type CheckoutRedirect struct {
	ReferenceID string
	URL         string
}

func (BankTransfer) isInitiateOutcome()     {}
func (VirtualAccount) isInitiateOutcome()   {}
func (CheckoutRedirect) isInitiateOutcome() {}

type initiatePayload struct {
	// Bank-transfer shape.
	BankAccount *struct {
		AccountNumber string `json:"account_number"`
		AccountName   string `json:"account_name"`
		BankName      string `json:"bank_name"`
		BankCode      string `json:"bank_code"`
		ExpiryDateUTC string `json:"expiry_date_in_utc"`
		ExpirySeconds int64  `json:"expiry_seconds"`
	} `json:"bank_account"`
	ReferenceID    string `json:"reference_id"`
	Amount         Amount `json:"amount"`
	TotalPayable   Amount `json:"total_payable"`
	Fee            Amount `json:"fee"`
	VAT            Amount `json:"vat"`
	AmountExpected Amount `json:"amount_expected"`
	Narration      string `json:"narration"`

	// Legacy virtual-account shape.
	AccountNumber    string `json:"accountNumber"`
	AccountName      string `json:"accountName"`
	BankName         string `json:"bankName"`
	PaymentReference string `json:"paymentReference"`

	// Legacy hosted-checkout shape.
	CheckoutURL string `json:"checkout_url"`
}

// decodeInitiate classifies the polymorphic initiation payload at the
// boundary so flow logic never probes for field presence.
func decodeInitiate(data json.RawMessage) (InitiateOutcome, error) {
	var p initiatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}

	switch {
	case p.BankAccount != nil && p.ReferenceID != "":
		bt := BankTransfer{
			ReferenceID:    p.ReferenceID,
			AccountNumber:  p.BankAccount.AccountNumber,
			AccountName:    p.BankAccount.AccountName,
			BankName:       p.BankAccount.BankName,
			BankCode:       p.BankAccount.BankCode,
			Amount:         p.Amount,
			TotalPayable:   p.TotalPayable,
			Fee:            p.Fee,
			VAT:            p.VAT,
			AmountExpected: p.AmountExpected,
			Narration:      p.Narration,
			ExpirySeconds:  p.BankAccount.ExpirySeconds,
		}
		if p.BankAccount.ExpiryDateUTC != "" {
			if t, err := time.Parse(time.RFC3339, p.BankAccount.ExpiryDateUTC); err == nil {
				bt.ExpiresAt = t
			}
		}
		return bt, nil
	case p.AccountNumber != "" && p.PaymentReference != "":
		return VirtualAccount{
			ReferenceID:   p.PaymentReference,
			AccountNumber: p.AccountNumber,
			AccountName:   p.AccountName,
			BankName:      p.BankName,
			Amount:        p.Amount,
		}, nil
	case p.CheckoutURL != "" && p.ReferenceID != "":
		return CheckoutRedirect{ReferenceID: p.ReferenceID, URL: p.CheckoutURL}, nil
	}

	return nil, fmt.Errorf("invalid payment response format: %s", string(data))
}
