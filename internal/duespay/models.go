package duespay

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Amount tolerates both numeric and string JSON encodings; the portal backend
// serializes decimal fields as strings ("1500.00") while payment-provider
// payloads use plain numbers.
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "" || s == "null" {
		*a = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", s, err)
	}
	*a = Amount(f)
	return nil
}

// StringID tolerates both numeric and string JSON encodings of server ids.
type StringID string

func (s *StringID) UnmarshalJSON(b []byte) error {
	*s = StringID(bytes.Trim(b, `"`))
	if *s == "null" {
		*s = ""
	}
	return nil
}

// Session is one dues-collection period; exactly one is current at a time.
type Session struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	IsActive bool   `json:"is_active"`
}

// PaymentItem is a due as configured by the association admin. Status is a
// template: whether the item is actually compulsory is recomputed per payer
// from CompulsoryFor.
type PaymentItem struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	Amount        Amount   `json:"amount"`
	Status        string   `json:"status"`
	CompulsoryFor []string `json:"compulsory_for"`
	IsActive      bool     `json:"is_active"`
	AssociationID int64    `json:"association"`
	SessionID     int64    `json:"session"`
}

// AssociationRef is the nested association object some payloads carry instead
// of (or alongside) top-level fields.
type AssociationRef struct {
	ID             int64    `json:"id"`
	Name           string   `json:"association_name"`
	CurrentSession *Session `json:"current_session"`
	ActiveSession  *Session `json:"active_session"`
}

// Association is the public-facing entity the payment flow is scoped to.
// The backend has shipped several shapes for the current-session and id
// fields over time, so all known locations are kept and resolved by the flow.
type Association struct {
	ID             int64           `json:"id"`
	AssociationID  int64           `json:"association_id"`
	Name           string          `json:"association_name"`
	ShortName      string          `json:"association_short_name"`
	Type           string          `json:"association_type"`
	ThemeColor     string          `json:"theme_color"`
	LogoURL        string          `json:"logo_url"`
	PaymentItems   []PaymentItem   `json:"payment_items"`
	Association    *AssociationRef `json:"association"`
	CurrentSession *Session        `json:"current_session"`
	ActiveSession  *Session        `json:"active_session"`
	Session        *Session        `json:"session"`
	SessionID      int64           `json:"session_id"`
}

// Profile is the association/session summary for the logged-in admin.
type Profile struct {
	Email          string          `json:"email"`
	AdminName      string          `json:"admin_name"`
	Association    *AssociationRef `json:"association"`
	CurrentSession *Session        `json:"current_session"`
	Sessions       []Session       `json:"sessions"`
}

// PayerCheckRequest registers (or re-identifies) a payer before payment.
type PayerCheckRequest struct {
	AssociationShortName string `json:"association_short_name"`
	MatricNumber         string `json:"matric_number"`
	Email                string `json:"email"`
	Level                string `json:"level"`
	PhoneNumber          string `json:"phone_number"`
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	Faculty              string `json:"faculty,omitempty"`
	Department           string `json:"department,omitempty"`
}

// InitiateRequest starts one payment attempt for the selected items.
type InitiateRequest struct {
	PayerID        string  `json:"payer_id"`
	AssociationID  int64   `json:"association_id"`
	SessionID      int64   `json:"session_id"`
	PaymentItemIDs []int64 `json:"payment_item_ids"`
	PayerName      string  `json:"payer_name"`
	PayerEmail     string  `json:"payer_email"`
}

// PaymentStatus is the polled record for one payment reference. The verified
// marker has lived under three names across backend versions.
type PaymentStatus struct {
	ReferenceID   string `json:"reference_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	IsVerified    bool   `json:"is_verified"`
	AmountPaid    Amount `json:"amount_paid"`
	PayerName     string `json:"payer_name"`
	ReceiptID     string `json:"receipt_id"`
	Message       string `json:"message"`
}

// Verified reports whether any of the known verified markers is set.
func (p *PaymentStatus) Verified() bool {
	return p.IsVerified || p.Status == "verified" || p.PaymentStatus == "verified"
}

// ReceiptItem is one line of a receipt's items-paid breakdown.
type ReceiptItem struct {
	Title  string `json:"title"`
	Amount Amount `json:"amount"`
}

// Receipt is an immutable payment record; never mutated client-side.
type Receipt struct {
	ReceiptID            string        `json:"receipt_id"`
	ReceiptNo            string        `json:"receipt_no"`
	AssociationName      string        `json:"association_name"`
	AssociationShortName string        `json:"association_short_name"`
	AssociationTheme     string        `json:"association_theme_color"`
	SessionTitle         string        `json:"session_title"`
	PayerName            string        `json:"payer_name"`
	PayerEmail           string        `json:"payer_email"`
	ItemsPaid            []ReceiptItem `json:"items_paid"`
	AmountPaid           Amount        `json:"amount_paid"`
	IssuedAt             time.Time     `json:"issued_at"`
}

// CreateSessionRequest creates a new dues-collection session.
type CreateSessionRequest struct {
	Title    string `json:"title"`
	IsActive bool   `json:"is_active,omitempty"`
}

// Notification is an admin-facing event record.
type Notification struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

type loginPayload struct {
	AccessToken string `json:"access_token"`
	Access      string `json:"access"`
}

type unreadCountPayload struct {
	Count int `json:"count"`
}

// paginated is the DRF-style list wrapper used by the profile/session
// collection endpoints.
type paginated[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}
