// Package flow drives a payer through the dues-payment steps: registration,
// item selection, virtual-account payment, and final status.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/duespay/portal/internal/duespay"
	"github.com/duespay/portal/internal/items"
)

// Step identifies the machine's current state.
type Step int

const (
	StepRegistration Step = iota + 1
	StepSelection
	StepVirtualAccount
	StepStatus
)

func (s Step) String() string {
	switch s {
	case StepRegistration:
		return "registration"
	case StepSelection:
		return "selection"
	case StepVirtualAccount:
		return "virtual-account"
	case StepStatus:
		return "status"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

const defaultPollInterval = 10 * time.Second

// API is the subset of the portal client the flow uses.
type API interface {
	GetPublicAssociation(ctx context.Context) (*duespay.Association, error)
	CheckPayer(ctx context.Context, req duespay.PayerCheckRequest) (string, error)
	InitiatePayment(ctx context.Context, req duespay.InitiateRequest) (duespay.InitiateOutcome, error)
	PaymentStatus(ctx context.Context, referenceID string) (*duespay.PaymentStatus, error)
}

// Payer is the registration form data; it lives only for one flow traversal.
type Payer struct {
	FirstName    string
	LastName     string
	Email        string
	Level        string
	PhoneNumber  string
	MatricNumber string
	Faculty      string
	Department   string
}

// Account is the normalized virtual-account view shown in step 3, whichever
// initiate shape produced it.
type Account struct {
	AccountNumber string
	AccountName   string
	BankName      string
	BankCode      string
	Amount        float64
	TotalPayable  float64
	Fee           float64
	Narration     string
	ExpiresAt     time.Time
}

// InitiateResult reports how a successful initiation concluded. A non-empty
// RedirectURL means the hosted-checkout path: the caller must navigate away
// and the machine never enters the virtual-account step.
type InitiateResult struct {
	RedirectURL string
}

// ValidationError blocks the 1→2 transition; Fields maps form fields to
// messages, from local validation or mapped back from the server.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	return "invalid payer details: " + strings.Join(keys, ", ")
}

// ErrCheckInProgress is returned by CheckNow while another status check is
// running; at most one poll is in flight at a time.
var ErrCheckInProgress = errors.New("a status check is already running")

// Flow is the payment flow state machine. All exported methods are safe for
// concurrent use.
type Flow struct {
	api          API
	logger       *log.Logger
	pollInterval time.Duration

	mu          sync.Mutex
	step        Step
	payer       Payer
	payerID     string
	association *duespay.Association
	rawItems    []duespay.PaymentItem
	selection   *items.Selection
	account     *Account
	referenceID string
	status      *duespay.PaymentStatus

	pollStopFn func()
	pollBusy   bool
	verifiedCh chan struct{}
}

// Option customizes the flow.
type Option func(*Flow)

// WithLogger lets callers supply a custom logger.
func WithLogger(l *log.Logger) Option {
	return func(f *Flow) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithPollInterval adjusts the status-poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.pollInterval = d
		}
	}
}

// WithReference resumes the flow after an external redirect: the machine
// starts directly at the status step.
func WithReference(referenceID string) Option {
	return func(f *Flow) {
		if referenceID != "" {
			f.referenceID = referenceID
			f.step = StepStatus
		}
	}
}

// New builds a flow starting at the registration step unless a payment
// reference is supplied.
func New(api API, opts ...Option) *Flow {
	f := &Flow{
		api:          api,
		logger:       log.New(os.Stderr, "payflow ", log.LstdFlags),
		pollInterval: defaultPollInterval,
		step:         StepRegistration,
		selection:    items.NewSelection(),
		verifiedCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Load fetches the association and its payment items. Must succeed before
// steps 1–3 can do anything useful.
func (f *Flow) Load(ctx context.Context) error {
	association, err := f.api.GetPublicAssociation(ctx)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.association = association
	f.rawItems = association.PaymentItems
	f.mu.Unlock()
	return nil
}

// Step returns the current state.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Association returns the loaded association, nil before Load.
func (f *Flow) Association() *duespay.Association {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.association
}

// SetPayer replaces the registration form data, re-deriving item eligibility
// when the level changed: items compulsory under the new level are
// force-selected, prior selections are kept.
func (f *Flow) SetPayer(p Payer) {
	f.mu.Lock()
	defer f.mu.Unlock()

	levelChanged := p.Level != f.payer.Level
	f.payer = p
	if levelChanged {
		f.selection.ApplyLevel(items.Derive(f.rawItems, p.Level))
	}
}

// Payer returns the current form data.
func (f *Flow) Payer() Payer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payer
}

// Items returns the derived item list for the current payer level.
func (f *Flow) Items() []duespay.PaymentItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return items.Derive(f.rawItems, f.payer.Level)
}

// Toggle flips selection of an item; a no-op for compulsory items.
func (f *Flow) Toggle(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selection.Toggle(items.Derive(f.rawItems, f.payer.Level), id)
}

// SelectedIDs returns the selected item ids.
func (f *Flow) SelectedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selection.IDs()
}

// Total sums the selected items' amounts.
func (f *Flow) Total() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selection.Total(items.Derive(f.rawItems, f.payer.Level))
}

// Back moves from selection to registration. Steps 3 and 4 are not
// revisitable.
func (f *Flow) Back() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step == StepSelection {
		f.step = StepRegistration
		return true
	}
	return false
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validate checks the required registration fields locally. A nil return
// means the form may be submitted.
func (f *Flow) Validate() *ValidationError {
	f.mu.Lock()
	p := f.payer
	f.mu.Unlock()

	fields := make(map[string]string)
	if strings.TrimSpace(p.FirstName) == "" {
		fields["first_name"] = "First name is required."
	}
	if strings.TrimSpace(p.LastName) == "" {
		fields["last_name"] = "Last name is required."
	}
	switch {
	case strings.TrimSpace(p.Email) == "":
		fields["email"] = "Email is required."
	case !emailPattern.MatchString(strings.TrimSpace(p.Email)):
		fields["email"] = "Enter a valid email address."
	}
	if strings.TrimSpace(p.Level) == "" {
		fields["level"] = "Level is required."
	}
	if strings.TrimSpace(p.MatricNumber) == "" {
		fields["matric_number"] = "Matric number is required."
	}
	if strings.TrimSpace(p.PhoneNumber) == "" {
		fields["phone_number"] = "Phone number is required."
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// SubmitRegistration performs the 1→2 transition: local validation first (no
// request on failure), then the payer check. Server field errors come back as
// *ValidationError; any other failure blocks the transition and is retryable.
func (f *Flow) SubmitRegistration(ctx context.Context) error {
	f.mu.Lock()
	if f.step != StepRegistration {
		step := f.step
		f.mu.Unlock()
		return fmt.Errorf("cannot register from %s step", step)
	}
	p := f.payer
	association := f.association
	f.mu.Unlock()

	if err := f.Validate(); err != nil {
		return err
	}

	req := duespay.PayerCheckRequest{
		MatricNumber: strings.TrimSpace(p.MatricNumber),
		Email:        strings.TrimSpace(p.Email),
		Level:        p.Level,
		PhoneNumber:  strings.TrimSpace(p.PhoneNumber),
		FirstName:    sanitizeName(p.FirstName),
		LastName:     sanitizeName(p.LastName),
		Faculty:      strings.TrimSpace(p.Faculty),
		Department:   strings.TrimSpace(p.Department),
	}
	if association != nil {
		req.AssociationShortName = association.ShortName
	}

	payerID, err := f.api.CheckPayer(ctx, req)
	if err != nil {
		var rej *duespay.RequestRejected
		if errors.As(err, &rej) && len(rej.Fields) > 0 {
			return &ValidationError{Fields: rej.Fields}
		}
		return err
	}

	f.mu.Lock()
	f.payerID = payerID
	f.step = StepSelection
	f.mu.Unlock()
	return nil
}

// InitiatePayment performs the 2→3 transition. Preconditions (a registered
// payer, at least one selected item, resolvable association and session ids)
// are checked before any network call. On the hosted-checkout shape the
// result carries a redirect URL and the machine stays out of step 3; on any
// failure the machine remains in step 2 so the user can retry.
func (f *Flow) InitiatePayment(ctx context.Context) (InitiateResult, error) {
	f.mu.Lock()
	if f.step != StepSelection {
		step := f.step
		f.mu.Unlock()
		return InitiateResult{}, fmt.Errorf("cannot initiate payment from %s step", step)
	}
	if f.payerID == "" {
		f.mu.Unlock()
		return InitiateResult{}, errors.New("missing payer identifier")
	}
	if f.selection.Len() == 0 {
		f.mu.Unlock()
		return InitiateResult{}, errors.New("please select at least one item")
	}

	associationID := resolveAssociationID(f.association, f.rawItems)
	sessionID := resolveSessionID(f.association, f.rawItems)
	if associationID == 0 || sessionID == 0 {
		f.mu.Unlock()
		return InitiateResult{}, errors.New("missing association/session information")
	}

	req := duespay.InitiateRequest{
		PayerID:        f.payerID,
		AssociationID:  associationID,
		SessionID:      sessionID,
		PaymentItemIDs: f.selection.IDs(),
		PayerName:      sanitizeName(f.payer.FirstName + " " + f.payer.LastName),
		PayerEmail:     strings.TrimSpace(f.payer.Email),
	}
	f.mu.Unlock()

	outcome, err := f.api.InitiatePayment(ctx, req)
	if err != nil {
		return InitiateResult{}, err
	}

	switch o := outcome.(type) {
	case duespay.BankTransfer:
		f.enterVirtualAccount(o.ReferenceID, &Account{
			AccountNumber: o.AccountNumber,
			AccountName:   o.AccountName,
			BankName:      o.BankName,
			BankCode:      o.BankCode,
			Amount:        float64(o.Amount),
			TotalPayable:  float64(o.TotalPayable),
			Fee:           float64(o.Fee),
			Narration:     o.Narration,
			ExpiresAt:     o.ExpiresAt,
		})
		return InitiateResult{}, nil
	case duespay.VirtualAccount:
		f.enterVirtualAccount(o.ReferenceID, &Account{
			AccountNumber: o.AccountNumber,
			AccountName:   o.AccountName,
			BankName:      o.BankName,
			Amount:        float64(o.Amount),
		})
		return InitiateResult{}, nil
	case duespay.CheckoutRedirect:
		f.mu.Lock()
		f.referenceID = o.ReferenceID
		f.mu.Unlock()
		return InitiateResult{RedirectURL: o.URL}, nil
	}

	return InitiateResult{}, fmt.Errorf("unexpected initiation outcome %T", outcome)
}

func (f *Flow) enterVirtualAccount(referenceID string, account *Account) {
	f.mu.Lock()
	f.referenceID = referenceID
	f.account = account
	f.step = StepVirtualAccount
	f.mu.Unlock()
}

// Account returns the virtual-account details, nil outside step 3.
func (f *Flow) Account() *Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account
}

// ReferenceID returns the payment reference for this attempt.
func (f *Flow) ReferenceID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.referenceID
}

// Status returns the latest payment status record, nil until one is fetched.
func (f *Flow) Status() *duespay.PaymentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// LoadStatus fetches the status record on entry to step 4 if it is not
// already available. Unlike background polling, a failure here is surfaced.
func (f *Flow) LoadStatus(ctx context.Context) error {
	f.mu.Lock()
	if f.step != StepStatus {
		step := f.step
		f.mu.Unlock()
		return fmt.Errorf("cannot load status from %s step", step)
	}
	if f.status != nil {
		f.mu.Unlock()
		return nil
	}
	ref := f.referenceID
	f.mu.Unlock()

	status, err := f.api.PaymentStatus(ctx, ref)
	if err != nil {
		return fmt.Errorf("could not fetch payment status: %w", err)
	}

	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
	return nil
}

// PaymentVerified is closed when background polling observes a verified
// status and the machine advances to the status step.
func (f *Flow) PaymentVerified() <-chan struct{} {
	return f.verifiedCh
}

// resolveAssociationID probes the known locations of the association id.
// Zero means it could not be resolved.
func resolveAssociationID(a *duespay.Association, list []duespay.PaymentItem) int64 {
	if a != nil {
		if a.Association != nil && a.Association.ID != 0 {
			return a.Association.ID
		}
		if a.ID != 0 {
			return a.ID
		}
		if a.AssociationID != 0 {
			return a.AssociationID
		}
	}
	if len(list) > 0 {
		return list[0].AssociationID
	}
	return 0
}

// resolveSessionID probes the known locations of the current session id.
func resolveSessionID(a *duespay.Association, list []duespay.PaymentItem) int64 {
	if a != nil {
		if a.Association != nil {
			if id := sessionID(a.Association.CurrentSession); id != 0 {
				return id
			}
			if id := sessionID(a.Association.ActiveSession); id != 0 {
				return id
			}
		}
		if id := sessionID(a.CurrentSession); id != 0 {
			return id
		}
		if id := sessionID(a.ActiveSession); id != 0 {
			return id
		}
		if id := sessionID(a.Session); id != 0 {
			return id
		}
		if a.SessionID != 0 {
			return a.SessionID
		}
	}
	if len(list) > 0 {
		return list[0].SessionID
	}
	return 0
}

func sessionID(s *duespay.Session) int64 {
	if s == nil {
		return 0
	}
	return s.ID
}

var nameSpaces = regexp.MustCompile(`\s+`)

// sanitizeName trims and collapses internal whitespace.
func sanitizeName(name string) string {
	return nameSpaces.ReplaceAllString(strings.TrimSpace(name), " ")
}
