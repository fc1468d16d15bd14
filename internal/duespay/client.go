package duespay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultBaseURL = "https://api.duespay.app"

// Per-call client-side bounds. A timeout is a distinct, user-visible error
// condition, not silently retried.
const (
	pollTimeout   = 10 * time.Second
	readTimeout   = 20 * time.Second
	submitTimeout = 30 * time.Second
)

// CredentialSource supplies the bearer token for authenticated calls. The
// token is re-read before every call rather than cached, so a logout in
// another process is observed immediately. Clear is invoked on 401.
type CredentialSource interface {
	Get() string
	Clear()
}

// Client is a lightweight portal API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      CredentialSource
	logger     *log.Logger
}

// ClientOption customizes the client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithClientLogger lets callers supply a custom logger.
func WithClientLogger(l *log.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient builds a portal client. creds may be nil for a purely public
// (payer-facing) client.
func NewClient(baseURL string, creds CredentialSource, opts ...ClientOption) *Client {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	c := &Client{
		httpClient: &http.Client{Timeout: submitTimeout},
		baseURL:    baseURL,
		creds:      creds,
		logger:     log.New(os.Stderr, "duespay ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the uniform `{success, data, message}` wrapper every portal
// endpoint answers with. PayerID appears at the root on some payer-check
// responses.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
	PayerID StringID        `json:"payer_id"`
}

// Login exchanges admin credentials for a bearer token. The token is not
// stored; the caller decides where it lives.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	payload := map[string]string{"email": email, "password": password}
	env, err := c.doRequest(ctx, http.MethodPost, "/api/auth/login/", false, payload)
	if err != nil {
		return "", err
	}

	var lp loginPayload
	if err := json.Unmarshal(env.Data, &lp); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	token := lp.AccessToken
	if token == "" {
		token = lp.Access
	}
	if token == "" {
		return "", errors.New("login response missing access token")
	}
	return token, nil
}

// Logout invalidates the current credential server-side.
func (c *Client) Logout(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	_, err := c.doRequest(ctx, http.MethodPost, "/api/auth/logout/", true, nil)
	return err
}

// GetPublicAssociation fetches the association the payer-facing flow is
// scoped to. No credential is attached.
func (c *Client) GetPublicAssociation(ctx context.Context) (*Association, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	env, err := c.doRequest(ctx, http.MethodGet, "/api/association/get-association/", false, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrAssociationNotFound
		}
		return nil, err
	}

	var a Association
	if err := json.Unmarshal(env.Data, &a); err != nil {
		return nil, fmt.Errorf("decode association: %w", err)
	}
	return &a, nil
}

// GetProfile fetches the logged-in admin's profile.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	env, err := c.doRequest(ctx, http.MethodGet, "/api/association/get-profile/", true, nil)
	if err != nil {
		return nil, err
	}

	var p Profile
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// GetAssociationProfile fetches the admin's association record. The endpoint
// is paginated; the first result is the association.
func (c *Client) GetAssociationProfile(ctx context.Context) (*Association, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	env, err := c.doRequest(ctx, http.MethodGet, "/api/association/profiles/", true, nil)
	if err != nil {
		return nil, err
	}

	var page paginated[Association]
	if err := json.Unmarshal(env.Data, &page); err != nil {
		return nil, fmt.Errorf("decode association profiles: %w", err)
	}
	if len(page.Results) == 0 {
		return nil, nil
	}
	return &page.Results[0], nil
}

// ListSessions fetches all dues-collection sessions for the association.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	env, err := c.doRequest(ctx, http.MethodGet, "/api/association/sessions/", true, nil)
	if err != nil {
		return nil, err
	}

	var page paginated[Session]
	if err := json.Unmarshal(env.Data, &page); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return page.Results, nil
}

// CreateSession creates a session server-side.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	env, err := c.doRequest(ctx, http.MethodPost, "/api/association/sessions/", true, req)
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(env.Data, &s); err != nil {
		return nil, fmt.Errorf("decode created session: %w", err)
	}
	return &s, nil
}

// SetCurrentSession marks the given session as current.
func (c *Client) SetCurrentSession(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	path := fmt.Sprintf("/api/association/sessions/%d/set_current/", id)
	_, err := c.doRequest(ctx, http.MethodPost, path, true, nil)
	return err
}

// CheckPayer registers or re-identifies a payer, returning the server-assigned
// payer id. Server-side field errors come back as *RequestRejected with a
// populated Fields map.
func (c *Client) CheckPayer(ctx context.Context, req PayerCheckRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	env, err := c.doRequest(ctx, http.MethodPost, "/api/payers/check/", false, req)
	if err != nil {
		return "", err
	}

	// The payer id has appeared both at the envelope root and inside data.
	if env.PayerID != "" {
		return string(env.PayerID), nil
	}
	var p struct {
		PayerID StringID `json:"payer_id"`
	}
	if err := json.Unmarshal(env.Data, &p); err == nil && p.PayerID != "" {
		return string(p.PayerID), nil
	}
	return "", errors.New("payer check response missing payer id")
}

// InitiatePayment starts one payment attempt and classifies the polymorphic
// response into an InitiateOutcome.
func (c *Client) InitiatePayment(ctx context.Context, req InitiateRequest) (InitiateOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	env, err := c.doRequest(ctx, http.MethodPost, "/api/transactions/payment/initiate/", false, req)
	if err != nil {
		return nil, err
	}
	return decodeInitiate(env.Data)
}

// PaymentStatus looks up the payment record for a reference id. Bounded by
// the short poll timeout; the flow calls this every ten seconds.
func (c *Client) PaymentStatus(ctx context.Context, referenceID string) (*PaymentStatus, error) {
	if referenceID == "" {
		return nil, errors.New("reference id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	path := "/api/transactions/payment/status/" + url.PathEscape(referenceID) + "/"
	env, err := c.doRequest(ctx, http.MethodGet, path, false, nil)
	if err != nil {
		return nil, err
	}

	var ps PaymentStatus
	if err := json.Unmarshal(env.Data, &ps); err != nil {
		return nil, fmt.Errorf("decode payment status: %w", err)
	}
	return &ps, nil
}

// GetReceipt fetches a receipt by id. A success response lacking a receipt
// identifier is a miss, exactly like a 404; callers render not-found for
// ErrReceiptNotFound and an error view for everything else.
func (c *Client) GetReceipt(ctx context.Context, receiptID string) (*Receipt, error) {
	if receiptID == "" {
		return nil, errors.New("receipt id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	path := "/api/transactions/receipts/" + url.PathEscape(receiptID) + "/"
	env, err := c.doRequest(ctx, http.MethodGet, path, false, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrReceiptNotFound
		}
		var rej *RequestRejected
		if errors.As(err, &rej) {
			return nil, ErrReceiptNotFound
		}
		return nil, err
	}

	var r Receipt
	if err := json.Unmarshal(env.Data, &r); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	if r.ReceiptID == "" {
		return nil, ErrReceiptNotFound
	}
	return &r, nil
}

// Notifications fetches the admin notification feed.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	env, err := c.doRequest(ctx, http.MethodGet, "/api/association/notifications/", true, nil)
	if err != nil {
		return nil, err
	}

	var page paginated[Notification]
	if err := json.Unmarshal(env.Data, &page); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return page.Results, nil
}

// UnreadNotificationCount returns the number of unread notifications.
func (c *Client) UnreadNotificationCount(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	env, err := c.doRequest(ctx, http.MethodGet, "/api/association/notifications/unread-count/", true, nil)
	if err != nil {
		return 0, err
	}

	var p unreadCountPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return 0, fmt.Errorf("decode unread count: %w", err)
	}
	return p.Count, nil
}

// MarkAllNotificationsRead marks the whole feed read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	_, err := c.doRequest(ctx, http.MethodPost, "/api/association/notifications/mark-all-read/", true, nil)
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, authed bool, payload any) (*envelope, error) {
	var body io.Reader
	if payload != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			return nil, err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if c.creds == nil {
			return nil, ErrUnauthorized
		}
		token := c.creds.Get()
		if token == "" {
			return nil, ErrUnauthorized
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}

	if resp.StatusCode == http.StatusUnauthorized && authed {
		// Expired or revoked credential; clear it so the coordinator can
		// prompt for re-authentication.
		c.creds.Clear()
		c.logger.Printf("credential rejected on %s %s; cleared", method, path)
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}

	var env envelope
	decoded := json.Unmarshal(data, &env) == nil

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if !decoded {
		return nil, fmt.Errorf("unexpected response payload: %s", string(data))
	}

	if !env.Success {
		return nil, rejectionFrom(&env)
	}

	return &env, nil
}

// rejectionFrom shapes an HTTP-success, success=false envelope into a
// *RequestRejected. A data object without an "error" key is a field-error
// map; an "error" key (or the envelope message/detail) is a plain message.
func rejectionFrom(env *envelope) *RequestRejected {
	rej := &RequestRejected{Message: env.Message}
	if rej.Message == "" {
		rej.Message = env.Detail
	}

	var raw map[string]json.RawMessage
	if len(env.Data) > 0 && json.Unmarshal(env.Data, &raw) == nil {
		if errMsg, ok := raw["error"]; ok {
			var s string
			if json.Unmarshal(errMsg, &s) == nil && s != "" {
				rej.Message = s
			}
		} else if len(raw) > 0 {
			rej.Fields = make(FieldErrors, len(raw))
			for field, val := range raw {
				rej.Fields[field] = fieldMessage(val)
			}
		}
	}

	if rej.Message == "" {
		rej.Message = "request rejected"
	}
	return rej
}

// fieldMessage flattens a DRF-style field error (string or list of strings)
// into one message.
func fieldMessage(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return strings.Join(list, "; ")
	}
	return string(raw)
}

func classifyTransport(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return &TransportError{Timeout: ue.Timeout(), Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Timeout: true, Err: err}
	}
	return &TransportError{Err: err}
}
