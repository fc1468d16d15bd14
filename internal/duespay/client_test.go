package duespay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCreds struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (f *fakeCreds) Get() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeCreds) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.cleared++
}

func TestGetProfileAttachesBearerToken(t *testing.T) {
	var gotAuth, gotRequestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		w.Write([]byte(`{"success": true, "data": {"email": "admin@nacos.edu", "current_session": {"id": 3, "title": "2024/2025"}}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, &fakeCreds{token: "tok-123"})
	profile, err := client.GetProfile(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Bearer tok-123", gotAuth)
	require.NotEmpty(t, gotRequestID)
	require.Equal(t, "admin@nacos.edu", profile.Email)
	require.Equal(t, int64(3), profile.CurrentSession.ID)
}

func TestAuthenticatedCallWithoutCredential(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewClient(srv.URL, &fakeCreds{})
	_, err := client.GetProfile(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
	require.False(t, called, "no request should be made without a credential")
}

func TestUnauthorizedClearsCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail": "token expired"}`))
	}))
	defer srv.Close()

	creds := &fakeCreds{token: "stale"}
	client := NewClient(srv.URL, creds)
	_, err := client.GetProfile(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, 1, creds.cleared)
	require.Empty(t, creds.Get())
}

func TestPublicRouteOmitsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"success": true, "data": {"id": 7, "association_name": "NACOS", "association_short_name": "nacos"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, &fakeCreds{token: "tok-123"})
	a, err := client.GetPublicAssociation(context.Background())
	require.NoError(t, err)
	require.Empty(t, gotAuth)
	require.Equal(t, int64(7), a.ID)
}

func TestPublicAssociationNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success": false, "message": "not found"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.GetPublicAssociation(context.Background())
	require.ErrorIs(t, err, ErrAssociationNotFound)
}

func TestSuccessFalseIsRequestRejected(t *testing.T) {
	// HTTP 200 with success=false is its own failure mode, distinct from
	// transport errors and HTTP error statuses.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "message": "duplicate payment"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.InitiatePayment(context.Background(), InitiateRequest{})
	var rej *RequestRejected
	require.ErrorAs(t, err, &rej)
	require.Equal(t, "duplicate payment", rej.Message)
}

func TestCheckPayerFieldErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "data": {"email": ["Enter a valid email address."], "matric_number": "Already registered with a different email."}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.CheckPayer(context.Background(), PayerCheckRequest{})
	var rej *RequestRejected
	require.ErrorAs(t, err, &rej)
	require.Equal(t, "Enter a valid email address.", rej.Fields["email"])
	require.Equal(t, "Already registered with a different email.", rej.Fields["matric_number"])
}

func TestCheckPayerErrorKeyIsPlainMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "data": {"error": "Registration closed for this session."}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.CheckPayer(context.Background(), PayerCheckRequest{})
	var rej *RequestRejected
	require.ErrorAs(t, err, &rej)
	require.Empty(t, rej.Fields)
	require.Equal(t, "Registration closed for this session.", rej.Message)
}

func TestCheckPayerIDLocations(t *testing.T) {
	cases := map[string]string{
		"root":   `{"success": true, "payer_id": 314, "data": {}}`,
		"nested": `{"success": true, "data": {"payer_id": "314"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, nil)
			payerID, err := client.CheckPayer(context.Background(), PayerCheckRequest{})
			require.NoError(t, err)
			require.Equal(t, "314", payerID)
		})
	}
}

func TestHTTPErrorIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`boom`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	_, err := client.PaymentStatus(context.Background(), "PAY-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestTransportErrorIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := NewClient(srv.URL, nil)
	_, err := client.PaymentStatus(context.Background(), "PAY-1")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	require.False(t, terr.Timeout)
}

func TestGetReceiptLeniency(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"404":               {http.StatusNotFound, `{"success": false, "message": "not found"}`},
		"success but empty": {http.StatusOK, `{"success": true, "data": {"amount_paid": "100.00"}}`},
		"success false":     {http.StatusOK, `{"success": false, "data": {}}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, nil)
			_, err := client.GetReceipt(context.Background(), "rcp_1")
			require.ErrorIs(t, err, ErrReceiptNotFound)
		})
	}
}

func TestGetReceiptSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": {"receipt_id": "rcp_1", "receipt_no": "R-42", "amount_paid": "3500.00", "issued_at": "2025-03-14T10:00:00Z"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil)
	r, err := client.GetReceipt(context.Background(), "rcp_1")
	require.NoError(t, err)
	require.Equal(t, "R-42", r.ReceiptNo)
	require.InDelta(t, 3500, float64(r.AmountPaid), 0.001)
}

func TestListSessionsPaginated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "data": {"count": 2, "results": [{"id": 1, "title": "2023/2024"}, {"id": 2, "title": "2024/2025", "is_active": true}]}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, &fakeCreds{token: "tok"})
	list, err := client.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.True(t, list[1].IsActive)
}
