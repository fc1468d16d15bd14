package flow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duespay/portal/internal/duespay"
)

// virtualAccountFlow drives a flow into the virtual-account step with a short
// poll interval.
func virtualAccountFlow(t *testing.T, api *fakeAPI) *Flow {
	t.Helper()
	f := New(api, WithLogger(quietLogger()), WithPollInterval(5*time.Millisecond))
	require.NoError(t, f.Load(context.Background()))
	f.SetPayer(validPayer())
	require.NoError(t, f.SubmitRegistration(context.Background()))
	_, err := f.InitiatePayment(context.Background())
	require.NoError(t, err)
	require.Equal(t, StepVirtualAccount, f.Step())
	return f
}

func TestStartPollingRequiresVirtualAccountStep(t *testing.T) {
	f := New(&fakeAPI{association: testAssociation()}, WithLogger(quietLogger()))

	_, err := f.StartPolling(context.Background())
	require.Error(t, err)
}

func TestPollingImmediateThenCadence(t *testing.T) {
	api := &fakeAPI{association: testAssociation()}
	f := virtualAccountFlow(t, api)

	stop, err := f.StartPolling(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&api.statusCalls) >= 3
	}, 2*time.Second, time.Millisecond, "expected the immediate poll plus ticker polls")

	stop()
	after := atomic.LoadInt32(&api.statusCalls)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, atomic.LoadInt32(&api.statusCalls), "no polls may fire after stop returns")
}

func TestPollingErrorsAreSwallowed(t *testing.T) {
	api := &fakeAPI{
		association: testAssociation(),
		statusFn: func(referenceID string) (*duespay.PaymentStatus, error) {
			return nil, errors.New("gateway timeout")
		},
	}
	f := virtualAccountFlow(t, api)

	stop, err := f.StartPolling(context.Background())
	require.NoError(t, err)
	defer stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&api.statusCalls) >= 3
	}, 2*time.Second, time.Millisecond, "polling keeps going through failures")
	require.Equal(t, StepVirtualAccount, f.Step())
}

func TestPollingVerifiedAdvancesToStatus(t *testing.T) {
	var polls int32
	api := &fakeAPI{
		association: testAssociation(),
		statusFn: func(referenceID string) (*duespay.PaymentStatus, error) {
			if atomic.AddInt32(&polls, 1) < 3 {
				return &duespay.PaymentStatus{ReferenceID: referenceID, Status: "pending"}, nil
			}
			return &duespay.PaymentStatus{ReferenceID: referenceID, Status: "verified", ReceiptID: "r-1"}, nil
		},
	}
	f := virtualAccountFlow(t, api)

	stop, err := f.StartPolling(context.Background())
	require.NoError(t, err)
	defer stop()

	select {
	case <-f.PaymentVerified():
	case <-time.After(2 * time.Second):
		t.Fatal("verification signal never fired")
	}

	require.Equal(t, StepStatus, f.Step())
	require.Equal(t, "r-1", f.Status().ReceiptID)

	// The loop has stopped on its own; no further polls.
	stop()
	after := atomic.LoadInt32(&polls)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, atomic.LoadInt32(&polls))
}

func TestStartPollingIsIdempotentWhileRunning(t *testing.T) {
	api := &fakeAPI{association: testAssociation()}
	f := virtualAccountFlow(t, api)

	stop1, err := f.StartPolling(context.Background())
	require.NoError(t, err)
	stop2, err := f.StartPolling(context.Background())
	require.NoError(t, err)

	// Both handles stop the same loop; calling both must not panic.
	stop1()
	stop2()

	after := atomic.LoadInt32(&api.statusCalls)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, atomic.LoadInt32(&api.statusCalls))
}

func TestPollingStopsOnContextCancel(t *testing.T) {
	api := &fakeAPI{association: testAssociation()}
	f := virtualAccountFlow(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	stop, err := f.StartPolling(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&api.statusCalls) >= 1
	}, 2*time.Second, time.Millisecond)

	cancel()
	stop()
	after := atomic.LoadInt32(&api.statusCalls)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, after, atomic.LoadInt32(&api.statusCalls))
}

func TestCheckNowVerifiedStopsBackgroundPolling(t *testing.T) {
	var verified int32
	api := &fakeAPI{
		association: testAssociation(),
		statusFn: func(referenceID string) (*duespay.PaymentStatus, error) {
			if atomic.LoadInt32(&verified) == 1 {
				return &duespay.PaymentStatus{ReferenceID: referenceID, IsVerified: true}, nil
			}
			return &duespay.PaymentStatus{ReferenceID: referenceID, Status: "pending"}, nil
		},
	}
	f := virtualAccountFlow(t, api)

	stop, err := f.StartPolling(context.Background())
	require.NoError(t, err)
	defer stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&api.statusCalls) >= 1
	}, 2*time.Second, time.Millisecond)

	atomic.StoreInt32(&verified, 1)
	var status *duespay.PaymentStatus
	require.Eventually(t, func() bool {
		s, err := f.CheckNow(context.Background())
		if err != nil {
			// A background poll was in flight; try again.
			return false
		}
		status = s
		return true
	}, 2*time.Second, time.Millisecond)

	require.True(t, status.Verified())
	require.Equal(t, StepStatus, f.Step())
	select {
	case <-f.PaymentVerified():
	default:
		t.Fatal("verification signal not closed")
	}

	// The background loop must wind down on its own; no further lookups.
	after := atomic.LoadInt32(&api.statusCalls)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, after, atomic.LoadInt32(&api.statusCalls))
}

func TestCheckNowRefusedWhileCheckInFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once int32
	api := &fakeAPI{
		association: testAssociation(),
		statusFn: func(referenceID string) (*duespay.PaymentStatus, error) {
			if atomic.AddInt32(&once, 1) == 1 {
				close(entered)
				<-release
			}
			return &duespay.PaymentStatus{ReferenceID: referenceID, Status: "pending"}, nil
		},
	}
	f := virtualAccountFlow(t, api)

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.CheckNow(context.Background())
		firstDone <- err
	}()

	<-entered
	_, err := f.CheckNow(context.Background())
	require.ErrorIs(t, err, ErrCheckInProgress)

	close(release)
	require.NoError(t, <-firstDone)
}

func TestCheckNowSurfacesErrorAndAdvancesOnVerified(t *testing.T) {
	api := &fakeAPI{
		association: testAssociation(),
		statusFn: func(referenceID string) (*duespay.PaymentStatus, error) {
			return nil, errors.New("gateway timeout")
		},
	}
	f := virtualAccountFlow(t, api)

	_, err := f.CheckNow(context.Background())
	require.EqualError(t, err, "gateway timeout")

	api.statusFn = func(referenceID string) (*duespay.PaymentStatus, error) {
		return &duespay.PaymentStatus{ReferenceID: referenceID, IsVerified: true}, nil
	}
	status, err := f.CheckNow(context.Background())
	require.NoError(t, err)
	require.True(t, status.Verified())
	require.Equal(t, StepStatus, f.Step())

	select {
	case <-f.PaymentVerified():
	default:
		t.Fatal("verification signal not closed")
	}
}
