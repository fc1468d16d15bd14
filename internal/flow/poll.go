package flow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/duespay/portal/internal/duespay"
)

// StartPolling begins background status polling for the virtual-account step:
// one immediate poll, then one every poll interval. Poll failures are logged,
// never surfaced. A verified status stops polling and advances the machine to
// the status step. The returned stop func must be called when leaving the
// step for any reason; it blocks until no poll can fire again.
func (f *Flow) StartPolling(ctx context.Context) (stop func(), err error) {
	f.mu.Lock()
	if f.step != StepVirtualAccount {
		step := f.step
		f.mu.Unlock()
		return nil, errors.New("polling only runs on the " + StepVirtualAccount.String() + " step, not " + step.String())
	}
	if f.referenceID == "" {
		f.mu.Unlock()
		return nil, errors.New("missing payment reference")
	}
	if f.pollStopFn != nil {
		stop := f.pollStopFn
		f.mu.Unlock()
		return stop, nil
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	var once sync.Once
	stop = func() {
		once.Do(func() { close(stopCh) })
		<-doneCh
	}
	f.pollStopFn = stop
	f.mu.Unlock()

	go f.pollLoop(ctx, stopCh, doneCh)

	return stop, nil
}

func (f *Flow) pollLoop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	defer f.clearPolling()

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	if f.pollOnce(ctx) {
		return
	}

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if f.pollOnce(ctx) {
				return
			}
		}
	}
}

// pollOnce performs a single best-effort status lookup, reporting whether the
// loop should exit: the payment verified, or the machine already left the
// virtual-account step some other way (a manual CheckNow, say). At most one
// lookup runs at a time; a tick that arrives while one is in flight is
// skipped.
func (f *Flow) pollOnce(ctx context.Context) bool {
	f.mu.Lock()
	if f.step != StepVirtualAccount {
		f.mu.Unlock()
		return true
	}
	if f.pollBusy {
		f.mu.Unlock()
		return false
	}
	f.pollBusy = true
	ref := f.referenceID
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.pollBusy = false
		f.mu.Unlock()
	}()

	status, err := f.api.PaymentStatus(ctx, ref)
	if err != nil {
		f.logger.Printf("status poll for %s: %v", ref, err)
		return false
	}

	f.mu.Lock()
	f.status = status
	left := f.step != StepVirtualAccount
	verified := status.Verified() && !left
	if verified {
		f.step = StepStatus
		close(f.verifiedCh)
	}
	f.mu.Unlock()

	if verified {
		f.logger.Printf("payment %s verified", ref)
	}
	return verified || left
}

func (f *Flow) clearPolling() {
	f.mu.Lock()
	f.pollStopFn = nil
	f.mu.Unlock()
}

// CheckNow performs one status lookup outside the timer cadence, for the
// manual "check payment now" action. Its failure is returned to the caller,
// unlike background poll failures. Advances to the status step on a verified
// result, exactly like the background loop.
func (f *Flow) CheckNow(ctx context.Context) (*duespay.PaymentStatus, error) {
	f.mu.Lock()
	if f.pollBusy {
		f.mu.Unlock()
		return nil, ErrCheckInProgress
	}
	f.pollBusy = true
	ref := f.referenceID
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.pollBusy = false
		f.mu.Unlock()
	}()

	if ref == "" {
		return nil, errors.New("missing payment reference")
	}

	status, err := f.api.PaymentStatus(ctx, ref)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.status = status
	if status.Verified() && f.step == StepVirtualAccount {
		f.step = StepStatus
		close(f.verifiedCh)
	}
	f.mu.Unlock()

	return status, nil
}
