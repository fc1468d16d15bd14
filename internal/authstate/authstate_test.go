package authstate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "token")
	store := NewFileStore(path)

	token, err := store.Load()
	require.NoError(t, err)
	require.Empty(t, token)

	require.NoError(t, store.Save("tok-123"))
	token, err = store.Load()
	require.NoError(t, err)
	require.Equal(t, "tok-123", token)

	require.NoError(t, store.Delete())
	require.NoError(t, store.Delete()) // idempotent
	token, err = store.Load()
	require.NoError(t, err)
	require.Empty(t, token)
}

func TestServiceSetAndClearNotifyImmediately(t *testing.T) {
	svc := NewService(NewMemoryStore(""))
	ch, cancel := svc.Subscribe()
	defer cancel()

	require.NoError(t, svc.Set("tok-1"))
	change := <-ch
	require.True(t, change.Present)
	require.Equal(t, "tok-1", change.Token)
	require.Equal(t, "tok-1", svc.Get())

	svc.Clear()
	change = <-ch
	require.False(t, change.Present)
	require.Empty(t, svc.Get())
}

func TestExternalChangesAreDebounced(t *testing.T) {
	svc := NewService(NewMemoryStore(""), WithDebounce(30*time.Millisecond))
	ch, cancel := svc.Subscribe()
	defer cancel()

	// Rapid repeated signals collapse into one publication of the last value.
	svc.NotifyExternalChange("tok-a")
	svc.NotifyExternalChange("tok-b")
	svc.NotifyExternalChange("tok-c")

	select {
	case change := <-ch:
		require.Equal(t, "tok-c", change.Token)
		require.True(t, change.Present)
	case <-time.After(time.Second):
		t.Fatal("no change published")
	}

	select {
	case change := <-ch:
		t.Fatalf("unexpected extra change: %+v", change)
	case <-time.After(100 * time.Millisecond):
	}

	require.Equal(t, "tok-c", svc.Get())
}

func TestExternalRemovalPublishesAbsence(t *testing.T) {
	svc := NewService(NewMemoryStore("tok-1"), WithDebounce(10*time.Millisecond))
	ch, cancel := svc.Subscribe()
	defer cancel()

	svc.NotifyExternalChange("")

	select {
	case change := <-ch:
		require.False(t, change.Present)
	case <-time.After(time.Second):
		t.Fatal("no change published")
	}
	require.Empty(t, svc.Get())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	svc := NewService(NewMemoryStore(""))
	ch, cancel := svc.Subscribe()
	cancel()

	require.NoError(t, svc.Set("tok-1"))
	select {
	case _, ok := <-ch:
		require.False(t, ok, "cancelled subscriber received a change")
	default:
	}
}
