package registration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func newTestRegistrar(capacity int) (*Registrar, *InMemoryCounterStore) {
	counters := NewInMemoryCounterStore()
	counters.Put(&Counter{EventID: "evt-1", Capacity: capacity})
	return NewRegistrar(NewInMemoryRepository(), counters, nil), counters
}

// wrappingRepository decorates a Repository the way a storage layer
// adding call-site context does: every error comes back wrapped.
type wrappingRepository struct {
	inner Repository
}

func (w *wrappingRepository) FindOrCreate(ctx context.Context, userID, eventID, sourceIntentID string) (*Registration, bool, error) {
	reg, created, err := w.inner.FindOrCreate(ctx, userID, eventID, sourceIntentID)
	if err != nil {
		return nil, false, fmt.Errorf("registration store: %w", err)
	}
	return reg, created, nil
}

func (w *wrappingRepository) GetActive(ctx context.Context, userID, eventID string) (*Registration, error) {
	reg, err := w.inner.GetActive(ctx, userID, eventID)
	if err != nil {
		return nil, fmt.Errorf("registration store: %w", err)
	}
	return reg, nil
}

// TestRegistrar_Register_WrappedNotFound verifies the existence check
// recognizes a wrapped not-found sentinel instead of treating it as a
// storage fault.
func TestRegistrar_Register_WrappedNotFound(t *testing.T) {
	counters := NewInMemoryCounterStore()
	counters.Put(&Counter{EventID: "evt-1", Capacity: 5})
	repo := &wrappingRepository{inner: NewInMemoryRepository()}
	registrar := NewRegistrar(repo, counters, nil)
	ctx := context.Background()

	reg, err := registrar.Register(ctx, "user-1", "evt-1", "int-1")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if reg.UserID != "user-1" {
		t.Errorf("unexpected registration %+v", reg)
	}

	counter, err := counters.Get(ctx, "evt-1")
	if err != nil {
		t.Fatalf("Get counter failed: %v", err)
	}
	if counter.RegisteredCount != 1 {
		t.Errorf("expected 1 seat consumed, got %d", counter.RegisteredCount)
	}
}

func TestRegistrar_Register(t *testing.T) {
	registrar, counters := newTestRegistrar(5)
	ctx := context.Background()

	reg, err := registrar.Register(ctx, "user-1", "evt-1", "int-1")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if reg.UserID != "user-1" || reg.EventID != "evt-1" {
		t.Errorf("unexpected registration %+v", reg)
	}

	counter, err := counters.Get(ctx, "evt-1")
	if err != nil {
		t.Fatalf("Get counter failed: %v", err)
	}
	if counter.RegisteredCount != 1 {
		t.Errorf("expected 1 seat consumed, got %d", counter.RegisteredCount)
	}
}

// TestRegistrar_Register_Duplicate verifies a repeat registration
// returns the existing grant without consuming a second seat.
func TestRegistrar_Register_Duplicate(t *testing.T) {
	registrar, counters := newTestRegistrar(5)
	ctx := context.Background()

	first, err := registrar.Register(ctx, "user-1", "evt-1", "int-1")
	if err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	second, err := registrar.Register(ctx, "user-1", "evt-1", "int-2")
	if err != nil {
		t.Fatalf("second Register failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same registration, got %s and %s", first.ID, second.ID)
	}

	counter, err := counters.Get(ctx, "evt-1")
	if err != nil {
		t.Fatalf("Get counter failed: %v", err)
	}
	if counter.RegisteredCount != 1 {
		t.Errorf("duplicate registration consumed a seat: count=%d", counter.RegisteredCount)
	}
}

func TestRegistrar_Register_CapacityExhausted(t *testing.T) {
	registrar, _ := newTestRegistrar(1)
	ctx := context.Background()

	if _, err := registrar.Register(ctx, "user-1", "evt-1", "int-1"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err := registrar.Register(ctx, "user-2", "evt-1", "int-2")
	if !errors.Is(err, ErrCapacityExhausted) {
		t.Errorf("expected ErrCapacityExhausted, got %v", err)
	}
}

// TestRegistrar_Register_ConcurrentNoOversell hammers a small event
// with more registrants than seats: exactly capacity succeed.
func TestRegistrar_Register_ConcurrentNoOversell(t *testing.T) {
	const capacity = 3
	const registrants = 20

	registrar, counters := newTestRegistrar(capacity)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, registrants)

	for i := 0; i < registrants; i++ {
		userID := fmt.Sprintf("user-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registrar.Register(ctx, userID, "evt-1", "int-"+userID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, exhausted := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrCapacityExhausted):
			exhausted++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if succeeded != capacity {
		t.Errorf("expected %d successes, got %d", capacity, succeeded)
	}
	if exhausted != registrants-capacity {
		t.Errorf("expected %d capacity rejections, got %d", registrants-capacity, exhausted)
	}

	counter, err := counters.Get(ctx, "evt-1")
	if err != nil {
		t.Fatalf("Get counter failed: %v", err)
	}
	if counter.RegisteredCount != capacity {
		t.Errorf("counter oversold: %d > %d", counter.RegisteredCount, capacity)
	}
}

func TestInMemoryCounterStore_Decrement(t *testing.T) {
	store := NewInMemoryCounterStore()
	store.Put(&Counter{EventID: "evt-1", Capacity: 2})
	ctx := context.Background()

	if ok, err := store.TryIncrement(ctx, "evt-1"); err != nil || !ok {
		t.Fatalf("TryIncrement failed: ok=%v err=%v", ok, err)
	}
	if err := store.Decrement(ctx, "evt-1"); err != nil {
		t.Fatalf("Decrement failed: %v", err)
	}

	counter, err := store.Get(ctx, "evt-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if counter.RegisteredCount != 0 {
		t.Errorf("expected 0 after compensation, got %d", counter.RegisteredCount)
	}

	// Decrement never goes below zero.
	if err := store.Decrement(ctx, "evt-1"); err != nil {
		t.Fatalf("Decrement at zero failed: %v", err)
	}
	counter, _ = store.Get(ctx, "evt-1")
	if counter.RegisteredCount != 0 {
		t.Errorf("expected count to stay at 0, got %d", counter.RegisteredCount)
	}
}

func TestInMemoryCounterStore_MissingCounter(t *testing.T) {
	store := NewInMemoryCounterStore()

	if _, err := store.TryIncrement(context.Background(), "missing"); !errors.Is(err, ErrCounterNotFound) {
		t.Errorf("expected ErrCounterNotFound, got %v", err)
	}
}
