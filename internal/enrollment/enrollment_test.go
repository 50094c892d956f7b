package enrollment

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestInMemoryRepository_FindOrCreate(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	enr, created, err := repo.FindOrCreate(ctx, "user-1", "course-1", "int-1")
	if err != nil {
		t.Fatalf("FindOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected first call to create")
	}
	if enr.Status != StatusActive {
		t.Errorf("expected active status, got %s", enr.Status)
	}

	again, created, err := repo.FindOrCreate(ctx, "user-1", "course-1", "int-2")
	if err != nil {
		t.Fatalf("second FindOrCreate failed: %v", err)
	}
	if created {
		t.Error("expected second call to find, not create")
	}
	if again.ID != enr.ID {
		t.Errorf("expected same enrollment %s, got %s", enr.ID, again.ID)
	}
	if again.SourceIntentID != "int-1" {
		t.Errorf("expected original source intent, got %s", again.SourceIntentID)
	}
}

func TestInMemoryRepository_GetActive(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	if _, err := repo.GetActive(ctx, "user-1", "course-1"); !errors.Is(err, ErrEnrollmentNotFound) {
		t.Errorf("expected ErrEnrollmentNotFound, got %v", err)
	}

	if _, _, err := repo.FindOrCreate(ctx, "user-1", "course-1", "int-1"); err != nil {
		t.Fatalf("FindOrCreate failed: %v", err)
	}

	enr, err := repo.GetActive(ctx, "user-1", "course-1")
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if enr.UserID != "user-1" || enr.CourseID != "course-1" {
		t.Errorf("unexpected enrollment %+v", enr)
	}
}

// TestInMemoryRepository_FindOrCreate_Concurrent verifies that
// concurrent duplicate deliveries produce exactly one enrollment.
func TestInMemoryRepository_FindOrCreate_Concurrent(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	creations := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := repo.FindOrCreate(ctx, "user-1", "course-1", "int-1")
			if err != nil {
				t.Errorf("FindOrCreate failed: %v", err)
				return
			}
			creations <- created
		}()
	}
	wg.Wait()
	close(creations)

	total := 0
	for created := range creations {
		if created {
			total++
		}
	}
	if total != 1 {
		t.Errorf("expected exactly 1 creation, got %d", total)
	}
}
