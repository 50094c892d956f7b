// Package catalog provides repositories for course and event lookups.
package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrCourseNotFound is returned when a course is not found.
var ErrCourseNotFound = errors.New("course not found")

// ErrEventNotFound is returned when an event is not found.
var ErrEventNotFound = errors.New("event not found")

// CourseRepository defines read methods for the course catalog.
type CourseRepository interface {
	GetByID(ctx context.Context, id string) (*Course, error)
}

// EventRepository defines read methods for the event catalog.
type EventRepository interface {
	GetByID(ctx context.Context, id string) (*Event, error)
}

// InMemoryCourseRepository implements CourseRepository with in-memory storage.
type InMemoryCourseRepository struct {
	mu      sync.RWMutex
	courses map[string]*Course
}

// NewInMemoryCourseRepository creates a new in-memory course repository.
func NewInMemoryCourseRepository() *InMemoryCourseRepository {
	return &InMemoryCourseRepository{
		courses: make(map[string]*Course),
	}
}

// Put adds or replaces a course. Intended for tests and seeding.
func (r *InMemoryCourseRepository) Put(course *Course) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if course.ID == "" {
		course.ID = uuid.New().String()
	}
	if course.CreatedAt == nil {
		now := time.Now().UTC()
		course.CreatedAt = &now
	}

	// Deep copy to prevent external mutation
	copied := *course
	r.courses[course.ID] = &copied
}

// GetByID retrieves a course by ID.
func (r *InMemoryCourseRepository) GetByID(ctx context.Context, id string) (*Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	course, ok := r.courses[id]
	if !ok {
		return nil, ErrCourseNotFound
	}

	copied := *course
	return &copied, nil
}

// InMemoryEventRepository implements EventRepository with in-memory storage.
type InMemoryEventRepository struct {
	mu     sync.RWMutex
	events map[string]*Event
}

// NewInMemoryEventRepository creates a new in-memory event repository.
func NewInMemoryEventRepository() *InMemoryEventRepository {
	return &InMemoryEventRepository{
		events: make(map[string]*Event),
	}
}

// Put adds or replaces an event. Intended for tests and seeding.
func (r *InMemoryEventRepository) Put(event *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt == nil {
		now := time.Now().UTC()
		event.CreatedAt = &now
	}

	copied := *event
	r.events[event.ID] = &copied
}

// GetByID retrieves an event by ID.
func (r *InMemoryEventRepository) GetByID(ctx context.Context, id string) (*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, ok := r.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}

	copied := *event
	return &copied, nil
}
