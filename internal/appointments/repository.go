package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for appointment storage.
type Repository interface {
	// ListForDoctor returns appointments for the provider inside
	// [from, to), filtered by status when statuses is non-empty.
	ListForDoctor(ctx context.Context, doctorID string, from, to time.Time, statuses []Status) ([]Appointment, error)
	// Create inserts an appointment. It returns ErrSlotTaken when a
	// blocking appointment already occupies the datetime; the check and
	// the insert are atomic.
	Create(ctx context.Context, appt *Appointment) (*Appointment, error)
	Update(ctx context.Context, id string, patch Patch) (*Appointment, error)
	// FindActive returns the patient's next blocking appointment after
	// the given instant.
	FindActive(ctx context.Context, patientID string, after time.Time) (*Appointment, error)
}

// InMemoryRepository is a Repository backed by a map, used in tests and local
// development.
type InMemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*Appointment
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{byID: make(map[string]*Appointment)}
}

// ListForDoctor returns ordered appointments in the window.
func (r *InMemoryRepository) ListForDoctor(ctx context.Context, doctorID string, from, to time.Time, statuses []Status) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	allowed := map[Status]bool{}
	for _, s := range statuses {
		allowed[s] = true
	}

	var out []Appointment
	for _, a := range r.byID {
		if a.DoctorID != doctorID {
			continue
		}
		if a.DateTime.Before(from) || !a.DateTime.Before(to) {
			continue
		}
		if len(allowed) > 0 && !allowed[a.Status] {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateTime.Before(out[j].DateTime) })
	return out, nil
}

// Create inserts an appointment, enforcing the blocking-slot uniqueness the
// database enforces in production.
func (r *InMemoryRepository) Create(ctx context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *appt
	if stored.Status == "" {
		stored.Status = StatusScheduled
	}

	// The default above must land before this check: a blank status books
	// as scheduled and scheduled rows block the slot.
	if stored.Status.IsBlocking() {
		for _, existing := range r.byID {
			if existing.DoctorID == stored.DoctorID && existing.Status.IsBlocking() && existing.DateTime.Equal(stored.DateTime) {
				return nil, ErrSlotTaken
			}
		}
	}

	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.byID[stored.ID] = &stored
	result := stored
	return &result, nil
}

// Update applies the patch, re-checking slot uniqueness on reschedules.
func (r *InMemoryRepository) Update(ctx context.Context, id string, patch Patch) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	if patch.DateTime != nil {
		for otherID, existing := range r.byID {
			if otherID == id {
				continue
			}
			if existing.DoctorID == a.DoctorID && existing.Status.IsBlocking() && existing.DateTime.Equal(*patch.DateTime) {
				return nil, ErrSlotTaken
			}
		}
		a.DateTime = *patch.DateTime
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.Reason != nil {
		a.Reason = *patch.Reason
	}
	result := *a
	return &result, nil
}

// FindActive returns the next blocking appointment for the patient.
func (r *InMemoryRepository) FindActive(ctx context.Context, patientID string, after time.Time) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Appointment
	for _, a := range r.byID {
		if a.PatientID != patientID || !a.Status.IsBlocking() || !a.DateTime.After(after) {
			continue
		}
		if best == nil || a.DateTime.Before(best.DateTime) {
			best = a
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	result := *best
	return &result, nil
}
