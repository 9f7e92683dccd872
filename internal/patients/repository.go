package patients

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for patient storage.
type Repository interface {
	FindByPhone(ctx context.Context, phone string) (*Patient, error)
	// FindByDNI finds a patient by document number, excluding excludeID
	// (pass "" to search all). Used for duplicate detection.
	FindByDNI(ctx context.Context, dni, excludeID string) (*Patient, error)
	Create(ctx context.Context, p *Patient) (*Patient, error)
	Update(ctx context.Context, id string, patch Patch) (*Patient, error)
	// Merge reassigns every dependent record (messages, appointments,
	// notes, documents, tags) from sourceID to targetID and deletes the
	// source patient, as one atomic unit.
	Merge(ctx context.Context, sourceID, targetID string) error
}

// InMemoryRepository is a Repository backed by a map, used in tests and local
// development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	byID     map[string]*Patient
	merged   map[string]string // sourceID -> targetID
	mergeLog []string
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:   make(map[string]*Patient),
		merged: make(map[string]string),
	}
}

// FindByPhone returns the patient registered under the phone number.
func (r *InMemoryRepository) FindByPhone(ctx context.Context, phone string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.sorted() {
		if p.Phone == phone {
			return clone(p), nil
		}
	}
	return nil, ErrNotFound
}

// FindByDNI returns the earliest-created patient with the document number.
func (r *InMemoryRepository) FindByDNI(ctx context.Context, dni, excludeID string) (*Patient, error) {
	if dni == "" {
		return nil, ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.sorted() {
		if p.DNI == dni && p.ID != excludeID {
			return clone(p), nil
		}
	}
	return nil, ErrNotFound
}

// Create stores a new patient, assigning an id and creation time.
func (r *InMemoryRepository) Create(ctx context.Context, p *Patient) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Phone == p.Phone {
			return nil, ErrDuplicatePhone
		}
	}
	stored := clone(p)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.byID[stored.ID] = stored
	return clone(stored), nil
}

// Update applies the patch to the stored patient.
func (r *InMemoryRepository) Update(ctx context.Context, id string, patch Patch) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Apply(patch)
	return clone(p), nil
}

// Merge removes the source patient and records the reassignment.
func (r *InMemoryRepository) Merge(ctx context.Context, sourceID, targetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	source, ok := r.byID[sourceID]
	if !ok {
		return ErrNotFound
	}
	target, ok := r.byID[targetID]
	if !ok {
		return ErrNotFound
	}
	// The target keeps its profile; the source contributes only what the
	// target is missing.
	if target.Phone == "" {
		target.Phone = source.Phone
	}
	delete(r.byID, sourceID)
	r.merged[sourceID] = targetID
	r.mergeLog = append(r.mergeLog, sourceID+"->"+targetID)
	return nil
}

// MergeCount returns how many merges were performed (test helper).
func (r *InMemoryRepository) MergeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mergeLog)
}

// Count returns the number of live patients (test helper).
func (r *InMemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *InMemoryRepository) sorted() []*Patient {
	out := make([]*Patient, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func clone(p *Patient) *Patient {
	cp := *p
	if p.ConversationStateData != nil {
		cp.ConversationStateData = append([]byte(nil), p.ConversationStateData...)
	}
	if p.PendingSlotExpiresAt != nil {
		t := *p.PendingSlotExpiresAt
		cp.PendingSlotExpiresAt = &t
	}
	if p.PreferredHour != nil {
		h := *p.PreferredHour
		cp.PreferredHour = &h
	}
	return &cp
}
