package patients

import "errors"

var (
	// ErrNotFound indicates the patient does not exist.
	ErrNotFound = errors.New("patients: patient not found")
	// ErrDuplicatePhone indicates a patient with that phone already exists.
	ErrDuplicatePhone = errors.New("patients: phone already registered")
)
