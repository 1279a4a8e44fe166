package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/medbook/scheduling/internal/calendar"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Specialty is the fixed set of practice areas a provider can hold.
type Specialty string

const (
	SpecialtyRadiology      Specialty = "radiology"
	SpecialtyAnesthesiology Specialty = "anesthesiology"
	SpecialtyCardiology     Specialty = "cardiology"
	SpecialtyDentistry      Specialty = "dentistry"
)

func ValidSpecialty(s Specialty) bool {
	switch s {
	case SpecialtyRadiology, SpecialtyAnesthesiology, SpecialtyCardiology, SpecialtyDentistry:
		return true
	}
	return false
}

// Role identifies the kind of authenticated principal making a call.
// Authentication itself is external; the engine only consumes the
// verified role.
type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty Specialty
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is never physically deleted; cancellation flips Status and
// the row stays behind as audit history.
type Appointment struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	ProviderID uuid.UUID
	Date       time.Time
	Slot       calendar.TimeOfDay
	Urgent     bool
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
