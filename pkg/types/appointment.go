package types

import "time"

// AppointmentStatus represents appointment status values
type AppointmentStatus string

const (
	StatusScheduled  AppointmentStatus = "scheduled"
	StatusInProgress AppointmentStatus = "in-progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
)

// Terminal reports whether no further status transition is allowed
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether the transition s -> next is legal.
// scheduled -> {in-progress, cancelled}; in-progress -> completed.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	switch s {
	case StatusScheduled:
		return next == StatusInProgress || next == StatusCancelled
	case StatusInProgress:
		return next == StatusCompleted
	default:
		return false
	}
}

// AppointmentType represents the visit modality
type AppointmentType string

const (
	TypeVideo    AppointmentType = "video"
	TypeInPerson AppointmentType = "in-person"
)

// Appointment represents a scheduled appointment between a patient and a doctor.
// Date carries the calendar day (midnight, local time); StartTime and EndTime
// are clock times in "15:04" form, so lexicographic order matches temporal order.
type Appointment struct {
	ID        string            `json:"id"`
	PatientID string            `json:"patient_id"`
	DoctorID  string            `json:"doctor_id"`
	Date      time.Time         `json:"date"`
	StartTime string            `json:"start_time"`
	EndTime   string            `json:"end_time"`
	Status    AppointmentStatus `json:"status"`
	Type      AppointmentType   `json:"type"`
	Reason    string            `json:"reason"`
	Notes     string            `json:"notes,omitempty"`
}

// Day returns the appointment's calendar day truncated to midnight local time
func (a *Appointment) Day() time.Time {
	return time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), 0, 0, 0, 0, a.Date.Location())
}

// OwnedBy reports whether the appointment belongs to the given identity:
// patients own appointments booked for them, doctors the ones they conduct.
func (a *Appointment) OwnedBy(identity *Identity) bool {
	if identity.Role == RolePatient {
		return a.PatientID == identity.ID
	}
	return a.DoctorID == identity.ID
}
