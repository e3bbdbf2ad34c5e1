package types

import "time"

// Prescription represents a medication prescribed within a medical record.
// IsActive is stored state set by the prescribing doctor; this layer never
// derives it from Duration.
type Prescription struct {
	ID             string    `json:"id"`
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage"`
	Frequency      string    `json:"frequency"`
	Duration       string    `json:"duration"`
	IssuedDate     time.Time `json:"issued_date"`
	IsActive       bool      `json:"is_active"`
}

// MedicalRecord represents a diagnosis entry authored by a doctor.
// Visible to the owning patient and the authoring doctor only.
type MedicalRecord struct {
	ID            string         `json:"id"`
	PatientID     string         `json:"patient_id"`
	DoctorID      string         `json:"doctor_id"`
	Date          time.Time      `json:"date"`
	Diagnosis     string         `json:"diagnosis"`
	Symptoms      []string       `json:"symptoms"`
	Notes         string         `json:"notes"`
	Prescriptions []Prescription `json:"prescriptions,omitempty"`
}

// OwnedBy reports whether the record is visible to the given identity
func (r *MedicalRecord) OwnedBy(identity *Identity) bool {
	if identity.Role == RolePatient {
		return r.PatientID == identity.ID
	}
	return r.DoctorID == identity.ID
}
