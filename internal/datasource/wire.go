package datasource

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/bushta-cyber/fastmed/pkg/types"
)

// The backend has shipped two generations of the appointment and record
// payloads: date/start_time/end_time with symptoms as an array, and
// scheduled_date/scheduled_time/created_at with symptoms as a keyed map.
// Wire structs accept both and normalize to the canonical schema here, at
// the boundary; exactly one shape exists in the domain layer.

const (
	wireDateLayout = "2006-01-02"
	wireTimeLayout = "15:04"

	// defaultSlotMinutes fills in the end time for legacy payloads that
	// only carry a start time
	defaultSlotMinutes = 30
)

type appointmentWire struct {
	ID        string `json:"id"`
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`

	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`

	// Legacy shape
	ScheduledDate string `json:"scheduled_date"`
	ScheduledTime string `json:"scheduled_time"`
	CreatedAt     string `json:"created_at"`
	VisitType     string `json:"visit_type"`

	Status string `json:"status"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

// normalize converts a wire appointment to the canonical schema
func (w *appointmentWire) normalize() (*types.Appointment, error) {
	dateStr := w.Date
	if dateStr == "" {
		dateStr = w.ScheduledDate
	}
	date, err := time.ParseInLocation(wireDateLayout, dateStr, time.Local)
	if err != nil {
		return nil, fmt.Errorf("appointment %s has invalid date %q: %w", w.ID, dateStr, err)
	}

	start := w.StartTime
	if start == "" {
		start = w.ScheduledTime
	}
	if _, err := time.Parse(wireTimeLayout, start); err != nil {
		return nil, fmt.Errorf("appointment %s has invalid start time %q: %w", w.ID, start, err)
	}

	end := w.EndTime
	if end == "" {
		startClock, _ := time.Parse(wireTimeLayout, start)
		end = startClock.Add(defaultSlotMinutes * time.Minute).Format(wireTimeLayout)
	} else if _, err := time.Parse(wireTimeLayout, end); err != nil {
		return nil, fmt.Errorf("appointment %s has invalid end time %q: %w", w.ID, end, err)
	}

	if start >= end {
		return nil, fmt.Errorf("appointment %s has start time %s not before end time %s", w.ID, start, end)
	}

	visitType := w.Type
	if visitType == "" {
		visitType = w.VisitType
	}

	return &types.Appointment{
		ID:        w.ID,
		PatientID: w.PatientID,
		DoctorID:  w.DoctorID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Status:    types.AppointmentStatus(w.Status),
		Type:      types.AppointmentType(visitType),
		Reason:    w.Reason,
		Notes:     w.Notes,
	}, nil
}

type recordWire struct {
	ID            string               `json:"id"`
	PatientID     string               `json:"patient_id"`
	DoctorID      string               `json:"doctor_id"`
	Date          string               `json:"date"`
	Diagnosis     string               `json:"diagnosis"`
	Symptoms      json.RawMessage      `json:"symptoms"`
	Notes         string               `json:"notes"`
	Prescriptions []types.Prescription `json:"prescriptions"`
}

// normalize converts a wire record to the canonical schema. Symptoms arrive
// either as an array or as a keyed map; maps are flattened to their values
// in key order so the result is deterministic.
func (w *recordWire) normalize() (*types.MedicalRecord, error) {
	date, err := time.ParseInLocation(wireDateLayout, w.Date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("record %s has invalid date %q: %w", w.ID, w.Date, err)
	}

	symptoms, err := normalizeSymptoms(w.Symptoms)
	if err != nil {
		return nil, fmt.Errorf("record %s has invalid symptoms: %w", w.ID, err)
	}

	return &types.MedicalRecord{
		ID:            w.ID,
		PatientID:     w.PatientID,
		DoctorID:      w.DoctorID,
		Date:          date,
		Diagnosis:     w.Diagnosis,
		Symptoms:      symptoms,
		Notes:         w.Notes,
		Prescriptions: w.Prescriptions,
	}, nil
}

func normalizeSymptoms(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var keyed map[string]string
	if err := json.Unmarshal(raw, &keyed); err != nil {
		return nil, fmt.Errorf("symptoms are neither an array nor a keyed map")
	}

	keys := make([]string, 0, len(keyed))
	for k := range keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, 0, len(keyed))
	for _, k := range keys {
		values = append(values, keyed[k])
	}
	return values, nil
}
