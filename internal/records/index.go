package records

import (
	"strings"

	"github.com/bushta-cyber/fastmed/pkg/logger"
	"github.com/bushta-cyber/fastmed/pkg/types"
)

// Index derives the visible medical record subset for an identity. It is a
// pure filter: no sort is imposed beyond input order.
type Index struct {
	logger *logger.Logger
}

// NewIndex creates a new record index
func NewIndex(log *logger.Logger) *Index {
	return &Index{logger: log}
}

// DeriveView filters the snapshot to records owned by the identity
// (patients see their own records, doctors the ones they authored) and
// applies a case-insensitive substring query over the diagnosis and each
// symptom. An empty query yields all owned records.
func (ix *Index) DeriveView(records []*types.MedicalRecord, identity *types.Identity, query string) []*types.MedicalRecord {
	if identity == nil {
		return nil
	}

	needle := strings.ToLower(strings.TrimSpace(query))

	result := make([]*types.MedicalRecord, 0, len(records))
	for _, record := range records {
		if !record.OwnedBy(identity) {
			continue
		}
		if needle == "" || matchesQuery(record, needle) {
			result = append(result, record)
		}
	}

	return result
}

// ActivePrescriptions returns the record's prescriptions flagged active.
// IsActive is stored state set by the prescribing doctor; no expiry is
// computed from Duration.
func (ix *Index) ActivePrescriptions(record *types.MedicalRecord) []types.Prescription {
	active := make([]types.Prescription, 0, len(record.Prescriptions))
	for _, p := range record.Prescriptions {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active
}

func matchesQuery(record *types.MedicalRecord, needle string) bool {
	if strings.Contains(strings.ToLower(record.Diagnosis), needle) {
		return true
	}
	for _, symptom := range record.Symptoms {
		if strings.Contains(strings.ToLower(symptom), needle) {
			return true
		}
	}
	return false
}
