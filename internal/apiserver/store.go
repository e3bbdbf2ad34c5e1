package apiserver

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bushta-cyber/fastmed/pkg/types"
)

// Store abstracts the portal API's persistence. The in-memory store backs
// development and tests; the Postgres repository backs deployments with
// database.enabled set.
type Store interface {
	Authenticate(ctx context.Context, email, password string) (*types.Identity, error)
	CreateUser(ctx context.Context, name, email, password string, role types.Role) (*types.Identity, error)
	GetUser(ctx context.Context, userID string) (*types.Identity, error)

	ListAppointments(ctx context.Context, viewer *types.Identity) ([]*types.Appointment, error)
	GetAppointment(ctx context.Context, appointmentID string) (*types.Appointment, error)
	UpdateAppointment(ctx context.Context, apt *types.Appointment) error

	ListRecords(ctx context.Context, viewer *types.Identity) ([]*types.MedicalRecord, error)

	ListConversations(ctx context.Context, viewer *types.Identity) ([]*types.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]*types.Message, error)
	InsertMessage(ctx context.Context, msg *types.Message) error
}

// MemoryStore is the in-memory Store seeded with the demo dataset
type MemoryStore struct {
	mu            sync.RWMutex
	users         []*types.Identity
	passwords     map[string][]byte
	appointments  []*types.Appointment
	records       []*types.MedicalRecord
	conversations []*types.Conversation
	messages      []*types.Message
}

// NewMemoryStore creates a seeded in-memory store
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{passwords: map[string][]byte{}}
	s.seed()
	return s
}

// Authenticate verifies a credential pair against the stored bcrypt hash
func (s *MemoryStore) Authenticate(ctx context.Context, email, password string) (*types.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if !strings.EqualFold(user.Email, email) {
			continue
		}
		if bcrypt.CompareHashAndPassword(s.passwords[user.ID], []byte(password)) != nil {
			return nil, types.NewInvalidCredentialsError()
		}
		return user, nil
	}
	return nil, types.NewInvalidCredentialsError()
}

// CreateUser registers a new account; a known email is rejected
func (s *MemoryStore) CreateUser(ctx context.Context, name, email, password string, role types.Role) (*types.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return nil, types.NewEmailExistsError(email)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &types.Identity{
		ID:    uuid.New().String(),
		Name:  name,
		Email: email,
		Role:  role,
	}
	s.users = append(s.users, user)
	s.passwords[user.ID] = hash
	return user, nil
}

// GetUser resolves a user id
func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*types.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.ID == userID {
			return user, nil
		}
	}
	return nil, types.NewNotFoundError("user", userID)
}

// ListAppointments returns the viewer's appointments: patients see the
// ones booked for them, doctors the ones they conduct
func (s *MemoryStore) ListAppointments(ctx context.Context, viewer *types.Identity) ([]*types.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*types.Appointment, 0, len(s.appointments))
	for _, apt := range s.appointments {
		if apt.OwnedBy(viewer) {
			result = append(result, apt)
		}
	}
	return result, nil
}

// GetAppointment resolves an appointment id
func (s *MemoryStore) GetAppointment(ctx context.Context, appointmentID string) (*types.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, apt := range s.appointments {
		if apt.ID == appointmentID {
			copied := *apt
			return &copied, nil
		}
	}
	return nil, types.NewNotFoundError("appointment", appointmentID)
}

// UpdateAppointment replaces the stored appointment
func (s *MemoryStore) UpdateAppointment(ctx context.Context, apt *types.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.appointments {
		if existing.ID == apt.ID {
			copied := *apt
			s.appointments[i] = &copied
			return nil
		}
	}
	return types.NewNotFoundError("appointment", apt.ID)
}

// ListRecords returns the viewer's medical records
func (s *MemoryStore) ListRecords(ctx context.Context, viewer *types.Identity) ([]*types.MedicalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*types.MedicalRecord, 0, len(s.records))
	for _, record := range s.records {
		if record.OwnedBy(viewer) {
			result = append(result, record)
		}
	}
	return result, nil
}

// ListConversations returns the conversations the viewer takes part in
func (s *MemoryStore) ListConversations(ctx context.Context, viewer *types.Identity) ([]*types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*types.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		if conv.HasParticipant(viewer.ID) {
			result = append(result, conv)
		}
	}
	return result, nil
}

// ListMessages returns a conversation's messages
func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string) ([]*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conv *types.Conversation
	for _, c := range s.conversations {
		if c.ID == conversationID {
			conv = c
			break
		}
	}
	if conv == nil {
		return nil, types.NewNotFoundError("conversation", conversationID)
	}

	result := make([]*types.Message, 0, len(s.messages))
	for _, msg := range s.messages {
		if conv.MatchesPair(msg.SenderID, msg.ReceiverID) {
			result = append(result, msg)
		}
	}
	return result, nil
}

// InsertMessage appends a message and updates its conversation, creating
// one for a first contact
func (s *MemoryStore) InsertMessage(ctx context.Context, msg *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)

	for _, conv := range s.conversations {
		if conv.MatchesPair(msg.SenderID, msg.ReceiverID) {
			conv.LastMessage = msg
			conv.UnreadCount++
			return nil
		}
	}

	s.conversations = append(s.conversations, &types.Conversation{
		ID:           uuid.New().String(),
		Participants: []string{msg.SenderID, msg.ReceiverID},
		LastMessage:  msg,
		UnreadCount:  1,
	})
	return nil
}

func (s *MemoryStore) seed() {
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)

	s.users = []*types.Identity{
		{ID: "p1", Name: "Jane Doe", Email: "jane.doe@example.com", Role: types.RolePatient},
		{ID: "d1", Name: "Dr. John Smith", Email: "dr.smith@example.com", Role: types.RoleDoctor},
		{ID: "p2", Name: "Robert Johnson", Email: "robert.j@example.com", Role: types.RolePatient},
		{ID: "d2", Name: "Dr. Sarah Williams", Email: "dr.williams@example.com", Role: types.RoleDoctor},
	}
	for _, user := range s.users {
		s.passwords[user.ID] = hash
	}

	day := func(offset int) time.Time {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, offset)
	}

	s.appointments = []*types.Appointment{
		{
			ID: "apt1", PatientID: "p1", DoctorID: "d1",
			Date: day(1), StartTime: "10:00", EndTime: "10:30",
			Status: types.StatusScheduled, Type: types.TypeVideo,
			Reason: "Regular checkup",
		},
		{
			ID: "apt2", PatientID: "p2", DoctorID: "d2",
			Date: day(0), StartTime: "14:00", EndTime: "14:30",
			Status: types.StatusScheduled, Type: types.TypeVideo,
			Reason: "Flu symptoms",
		},
		{
			ID: "apt3", PatientID: "p1", DoctorID: "d2",
			Date: day(-5), StartTime: "11:00", EndTime: "11:30",
			Status: types.StatusCompleted, Type: types.TypeVideo,
			Reason: "Follow-up on medication",
			Notes:  "Patient responding well to treatment. Advised to continue medication for another week.",
		},
	}

	s.records = []*types.MedicalRecord{
		{
			ID: "rec1", PatientID: "p1", DoctorID: "d2",
			Date:      day(-30),
			Diagnosis: "Seasonal Allergy",
			Symptoms:  []string{"Sneezing", "Runny nose", "Itchy eyes"},
			Notes:     "Patient presents with seasonal allergies. Prescribed antihistamines.",
			Prescriptions: []types.Prescription{
				{
					ID: "presc1", MedicationName: "Loratadine", Dosage: "10mg",
					Frequency: "Once daily", Duration: "2 weeks",
					IssuedDate: day(-30), IsActive: true,
				},
			},
		},
		{
			ID: "rec2", PatientID: "p2", DoctorID: "d1",
			Date:      day(-25),
			Diagnosis: "Hypertension",
			Symptoms:  []string{"Headache", "Dizziness", "High blood pressure"},
			Notes:     "Patient diagnosed with stage 1 hypertension. Started on medication and advised lifestyle changes.",
			Prescriptions: []types.Prescription{
				{
					ID: "presc2", MedicationName: "Lisinopril", Dosage: "5mg",
					Frequency: "Once daily", Duration: "1 month",
					IssuedDate: day(-25), IsActive: true,
				},
			},
		},
	}

	ts := func(offset, hour, minute int) time.Time {
		d := day(offset)
		return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, d.Location())
	}

	s.messages = []*types.Message{
		{ID: "m1", SenderID: "p1", ReceiverID: "d1", Content: "Hello Dr. Smith, I'm experiencing some side effects from the medication.", Timestamp: ts(-1, 9, 30), Read: true},
		{ID: "m2", SenderID: "d1", ReceiverID: "p1", Content: "Hi Jane, what kind of side effects are you experiencing?", Timestamp: ts(-1, 10, 15), Read: true},
		{ID: "m3", SenderID: "p1", ReceiverID: "d1", Content: "I'm feeling dizzy and nauseous after taking the medication.", Timestamp: ts(0, 10, 30), Read: false},
	}

	s.conversations = []*types.Conversation{
		{ID: "conv1", Participants: []string{"p1", "d1"}, LastMessage: s.messages[2], UnreadCount: 1},
		{ID: "conv2", Participants: []string{"p2", "d2"}, UnreadCount: 0},
	}
}
