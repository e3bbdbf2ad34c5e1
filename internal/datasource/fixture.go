package datasource

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bushta-cyber/fastmed/pkg/logger"
	"github.com/bushta-cyber/fastmed/pkg/types"
)

// fixtureSecret signs the fixture's demo tokens. Not a production secret:
// the fixture exists so the portal can run without a backend.
const fixtureSecret = "fastmed-fixture-secret"

// DemoPassword is the password every seeded fixture account accepts
const DemoPassword = "password"

// Fixture is an in-memory data source seeded with the demo dataset. It
// issues real HS256 token pairs and verifies bcrypt-hashed credentials,
// so the session store exercises the same code paths as against the REST
// backend.
type Fixture struct {
	mu            sync.RWMutex
	logger        *logger.Logger
	latency       time.Duration
	users         []*types.Identity
	passwords     map[string][]byte // user id -> bcrypt hash
	appointments  []*types.Appointment
	records       []*types.MedicalRecord
	conversations []*types.Conversation
	messages      []*types.Message
	viewerID      string
	tokenTTL      time.Duration
}

// NewFixture creates a fixture source seeded with the demo dataset
func NewFixture(log *logger.Logger) *Fixture {
	f := &Fixture{
		logger:    log,
		passwords: map[string][]byte{},
		tokenTTL:  time.Hour,
	}
	f.seed()
	return f
}

// WithLatency makes every call wait, simulating network delay
func (f *Fixture) WithLatency(d time.Duration) *Fixture {
	f.latency = d
	return f
}

// Login verifies the email/password pair against the seeded accounts
func (f *Fixture) Login(ctx context.Context, email, password string) (*types.AuthToken, *types.Identity, error) {
	if err := f.wait(ctx); err != nil {
		return nil, nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, user := range f.users {
		if !strings.EqualFold(user.Email, email) {
			continue
		}
		if bcrypt.CompareHashAndPassword(f.passwords[user.ID], []byte(password)) != nil {
			return nil, nil, types.NewInvalidCredentialsError()
		}
		token, err := f.issueTokens(user.ID)
		if err != nil {
			return nil, nil, err
		}
		f.viewerID = user.ID
		return token, user, nil
	}

	return nil, nil, types.NewInvalidCredentialsError()
}

// Register creates a new account; a known email is rejected
func (f *Fixture) Register(ctx context.Context, req *types.RegistrationRequest) (*types.AuthToken, *types.Identity, error) {
	if err := f.wait(ctx); err != nil {
		return nil, nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, user := range f.users {
		if strings.EqualFold(user.Email, req.Email) {
			return nil, nil, types.NewEmailExistsError(req.Email)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, err
	}

	user := &types.Identity{
		ID:    uuid.New().String(),
		Name:  req.Name,
		Email: req.Email,
		Role:  req.Role,
	}
	f.users = append(f.users, user)
	f.passwords[user.ID] = hash

	token, err := f.issueTokens(user.ID)
	if err != nil {
		return nil, nil, err
	}
	f.viewerID = user.ID
	return token, user, nil
}

// GetCurrentUser resolves an access token's subject to an identity
func (f *Fixture) GetCurrentUser(ctx context.Context, accessToken string) (*types.Identity, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	parsed, err := jwt.Parse(accessToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, types.NewUnauthorizedError("Unexpected signing method")
		}
		return []byte(fixtureSecret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, types.NewUnauthorizedError("Access token rejected by the data source")
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return nil, types.NewUnauthorizedError("Access token has no subject")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.ID == subject {
			f.viewerID = user.ID
			return user, nil
		}
	}
	return nil, types.NewUnauthorizedError("Unknown token subject")
}

// GetAppointments returns the appointment snapshot. Ownership scoping is
// the view layer's job; the fixture hands back the whole collection the
// way the backend list endpoint does for an admin.
func (f *Fixture) GetAppointments(ctx context.Context) ([]*types.Appointment, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*types.Appointment(nil), f.appointments...), nil
}

// CancelAppointment marks an appointment cancelled. Only legal status
// transitions are acknowledged.
func (f *Fixture) CancelAppointment(ctx context.Context, appointmentID string) error {
	return f.UpdateAppointmentStatus(ctx, appointmentID, types.StatusCancelled)
}

// RescheduleAppointment moves a scheduled appointment to new date/times
func (f *Fixture) RescheduleAppointment(ctx context.Context, appointmentID, date, startTime, endTime string) error {
	if err := f.wait(ctx); err != nil {
		return err
	}

	parsed, err := time.ParseInLocation(wireDateLayout, date, time.Local)
	if err != nil {
		return types.NewValidationError("Invalid reschedule date", map[string]interface{}{"date": date})
	}
	if startTime >= endTime {
		return types.NewValidationError("Start time must be before end time", nil)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, apt := range f.appointments {
		if apt.ID != appointmentID {
			continue
		}
		if apt.Status != types.StatusScheduled {
			return &types.PortalError{
				Type:    types.ErrorTypeConflict,
				Code:    types.ErrCodeIllegalTransition,
				Message: "Only scheduled appointments can be rescheduled",
			}
		}
		apt.Date = parsed
		apt.StartTime = startTime
		apt.EndTime = endTime
		return nil
	}
	return types.NewNotFoundError("appointment", appointmentID)
}

// UpdateAppointmentStatus applies a status transition, enforcing the
// scheduled -> {in-progress, cancelled} -> completed state machine
func (f *Fixture) UpdateAppointmentStatus(ctx context.Context, appointmentID string, status types.AppointmentStatus) error {
	if err := f.wait(ctx); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, apt := range f.appointments {
		if apt.ID != appointmentID {
			continue
		}
		if !apt.Status.CanTransitionTo(status) {
			return &types.PortalError{
				Type:    types.ErrorTypeConflict,
				Code:    types.ErrCodeIllegalTransition,
				Message: "Illegal appointment status transition",
				Details: map[string]interface{}{"from": apt.Status, "to": status},
			}
		}
		apt.Status = status
		return nil
	}
	return types.NewNotFoundError("appointment", appointmentID)
}

// GetRecords returns the medical record snapshot
func (f *Fixture) GetRecords(ctx context.Context) ([]*types.MedicalRecord, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*types.MedicalRecord(nil), f.records...), nil
}

// GetConversations returns the conversation snapshot
func (f *Fixture) GetConversations(ctx context.Context) ([]*types.Conversation, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*types.Conversation(nil), f.conversations...), nil
}

// GetMessages returns the messages belonging to a conversation
func (f *Fixture) GetMessages(ctx context.Context, conversationID string) ([]*types.Message, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	var conv *types.Conversation
	for _, c := range f.conversations {
		if c.ID == conversationID {
			conv = c
			break
		}
	}
	if conv == nil {
		return nil, types.NewNotFoundError("conversation", conversationID)
	}

	result := make([]*types.Message, 0, len(f.messages))
	for _, msg := range f.messages {
		if conv.MatchesPair(msg.SenderID, msg.ReceiverID) {
			result = append(result, msg)
		}
	}
	return result, nil
}

// SendMessage appends a message from the authenticated viewer. The fixture
// assigns the id and timestamp, the way the authoritative backend does.
func (f *Fixture) SendMessage(ctx context.Context, receiverID, content string) (*types.Message, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.viewerID == "" {
		return nil, types.NewUnauthorizedError("No authenticated sender")
	}

	msg := &types.Message{
		ID:         uuid.New().String(),
		SenderID:   f.viewerID,
		ReceiverID: receiverID,
		Content:    content,
		Timestamp:  time.Now(),
	}
	f.messages = append(f.messages, msg)

	conv := f.findOrCreateConversation(f.viewerID, receiverID)
	conv.LastMessage = msg
	conv.UnreadCount++

	return msg, nil
}

// GetUser resolves a user id for directory display
func (f *Fixture) GetUser(ctx context.Context, userID string) (*types.Identity, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}

	if user, ok := f.LookupUser(userID); ok {
		return user, nil
	}
	return nil, types.NewNotFoundError("user", userID)
}

// LookupUser implements interfaces.UserDirectory
func (f *Fixture) LookupUser(userID string) (*types.Identity, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, user := range f.users {
		if user.ID == userID {
			return user, true
		}
	}
	return nil, false
}

func (f *Fixture) findOrCreateConversation(a, b string) *types.Conversation {
	for _, conv := range f.conversations {
		if conv.MatchesPair(a, b) {
			return conv
		}
	}
	conv := &types.Conversation{
		ID:           uuid.New().String(),
		Participants: []string{a, b},
	}
	f.conversations = append(f.conversations, conv)
	return conv
}

func (f *Fixture) issueTokens(userID string) (*types.AuthToken, error) {
	now := time.Now()

	access, err := signToken(userID, now, now.Add(f.tokenTTL))
	if err != nil {
		return nil, err
	}
	refresh, err := signToken(userID, now, now.Add(24*f.tokenTTL))
	if err != nil {
		return nil, err
	}

	return &types.AuthToken{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(f.tokenTTL.Seconds()),
	}, nil
}

func signToken(userID string, issuedAt, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	return token.SignedString([]byte(fixtureSecret))
}

func (f *Fixture) wait(ctx context.Context) error {
	if f.latency == 0 {
		if err := ctx.Err(); err != nil {
			return types.NewNetworkError(err)
		}
		return nil
	}

	select {
	case <-time.After(f.latency):
		return nil
	case <-ctx.Done():
		return types.NewNetworkError(ctx.Err())
	}
}

// seed loads the demo dataset: two patients, two doctors, and enough
// appointments, records and messages to exercise every view.
func (f *Fixture) seed() {
	hash, _ := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.MinCost)

	f.users = []*types.Identity{
		{ID: "p1", Name: "Jane Doe", Email: "jane.doe@example.com", Role: types.RolePatient},
		{ID: "d1", Name: "Dr. John Smith", Email: "dr.smith@example.com", Role: types.RoleDoctor},
		{ID: "p2", Name: "Robert Johnson", Email: "robert.j@example.com", Role: types.RolePatient},
		{ID: "d2", Name: "Dr. Sarah Williams", Email: "dr.williams@example.com", Role: types.RoleDoctor},
	}
	for _, user := range f.users {
		f.passwords[user.ID] = hash
	}

	day := func(offset int) time.Time {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, offset)
	}

	f.appointments = []*types.Appointment{
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

	f.records = []*types.MedicalRecord{
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

	ts := func(offset int, hour, minute int) time.Time {
		d := day(offset)
		return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, d.Location())
	}

	f.messages = []*types.Message{
		{ID: "m1", SenderID: "p1", ReceiverID: "d1", Content: "Hello Dr. Smith, I'm experiencing some side effects from the medication.", Timestamp: ts(-1, 9, 30), Read: true},
		{ID: "m2", SenderID: "d1", ReceiverID: "p1", Content: "Hi Jane, what kind of side effects are you experiencing?", Timestamp: ts(-1, 10, 15), Read: true},
		{ID: "m3", SenderID: "p1", ReceiverID: "d1", Content: "I'm feeling dizzy and nauseous after taking the medication.", Timestamp: ts(0, 10, 30), Read: false},
	}

	f.conversations = []*types.Conversation{
		{ID: "conv1", Participants: []string{"p1", "d1"}, LastMessage: f.messages[2], UnreadCount: 1},
		{ID: "conv2", Participants: []string{"p2", "d2"}, UnreadCount: 0},
	}
}
